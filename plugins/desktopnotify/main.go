package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/chamale-rac/xmpp/pkg/plugin"
)

// DesktopNotifyPlugin mirrors session notifications to the desktop
type DesktopNotifyPlugin struct {
	api     plugin.API
	running bool
	unsub   []func()
}

// Name returns the plugin name
func (p *DesktopNotifyPlugin) Name() string {
	return "desktopnotify"
}

// Version returns the plugin version
func (p *DesktopNotifyPlugin) Version() string {
	return "1.0.0"
}

// Description returns a short description
func (p *DesktopNotifyPlugin) Description() string {
	return "Desktop notifications for messages and session events"
}

// Init initializes the plugin
func (p *DesktopNotifyPlugin) Init(ctx context.Context, api plugin.API) error {
	p.api = api
	return nil
}

// Start starts the plugin
func (p *DesktopNotifyPlugin) Start() error {
	if p.running {
		return nil
	}

	unsubToast := p.api.OnToast(func(text string) {
		_ = sendNotification("Chat", text)
	})
	p.unsub = append(p.unsub, unsubToast)

	unsubConn := p.api.OnConnectionChanged(func(online bool) {
		if online {
			return
		}
		_ = sendNotification("Chat", "Connection lost, reconnecting in the background")
	})
	p.unsub = append(p.unsub, unsubConn)

	p.running = true
	return nil
}

// Stop stops the plugin
func (p *DesktopNotifyPlugin) Stop() error {
	if !p.running {
		return nil
	}

	for _, unsub := range p.unsub {
		unsub()
	}
	p.unsub = nil

	p.running = false
	return nil
}

// sendNotification sends a desktop notification
func sendNotification(title, body string) error {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, body, title)
		return exec.Command("osascript", "-e", script).Run()

	case "linux":
		return exec.Command("notify-send", title, body).Run()

	case "windows":
		// Windows Toast notifications require more complex implementation
		return nil

	default:
		return nil
	}
}

func main() {
	// This would use go-plugin to serve the plugin
	// Simplified for example purposes
}

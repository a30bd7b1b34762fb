// Package app composes the configuration, logging, storage, transport,
// session engine and plugin host into one runnable application.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chamale-rac/xmpp/internal/bus"
	"github.com/chamale-rac/xmpp/internal/config"
	"github.com/chamale-rac/xmpp/internal/logging"
	"github.com/chamale-rac/xmpp/internal/session"
	"github.com/chamale-rac/xmpp/internal/storage/sqlite"
	"github.com/chamale-rac/xmpp/internal/transport"
	"github.com/chamale-rac/xmpp/pkg/plugin"
	"github.com/chamale-rac/xmpp/pkg/plugin/api"
)

// App owns the lifecycle of every long-lived component.
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	DB      *sqlite.DB
	Session *session.Session

	transport *transport.Client
	pluginAPI *api.SessionAPI
	plugins   *plugin.Host
}

// New builds the application from configuration. Nothing connects yet;
// call Run.
func New(cfg *config.Config) (*App, error) {
	log, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	var db *sqlite.DB
	if cfg.Storage.SaveMessages {
		db, err = sqlite.New(cfg.General.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open local cache: %w", err)
		}
	}

	tr, err := transport.NewClient(transport.ClientConfig{
		JID:      cfg.Account.JID,
		Password: cfg.Account.Password,
		Server:   cfg.Account.Server,
		Port:     cfg.Account.Port,
		Resource: cfg.Account.Resource,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}

	sess := session.New(session.Options{
		Transport:        tr,
		Logger:           log,
		Bus:              bus.New(),
		DB:               db,
		Nickname:         cfg.Account.Nickname,
		ConferenceDomain: cfg.Services.Conference,
		UploadDomain:     cfg.Services.Upload,
		HistoryPageSize:  cfg.History.PageSize,
		SaveMessages:     cfg.Storage.SaveMessages,
	})

	a := &App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Session:   sess,
		transport: tr,
	}

	if cfg.Plugins.Enabled {
		a.pluginAPI = api.New(sess)
		a.plugins = plugin.NewHost(cfg.Plugins.PluginDir, a.pluginAPI, log)
	}
	return a, nil
}

// Run starts the session engine and connects the transport.
func (a *App) Run() error {
	a.Session.Start()

	if a.plugins != nil {
		if err := a.plugins.LoadAll(); err != nil {
			a.Log.Warn("plugin loading failed", zap.Error(err))
		}
		a.plugins.StartAll()
	}

	if err := a.transport.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Close shuts everything down in reverse dependency order.
func (a *App) Close() {
	if a.plugins != nil {
		a.plugins.UnloadAll()
	}
	if a.pluginAPI != nil {
		a.pluginAPI.Close()
	}
	a.Session.Close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("failed to close local cache", zap.Error(err))
		}
	}
	_ = a.Log.Sync()
}

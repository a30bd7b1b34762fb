package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chamale-rac/xmpp/internal/app"
	"github.com/chamale-rac/xmpp/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize application
	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}
	defer application.Close()

	if err := application.Run(); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	// Run until interrupted; the session reconciles in the background
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

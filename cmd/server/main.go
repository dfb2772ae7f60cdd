package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomnotify/roomnotify/internal/config"
	"github.com/roomnotify/roomnotify/internal/email"
	"github.com/roomnotify/roomnotify/internal/handler"
	"github.com/roomnotify/roomnotify/internal/logger"
	"github.com/roomnotify/roomnotify/internal/middleware"
	"github.com/roomnotify/roomnotify/internal/router"
	"github.com/roomnotify/roomnotify/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", "0.1.0").Msg("starting booking notification server")

	// Initialize the email sender
	sender, err := newSender(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email sender")
	}
	log.Info().Str("provider", cfg.Email.Provider).Msg("email sender initialized")

	// Initialize the dispatch pipeline
	notifySvc := service.NewNotifyService(sender, log)

	// Initialize handlers
	h := handler.New(cfg, log, notifySvc)

	// Initialize middleware
	mw := middleware.New(log)

	// Set up router
	r := router.New(h, mw)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// newSender picks the delivery provider. SMTP is the default and the
// only one the webhook contract requires; the Gmail API provider is
// kept for deployments without SMTP egress.
func newSender(cfg *config.Config, log *logger.Logger) (email.Sender, error) {
	switch cfg.Email.Provider {
	case "", "smtp":
		return email.NewSMTPSender(log), nil
	case "gmail":
		gcfg := cfg.Email.Gmail
		if gcfg.CredentialsJSON != "" {
			return email.NewGmailSender(context.Background(), gcfg)
		}
		return email.NewGmailSenderWithToken(context.Background(), gcfg)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

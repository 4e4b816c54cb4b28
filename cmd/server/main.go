package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/omochice/support-chat/internal/auth"
	"github.com/omochice/support-chat/internal/chat"
	"github.com/omochice/support-chat/internal/config"
	"github.com/omochice/support-chat/internal/logger"
	"github.com/omochice/support-chat/internal/message"
	"github.com/omochice/support-chat/internal/server"
	"github.com/omochice/support-chat/internal/store"
)

// chatStore is a message store that can report readiness.
type chatStore interface {
	message.Store
	server.Readiness
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open message store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close message store")
		}
	}()

	hub := chat.NewHub(chat.Options{
		OutboundBuffer: cfg.OutboundBuffer,
		IdleTimeout:    cfg.IdleTimeout,
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
		EventRate:      cfg.EventRate,
		EventBurst:     cfg.EventBurst,
	}, log)
	manager := message.NewManager(st, hub.Router(), log, message.WithMaxContentLength(cfg.MaxContentLength))
	dispatcher := server.NewDispatcher(hub, manager, log)
	verifier := auth.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience)

	httpServer := server.New(cfg, log, hub, dispatcher, verifier, st)

	log.Info().
		Str("service", cfg.ServiceName).
		Int("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Str("store", cfg.StoreDriver).
		Msg("starting application")

	if err := httpServer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("application stopped with error")
		return
	}

	log.Info().Msg("application exited cleanly")
}

func openStore(cfg *config.Config, log zerolog.Logger) (chatStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPebble:
		st, err := store.OpenPebble(cfg.StorePath, store.PebbleOptions{}, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func loadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

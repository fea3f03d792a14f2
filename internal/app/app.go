package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/buzzdeck/buzzdeck-host/internal/config"
	"github.com/buzzdeck/buzzdeck-host/internal/core"
	"github.com/buzzdeck/buzzdeck-host/internal/log"
	"github.com/buzzdeck/buzzdeck-host/internal/router"
	"github.com/buzzdeck/buzzdeck-host/internal/store"
	"github.com/buzzdeck/buzzdeck-host/internal/store/sqlite"
	"github.com/buzzdeck/buzzdeck-host/internal/transport/relay"
	"github.com/buzzdeck/buzzdeck-host/internal/transport/ws"
)

// App wires the hub, router, transport and persistence together.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	relay           *relay.NATS
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. notifier may
// be nil when no board UI is attached.
func New(cfg config.Config, notifier core.Notifier, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	// The relay is optional and best-effort: a host without one just loses
	// the fallback path for state messages.
	var natsRelay *relay.NATS
	var routerRelay router.Relay
	if cfg.RelayURL != "" {
		natsRelay, err = relay.Connect(cfg.RelayURL, cfg.RelayPrefix, log.Component(logger, "relay"))
		if err != nil {
			logger.Warn().Err(err).Str("url", cfg.RelayURL).Msg("relay unavailable, continuing without")
		} else {
			routerRelay = natsRelay
			logger.Info().Str("url", cfg.RelayURL).Msg("relay connected")
		}
	}

	rt := router.New(routerRelay, log.Component(logger, "router"))
	hub := core.NewHub(cfg.Game, clockwork.NewRealClock(), rt, st, notifier, log.Component(logger, "hub"))
	server := ws.NewServer(hub, rt, cfg, log.Component(logger, "ws"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		relay:           natsRelay,
		log:             logger,
	}, nil
}

// Hub exposes the presentation-layer API of the engine.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Run starts the hub and HTTP server and blocks until context cancellation
// or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes persistence and the relay connection.
func (a *App) cleanup() {
	if a.relay != nil {
		a.relay.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

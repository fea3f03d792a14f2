package ws

import (
	"fmt"
	stdhttp "net/http"

	"github.com/rs/zerolog"

	"github.com/buzzdeck/buzzdeck-host/internal/config"
	"github.com/buzzdeck/buzzdeck-host/internal/core"
	"github.com/buzzdeck/buzzdeck-host/internal/router"
)

// NewServer builds the host's HTTP server: the websocket endpoint clients
// dial and a liveness probe.
func NewServer(hub *core.Hub, r *router.Router, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/ws", NewHandler(hub, r, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
	_, _ = fmt.Fprint(w, "ok")
}

package ws

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/buzzdeck/buzzdeck-host/internal/core"
	"github.com/buzzdeck/buzzdeck-host/internal/proto"
	"github.com/buzzdeck/buzzdeck-host/internal/router"
	"github.com/buzzdeck/buzzdeck-host/internal/utils"
)

// Handler upgrades HTTP connections and bridges them to the hub: inbound
// frames become hub events, the router's outbound queue feeds the socket.
type Handler struct {
	hub    *core.Hub
	router *router.Router
	log    *zerolog.Logger
}

// NewHandler builds the websocket endpoint handler.
func NewHandler(hub *core.Hub, r *router.Router, logger *zerolog.Logger) stdhttp.Handler {
	return &Handler{hub: hub, router: r, log: logger}
}

func (h *Handler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// The connection id is ephemeral: a device reconnecting gets a new one
	// and reclaims its identity via JOIN/RECONNECT.
	connID := utils.NewConnID()
	out := h.router.Register(connID)
	h.hub.PeerConnected(connID)
	defer func() {
		h.router.Unregister(connID)
		h.hub.PeerDisconnected(connID)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, connID)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, out)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", connID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, connID string) error {
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		h.hub.PeerMessage(connID, &env)
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) error {
	for {
		select {
		case data, ok := <-out:
			if !ok {
				return nil
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.log.Error().Err(err).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Package router applies the per-class delivery policy to outbound
// messages. It owns the per-peer outbound queues the transport write loops
// drain; it never interprets payloads beyond the class and type tags.
package router

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/buzzdeck/buzzdeck-host/internal/proto"
)

// Relay is the last-resort path for state messages when a peer's direct
// channel is down. Implementations are best-effort.
type Relay interface {
	Relay(peerID string, data []byte) error
}

// outboundBuffer sizes each peer queue; a peer that falls this far behind
// is shed per class policy rather than blocking the hub.
const outboundBuffer = 64

type peer struct {
	ch           chan []byte
	persistentID string
}

// Router fans hub messages out to peer connections. Register/Unregister are
// called from transport goroutines, Send from the hub goroutine. The queue
// send happens under the mutex: it is non-blocking, and Unregister closes
// queues under the same lock, so a send can never hit a closed channel.
type Router struct {
	mu    sync.Mutex
	peers map[string]*peer
	relay Relay
	log   *zerolog.Logger
}

// New builds a router. relay may be nil when no relay is configured.
func New(relay Relay, logger *zerolog.Logger) *Router {
	return &Router{
		peers: make(map[string]*peer),
		relay: relay,
		log:   logger,
	}
}

// Register creates the outbound queue for a connection and returns the
// channel the transport write loop drains.
func (r *Router) Register(connID string) <-chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &peer{ch: make(chan []byte, outboundBuffer)}
	r.peers[connID] = p
	return p.ch
}

// Bind attaches the stable identity to a connection so relay subjects key
// on the persistent id, which survives reconnects.
func (r *Router) Bind(connID, persistentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.peers[connID]; ok {
		p.persistentID = persistentID
	}
}

// Unregister drops a connection's queue and closes it so the write loop
// exits.
func (r *Router) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.peers[connID]; ok {
		delete(r.peers, connID)
		close(p.ch)
	}
}

// Send applies the class policy. It never blocks and never reports errors
// to the caller: state messages fall back to the relay, everything else is
// droppable by contract.
func (r *Router) Send(connID string, env *proto.Envelope) {
	if env.Class == "" {
		env.Class = proto.ClassOf(env.Type)
	}
	data, err := json.Marshal(env)
	if err != nil {
		r.log.Error().Err(err).Str("type", env.Type).Msg("marshal envelope")
		return
	}

	r.mu.Lock()
	p, ok := r.peers[connID]
	persistentID := ""
	if ok {
		persistentID = p.persistentID
		select {
		case p.ch <- data:
			r.mu.Unlock()
			return
		default:
		}
	}
	r.mu.Unlock()

	r.handleUndeliverable(connID, persistentID, env, data)
}

func (r *Router) handleUndeliverable(connID, persistentID string, env *proto.Envelope, data []byte) {
	switch env.Class {
	case proto.ClassState:
		// State must reach every connected client; the relay is the
		// fallback when the direct channel is absent or saturated.
		peerID := persistentID
		if peerID == "" {
			peerID = connID
		}
		if r.relay == nil {
			r.log.Warn().Str("conn_id", connID).Str("type", env.Type).Msg("state message undeliverable, no relay")
			return
		}
		if err := r.relay.Relay(peerID, data); err != nil {
			r.log.Warn().Err(err).Str("peer_id", peerID).Str("type", env.Type).Msg("relay send failed")
		} else {
			r.log.Debug().Str("peer_id", peerID).Str("type", env.Type).Msg("state message relayed")
		}
	case proto.ClassControl:
		// Dropped control traffic surfaces as missed pongs in the health
		// estimator; nothing to retry here.
		r.log.Debug().Str("conn_id", connID).Str("type", env.Type).Msg("control message dropped")
	default:
		r.log.Debug().Str("conn_id", connID).Str("type", env.Type).Msg("message dropped")
	}
}

// Package relay provides the last-resort send path for state messages.
// The host publishes to a per-peer subject on a NATS server both sides can
// reach; clients that lose their direct channel subscribe to their subject
// until the channel comes back.
package relay

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher pushes bytes toward a peer identified by its persistent id.
type Publisher interface {
	Relay(peerID string, data []byte) error
	Close()
}

// NATS is the production relay.
type NATS struct {
	nc     *nats.Conn
	prefix string
	log    *zerolog.Logger
}

// Connect dials the relay server. The connection retries in the background
// so a flapping relay never blocks host startup.
func Connect(url, prefix string, logger *zerolog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("buzzdeck-host"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("relay disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("relay reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect relay: %w", err)
	}
	return &NATS{nc: nc, prefix: prefix, log: logger}, nil
}

// Relay publishes to the peer's subject. Delivery is fire-and-forget; the
// next state broadcast supersedes anything lost here.
func (r *NATS) Relay(peerID string, data []byte) error {
	subject := fmt.Sprintf("%s.peer.%s", r.prefix, peerID)
	if err := r.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (r *NATS) Close() {
	if err := r.nc.Drain(); err != nil {
		r.log.Warn().Err(err).Msg("drain relay connection")
	}
}

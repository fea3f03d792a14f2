package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/buzzdeck/buzzdeck-host/internal/config"
	"github.com/buzzdeck/buzzdeck-host/internal/proto"
)

type sentMsg struct {
	connID string
	env    *proto.Envelope
}

// fakeSender captures everything the hub sends, in order.
type fakeSender struct {
	mu    sync.Mutex
	msgs  []sentMsg
	bound map[string]string
}

func newFakeSender() *fakeSender {
	return &fakeSender{bound: make(map[string]string)}
}

func (f *fakeSender) Send(connID string, env *proto.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sentMsg{connID: connID, env: env})
}

func (f *fakeSender) Bind(connID, persistentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound[connID] = persistentID
}

func (f *fakeSender) boundID(connID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound[connID]
}

// snapshot returns all messages of msgType sent to connID so far.
func (f *fakeSender) snapshot(connID, msgType string) []*proto.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*proto.Envelope
	for _, m := range f.msgs {
		if m.connID == connID && m.env.Type == msgType {
			out = append(out, m.env)
		}
	}
	return out
}

// mustMessage polls until a message of msgType reaches connID.
func mustMessage(t *testing.T, f *fakeSender, connID, msgType string) *proto.Envelope {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := f.snapshot(connID, msgType); len(msgs) > 0 {
			return msgs[len(msgs)-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %s message for %s not sent", msgType, connID)
	return nil
}

// waitUntil polls until pred holds.
func waitUntil(t *testing.T, what string, pred func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s", what)
}

func decodeAs[T any](t *testing.T, env *proto.Envelope) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s payload: %v", env.Type, err)
	}
	return v
}

func inbound(t *testing.T, msgType string, payload any) *proto.Envelope {
	t.Helper()

	env, err := proto.NewEnvelope(msgType, payload)
	if err != nil {
		t.Fatalf("build %s envelope: %v", msgType, err)
	}
	return env
}

func testGameConfig() config.Game {
	return config.Game{
		LetterReadTime: 0,
		ResponseWindow: 30 * time.Second,
		HandicapDelay:  2 * time.Second,

		TickInterval:    100 * time.Millisecond,
		BuzzFlashTTL:    500 * time.Millisecond,
		PingInterval:    5 * time.Second,
		StaleAfter:      10 * time.Second,
		SyncInterval:    5 * time.Second,
		EvictionSweep:   10 * time.Second,
		DisconnectGrace: 30 * time.Second,
		TeamSweep:       time.Minute,
		EmptyTeamTTL:    5 * time.Minute,
	}
}

// hubTickers is how many periodic sources Run registers on the clock.
const hubTickers = 6

func newTestHub(t *testing.T, cfg config.Game) (*Hub, *fakeSender, *clockwork.FakeClock) {
	t.Helper()

	clk := clockwork.NewFakeClock()
	sender := newFakeSender()
	logger := zerolog.Nop()
	hub := NewHub(cfg, clk, sender, nil, nil, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := clk.BlockUntilContext(waitCtx, hubTickers); err != nil {
		t.Fatalf("hub tickers not started: %v", err)
	}

	return hub, sender, clk
}

// advance steps the fake clock in small increments so every periodic
// source observes each interval crossing.
func advance(clk *clockwork.FakeClock, total, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		clk.Advance(step)
		time.Sleep(2 * time.Millisecond)
	}
}

func joinClient(t *testing.T, hub *Hub, connID, persistentID, name string) {
	t.Helper()

	hub.PeerConnected(connID)
	hub.PeerMessage(connID, inbound(t, proto.TypeJoin, proto.JoinData{
		PersistentID: persistentID,
		DisplayName:  name,
	}))
}

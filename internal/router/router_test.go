package router

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/buzzdeck/buzzdeck-host/internal/proto"
)

type relayCall struct {
	peerID string
	data   []byte
}

type fakeRelay struct {
	mu    sync.Mutex
	calls []relayCall
	err   error
}

func (f *fakeRelay) Relay(peerID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, relayCall{peerID: peerID, data: data})
	return f.err
}

func (f *fakeRelay) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRelay) last() relayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestRouter(relay Relay) *Router {
	logger := zerolog.Nop()
	return New(relay, &logger)
}

func stateEnvelope(t *testing.T) *proto.Envelope {
	t.Helper()
	env, err := proto.NewEnvelope(proto.TypeTeamList, proto.TeamListData{})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestDeliverToRegisteredPeer(t *testing.T) {
	r := newTestRouter(nil)
	out := r.Register("c1")

	r.Send("c1", stateEnvelope(t))

	select {
	case data := <-out:
		var env proto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("delivered frame not an envelope: %v", err)
		}
		if env.Type != proto.TypeTeamList || env.Class != proto.ClassState {
			t.Fatalf("wrong envelope on the wire: %+v", env)
		}
	default:
		t.Fatal("nothing queued for registered peer")
	}
}

func TestClassTaggedWhenMissing(t *testing.T) {
	r := newTestRouter(nil)
	out := r.Register("c1")

	r.Send("c1", &proto.Envelope{Type: proto.TypePing})

	var env proto.Envelope
	if err := json.Unmarshal(<-out, &env); err != nil {
		t.Fatal(err)
	}
	if env.Class != proto.ClassControl {
		t.Fatalf("class not tagged from type registry: %q", env.Class)
	}
}

func TestStateFallsBackToRelayWhenPeerGone(t *testing.T) {
	relay := &fakeRelay{}
	r := newTestRouter(relay)

	r.Send("ghost", stateEnvelope(t))

	if relay.count() != 1 {
		t.Fatalf("expected 1 relay call, got %d", relay.count())
	}
	// No binding ever happened, so the connection id is the only address.
	if got := relay.last().peerID; got != "ghost" {
		t.Fatalf("relay keyed on %q, want conn id fallback", got)
	}
}

func TestStateRelayKeysOnPersistentID(t *testing.T) {
	relay := &fakeRelay{}
	r := newTestRouter(relay)

	r.Register("c1")
	r.Bind("c1", "p1")

	// Saturate the direct queue so the next state message overflows.
	for i := 0; i < outboundBuffer; i++ {
		r.Send("c1", stateEnvelope(t))
	}
	if relay.count() != 0 {
		t.Fatalf("relay used before the queue filled: %d calls", relay.count())
	}

	r.Send("c1", stateEnvelope(t))
	if relay.count() != 1 {
		t.Fatalf("expected overflow relayed once, got %d", relay.count())
	}
	if got := relay.last().peerID; got != "p1" {
		t.Fatalf("relay keyed on %q, want persistent id", got)
	}
}

func TestEventNeverRelayed(t *testing.T) {
	relay := &fakeRelay{}
	r := newTestRouter(relay)

	env, err := proto.NewEnvelope(proto.TypeBuzzAck, proto.BuzzAckData{Accepted: true})
	if err != nil {
		t.Fatal(err)
	}
	r.Send("ghost", env)

	if relay.count() != 0 {
		t.Fatalf("event-class message relayed: %d calls", relay.count())
	}
}

func TestControlNeverRelayed(t *testing.T) {
	relay := &fakeRelay{}
	r := newTestRouter(relay)

	env, err := proto.NewEnvelope(proto.TypePing, proto.PingData{SentAtMs: 1})
	if err != nil {
		t.Fatal(err)
	}
	r.Send("ghost", env)

	if relay.count() != 0 {
		t.Fatalf("control-class message relayed: %d calls", relay.count())
	}
}

func TestStateDroppedWithoutRelay(t *testing.T) {
	// No relay configured: undeliverable state is logged and dropped, and
	// the router must not panic.
	r := newTestRouter(nil)
	r.Send("ghost", stateEnvelope(t))
}

func TestSendRacingUnregisterNeverPanics(t *testing.T) {
	// Send runs on the hub goroutine while Unregister runs from transport
	// defers; a disconnect racing a broadcast must never land a send on the
	// closed queue.
	r := newTestRouter(nil)
	env := stateEnvelope(t)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					r.Send("c1", env)
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		out := r.Register("c1")
		go func() {
			for range out {
			}
		}()
		r.Unregister("c1")
	}

	close(done)
	wg.Wait()
}

func TestUnregisterClosesQueue(t *testing.T) {
	r := newTestRouter(nil)
	out := r.Register("c1")
	r.Unregister("c1")

	if _, open := <-out; open {
		t.Fatal("queue still open after unregister")
	}
	// Idempotent: a second unregister is a no-op.
	r.Unregister("c1")
}

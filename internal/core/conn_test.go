package core

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

var (
	errConnClosed = errors.New("conn closed")
	testLogger    = zerolog.Nop()
)

// fakeConn queues frames on a bounded channel and reports backpressure when
// it is full, like the websocket adapter.
type fakeConn struct {
	frames chan Frame
	closed atomic.Bool
}

func newFakeConn(buffer int) *fakeConn {
	return &fakeConn{frames: make(chan Frame, buffer)}
}

func (c *fakeConn) TrySend(f Frame) error {
	if c.closed.Load() {
		return errConnClosed
	}
	select {
	case c.frames <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *fakeConn) Close() { c.closed.Store(true) }

func (c *fakeConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case f := <-c.frames:
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("frame %q: %v", f, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

// nextOfType skips frames until one of the given type arrives.
func (c *fakeConn) nextOfType(t *testing.T, typ string) map[string]any {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-c.frames:
			var m map[string]any
			if err := json.Unmarshal(f, &m); err != nil {
				t.Fatalf("frame %q: %v", f, err)
			}
			if m["type"] == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("no %s frame received", typ)
			return nil
		}
	}
}

func (c *fakeConn) empty() bool { return len(c.frames) == 0 }

func newTestSession(id string, conn *fakeConn) Session {
	return Session{ID: SessionID(id), Conn: conn, Codec: protocol.JSON}
}

// harness wires the loop-owned pieces of a room without the goroutine.
type harness struct {
	registry    *SessionRegistry
	store       *PlayerStore
	broadcaster *Broadcaster
	dispatcher  *Dispatcher
}

func newHarness(policy Policy) *harness {
	h := &harness{registry: NewSessionRegistry(), store: NewPlayerStore()}
	h.broadcaster = NewBroadcaster("test", h.registry, h.store, policy, testLogger)
	h.dispatcher = NewDispatcher(h.store, h.broadcaster.SendTo, testLogger)
	RegisterIntents(h.dispatcher)
	return h
}

func (h *harness) join(id, nickname string, conn *fakeConn) {
	s := newTestSession(id, conn)
	h.store.Add(s.ID, domain.NewPlayer(domain.Position{X: 100, Y: 100}, nickname, ""))
	h.registry.Add(s)
}

func (h *harness) send(t *testing.T, id string, kind protocol.Kind, payload map[string]any) {
	t.Helper()
	msg, err := protocol.NewInbound(protocol.JSON, kind, payload)
	if err != nil {
		t.Fatalf("build %s: %v", kind, err)
	}
	h.dispatcher.Dispatch(SessionID(id), msg)
}

func (h *harness) player(t *testing.T, id string) domain.Player {
	t.Helper()
	p, ok := h.store.Get(SessionID(id))
	if !ok {
		t.Fatalf("no player %s", id)
	}
	return p
}

type policyFunc func(room domain.RoomName, sid SessionID) BackpressureAction

func (f policyFunc) OnBackPressure(room domain.RoomName, sid SessionID) BackpressureAction {
	return f(room, sid)
}

package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VibeTown/internal/core"
	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

type nopConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *nopConn) TrySend(core.Frame) error { return nil }

func (c *nopConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *nopConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func session(id string) (core.Session, *nopConn) {
	conn := &nopConn{}
	return core.Session{ID: core.SessionID(id), Conn: conn, Codec: protocol.JSON}, conn
}

func newTestManager(t *testing.T, maxOccupancy int) *RoomManagerImpl {
	t.Helper()
	opts := core.DefaultRoomOptions("")
	opts.MaxOccupancy = maxOccupancy
	opts.PatchHz = 100
	m := NewRoomManager(opts)
	t.Cleanup(m.Shutdown)
	return m
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJoinOrCreateReusesRoom(t *testing.T) {
	m := newTestManager(t, 16)
	ctx := context.Background()

	sa, _ := session("a")
	r1, err := m.JoinOrCreate(ctx, "lobby", sa, core.JoinOptions{})
	if err != nil {
		t.Fatal(err)
	}
	sb, _ := session("b")
	r2, err := m.JoinOrCreate(ctx, " lobby ", sb, core.JoinOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Fatal("second join created another room")
	}
	if r1.MemberCount() != 2 {
		t.Fatalf("members = %d", r1.MemberCount())
	}
}

func TestEmptyNameUsesDefaultRoom(t *testing.T) {
	m := newTestManager(t, 16)
	s, _ := session("a")
	r, err := m.JoinOrCreate(context.Background(), "", s, core.JoinOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if r.Name() != domain.DefaultRoomName {
		t.Fatalf("room = %q", r.Name())
	}
	if _, ok := m.Get(domain.DefaultRoomName); !ok {
		t.Fatal("default room not registered")
	}
}

func TestJoinOrCreateRoomFull(t *testing.T) {
	m := newTestManager(t, 1)
	sa, _ := session("a")
	if _, err := m.JoinOrCreate(context.Background(), "tiny", sa, core.JoinOptions{}); err != nil {
		t.Fatal(err)
	}
	sb, _ := session("b")
	if _, err := m.JoinOrCreate(context.Background(), "tiny", sb, core.JoinOptions{}); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
}

func TestEmptyRoomIsReleasedAndRecreated(t *testing.T) {
	m := newTestManager(t, 16)
	ctx := context.Background()
	sa, _ := session("a")
	first, err := m.JoinOrCreate(ctx, "lobby", sa, core.JoinOptions{})
	if err != nil {
		t.Fatal(err)
	}
	first.Leave("a", true)

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("empty room kept running")
	}
	waitUntil(t, "room released", func() bool {
		_, ok := m.Get("lobby")
		return !ok
	})

	sb, _ := session("b")
	second, err := m.JoinOrCreate(ctx, "lobby", sb, core.JoinOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("disposed room reused")
	}
}

func TestListSortedByName(t *testing.T) {
	m := newTestManager(t, 16)
	for i, name := range []domain.RoomName{"zeta", "alpha", "mid"} {
		s, _ := session(string(rune('a' + i)))
		if _, err := m.JoinOrCreate(context.Background(), name, s, core.JoinOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	list := m.List()
	if len(list) != 3 || list[0].Name != "alpha" || list[1].Name != "mid" || list[2].Name != "zeta" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].MemberCount != 1 || list[0].MaxOccupancy != 16 {
		t.Fatalf("alpha = %+v", list[0])
	}
}

func TestStopRoomDisconnectsMembers(t *testing.T) {
	m := newTestManager(t, 16)
	s, conn := session("a")
	if _, err := m.JoinOrCreate(context.Background(), "lobby", s, core.JoinOptions{}); err != nil {
		t.Fatal(err)
	}
	if !m.StopRoom("lobby") {
		t.Fatal("StopRoom reported no room")
	}
	if !conn.isClosed() {
		t.Fatal("member left connected")
	}
	if m.StopRoom("lobby") {
		t.Fatal("second StopRoom found a room")
	}
	if len(m.List()) != 0 {
		t.Fatalf("list = %+v", m.List())
	}
}

func TestConcurrentJoinsShareOneRoom(t *testing.T) {
	m := newTestManager(t, 64)
	var wg sync.WaitGroup
	rooms := make([]core.RoomService, 32)
	for i := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := session(string(rune('A' + i)))
			r, err := m.JoinOrCreate(context.Background(), "busy", s, core.JoinOptions{})
			if err != nil {
				t.Error(err)
				return
			}
			rooms[i] = r
		}()
	}
	wg.Wait()
	for _, r := range rooms[1:] {
		if r != rooms[0] {
			t.Fatal("joins split across rooms")
		}
	}
	if rooms[0].MemberCount() != len(rooms) {
		t.Fatalf("members = %d", rooms[0].MemberCount())
	}
}

func TestPolicyFromString(t *testing.T) {
	tests := []struct {
		in   string
		want core.BackpressureAction
	}{
		{"", core.KickMember},
		{"kick", core.KickMember},
		{" Resync ", core.MarkSlow},
		{"drop", core.DropFrame},
	}
	for _, tt := range tests {
		p, err := PolicyFromString(tt.in)
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if got := p.OnBackPressure("room", "sid"); got != tt.want {
			t.Fatalf("%q: action = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := PolicyFromString("ignore"); err == nil {
		t.Fatal("unknown policy accepted")
	}
}

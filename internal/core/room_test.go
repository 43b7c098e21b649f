package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

func newTestRoom(t *testing.T, mut func(*RoomOptions)) *Room {
	t.Helper()
	opts := DefaultRoomOptions("test")
	opts.SimulationHz = 200
	opts.PatchHz = 100
	opts.Rand = rand.New(rand.NewPCG(1, 2))
	if mut != nil {
		mut(&opts)
	}
	r := NewRoom(opts)
	t.Cleanup(r.Dispose)
	return r
}

func mustJoin(t *testing.T, r *Room, id string, opts JoinOptions) *fakeConn {
	t.Helper()
	conn := newFakeConn(64)
	if err := r.Join(context.Background(), newTestSession(id, conn), opts); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return conn
}

func deliver(t *testing.T, r *Room, id string, kind protocol.Kind, payload map[string]any) {
	t.Helper()
	msg, err := protocol.NewInbound(protocol.JSON, kind, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Deliver(context.Background(), SessionID(id), msg); err != nil {
		t.Fatalf("deliver %s: %v", kind, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJoinSendsSnapshotWithSelf(t *testing.T) {
	r := newTestRoom(t, nil)
	mustJoin(t, r, "a", JoinOptions{Nickname: "Alice"})
	conn := mustJoin(t, r, "b", JoinOptions{Nickname: "  Bob  ", Avatar: "cat"})

	m := conn.next(t)
	if m["type"] != protocol.TypeState || m["sessionId"] != "b" {
		t.Fatalf("first frame = %v", m)
	}
	players := m["players"].(map[string]any)
	if len(players) != 2 {
		t.Fatalf("players = %v", players)
	}
	self := players["b"].(map[string]any)
	if self["nickname"] != "Bob" || self["avatar"] != "cat" || self["muted"] != false || self["isSpeaking"] != false {
		t.Fatalf("self = %v", self)
	}
	x, y := self["x"].(float64), self["y"].(float64)
	if x < 50 || x >= 450 || y < 50 || y >= 450 || x != float64(int(x)) || y != float64(int(y)) {
		t.Fatalf("spawn = %v,%v", x, y)
	}
}

func TestJoinWithoutHintGetsDefaultName(t *testing.T) {
	r := newTestRoom(t, nil)
	conn := mustJoin(t, r, "a", JoinOptions{})
	players := conn.next(t)["players"].(map[string]any)
	p := players["a"].(map[string]any)
	name, _ := p["nickname"].(string)
	if !strings.HasPrefix(name, "Player") || p["avatar"] != domain.DefaultAvatar {
		t.Fatalf("player = %v", p)
	}
}

func TestExistingMembersSeeJoinAndMoves(t *testing.T) {
	r := newTestRoom(t, nil)
	connA := mustJoin(t, r, "a", JoinOptions{Nickname: "Alice"})
	connA.next(t)
	mustJoin(t, r, "b", JoinOptions{Nickname: "Bob"})

	// a's own add may arrive in an earlier patch.
	for sawAdd := false; !sawAdd; {
		for _, o := range connA.nextOfType(t, protocol.TypePatch)["ops"].([]any) {
			op := o.(map[string]any)
			if op["op"] == "add" && op["id"] == "b" {
				if p := op["player"].(map[string]any); p["nickname"] != "Bob" {
					t.Fatalf("added player = %v", p)
				}
				sawAdd = true
			}
		}
	}

	deliver(t, r, "b", protocol.KindMove, map[string]any{"x": 300, "y": 310})
	for {
		op := connA.nextOfType(t, protocol.TypePatch)["ops"].([]any)[0].(map[string]any)
		if op["op"] != "update" {
			continue
		}
		fields := op["fields"].(map[string]any)
		if op["id"] != "b" || fields["x"] != 300.0 || fields["y"] != 310.0 {
			t.Fatalf("update = %v", op)
		}
		break
	}
}

func TestPatchVersionsIncrease(t *testing.T) {
	r := newTestRoom(t, nil)
	conn := mustJoin(t, r, "a", JoinOptions{Nickname: "Alice"})
	last := conn.next(t)["version"].(float64)
	for i := range 3 {
		deliver(t, r, "a", protocol.KindMove, map[string]any{"x": i + 1, "y": 0})
		v := conn.nextOfType(t, protocol.TypePatch)["version"].(float64)
		if v <= last {
			t.Fatalf("version %v after %v", v, last)
		}
		last = v
	}
}

func TestRoomFull(t *testing.T) {
	r := newTestRoom(t, func(o *RoomOptions) { o.MaxOccupancy = 2 })
	mustJoin(t, r, "a", JoinOptions{})
	mustJoin(t, r, "b", JoinOptions{})

	err := r.Join(context.Background(), newTestSession("c", newFakeConn(8)), JoinOptions{})
	if !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
	if r.MemberCount() != 2 {
		t.Fatalf("members = %d", r.MemberCount())
	}

	r.Leave("a", true)
	waitFor(t, "leave", func() bool { return r.MemberCount() == 1 })
	mustJoin(t, r, "c", JoinOptions{})
}

func TestRoomFullAtDefaultCapacity(t *testing.T) {
	r := newTestRoom(t, nil)
	for i := range 15 {
		mustJoin(t, r, fmt.Sprintf("p%02d", i), JoinOptions{})
	}
	mustJoin(t, r, "p15", JoinOptions{})
	if r.MemberCount() != 16 {
		t.Fatalf("members = %d", r.MemberCount())
	}

	err := r.Join(context.Background(), newTestSession("p16", newFakeConn(8)), JoinOptions{})
	if !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
	if r.MemberCount() != 16 {
		t.Fatalf("members = %d after rejected join", r.MemberCount())
	}
}

func TestJoinTwiceFails(t *testing.T) {
	r := newTestRoom(t, nil)
	mustJoin(t, r, "a", JoinOptions{})
	err := r.Join(context.Background(), newTestSession("a", newFakeConn(8)), JoinOptions{})
	if !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("err = %v", err)
	}
}

func TestLeaveBroadcastsRemove(t *testing.T) {
	r := newTestRoom(t, nil)
	connA := mustJoin(t, r, "a", JoinOptions{Nickname: "Alice"})
	mustJoin(t, r, "b", JoinOptions{Nickname: "Bob"})
	// A player that joins and leaves within one patch interval is never
	// announced, so wait for the add first.
	waitFor(t, "b announced", func() bool {
		for _, o := range connA.nextOfType(t, protocol.TypePatch)["ops"].([]any) {
			if op := o.(map[string]any); op["op"] == "add" && op["id"] == "b" {
				return true
			}
		}
		return false
	})
	r.Leave("b", true)
	r.Leave("b", true)

	for {
		ops := connA.nextOfType(t, protocol.TypePatch)["ops"].([]any)
		op := ops[0].(map[string]any)
		if op["op"] == "remove" {
			if op["id"] != "b" {
				t.Fatalf("remove = %v", op)
			}
			break
		}
	}
	waitFor(t, "member count", func() bool { return r.MemberCount() == 1 })
}

func TestMessagesAfterLeaveAreIgnored(t *testing.T) {
	r := newTestRoom(t, nil)
	mustJoin(t, r, "a", JoinOptions{Nickname: "Alice"})
	mustJoin(t, r, "b", JoinOptions{Nickname: "Bob"})
	r.Leave("b", false)
	deliver(t, r, "b", protocol.KindMove, map[string]any{"x": 1, "y": 1})

	members, err := r.Members(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0].ID != "a" {
		t.Fatalf("members = %+v", members)
	}
}

func TestMembersSortedByID(t *testing.T) {
	r := newTestRoom(t, nil)
	for _, id := range []string{"c", "a", "b"} {
		mustJoin(t, r, id, JoinOptions{Nickname: "user-" + id})
	}
	members, err := r.Members(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 3 || members[0].ID != "a" || members[1].ID != "b" || members[2].ID != "c" {
		t.Fatalf("members = %+v", members)
	}
	if members[0].Nickname != "user-a" {
		t.Fatalf("member a = %+v", members[0])
	}
}

func TestLastLeaveDisposesRoom(t *testing.T) {
	emptied := make(chan *Room, 1)
	r := newTestRoom(t, func(o *RoomOptions) {
		o.OnEmpty = func(r *Room) { emptied <- r }
	})
	mustJoin(t, r, "a", JoinOptions{})
	r.Leave("a", true)

	select {
	case got := <-emptied:
		if got != r {
			t.Fatal("OnEmpty got another room")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnEmpty not called")
	}
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room still running")
	}

	err := r.Join(context.Background(), newTestSession("b", newFakeConn(8)), JoinOptions{})
	if !errors.Is(err, domain.ErrRoomDisposed) {
		t.Fatalf("err = %v, want ErrRoomDisposed", err)
	}
	if _, err := r.Members(context.Background()); !errors.Is(err, domain.ErrRoomDisposed) {
		t.Fatalf("members err = %v", err)
	}
}

func TestDisposeClosesMembers(t *testing.T) {
	r := newTestRoom(t, nil)
	conn := mustJoin(t, r, "a", JoinOptions{})
	r.Dispose()
	if !conn.closed.Load() {
		t.Fatal("member connection left open")
	}
	if r.MemberCount() != 0 {
		t.Fatalf("members = %d", r.MemberCount())
	}
	r.Dispose()
}

func TestSlowMemberIsKicked(t *testing.T) {
	r := newTestRoom(t, func(o *RoomOptions) {
		o.Policy = policyFunc(func(domain.RoomName, SessionID) BackpressureAction { return KickMember })
	})
	mustJoin(t, r, "a", JoinOptions{Nickname: "Alice"})
	slow := newFakeConn(1)
	if err := r.Join(context.Background(), newTestSession("slow", slow), JoinOptions{Nickname: "Slowpoke"}); err != nil {
		t.Fatal(err)
	}

	deliver(t, r, "a", protocol.KindMove, map[string]any{"x": 1, "y": 1})
	waitFor(t, "kick", func() bool { return slow.closed.Load() && r.MemberCount() == 1 })
}

func TestJoinHonoursCancelledContext(t *testing.T) {
	r := newTestRoom(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Join(ctx, newTestSession("a", newFakeConn(8)), JoinOptions{})
	if err == nil {
		// The join raced the cancellation and won; it must still be reversible.
		r.Leave("a", false)
		return
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelledDuplicateJoinKeepsMember(t *testing.T) {
	r := newTestRoom(t, nil)
	mustJoin(t, r, "a", JoinOptions{Nickname: "Alice"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 20 {
		_ = r.Join(ctx, newTestSession("a", newFakeConn(8)), JoinOptions{})
	}

	for range 2 {
		members, err := r.Members(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 || members[0].ID != "a" {
			t.Fatalf("members = %+v", members)
		}
	}
}

func TestCancelledJoinThatLandsIsUndone(t *testing.T) {
	r := newTestRoom(t, nil)
	mustJoin(t, r, "a", JoinOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := range 20 {
		_ = r.Join(ctx, newTestSession(fmt.Sprintf("late%d", i), newFakeConn(8)), JoinOptions{})
	}
	waitFor(t, "cancelled joins undone", func() bool { return r.MemberCount() == 1 })
}

func TestInfo(t *testing.T) {
	r := newTestRoom(t, func(o *RoomOptions) { o.MaxOccupancy = 5 })
	mustJoin(t, r, "a", JoinOptions{})
	info := r.Info()
	if info.Name != "test" || info.MemberCount != 1 || info.MaxOccupancy != 5 {
		t.Fatalf("info = %+v", info)
	}
	waitFor(t, "version", func() bool { return r.Info().Version > 0 })
}

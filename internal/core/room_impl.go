package core

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

var _ RoomService = (*Room)(nil)

// SpawnArea is the rectangle new players are placed in.
type SpawnArea struct {
	MinX   float64
	MinY   float64
	Width  float64
	Height float64
}

type RoomOptions struct {
	Name         domain.RoomName
	MaxOccupancy int
	SimulationHz int
	PatchHz      int
	Spawn        SpawnArea
	Policy       Policy
	InboxSize    int

	// OnEmpty runs on the room loop after the last member left, right
	// before the room disposes itself. It must not call Dispose.
	OnEmpty func(*Room)

	Rand *rand.Rand
}

func DefaultRoomOptions(name domain.RoomName) RoomOptions {
	return RoomOptions{
		Name:         name,
		MaxOccupancy: 16,
		SimulationHz: 30,
		PatchHz:      20,
		Spawn:        SpawnArea{MinX: 50, MinY: 50, Width: 400, Height: 400},
		InboxSize:    256,
	}
}

type joinCmd struct {
	s     Session
	opts  JoinOptions
	reply chan error
}

type leaveCmd struct {
	sid       SessionID
	consented bool
}

type messageCmd struct {
	sid SessionID
	msg protocol.Inbound
}

type membersCmd struct {
	reply chan []MemberDTO
}

// Room is one authoritative room. All state below the loop-owned marker is
// touched only by the run goroutine; callers talk to it through the inbox.
type Room struct {
	opts   RoomOptions
	logger zerolog.Logger

	inbox    chan any
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	memberCount atomic.Int64
	version     atomic.Uint64

	// loop-owned
	registry    *SessionRegistry
	store       *PlayerStore
	dispatcher  *Dispatcher
	broadcaster *Broadcaster
	rng         *rand.Rand
	tick        uint64
	emptied     bool
}

// NewRoom allocates empty room state, registers every intent handler and
// starts the room loop.
func NewRoom(opts RoomOptions) *Room {
	def := DefaultRoomOptions(opts.Name)
	if opts.MaxOccupancy <= 0 {
		opts.MaxOccupancy = def.MaxOccupancy
	}
	if opts.SimulationHz <= 0 {
		opts.SimulationHz = def.SimulationHz
	}
	if opts.PatchHz <= 0 {
		opts.PatchHz = def.PatchHz
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = def.InboxSize
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}

	r := &Room{
		opts:     opts,
		logger:   log.With().Str("module", "core.room").Str("room", string(opts.Name)).Logger(),
		inbox:    make(chan any, opts.InboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		registry: NewSessionRegistry(),
		store:    NewPlayerStore(),
		rng:      opts.Rand,
	}
	r.broadcaster = NewBroadcaster(opts.Name, r.registry, r.store, opts.Policy, r.logger)
	r.dispatcher = NewDispatcher(r.store, r.broadcaster.SendTo, r.logger)
	RegisterIntents(r.dispatcher)

	r.logger.Info().Int("max_occupancy", opts.MaxOccupancy).Msg("room created")
	go r.run()
	return r
}

func (r *Room) Name() domain.RoomName { return r.opts.Name }

func (r *Room) MemberCount() int { return int(r.memberCount.Load()) }

func (r *Room) Info() domain.RoomInfo {
	return domain.RoomInfo{
		Name:         r.opts.Name,
		MemberCount:  r.MemberCount(),
		MaxOccupancy: r.opts.MaxOccupancy,
		Version:      r.version.Load(),
	}
}

func (r *Room) Done() <-chan struct{} { return r.done }

// Join adds s as a member. It fails with domain.ErrRoomFull at capacity and
// domain.ErrRoomDisposed once the room stopped accepting commands.
func (r *Room) Join(ctx context.Context, s Session, opts JoinOptions) error {
	reply := make(chan error, 1)
	if err := r.enqueue(ctx, joinCmd{s: s, opts: opts, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return domain.ErrRoomDisposed
	case <-ctx.Done():
		// The join may still land; undo it only if it does.
		go func() {
			select {
			case err := <-reply:
				if err == nil {
					r.Leave(s.ID, false)
				}
			case <-r.done:
			}
		}()
		return ctx.Err()
	}
}

// Leave removes sid. Messages queued after it are no-ops.
func (r *Room) Leave(sid SessionID, consented bool) {
	_ = r.enqueue(context.Background(), leaveCmd{sid: sid, consented: consented})
}

// Deliver queues an inbound client frame. Frames from one session are
// handled in the order they were delivered.
func (r *Room) Deliver(ctx context.Context, sid SessionID, msg protocol.Inbound) error {
	return r.enqueue(ctx, messageCmd{sid: sid, msg: msg})
}

// Members returns a consistent view of every member, sorted by id.
func (r *Room) Members(ctx context.Context) ([]MemberDTO, error) {
	reply := make(chan []MemberDTO, 1)
	if err := r.enqueue(ctx, membersCmd{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-r.done:
		return nil, domain.ErrRoomDisposed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispose stops the loop and waits for it to release the room state.
// Members still connected are disconnected.
func (r *Room) Dispose() {
	r.stop()
	<-r.done
}

func (r *Room) stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

func (r *Room) enqueue(ctx context.Context, cmd any) error {
	select {
	case <-r.quit:
		return domain.ErrRoomDisposed
	default:
	}
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.quit:
		return domain.ErrRoomDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) run() {
	defer close(r.done)
	defer r.release()

	sim := time.NewTicker(time.Second / time.Duration(r.opts.SimulationHz))
	defer sim.Stop()
	patch := time.NewTicker(time.Second / time.Duration(r.opts.PatchHz))
	defer patch.Stop()
	last := time.Now()

	for {
		select {
		case <-r.quit:
			return
		default:
		}

		select {
		case <-r.quit:
			return
		case cmd := <-r.inbox:
			r.handle(cmd)
		case now := <-sim.C:
			r.tick++
			r.update(now.Sub(last))
			last = now
		case <-patch.C:
			r.broadcast()
		}

		r.dropKicked()
		if r.emptied {
			if r.opts.OnEmpty != nil {
				r.opts.OnEmpty(r)
			}
			r.stop()
			return
		}
	}
}

func (r *Room) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- r.join(c.s, c.opts)
	case leaveCmd:
		r.leave(c.sid, c.consented)
	case messageCmd:
		r.dispatcher.Dispatch(c.sid, c.msg)
	case membersCmd:
		c.reply <- r.members()
	default:
		r.logger.Error().Str("cmd", fmt.Sprintf("%T", cmd)).Msg("unknown room command")
	}
}

// update is the simulation hook. The room has no autonomous state yet, so
// it never mutates anything.
func (r *Room) update(time.Duration) {}

func (r *Room) broadcast() {
	r.broadcaster.Flush()
	r.version.Store(r.store.Version())
}

func (r *Room) join(s Session, opts JoinOptions) error {
	if r.registry.Has(s.ID) {
		return domain.ErrAlreadyJoined
	}
	if r.registry.Len() >= r.opts.MaxOccupancy {
		r.logger.Info().Str("sid", string(s.ID)).Int("members", r.registry.Len()).Msg("join rejected, room full")
		return domain.ErrRoomFull
	}

	name := domain.NicknameHint(opts.Nickname)
	if name == "" {
		name = fmt.Sprintf("Player%d", r.rng.IntN(1000))
	}
	p := domain.NewPlayer(r.spawnPoint(), name, domain.AvatarHint(opts.Avatar))

	r.store.Add(s.ID, p)
	r.registry.Add(s)
	r.memberCount.Store(int64(r.registry.Len()))
	r.broadcaster.SendSnapshot(s)

	r.logger.Info().Str("sid", string(s.ID)).Str("nickname", name).Int("members", r.registry.Len()).Msg("member joined")
	return nil
}

func (r *Room) leave(sid SessionID, consented bool) {
	r.broadcaster.Forget(sid)
	r.store.Remove(sid)
	if _, ok := r.registry.Remove(sid); !ok {
		return
	}
	r.memberCount.Store(int64(r.registry.Len()))
	r.logger.Info().Str("sid", string(sid)).Bool("consented", consented).Int("members", r.registry.Len()).Msg("member left")
	if r.registry.Len() == 0 {
		r.emptied = true
	}
}

func (r *Room) dropKicked() {
	for _, sid := range r.broadcaster.TakeKicked() {
		if s, ok := r.registry.Get(sid); ok {
			s.Conn.Close()
		}
		r.leave(sid, false)
	}
}

func (r *Room) members() []MemberDTO {
	out := make([]MemberDTO, 0, r.registry.Len())
	for _, sid := range r.registry.IDs() {
		p, ok := r.store.Get(sid)
		if !ok {
			continue
		}
		out = append(out, MemberDTO{ID: sid, PlayerState: protocol.PlayerStateOf(&p)})
	}
	return out
}

func (r *Room) spawnPoint() domain.Position {
	a := r.opts.Spawn
	return domain.Position{
		X: a.MinX + math.Floor(r.rng.Float64()*a.Width),
		Y: a.MinY + math.Floor(r.rng.Float64()*a.Height),
	}
}

func (r *Room) release() {
	r.registry.Each(func(s Session) { s.Conn.Close() })
	r.registry.Clear()
	r.store.Reset()
	r.memberCount.Store(0)
	r.logger.Info().Uint64("ticks", r.tick).Msg("room disposed")
}

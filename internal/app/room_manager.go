package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/VibeTown/internal/core"
	"github.com/dkeye/VibeTown/internal/domain"
)

var _ core.RoomManager = (*RoomManagerImpl)(nil)

type RoomManagerImpl struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomName]*core.Room
	defaults core.RoomOptions
}

// NewRoomManager builds rooms from defaults; Name and OnEmpty are filled in
// per room.
func NewRoomManager(defaults core.RoomOptions) *RoomManagerImpl {
	return &RoomManagerImpl{rooms: make(map[domain.RoomName]*core.Room), defaults: defaults}
}

// JoinOrCreate joins s to the room called name, creating the room first when
// none is live. A room that disposed itself between lookup and join is
// replaced by a fresh one.
func (f *RoomManagerImpl) JoinOrCreate(ctx context.Context, name domain.RoomName, s core.Session, opts core.JoinOptions) (core.RoomService, error) {
	name = NormalizeRoomName(name)
	for {
		room := f.getOrCreate(name)
		err := room.Join(ctx, s, opts)
		if errors.Is(err, domain.ErrRoomDisposed) {
			f.forget(room)
			continue
		}
		if err != nil {
			return nil, err
		}
		return room, nil
	}
}

func (f *RoomManagerImpl) getOrCreate(name domain.RoomName) *core.Room {
	f.mu.RLock()
	room, ok := f.rooms[name]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[name]; ok {
		return room
	}
	opts := f.defaults
	opts.Name = name
	opts.OnEmpty = f.forget
	room = core.NewRoom(opts)
	f.rooms[name] = room
	return room
}

// forget drops room from the map unless the name already points elsewhere.
func (f *RoomManagerImpl) forget(room *core.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rooms[room.Name()]; ok && cur == room {
		delete(f.rooms, room.Name())
		log.Info().Str("module", "app.rooms").Str("room", string(room.Name())).Msg("room released")
	}
}

func (f *RoomManagerImpl) Get(name domain.RoomName) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[NormalizeRoomName(name)]
	if !ok {
		return nil, false
	}
	return room, true
}

// List returns every live room sorted by name.
func (f *RoomManagerImpl) List() []domain.RoomInfo {
	f.mu.RLock()
	out := lo.MapToSlice(f.rooms, func(_ domain.RoomName, r *core.Room) domain.RoomInfo {
		return r.Info()
	})
	f.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.RoomInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

// StopRoom disposes the room and disconnects its members.
func (f *RoomManagerImpl) StopRoom(name domain.RoomName) bool {
	name = NormalizeRoomName(name)
	f.mu.Lock()
	room, ok := f.rooms[name]
	delete(f.rooms, name)
	f.mu.Unlock()
	if !ok {
		return false
	}
	room.Dispose()
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room stopped")
	return true
}

// Shutdown disposes every room.
func (f *RoomManagerImpl) Shutdown() {
	f.mu.Lock()
	rooms := lo.Values(f.rooms)
	clear(f.rooms)
	f.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Dispose()
		}()
	}
	wg.Wait()
}

// NormalizeRoomName trims name and falls back to the default room.
func NormalizeRoomName(name domain.RoomName) domain.RoomName {
	n := domain.RoomName(strings.TrimSpace(string(name)))
	if n == "" {
		return domain.DefaultRoomName
	}
	return n
}

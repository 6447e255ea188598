package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/core"
	"github.com/dkeye/Atelier/internal/domain"
)

// RoomManagerImpl supervises room instances: exactly one core.RoomService per
// room key for the lifetime of the process.
type RoomManagerImpl struct {
	store core.SnapshotStore
	mu    sync.RWMutex
	rooms map[domain.RoomKey]core.RoomService
}

func NewRoomManager(store core.SnapshotStore) *RoomManagerImpl {
	return &RoomManagerImpl{
		store: store,
		rooms: make(map[domain.RoomKey]core.RoomService),
	}
}

// GetOrCreate returns the room instance owning key, constructing it on first
// sight. Construction loads the durable snapshot before the instance is
// published, so no frame is handled against unloaded state.
func (f *RoomManagerImpl) GetOrCreate(key domain.RoomKey) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[key]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[key]; ok {
		return room
	}
	room = core.NewRoomService(key, f.store)
	f.rooms[key] = room
	log.Info().Str("module", "app.rooms").Str("room", string(key)).Msg("room instance created")
	return room
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for key, r := range f.rooms {
		out = append(out, core.RoomInfo{Key: key, MemberCount: r.MemberCount()})
	}
	return out
}

// Shutdown synchronously persists every room's state.
func (f *RoomManagerImpl) Shutdown() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for key, r := range f.rooms {
		if err := r.State().PersistAll(); err != nil {
			log.Error().Err(err).Str("module", "app.rooms").Str("room", string(key)).Msg("final persist failed")
		}
	}
}

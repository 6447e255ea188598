package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/domain"
)

// kickThreshold is how many frames in a row a connection may miss before the
// room gives up on it.
const kickThreshold = 32

// roomImpl is one room instance: its connection registry plus its state.
// Kicking a slow consumer is the only case where it closes a transport.
type roomImpl struct {
	key      domain.RoomKey
	state    *RoomState
	registry *Registry
	policy   BackpressurePolicy
}

// NewRoomService builds the single instance for a room key. Construction
// blocks on the snapshot load inside NewRoomState.
func NewRoomService(key domain.RoomKey, store SnapshotStore) RoomService {
	return &roomImpl{
		key:      key,
		state:    NewRoomState(key, store),
		registry: NewRegistry(),
		policy:   KickAfter{N: kickThreshold},
	}
}

func (r *roomImpl) Key() domain.RoomKey { return r.key }
func (r *roomImpl) State() *RoomState   { return r.state }
func (r *roomImpl) MemberCount() int    { return r.registry.Count() }

func (r *roomImpl) Register(conn SignalConnection) {
	r.registry.Register(conn)
	log.Info().Str("module", "core.room").Str("room", string(r.key)).Int("members", r.registry.Count()).Msg("connection registered")
}

func (r *roomImpl) Identify(conn SignalConnection, p *domain.Participant) {
	r.registry.Identify(conn, p)
	log.Info().Str("module", "core.room").Str("room", string(r.key)).Str("participant", string(p.ID)).Msg("participant identified")
}

func (r *roomImpl) Unregister(conn SignalConnection) (domain.ParticipantID, bool) {
	pid, ok := r.registry.Unregister(conn)
	log.Info().Str("module", "core.room").Str("room", string(r.key)).Str("participant", string(pid)).Int("members", r.registry.Count()).Msg("connection unregistered")
	return pid, ok
}

// Broadcast serializes v once and fans it out to every connection except
// exclude. A failed send drops that connection's frame only.
func (r *roomImpl) Broadcast(v any, exclude SignalConnection) PublishResult {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.key)).Msg("broadcast marshal")
		return PublishResult{}
	}
	res := PublishResult{}
	var kicks []SignalConnection
	r.registry.ForEach(func(conn SignalConnection, s *Session) {
		if conn == exclude {
			return
		}
		if err := conn.TrySend(Frame(data)); err != nil {
			res.Dropped++
			if r.policy.OnBackpressure(int(s.DropStreak.Add(1))) == Disconnect {
				kicks = append(kicks, conn)
			}
			return
		}
		s.DropStreak.Store(0)
		res.SentTo++
	})
	// Unregister takes the registry lock, so kicks happen after the walk.
	for _, conn := range kicks {
		pid, ok := r.registry.Unregister(conn)
		conn.Close()
		log.Warn().Str("module", "core.room").Str("room", string(r.key)).Str("participant", string(pid)).Msg("slow consumer disconnected")
		if !ok {
			continue
		}
		// Same teardown as a transport-level disconnect: everyone else sees
		// the kicked participant's cursor retired.
		r.state.RemoveCursor(pid)
		r.Broadcast(struct {
			Type   string `json:"type"`
			UserID string `json:"userId"`
		}{"cursor-leave", string(pid)}, nil)
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.key)).Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("broadcast result")
	return res
}

// SendTo delivers v to a single connection (join snapshots).
func (r *roomImpl) SendTo(conn SignalConnection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.key)).Msg("send marshal")
		return
	}
	if err := conn.TrySend(Frame(data)); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.key)).Msg("direct send dropped")
	}
}

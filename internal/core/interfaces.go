package core

import (
	"sync/atomic"
	"time"

	"github.com/dkeye/Atelier/internal/domain"
)

// Frame is a serialized wire payload.
type Frame []byte

// SignalConnection abstracts one participant's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Session is one live connection. Participant stays nil until the join frame
// binds an identity. DropStreak counts failed sends since the last delivery.
type Session struct {
	Participant *domain.Participant
	JoinedAt    time.Time
	DropStreak  atomic.Int32
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// SnapshotStore is the durable key->value persistence a room snapshots into.
type SnapshotStore interface {
	Put(room domain.RoomKey, sub string, v any) error
	Get(room domain.RoomKey, sub string, out any) (bool, error)
}

// RoomService is the core-facing API of one room instance. It owns the
// connection set and the room state but never touches transport resources.
type RoomService interface {
	Key() domain.RoomKey
	State() *RoomState
	MemberCount() int

	Register(conn SignalConnection)
	Identify(conn SignalConnection, p *domain.Participant)
	Unregister(conn SignalConnection) (domain.ParticipantID, bool)

	Broadcast(v any, exclude SignalConnection) PublishResult
	SendTo(conn SignalConnection, v any)
}

type RoomInfo struct {
	Key         domain.RoomKey `json:"key"`
	MemberCount int            `json:"member_count"`
}

// RoomFactory hands out the single instance owning a room key.
type RoomFactory interface {
	GetOrCreate(key domain.RoomKey) RoomService
	List() []RoomInfo
}

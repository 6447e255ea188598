package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Atelier/internal/domain"
)

type captureConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (c *captureConn) TrySend(f Frame) error {
	if c.fail {
		return errors.New("send failed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *captureConn) Close() {}

func (c *captureConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func Test_Broadcast_Skips_Sender(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("room", newMemStore())
	sender, other := &captureConn{}, &captureConn{}
	room.Register(sender)
	room.Register(other)

	res := room.Broadcast(map[string]any{"type": "cursor-update"}, sender)
	req.Equal(1, res.SentTo)
	req.Zero(res.Dropped)
	req.Empty(sender.events(t))
	req.Len(other.events(t), 1)
	req.Equal("cursor-update", other.events(t)[0]["type"])
}

func Test_Broadcast_Isolates_Failed_Connections(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("room", newMemStore())
	broken := &captureConn{fail: true}
	healthy := &captureConn{}
	room.Register(broken)
	room.Register(healthy)

	res := room.Broadcast(map[string]any{"type": "config"}, nil)
	req.Equal(1, res.SentTo)
	req.Equal(1, res.Dropped)
	req.Len(healthy.events(t), 1)
}

func Test_SendTo_Targets_One_Connection(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("room", newMemStore())
	a, b := &captureConn{}, &captureConn{}
	room.Register(a)
	room.Register(b)

	room.SendTo(a, map[string]any{"type": "chat-history"})
	req.Len(a.events(t), 1)
	req.Empty(b.events(t))
}

func Test_Persistent_Backpressure_Kicks_The_Connection(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("room", newMemStore())
	broken := &captureConn{fail: true}
	healthy := &captureConn{}
	room.Register(broken)
	room.Register(healthy)

	for range kickThreshold - 1 {
		room.Broadcast(map[string]any{"type": "cursor-update"}, nil)
	}
	req.Equal(2, room.MemberCount())

	room.Broadcast(map[string]any{"type": "cursor-update"}, nil)
	req.Equal(1, room.MemberCount())
	req.Len(healthy.events(t), kickThreshold)
}

func Test_Kick_Retires_The_Participant_Cursor(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("room", newMemStore())
	broken := &captureConn{fail: true}
	healthy := &captureConn{}
	room.Register(broken)
	room.Register(healthy)
	room.Identify(broken, &domain.Participant{ID: "bob"})
	room.State().UpsertCursor(domain.Cursor{ID: "bob", X: 1})

	for range kickThreshold {
		room.Broadcast(map[string]any{"type": "cursor-update"}, nil)
	}

	req.Equal(1, room.MemberCount())
	req.NotContains(room.State().Cursors(), domain.ParticipantID("bob"))

	events := healthy.events(t)
	last := events[len(events)-1]
	req.Equal("cursor-leave", last["type"])
	req.Equal("bob", last["userId"])
}

func Test_Delivery_Resets_The_Drop_Streak(t *testing.T) {
	req := require.New(t)
	policy := KickAfter{N: 3}

	req.Equal(DropFrame, policy.OnBackpressure(1))
	req.Equal(DropFrame, policy.OnBackpressure(2))
	req.Equal(Disconnect, policy.OnBackpressure(3))

	room := NewRoomService("room", newMemStore()).(*roomImpl)
	room.policy = policy
	flaky := &captureConn{fail: true}
	room.Register(flaky)

	room.Broadcast(map[string]any{"type": "a"}, nil)
	room.Broadcast(map[string]any{"type": "b"}, nil)
	flaky.fail = false
	room.Broadcast(map[string]any{"type": "c"}, nil)
	flaky.fail = true
	room.Broadcast(map[string]any{"type": "d"}, nil)
	room.Broadcast(map[string]any{"type": "e"}, nil)
	req.Equal(1, room.MemberCount())

	room.Broadcast(map[string]any{"type": "f"}, nil)
	req.Zero(room.MemberCount())
}

func Test_Unregister_Returns_Bound_Participant(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("room", newMemStore())
	conn := &captureConn{}
	room.Register(conn)
	room.Identify(conn, &domain.Participant{ID: "alice"})
	req.Equal(1, room.MemberCount())

	pid, ok := room.Unregister(conn)
	req.True(ok)
	req.Equal(domain.ParticipantID("alice"), pid)
	req.Zero(room.MemberCount())
}

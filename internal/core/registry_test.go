package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Atelier/internal/domain"
)

type nopConn struct{ id int }

func (*nopConn) TrySend(Frame) error { return nil }
func (*nopConn) Close()              {}

func Test_Registry_Lifecycle(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	conn := &nopConn{}

	r.Register(conn)
	req.Equal(1, r.Count())

	// Unregister before identify reports no participant.
	pid, ok := r.Unregister(conn)
	req.False(ok)
	req.Empty(pid)
	req.Equal(0, r.Count())

	r.Register(conn)
	r.Identify(conn, &domain.Participant{ID: "alice"})
	pid, ok = r.Unregister(conn)
	req.True(ok)
	req.Equal(domain.ParticipantID("alice"), pid)

	// Double unregister is a no-op.
	_, ok = r.Unregister(conn)
	req.False(ok)
}

func Test_Registry_Allows_Duplicate_Participant_Sessions(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	tab1, tab2 := &nopConn{id: 1}, &nopConn{id: 2}

	r.Register(tab1)
	r.Register(tab2)
	r.Identify(tab1, &domain.Participant{ID: "alice"})
	r.Identify(tab2, &domain.Participant{ID: "alice"})
	req.Equal(2, r.Count())

	// Closing one tab only removes that connection.
	pid, ok := r.Unregister(tab1)
	req.True(ok)
	req.Equal(domain.ParticipantID("alice"), pid)
	req.Equal(1, r.Count())
}

func Test_ForEach_Visits_Every_Connection(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		r.Register(&nopConn{id: i})
	}

	visited := 0
	r.ForEach(func(SignalConnection, *Session) { visited++ })
	req.Equal(3, visited)
}

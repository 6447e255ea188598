package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_TryStart_Grants_Exactly_One_Job(t *testing.T) {
	req := require.New(t)
	state := NewRoomState("room", newMemStore())

	req.True(state.TryStart())
	req.True(state.Running())

	// A second request while a job is in flight is denied, state unchanged.
	req.False(state.TryStart())
	req.True(state.Running())

	state.Finish()
	req.False(state.Running())

	// The gate reopens after Finish.
	req.True(state.TryStart())
	state.Finish()
	req.False(state.Running())
}

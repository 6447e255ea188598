package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Atelier/internal/domain"
	"github.com/dkeye/Atelier/internal/storage"
)

func Test_GetOrCreate_Returns_Same_Instance(t *testing.T) {
	req := require.New(t)
	manager := NewRoomManager(nopStore{})

	a := manager.GetOrCreate("room-a")
	b := manager.GetOrCreate("room-b")
	req.NotSame(a, b)
	req.Same(a, manager.GetOrCreate("room-a"))

	infos := manager.List()
	req.Len(infos, 2)
}

func Test_Room_State_Survives_Cold_Start(t *testing.T) {
	req := require.New(t)
	db, err := storage.Open(t.TempDir())
	req.NoError(err)
	defer db.Close()
	store := storage.NewSnapshotStore(db)

	manager := NewRoomManager(store)
	room := manager.GetOrCreate("atelier")
	state := room.State()
	state.UpsertCursor(domain.Cursor{ID: "alice", X: 3})
	state.AppendMessage("hello", domain.RoleUser)
	color := state.ColorFor("alice")
	manager.Shutdown()

	// A fresh supervisor over the same store reloads the snapshot before
	// the instance is handed out.
	revived := NewRoomManager(store).GetOrCreate("atelier")
	req.Len(revived.State().Cursors(), 1)
	req.Equal(3.0, revived.State().Cursors()["alice"].X)
	req.Len(revived.State().Messages(), 1)
	req.Equal("hello", revived.State().Messages()[0].Message)
	req.Equal(color, revived.State().ColorFor("alice"))
}

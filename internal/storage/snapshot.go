// Package storage persists per-room snapshots in BadgerDB.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dkeye/Atelier/internal/domain"
)

// Open opens the badger database under dir. The caller owns Close.
func Open(dir string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
}

// SnapshotStore is a key->value store scoped by room. Values are JSON under
// "room:{key}:{sub}" so one room's sub-states share a prefix.
type SnapshotStore struct {
	db *badger.DB
}

func NewSnapshotStore(db *badger.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func snapshotKey(room domain.RoomKey, sub string) []byte {
	return fmt.Appendf(nil, "room:%s:%s", room, sub)
}

// Put durably writes one sub-state of a room.
func (s *SnapshotStore) Put(room domain.RoomKey, sub string, v any) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(room, sub), bytes)
	})
}

// Get loads one sub-state into out. A missing key returns (false, nil) so the
// room can start from empty defaults.
func (s *SnapshotStore) Get(room domain.RoomKey, sub string, out any) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(room, sub))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			raw = append(raw, value...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

package core

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/domain"
)

// Snapshot sub-state keys.
const (
	snapCursors  = "cursors"
	snapColors   = "colors"
	snapMessages = "messages"
	snapRuns     = "runs"
	snapNodes    = "nodes"
	snapConfig   = "config"
)

// RoomState owns the authoritative in-memory state of one room. Mutations are
// synchronous under the state lock; durable writes are issued afterwards and
// not awaited, so a crash can lose the most recent update.
type RoomState struct {
	key   domain.RoomKey
	store SnapshotStore

	mu       sync.RWMutex
	cursors  map[domain.ParticipantID]domain.Cursor
	colors   *colorAssigner
	messages []domain.ChatMessage
	runs     []domain.GenerationRun
	nodes    map[string]domain.Node
	config   domain.RoomConfig
	running  bool
}

// NewRoomState loads the room's prior snapshot before returning; no traffic
// may touch the state until this completes. A load or parse failure means
// "no prior state" and the room starts from defaults.
func NewRoomState(key domain.RoomKey, store SnapshotStore) *RoomState {
	s := &RoomState{
		key:     key,
		store:   store,
		cursors: make(map[domain.ParticipantID]domain.Cursor),
		nodes:   make(map[string]domain.Node),
		config:  domain.DefaultRoomConfig(),
	}
	var colors map[domain.ParticipantID]string
	s.load(snapCursors, &s.cursors)
	s.load(snapColors, &colors)
	s.load(snapMessages, &s.messages)
	s.load(snapRuns, &s.runs)
	s.load(snapNodes, &s.nodes)
	s.load(snapConfig, &s.config)
	s.colors = newColorAssigner(colors)
	if s.cursors == nil {
		s.cursors = make(map[domain.ParticipantID]domain.Cursor)
	}
	if s.nodes == nil {
		s.nodes = make(map[string]domain.Node)
	}
	if s.config == nil {
		s.config = domain.DefaultRoomConfig()
	}
	return s
}

func (s *RoomState) load(sub string, out any) {
	if _, err := s.store.Get(s.key, sub, out); err != nil {
		log.Warn().Err(err).Str("module", "core.state").Str("room", string(s.key)).Str("sub", sub).Msg("snapshot load failed, starting empty")
	}
}

// persistAsync writes an already-copied value without blocking the caller.
func (s *RoomState) persistAsync(sub string, v any) {
	go func() {
		if err := s.store.Put(s.key, sub, v); err != nil {
			log.Warn().Err(err).Str("module", "core.state").Str("room", string(s.key)).Str("sub", sub).Msg("snapshot write failed")
		}
	}()
}

// Cursors

// UpsertCursor records the participant's latest cursor, assigning a color on
// first sight, and returns the completed record.
func (s *RoomState) UpsertCursor(c domain.Cursor) domain.Cursor {
	s.mu.Lock()
	color, created := s.colors.ColorFor(c.ID)
	c.Color = color
	s.cursors[c.ID] = c
	snap := maps.Clone(s.cursors)
	var colorSnap map[domain.ParticipantID]string
	if created {
		colorSnap = s.colors.snapshot()
	}
	s.mu.Unlock()

	s.persistAsync(snapCursors, snap)
	if created {
		s.persistAsync(snapColors, colorSnap)
	}
	return c
}

// RemoveCursor drops the participant's record, reporting whether one existed.
func (s *RoomState) RemoveCursor(id domain.ParticipantID) bool {
	s.mu.Lock()
	_, ok := s.cursors[id]
	if ok {
		delete(s.cursors, id)
	}
	snap := maps.Clone(s.cursors)
	s.mu.Unlock()

	if ok {
		s.persistAsync(snapCursors, snap)
	}
	return ok
}

// Cursors returns a copy of the cursor table. Stored cursors that predate
// color assignment are backfilled here, and a backfill durably records the
// assignment so the color survives a restart.
func (s *RoomState) Cursors() map[domain.ParticipantID]domain.Cursor {
	s.mu.Lock()
	backfilled := false
	for id, c := range s.cursors {
		if c.Color == "" {
			var created bool
			c.Color, created = s.colors.ColorFor(id)
			s.cursors[id] = c
			backfilled = backfilled || created
		}
	}
	snap := maps.Clone(s.cursors)
	var colorSnap map[domain.ParticipantID]string
	if backfilled {
		colorSnap = s.colors.snapshot()
	}
	s.mu.Unlock()

	if backfilled {
		s.persistAsync(snapColors, colorSnap)
	}
	return snap
}

// ColorFor assigns or recalls the participant's stable color.
func (s *RoomState) ColorFor(id domain.ParticipantID) string {
	s.mu.Lock()
	color, created := s.colors.ColorFor(id)
	var colorSnap map[domain.ParticipantID]string
	if created {
		colorSnap = s.colors.snapshot()
	}
	s.mu.Unlock()

	if created {
		s.persistAsync(snapColors, colorSnap)
	}
	return color
}

// Chat transcript

// AppendMessage creates the next transcript row. Ids start at 1 and are never
// reused.
func (s *RoomState) AppendMessage(body, role string) domain.ChatMessage {
	s.mu.Lock()
	msg := domain.ChatMessage{
		ID:          len(s.messages) + 1,
		Message:     body,
		MessageType: role,
		Timestamp:   time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	snap := slices.Clone(s.messages)
	s.mu.Unlock()

	s.persistAsync(snapMessages, snap)
	return msg
}

// SetMessageBody replaces the body of an existing row in place.
func (s *RoomState) SetMessageBody(id int, body string) bool {
	s.mu.Lock()
	if id < 1 || id > len(s.messages) {
		s.mu.Unlock()
		return false
	}
	s.messages[id-1].Message = body
	snap := slices.Clone(s.messages)
	s.mu.Unlock()

	s.persistAsync(snapMessages, snap)
	return true
}

func (s *RoomState) Messages() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Generation runs

// AppendRun adds a run with no output yet.
func (s *RoomState) AppendRun(run domain.GenerationRun) {
	s.mu.Lock()
	s.runs = append(s.runs, run)
	snap := slices.Clone(s.runs)
	s.mu.Unlock()

	s.persistAsync(snapRuns, snap)
}

// CompleteRun sets the output of the run with the given id.
func (s *RoomState) CompleteRun(id, output string) (domain.GenerationRun, bool) {
	s.mu.Lock()
	idx := -1
	for i := range s.runs {
		if s.runs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return domain.GenerationRun{}, false
	}
	s.runs[idx].Output = output
	run := s.runs[idx]
	snap := slices.Clone(s.runs)
	s.mu.Unlock()

	s.persistAsync(snapRuns, snap)
	return run, true
}

func (s *RoomState) Runs() []domain.GenerationRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.runs)
}

// Node projection

func (s *RoomState) SetNodePosition(nodeID string, pos domain.NodePosition) {
	s.mu.Lock()
	n := s.nodes[nodeID]
	n.ID = nodeID
	n.PosX = pos.X
	n.PosY = pos.Y
	s.nodes[nodeID] = n
	snap := maps.Clone(s.nodes)
	s.mu.Unlock()

	s.persistAsync(snapNodes, snap)
}

func (s *RoomState) AddNode(n domain.Node) {
	s.mu.Lock()
	s.nodes[n.ID] = n
	snap := maps.Clone(s.nodes)
	s.mu.Unlock()

	s.persistAsync(snapNodes, snap)
}

func (s *RoomState) RemoveNode(nodeID string) {
	s.mu.Lock()
	delete(s.nodes, nodeID)
	snap := maps.Clone(s.nodes)
	s.mu.Unlock()

	s.persistAsync(snapNodes, snap)
}

func (s *RoomState) Nodes() map[string]domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.nodes)
}

// Config

// SetConfig replaces the whole config, last writer wins.
func (s *RoomState) SetConfig(cfg domain.RoomConfig) {
	s.mu.Lock()
	s.config = cfg
	snap := maps.Clone(cfg)
	s.mu.Unlock()

	s.persistAsync(snapConfig, snap)
}

func (s *RoomState) Config() domain.RoomConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.config)
}

// PersistAll synchronously writes every sub-state. Used at shutdown.
func (s *RoomState) PersistAll() error {
	s.mu.RLock()
	cursors := maps.Clone(s.cursors)
	colors := s.colors.snapshot()
	messages := slices.Clone(s.messages)
	runs := slices.Clone(s.runs)
	nodes := maps.Clone(s.nodes)
	config := maps.Clone(s.config)
	s.mu.RUnlock()

	for sub, v := range map[string]any{
		snapCursors:  cursors,
		snapColors:   colors,
		snapMessages: messages,
		snapRuns:     runs,
		snapNodes:    nodes,
		snapConfig:   config,
	} {
		if err := s.store.Put(s.key, sub, v); err != nil {
			return err
		}
	}
	return nil
}

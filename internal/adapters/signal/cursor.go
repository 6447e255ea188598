package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/core"
	"github.com/dkeye/Atelier/internal/domain"
)

type cursorsStateEvent struct {
	Type      string                                 `json:"type"`
	Cursors   map[domain.ParticipantID]domain.Cursor `json:"cursors"`
	YourColor string                                 `json:"yourColor"`
}

type cursorUpdateEvent struct {
	Type string `json:"type"`
	domain.Cursor
}

type cursorLeaveEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type participantJoinedEvent struct {
	Type        string             `json:"type"`
	Participant domain.Participant `json:"participant"`
}

// handleJoin binds the claimed identity to this connection, sends the full
// room snapshot to the joiner only, then announces the join to everyone else.
func (ctl *RoomWSController) handleJoin(room core.RoomService, conn *WsSignalConn, data []byte) {
	var p struct {
		UserID string `json:"userId"`
		ID     string `json:"id"`
		Name   string `json:"name,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		return
	}
	id := p.UserID
	if id == "" {
		id = p.ID
	}
	participant, err := domain.NewParticipant(id, p.Name)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(room.Key())).Msg("join without identity dropped")
		return
	}

	room.Identify(conn, participant)
	state := room.State()
	color := state.ColorFor(participant.ID)

	room.SendTo(conn, cursorsStateEvent{Type: "cursors-state", Cursors: state.Cursors(), YourColor: color})
	room.SendTo(conn, struct {
		Type     string               `json:"type"`
		Messages []domain.ChatMessage `json:"messages"`
	}{"chat-history", state.Messages()})
	room.SendTo(conn, struct {
		Type string                 `json:"type"`
		Runs []domain.GenerationRun `json:"runs"`
	}{"runs", state.Runs()})
	room.SendTo(conn, struct {
		Type   string              `json:"type"`
		Models []domain.ImageModel `json:"models"`
	}{"available-models", domain.AvailableImageModels()})
	room.SendTo(conn, configEvent{Type: "config", Config: state.Config()})
	room.SendTo(conn, statusEvent{Type: "status", IsRunning: state.Running()})

	room.Broadcast(participantJoinedEvent{Type: "participant-joined", Participant: *participant}, conn)
}

// handleCursorUpdate upserts the participant's record and rebroadcasts it to
// everyone else. The broadcast is throttled per participant; state keeps the
// latest position either way, so late joiners still see it.
func (ctl *RoomWSController) handleCursorUpdate(room core.RoomService, conn *WsSignalConn, data []byte) {
	var p struct {
		UserID  string  `json:"userId"`
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		CanvasX float64 `json:"canvasX"`
		CanvasY float64 `json:"canvasY"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		log.Warn().Str("module", "signal").Str("room", string(room.Key())).Msg("bad cursor-update dropped")
		return
	}

	pid := domain.ParticipantID(p.UserID)
	cursor := room.State().UpsertCursor(domain.Cursor{
		ID:      pid,
		X:       p.X,
		Y:       p.Y,
		CanvasX: p.CanvasX,
		CanvasY: p.CanvasY,
	})

	if !ctl.limiter.Allow(pid) {
		return
	}
	room.Broadcast(cursorUpdateEvent{Type: "cursor-update", Cursor: cursor}, conn)
}

// Node-layout frames mirror the external node store: the room keeps a durable
// projection and relays the change to the other participants.

func (ctl *RoomWSController) handleNodePosition(room core.RoomService, conn *WsSignalConn, data []byte) {
	var p struct {
		NodeID   string              `json:"nodeId"`
		Position domain.NodePosition `json:"position"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.NodeID == "" {
		log.Warn().Str("module", "signal").Str("room", string(room.Key())).Msg("bad node-position dropped")
		return
	}
	room.State().SetNodePosition(p.NodeID, p.Position)
	room.Broadcast(struct {
		Type     string              `json:"type"`
		NodeID   string              `json:"nodeId"`
		Position domain.NodePosition `json:"position"`
	}{"node-position", p.NodeID, p.Position}, conn)
}

func (ctl *RoomWSController) handleNodeAdd(room core.RoomService, conn *WsSignalConn, data []byte) {
	var p struct {
		Node domain.Node `json:"node"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Node.ID == "" {
		log.Warn().Str("module", "signal").Str("room", string(room.Key())).Msg("bad node-add dropped")
		return
	}
	room.State().AddNode(p.Node)
	room.Broadcast(struct {
		Type string      `json:"type"`
		Node domain.Node `json:"node"`
	}{"node-add", p.Node}, conn)
}

func (ctl *RoomWSController) handleNodeRemove(room core.RoomService, conn *WsSignalConn, data []byte) {
	var p struct {
		NodeID string `json:"nodeId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.NodeID == "" {
		log.Warn().Str("module", "signal").Str("room", string(room.Key())).Msg("bad node-remove dropped")
		return
	}
	room.State().RemoveNode(p.NodeID)
	room.Broadcast(struct {
		Type   string `json:"type"`
		NodeID string `json:"nodeId"`
	}{"node-remove", p.NodeID}, conn)
}

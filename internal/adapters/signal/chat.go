package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/core"
	"github.com/dkeye/Atelier/internal/domain"
)

type configEvent struct {
	Type   string            `json:"type"`
	Config domain.RoomConfig `json:"config"`
}

type statusEvent struct {
	Type      string `json:"type"`
	IsRunning bool   `json:"isRunning"`
}

type messageEvent struct {
	Type string `json:"type"`
	domain.ChatMessage
}

type runEvent struct {
	Type string `json:"type"`
	domain.GenerationRun
}

// handleConfig replaces the room config wholesale and announces the new one
// to every participant, sender included.
func (ctl *RoomWSController) handleConfig(room core.RoomService, _ *WsSignalConn, data []byte) {
	var p struct {
		Config domain.RoomConfig `json:"config"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Config == nil {
		log.Warn().Str("module", "signal").Str("room", string(room.Key())).Msg("bad config dropped")
		return
	}
	room.State().SetConfig(p.Config)
	room.Broadcast(configEvent{Type: "config", Config: p.Config}, nil)
}

// handleMessage admits at most one generation job per room. A frame carrying
// a prompt starts an image run; one carrying a message starts a chat turn.
// A frame arriving while a job is in flight is dropped without a reply: the
// unchanged running status is already visible to the requester.
func (ctl *RoomWSController) handleMessage(ctx context.Context, room core.RoomService, conn *WsSignalConn, data []byte) {
	var p struct {
		Message     string `json:"message"`
		MessageType string `json:"messageType"`
		Prompt      string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(room.Key())).Msg("bad message dropped")
		return
	}

	switch {
	case p.Prompt != "":
		ctl.startImageRun(ctx, room, p.Prompt)
	case p.Message != "":
		role := p.MessageType
		if role == "" {
			role = domain.RoleUser
		}
		ctl.startChatTurn(ctx, room, p.Message, role)
	default:
		log.Warn().Str("module", "signal").Str("room", string(room.Key())).Msg("message without body or prompt dropped")
	}
}

func (ctl *RoomWSController) startChatTurn(ctx context.Context, room core.RoomService, body, role string) {
	state := room.State()
	if !state.TryStart() {
		log.Debug().Str("module", "signal").Str("room", string(room.Key())).Msg("chat turn denied, job in flight")
		return
	}

	userMsg := state.AppendMessage(body, role)
	room.Broadcast(messageEvent{Type: "message", ChatMessage: userMsg}, nil)
	room.Broadcast(statusEvent{Type: "status", IsRunning: true}, nil)

	// The empty assistant row reserves the id clients tag chunks with.
	assistant := state.AppendMessage("", domain.RoleAssistant)
	room.Broadcast(messageEvent{Type: "message", ChatMessage: assistant}, nil)

	// The run belongs to the room, not the submitting connection: it must
	// survive the sender disconnecting mid-stream.
	go ctl.Relay.StreamChat(context.WithoutCancel(ctx), room, assistant.ID)
}

func (ctl *RoomWSController) startImageRun(ctx context.Context, room core.RoomService, prompt string) {
	state := room.State()
	if !state.TryStart() {
		log.Debug().Str("module", "signal").Str("room", string(room.Key())).Msg("image run denied, job in flight")
		return
	}

	room.Broadcast(statusEvent{Type: "status", IsRunning: true}, nil)

	cfg := state.Config()
	params := cfg.Strings()
	params["prompt"] = prompt
	run := domain.GenerationRun{
		ID:         domain.NewRunID(),
		ModelID:    cfg.Model(),
		Parameters: params,
	}
	state.AppendRun(run)
	room.Broadcast(runEvent{Type: "message", GenerationRun: run}, nil)

	go ctl.Relay.RunImage(context.WithoutCancel(ctx), room, run)
}

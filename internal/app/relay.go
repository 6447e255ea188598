package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/core"
	"github.com/dkeye/Atelier/internal/domain"
)

// ChatTurn is one role-tagged entry of the completion history.
type ChatTurn struct {
	Role    string
	Content string
}

type CompletionRequest struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
	Turns       []ChatTurn
}

// CompletionStream yields text increments. Recv returns io.EOF on normal end.
type CompletionStream interface {
	Recv() (string, error)
	Close()
}

// Completer is the external text-generation collaborator.
type Completer interface {
	StreamCompletion(ctx context.Context, req CompletionRequest) (CompletionStream, error)
}

// ImageClient is the external image-generation collaborator. It returns the
// result URL of a finished job.
type ImageClient interface {
	Generate(ctx context.Context, modelID string, params map[string]string) (string, error)
}

type statusEvent struct {
	Type      string `json:"type"`
	IsRunning bool   `json:"isRunning"`
}

type chunkEvent struct {
	Type    string `json:"type"`
	ID      int    `json:"id"`
	Content string `json:"content"`
}

type messageEvent struct {
	Type string `json:"type"`
	domain.ChatMessage
}

type runEvent struct {
	Type string `json:"type"`
	domain.GenerationRun
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Relay forwards streamed generation output into a room: every increment is
// rebroadcast as it arrives, the accumulated text is checkpointed no more
// often than PersistEvery, and the room's running flag is cleared exactly
// once on every exit path.
type Relay struct {
	Completer    Completer
	Images       ImageClient
	PersistEvery time.Duration
}

func NewRelay(completer Completer, images ImageClient) *Relay {
	return &Relay{
		Completer:    completer,
		Images:       images,
		PersistEvery: 100 * time.Millisecond,
	}
}

// finisher pairs the admission grant with a single release: clear the flag
// and announce the transition, no matter which path exits first.
func finisher(room core.RoomService) func() {
	return sync.OnceFunc(func() {
		room.State().Finish()
		room.Broadcast(statusEvent{Type: "status", IsRunning: false}, nil)
	})
}

func buildRequest(state *core.RoomState) CompletionRequest {
	cfg := state.Config()
	history := state.Messages()
	turns := make([]ChatTurn, 0, len(history))
	for _, m := range history {
		role := domain.RoleAssistant
		if m.MessageType == domain.RoleUser {
			role = domain.RoleUser
		}
		turns = append(turns, ChatTurn{Role: role, Content: m.Message})
	}
	return CompletionRequest{
		Model:       cfg.Model(),
		Temperature: cfg.Temperature(),
		MaxTokens:   cfg.MaxTokens(),
		System:      cfg.Prompt(),
		Turns:       turns,
	}
}

// StreamChat drives one granted chat turn. The assistant row msgID already
// exists (empty) and has been announced to clients.
func (r *Relay) StreamChat(ctx context.Context, room core.RoomService, msgID int) {
	state := room.State()
	finish := finisher(room)
	defer finish()

	stream, err := r.Completer.StreamCompletion(ctx, buildRequest(state))
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("room", string(room.Key())).Msg("completion start failed")
		room.Broadcast(errorEvent{Type: "error", Error: err.Error()}, nil)
		return
	}
	defer stream.Close()

	var accumulated strings.Builder
	lastSave := time.Now()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Err(err).Str("module", "app.relay").Str("room", string(room.Key())).Msg("completion stream failed")
			room.Broadcast(errorEvent{Type: "error", Error: err.Error()}, nil)
			return
		}
		accumulated.WriteString(chunk)
		room.Broadcast(chunkEvent{Type: "chunk", ID: msgID, Content: chunk}, nil)

		if time.Since(lastSave) >= r.PersistEvery {
			state.SetMessageBody(msgID, accumulated.String())
			lastSave = time.Now()
		}
	}

	text := accumulated.String()
	state.SetMessageBody(msgID, text)
	room.Broadcast(messageEvent{Type: "message", ChatMessage: domain.ChatMessage{
		ID:          msgID,
		Message:     text,
		MessageType: domain.RoleAssistant,
		Timestamp:   time.Now().UTC(),
	}}, nil)
}

// RunImage drives one granted image job: a degenerate one-shot of the same
// start -> output -> finish contract.
func (r *Relay) RunImage(ctx context.Context, room core.RoomService, run domain.GenerationRun) {
	state := room.State()
	finish := finisher(room)
	defer finish()

	output, err := r.Images.Generate(ctx, run.ModelID, run.Parameters)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("room", string(room.Key())).Str("run", run.ID).Msg("image generation failed")
		room.Broadcast(errorEvent{Type: "error", Error: err.Error()}, nil)
		return
	}

	updated, ok := state.CompleteRun(run.ID, output)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("room", string(room.Key())).Str("run", run.ID).Msg("run vanished before completion")
		return
	}
	room.Broadcast(runEvent{Type: "message", GenerationRun: updated}, nil)
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Atelier/internal/core"
	"github.com/dkeye/Atelier/internal/domain"
)

type nopStore struct{}

func (nopStore) Put(domain.RoomKey, string, any) error         { return nil }
func (nopStore) Get(domain.RoomKey, string, any) (bool, error) { return false, nil }

type captureConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *captureConn) TrySend(f core.Frame) error {
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

type scriptStream struct {
	chunks []string
	err    error
	i      int
}

func (s *scriptStream) Recv() (string, error) {
	if s.i < len(s.chunks) {
		chunk := s.chunks[s.i]
		s.i++
		return chunk, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *scriptStream) Close() {}

type scriptCompleter struct {
	stream   *scriptStream
	startErr error
	lastReq  CompletionRequest
}

func (c *scriptCompleter) StreamCompletion(_ context.Context, req CompletionRequest) (CompletionStream, error) {
	c.lastReq = req
	if c.startErr != nil {
		return nil, c.startErr
	}
	return c.stream, nil
}

type scriptImages struct {
	url string
	err error
}

func (c *scriptImages) Generate(context.Context, string, map[string]string) (string, error) {
	return c.url, c.err
}

func grantedChatRoom(t *testing.T) (core.RoomService, *captureConn, int) {
	t.Helper()
	room := core.NewRoomService("room", nopStore{})
	conn := &captureConn{}
	room.Register(conn)

	state := room.State()
	require.True(t, state.TryStart())
	state.AppendMessage("hello", domain.RoleUser)
	assistant := state.AppendMessage("", domain.RoleAssistant)
	return room, conn, assistant.ID
}

func Test_StreamChat_Broadcasts_Chunks_Then_Final_Message(t *testing.T) {
	req := require.New(t)
	room, conn, msgID := grantedChatRoom(t)

	completer := &scriptCompleter{stream: &scriptStream{chunks: []string{"Hel", "lo"}}}
	relay := NewRelay(completer, nil)
	relay.StreamChat(context.Background(), room, msgID)

	events := conn.events(t)
	req.Len(events, 4)
	req.Equal("chunk", events[0]["type"])
	req.Equal("Hel", events[0]["content"])
	req.Equal("chunk", events[1]["type"])
	req.Equal("lo", events[1]["content"])
	req.Equal("message", events[2]["type"])
	req.Equal("Hello", events[2]["message"])
	req.Equal(float64(msgID), events[2]["id"])
	req.Equal("status", events[3]["type"])
	req.Equal(false, events[3]["isRunning"])

	req.False(room.State().Running())
	req.Equal("Hello", room.State().Messages()[msgID-1].Message)
}

func Test_StreamChat_Sends_History_And_Config_To_Completer(t *testing.T) {
	req := require.New(t)
	room, _, msgID := grantedChatRoom(t)
	room.State().SetConfig(domain.RoomConfig{
		"model":       "groq:llama-3.3-70b-versatile",
		"temperature": 0.2,
		"maxTokens":   512,
		"prompt":      "be brief",
	})

	completer := &scriptCompleter{stream: &scriptStream{chunks: []string{"ok"}}}
	relay := NewRelay(completer, nil)
	relay.StreamChat(context.Background(), room, msgID)

	req.Equal("groq:llama-3.3-70b-versatile", completer.lastReq.Model)
	req.Equal(0.2, completer.lastReq.Temperature)
	req.Equal(512, completer.lastReq.MaxTokens)
	req.Equal("be brief", completer.lastReq.System)
	req.Len(completer.lastReq.Turns, 2)
	req.Equal(domain.RoleUser, completer.lastReq.Turns[0].Role)
	req.Equal("hello", completer.lastReq.Turns[0].Content)
}

func Test_StreamChat_Clears_Flag_On_Stream_Error(t *testing.T) {
	req := require.New(t)
	room, conn, msgID := grantedChatRoom(t)

	completer := &scriptCompleter{stream: &scriptStream{
		chunks: []string{"par"},
		err:    errors.New("provider hiccup"),
	}}
	relay := NewRelay(completer, nil)
	relay.StreamChat(context.Background(), room, msgID)

	events := conn.events(t)
	req.Len(events, 3)
	req.Equal("chunk", events[0]["type"])
	req.Equal("error", events[1]["type"])
	req.Equal("provider hiccup", events[1]["error"])
	req.Equal("status", events[2]["type"])
	req.Equal(false, events[2]["isRunning"])
	req.False(room.State().Running())

	// The partial text already broadcast stays as-is, no rollback.
	req.Equal("par", room.State().Messages()[msgID-1].Message)
}

func Test_StreamChat_Clears_Flag_When_Stream_Never_Starts(t *testing.T) {
	req := require.New(t)
	room, conn, msgID := grantedChatRoom(t)

	completer := &scriptCompleter{startErr: errors.New("no such model")}
	relay := NewRelay(completer, nil)
	relay.StreamChat(context.Background(), room, msgID)

	events := conn.events(t)
	req.Len(events, 2)
	req.Equal("error", events[0]["type"])
	req.Equal("status", events[1]["type"])
	req.False(room.State().Running())
}

func Test_StreamChat_Checkpoints_Accumulated_Text(t *testing.T) {
	req := require.New(t)
	room, _, msgID := grantedChatRoom(t)

	completer := &scriptCompleter{stream: &scriptStream{chunks: []string{"a", "b", "c"}}}
	relay := NewRelay(completer, nil)
	relay.PersistEvery = time.Nanosecond
	relay.StreamChat(context.Background(), room, msgID)

	req.Equal("abc", room.State().Messages()[msgID-1].Message)
}

func Test_RunImage_Completes_Run_And_Finishes(t *testing.T) {
	req := require.New(t)
	room := core.NewRoomService("room", nopStore{})
	conn := &captureConn{}
	room.Register(conn)

	state := room.State()
	req.True(state.TryStart())
	run := domain.GenerationRun{ID: "run1", ModelID: "fal-ai/recraft-v3", Parameters: map[string]string{"prompt": "a fox"}}
	state.AppendRun(run)

	relay := NewRelay(nil, &scriptImages{url: "https://img.example/fox.png"})
	relay.RunImage(context.Background(), room, run)

	events := conn.events(t)
	req.Len(events, 2)
	req.Equal("message", events[0]["type"])
	req.Equal("run1", events[0]["id"])
	req.Equal("https://img.example/fox.png", events[0]["output"])
	req.Equal("status", events[1]["type"])
	req.Equal(false, events[1]["isRunning"])

	req.False(state.Running())
	req.Equal("https://img.example/fox.png", state.Runs()[0].Output)
}

func Test_RunImage_Broadcasts_Error_And_Finishes(t *testing.T) {
	req := require.New(t)
	room := core.NewRoomService("room", nopStore{})
	conn := &captureConn{}
	room.Register(conn)

	state := room.State()
	req.True(state.TryStart())
	run := domain.GenerationRun{ID: "run1", ModelID: "fal-ai/recraft-v3"}
	state.AppendRun(run)

	relay := NewRelay(nil, &scriptImages{err: errors.New("API request failed: quota")})
	relay.RunImage(context.Background(), room, run)

	events := conn.events(t)
	req.Len(events, 2)
	req.Equal("error", events[0]["type"])
	req.Equal("status", events[1]["type"])
	req.False(state.Running())
	req.Empty(state.Runs()[0].Output)
}

// Package genai holds the clients for the external generation collaborators.
package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/dkeye/Atelier/internal/app"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	groqBaseURL   = "https://api.groq.com/openai/v1"

	maxSSELine = 1024 * 1024
)

var ErrUnknownProvider = errors.New("unknown model provider")

// Client streams chat completions from an OpenAI-compatible endpoint. The
// provider is picked by splitting the model id on the first colon, e.g.
// "openai:o3-mini" or "groq:llama-3.3-70b-versatile".
type Client struct {
	httpc     *http.Client
	openAIKey string
	groqKey   string

	// Overridable for tests.
	OpenAIBaseURL string
	GroqBaseURL   string
}

func NewClient(openAIKey, groqKey string) *Client {
	// No client timeout: a stream stays open as long as tokens arrive.
	// Cancellation comes from the request context.
	return &Client{
		httpc:         &http.Client{},
		openAIKey:     openAIKey,
		groqKey:       groqKey,
		OpenAIBaseURL: openAIBaseURL,
		GroqBaseURL:   groqBaseURL,
	}
}

func (c *Client) resolve(model string) (baseURL, key, name string, err error) {
	provider, name, ok := strings.Cut(model, ":")
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q", ErrUnknownProvider, model)
	}
	switch provider {
	case "openai":
		return c.OpenAIBaseURL, c.openAIKey, name, nil
	case "groq":
		return c.GroqBaseURL, c.groqKey, name, nil
	}
	return "", "", "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Client) StreamCompletion(ctx context.Context, req app.CompletionRequest) (app.CompletionStream, error) {
	baseURL, key, model, err := c.resolve(req.Model)
	if err != nil {
		return nil, err
	}

	messages := make([]chatMessage, 0, len(req.Turns)+1)
	messages = append(messages, chatMessage{Role: "system", Content: req.System})
	for _, t := range req.Turns {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Content})
	}

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Stream:      true,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    messages,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("completion request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

// sseStream parses "data:" lines of a server-sent event stream into text
// increments. "[DONE]" or stream end yields io.EOF.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	once    sync.Once
}

func (s *sseStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return "", io.EOF
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("malformed stream event: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseStream) Close() {
	s.once.Do(func() { _ = s.body.Close() })
}

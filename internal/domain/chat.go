package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage ids are sequential within a room, starting at 1, never reused.
// The assistant row for a turn is created empty and filled as the stream lands.
type ChatMessage struct {
	ID          int       `json:"id"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	Timestamp   time.Time `json:"timestamp"`
}

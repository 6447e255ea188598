// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxParticipantIDLen = 64
	MaxDisplayNameLen   = 36
)

var (
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
)

type ParticipantID string

// Participant is the identity attached to a join frame. The server trusts
// whatever the identity provider handed the client; no verification here.
type Participant struct {
	ID   ParticipantID `json:"id"`
	Name string        `json:"name,omitempty"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id, name string) (*Participant, error) {
	if len(id) == 0 {
		return nil, ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return nil, ErrParticipantIDTooLong
	}
	if len(name) > MaxDisplayNameLen {
		name = name[:MaxDisplayNameLen]
	}
	return &Participant{ID: ParticipantID(id), Name: name}, nil
}

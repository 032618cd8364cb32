package server

import (
	"context"

	"github.com/fenggwsx/hirechat/internal/chat"
)

// Participant is one entry of a directory listing.
type Participant struct {
	ParticipantID   string    `json:"participantId"`
	ParticipantKind chat.Kind `json:"participantKind"`
	DisplayName     string    `json:"displayName"`
	Online          bool      `json:"online"`
}

// Directory lists portal participants. Profiles are owned by the portal, so
// the chat server only delegates to it.
type Directory interface {
	ListParticipants(ctx context.Context, kind chat.Kind) ([]Participant, error)
}

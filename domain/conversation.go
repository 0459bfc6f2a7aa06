package domain

import (
	"pairchat/errors"
	"time"
)

type ConversationID string

// Conversation is a durable channel between exactly two users.
// Participants are stored in canonical order (UserLo < UserHi) so that
// (A,B) and (B,A) always resolve to the same entity.
type Conversation struct {
	ID             ConversationID
	UserLo         string
	UserHi         string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// NormalizePair returns the canonical ordering of a participant pair.
// Self-pairing and empty identifiers are rejected.
func NormalizePair(a, b string) (string, string, error) {
	if a == "" || b == "" || a == b {
		return "", "", errors.ErrInvalidParticipants
	}
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

func (c Conversation) HasParticipant(userID string) bool {
	return c.UserLo == userID || c.UserHi == userID
}

// OtherParticipant returns the peer of userID, or false if userID
// is not part of the conversation.
func (c Conversation) OtherParticipant(userID string) (string, bool) {
	switch userID {
	case c.UserLo:
		return c.UserHi, true
	case c.UserHi:
		return c.UserLo, true
	default:
		return "", false
	}
}

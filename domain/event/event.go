// Package event defines the domain events flowing through the engine
// pipeline, from message append to recipient delivery.
package event

import (
	"time"

	"pairchat/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	Conversation() domain.ConversationID
}

// MessageAppended is emitted right after a durable append, before
// moderation. Recipient is the participant the event must reach.
type MessageAppended struct {
	Message   domain.Message
	Recipient string
}

func (e MessageAppended) Conversation() domain.ConversationID {
	return e.Message.ConversationID
}

// SanitizedMessage is a MessageAppended whose body went through
// moderation. This is the only message event sinks ever see.
type SanitizedMessage struct {
	Message       domain.Message
	Recipient     string
	Lang          string
	CensoredWords []string
}

func (e SanitizedMessage) Conversation() domain.ConversationID {
	return e.Message.ConversationID
}

// MessageRead notifies the author's session that a recipient read
// one of their messages.
type MessageRead struct {
	MessageID      uuid.UUID
	ConversationID domain.ConversationID
	ReaderID       string
	AuthorID       string
	At             time.Time
}

func (e MessageRead) Conversation() domain.ConversationID {
	return e.ConversationID
}

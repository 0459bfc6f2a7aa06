package domain

import "github.com/google/uuid"

// SubmitMessage is the intent of sending a message to a peer.
// The conversation is resolved (or lazily created) by the dispatcher.
type SubmitMessage struct {
	AuthorID string
	PeerID   string
	Kind     Kind
	Body     string
	Aux      AuxData
}

// ListSince asks for the ordered backlog of a conversation after a
// given sequence number. Limit bounds the page size.
type ListSince struct {
	ConversationID ConversationID
	AfterSeq       uint64
	Limit          int
}

type MarkRead struct {
	MessageID uuid.UUID
	ReaderID  string
}

package gateway

import (
	"time"

	"pairchat/domain"

	"github.com/samber/lo"
)

// messagePayload is the serialized message shape shared by the HTTP
// responses and the websocket push frames.
type messagePayload struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	AuthorID       string         `json:"authorId"`
	Kind           string         `json:"kind"`
	Body           string         `json:"body"`
	AuxData        *auxPayload    `json:"auxData,omitempty"`
	Sequence       uint64         `json:"sequence"`
	ReadFlag       bool           `json:"readFlag"`
	CreatedAt      time.Time      `json:"createdAt"`
	DeliveryState  string         `json:"deliveryState,omitempty"`
	Author         *authorPayload `json:"author,omitempty"`
}

type auxPayload struct {
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	MediaRef string   `json:"mediaRef,omitempty"`
}

// authorPayload resolves the author reference; removed users keep only
// their identifier and the removed marker.
type authorPayload struct {
	ID        string `json:"id"`
	Removed   bool   `json:"removed"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

type conversationPayload struct {
	ID             string    `json:"id"`
	Participants   []string  `json:"participants"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func toMessagePayload(m domain.Message) messagePayload {
	payload := messagePayload{
		ID:             m.ID.String(),
		ConversationID: string(m.ConversationID),
		AuthorID:       m.AuthorID,
		Kind:           string(m.Kind),
		Body:           m.Body,
		Sequence:       m.Seq,
		ReadFlag:       m.Read,
		CreatedAt:      m.CreatedAt,
	}
	if m.Aux.Coordinates != nil || m.Aux.MediaRef != "" {
		aux := auxPayload{MediaRef: m.Aux.MediaRef}
		if m.Aux.Coordinates != nil {
			aux.Lat = &m.Aux.Coordinates.Lat
			aux.Lon = &m.Aux.Coordinates.Lon
		}
		payload.AuxData = &aux
	}
	return payload
}

func toAuthorPayload(ref domain.AuthorRef) *authorPayload {
	if ref.Removed || ref.User == nil {
		return &authorPayload{ID: ref.ID, Removed: true}
	}
	return &authorPayload{
		ID:        ref.ID,
		FirstName: ref.User.FirstName,
		LastName:  ref.User.LastName,
		Avatar:    ref.User.Avatar,
	}
}

func toConversationPayloads(conversations []domain.Conversation) []conversationPayload {
	return lo.Map(conversations, func(conv domain.Conversation, _ int) conversationPayload {
		return conversationPayload{
			ID:             string(conv.ID),
			Participants:   []string{conv.UserLo, conv.UserHi},
			CreatedAt:      conv.CreatedAt,
			LastActivityAt: conv.LastActivityAt,
		}
	})
}

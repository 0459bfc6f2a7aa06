// This file defines Message entities and payload validation rules.
// Messages are append-only: the only mutation allowed after creation
// is the monotonic read-flag transition false -> true.
package domain

import (
	"fmt"
	"time"

	"pairchat/errors"

	"github.com/google/uuid"
)

// Kind is the closed set of message payload kinds.
type Kind string

const (
	KindText   Kind = "TEXT"
	KindGeoloc Kind = "GEOLOC"
	KindPhoto  Kind = "PHOTO"
)

// ParseKind validates a wire-level kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindText, KindGeoloc, KindPhoto:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown kind %q: %w", s, errors.ErrInvalidPayload)
	}
}

type Coordinates struct {
	Lat float64
	Lon float64
}

// AuxData carries the kind-dependent part of a message payload.
// Coordinates for GEOLOC, MediaRef (an opaque storage reference) for PHOTO.
type AuxData struct {
	Coordinates *Coordinates
	MediaRef    string
}

// ValidateAux checks that the auxiliary data shape matches the kind.
func ValidateAux(kind Kind, aux AuxData) error {
	switch kind {
	case KindText:
		return nil
	case KindGeoloc:
		if aux.Coordinates == nil {
			return fmt.Errorf("geoloc message without coordinates: %w", errors.ErrInvalidPayload)
		}
		c := aux.Coordinates
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return fmt.Errorf("coordinates out of range: %w", errors.ErrInvalidPayload)
		}
		return nil
	case KindPhoto:
		if aux.MediaRef == "" {
			return fmt.Errorf("photo message without media reference: %w", errors.ErrInvalidPayload)
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q: %w", kind, errors.ErrInvalidPayload)
	}
}

// Message is a single chat event inside a conversation.
// Seq is assigned by the message log: strictly increasing and gap-free
// per conversation, independent of wall-clock timestamps.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	AuthorID       string
	Kind           Kind
	Body           string
	Aux            AuxData
	Seq            uint64
	Read           bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

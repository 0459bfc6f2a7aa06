package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryState tracks one recipient's progress for one message.
type DeliveryState string

const (
	DeliveryPending       DeliveryState = "PENDING"
	DeliveryDelivered     DeliveryState = "DELIVERED"
	DeliveryRead          DeliveryState = "READ"
	DeliveryUndeliverable DeliveryState = "UNDELIVERABLE"
)

// CanTransition enforces the per-recipient state machine:
// Pending -> Delivered -> Read, Pending -> Undeliverable on a failed
// attempt, and Undeliverable -> Pending when the recipient reconnects.
// Read is terminal. A read acknowledgement may arrive before the
// delivery one, so Pending -> Read is accepted.
func (s DeliveryState) CanTransition(to DeliveryState) bool {
	switch s {
	case DeliveryPending:
		return to == DeliveryDelivered || to == DeliveryUndeliverable || to == DeliveryRead
	case DeliveryDelivered:
		return to == DeliveryRead
	case DeliveryUndeliverable:
		return to == DeliveryPending
	default:
		return false
	}
}

// Receipt is the dispatcher-visible delivery record for (message, recipient).
type Receipt struct {
	MessageID   uuid.UUID
	RecipientID string
	State       DeliveryState
	UpdatedAt   time.Time
}

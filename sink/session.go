// Package sink provides EventSink implementations: per-session buffers
// feeding transports, and read-side projections.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"pairchat/domain/event"
	"pairchat/errors"
)

// SessionSink buffers events for one connected session. The transport
// handler drains Events and writes them to the wire. Consume blocks
// only until the fan-out's attempt deadline: a full buffer past the
// deadline fails the attempt, which the dispatcher records as
// Undeliverable instead of stalling other recipients.
type SessionSink struct {
	log    *slog.Logger
	Events chan event.DomainEvent
}

func NewSessionSink(log *slog.Logger, bufferSize int) *SessionSink {
	return &SessionSink{
		log:    log,
		Events: make(chan event.DomainEvent, bufferSize),
	}
}

func (s *SessionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("session buffer full: %w", errors.ErrDeliveryTimeout)
	case s.Events <- e:
		return nil
	}
}

package sink

import (
	"context"
	"sync"

	"pairchat/domain"
	"pairchat/domain/event"
)

// Timeline is a permanent sink building an in-memory projection of
// recent activity per conversation. Handles ordering and concurrent
// consumption; it never emits events itself.
type Timeline struct {
	mu            sync.RWMutex
	conversations map[domain.ConversationID][]domain.Message
}

func NewTimeline() *Timeline {
	return &Timeline{
		conversations: make(map[domain.ConversationID][]domain.Message),
	}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.SanitizedMessage)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := evt.Message.ConversationID
	// Catch-up replays can revisit a message already projected.
	for _, existing := range t.conversations[id] {
		if existing.ID == evt.Message.ID {
			return nil
		}
	}
	messages := append(t.conversations[id], evt.Message)
	// Keep sequence order even if events arrive out of order.
	for i := len(messages) - 1; i > 0 && messages[i].Seq < messages[i-1].Seq; i-- {
		messages[i], messages[i-1] = messages[i-1], messages[i]
	}
	t.conversations[id] = messages
	return nil
}

// Messages returns the projected timeline of a conversation.
func (t *Timeline) Messages(id domain.ConversationID) []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Message, len(t.conversations[id]))
	copy(out, t.conversations[id])
	return out
}

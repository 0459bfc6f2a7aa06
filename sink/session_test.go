package sink

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"pairchat/domain"
	"pairchat/domain/event"
	"pairchat/errors"

	"github.com/stretchr/testify/require"
)

func TestSessionSink_Buffers_Events(t *testing.T) {
	req := require.New(t)
	session := NewSessionSink(slog.Default(), 2)
	evt := event.SanitizedMessage{Message: domain.Message{ConversationID: "c1"}, Recipient: "bob"}

	req.NoError(session.Consume(context.Background(), evt))

	got := <-session.Events
	req.Equal(evt, got)
}

func TestSessionSink_Full_Buffer_Fails_On_Deadline(t *testing.T) {
	req := require.New(t)
	session := NewSessionSink(slog.Default(), 1)
	evt := event.SanitizedMessage{Message: domain.Message{ConversationID: "c1"}, Recipient: "bob"}

	req.NoError(session.Consume(context.Background(), evt))

	// Nobody drains the buffer, so the second attempt expires.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := session.Consume(ctx, evt)
	req.ErrorIs(err, errors.ErrDeliveryTimeout)
}

package workers

import (
	"context"
	"testing"
	"time"

	"pairchat/domain"
	"pairchat/domain/event"
	"pairchat/moderation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newModerationPipeline(t *testing.T) (chan event.DomainEvent, chan event.DomainEvent) {
	t.Helper()
	moderator, err := moderation.NewModerator([]string{"idiot"}, '*')
	require.NoError(t, err)

	rawEvents := make(chan event.DomainEvent, 4)
	events := make(chan event.DomainEvent, 4)
	worker := NewModerationWorker(moderator, rawEvents, events, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = worker.Run(ctx) }()
	return rawEvents, events
}

func awaitEvent(t *testing.T, events chan event.DomainEvent) event.DomainEvent {
	t.Helper()
	select {
	case evt := <-events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestModerationWorker_Censors_Text_Bodies(t *testing.T) {
	req := require.New(t)
	rawEvents, events := newModerationPipeline(t)

	rawEvents <- event.MessageAppended{
		Message: domain.Message{
			ID:             uuid.New(),
			ConversationID: "c1",
			AuthorID:       "alice",
			Kind:           domain.KindText,
			Body:           "what an idiot",
			Seq:            1,
		},
		Recipient: "bob",
	}

	sanitized, ok := awaitEvent(t, events).(event.SanitizedMessage)
	req.True(ok)
	req.Equal("what an *****", sanitized.Message.Body)
	req.Equal([]string{"idiot"}, sanitized.CensoredWords)
	req.Equal("bob", sanitized.Recipient)
}

func TestModerationWorker_Leaves_Geoloc_Untouched(t *testing.T) {
	req := require.New(t)
	rawEvents, events := newModerationPipeline(t)

	rawEvents <- event.MessageAppended{
		Message: domain.Message{
			ID:             uuid.New(),
			ConversationID: "c1",
			AuthorID:       "alice",
			Kind:           domain.KindGeoloc,
			Aux:            domain.AuxData{Coordinates: &domain.Coordinates{Lat: 48.85, Lon: 2.35}},
			Seq:            1,
		},
		Recipient: "bob",
	}

	sanitized, ok := awaitEvent(t, events).(event.SanitizedMessage)
	req.True(ok)
	req.Empty(sanitized.Message.Body)
	req.Empty(sanitized.CensoredWords)
	req.NotNil(sanitized.Message.Aux.Coordinates)
}

func TestModerationWorker_Passes_Read_Events_Through(t *testing.T) {
	req := require.New(t)
	rawEvents, events := newModerationPipeline(t)

	notification := event.MessageRead{
		MessageID:      uuid.New(),
		ConversationID: "c1",
		ReaderID:       "bob",
		AuthorID:       "alice",
	}
	rawEvents <- notification

	req.Equal(notification, awaitEvent(t, events))
}

package sink

import (
	"context"
	"testing"
	"time"

	"pairchat/domain"
	"pairchat/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func timelineEvent(conv domain.ConversationID, seq uint64, body string) event.SanitizedMessage {
	return event.SanitizedMessage{
		Message: domain.Message{
			ID:             uuid.New(),
			ConversationID: conv,
			Kind:           domain.KindText,
			Body:           body,
			Seq:            seq,
			CreatedAt:      time.Now().UTC(),
		},
		Recipient: "bob",
	}
}

func TestTimeline_Projects_Per_Conversation(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, timelineEvent("c1", 1, "hello")))
	req.NoError(timeline.Consume(ctx, timelineEvent("c1", 2, "again")))
	req.NoError(timeline.Consume(ctx, timelineEvent("c2", 1, "elsewhere")))

	req.Len(timeline.Messages("c1"), 2)
	req.Len(timeline.Messages("c2"), 1)
	req.Empty(timeline.Messages("c3"))
}

func TestTimeline_Orders_By_Sequence(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, timelineEvent("c1", 3, "third")))
	req.NoError(timeline.Consume(ctx, timelineEvent("c1", 1, "first")))
	req.NoError(timeline.Consume(ctx, timelineEvent("c1", 2, "second")))

	bodies := make([]string, 0, 3)
	for _, message := range timeline.Messages("c1") {
		bodies = append(bodies, message.Body)
	}
	req.Equal([]string{"first", "second", "third"}, bodies)
}

func TestTimeline_Deduplicates_Replayed_Messages(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	ctx := context.Background()
	evt := timelineEvent("c1", 1, "once")

	req.NoError(timeline.Consume(ctx, evt))
	req.NoError(timeline.Consume(ctx, evt))

	req.Len(timeline.Messages("c1"), 1)
}

func TestTimeline_Ignores_Read_Notifications(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()

	req.NoError(timeline.Consume(context.Background(), event.MessageRead{
		MessageID:      uuid.New(),
		ConversationID: "c1",
		ReaderID:       "bob",
		AuthorID:       "alice",
		At:             time.Now().UTC(),
	}))
	req.Empty(timeline.Messages("c1"))
}

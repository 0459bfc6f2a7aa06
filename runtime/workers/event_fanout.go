package workers

import (
	"context"
	"log/slog"
	"time"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/domain/event"
	"pairchat/repositories"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout routes sanitized events to their recipient's session and
// to the permanent sinks (projections, telemetry).
//
// Delivery is best-effort and concurrent: each attempt runs in its own
// goroutine bounded by sinkTimeout, so a slow or dead recipient never
// blocks other recipients or the submit path. A failed attempt
// downgrades the delivery record to Undeliverable; the reconnect
// catch-up will retry it later. Successful delivery advances the
// recipient's durable cursor.
type EventFanout struct {
	log            *slog.Logger
	sessions       contract.IRegistry
	receipts       contract.IReceipts
	messages       repositories.IMessageLog
	permanentSinks []contract.EventSink
	events         chan event.DomainEvent
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, sessions contract.IRegistry, receipts contract.IReceipts,
	messages repositories.IMessageLog, permanentSinks []contract.EventSink,
	events chan event.DomainEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:            log,
		sessions:       sessions,
		receipts:       receipts,
		messages:       messages,
		permanentSinks: permanentSinks,
		events:         events,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout dispatches one event to every eligible consumer.
func (w *EventFanout) Fanout(ctx context.Context, e event.DomainEvent) {
	for _, sink := range w.permanentSinks {
		w.consume(ctx, sink, e, "permanent sink")
	}

	switch evt := e.(type) {
	case event.SanitizedMessage:
		w.deliver(ctx, evt)
	case event.MessageRead:
		w.notifyAuthor(ctx, evt)
	}
}

// deliver attempts session delivery for the message's recipient.
// Offline recipients keep their Pending record until catch-up.
func (w *EventFanout) deliver(ctx context.Context, evt event.SanitizedMessage) {
	sink, online := w.sessions.Get(evt.Recipient)
	if !online {
		w.log.Debug("Recipient offline, delivery stays pending",
			"message_id", evt.Message.ID, "recipient", evt.Recipient)
		return
	}

	go func() {
		attemptCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		defer cancel()

		if err := sink.Consume(attemptCtx, evt); err != nil {
			w.receipts.Transition(evt.Message.ID, evt.Recipient, domain.DeliveryUndeliverable)
			w.log.Warn("Delivery attempt failed",
				"message_id", evt.Message.ID,
				"recipient", evt.Recipient,
				"error", err)
			return
		}
		w.receipts.Transition(evt.Message.ID, evt.Recipient, domain.DeliveryDelivered)
		if err := w.messages.AdvanceCursor(evt.Message.ConversationID, evt.Recipient, evt.Message.Seq); err != nil {
			w.log.Error("Failed to advance delivery cursor",
				"conversation_id", evt.Message.ConversationID,
				"recipient", evt.Recipient,
				"error", err)
		}
	}()
}

// notifyAuthor pushes the read acknowledgement to the author's session.
// Failure to notify never rolls back the read transition.
func (w *EventFanout) notifyAuthor(ctx context.Context, evt event.MessageRead) {
	sink, online := w.sessions.Get(evt.AuthorID)
	if !online {
		return
	}
	w.consume(ctx, sink, evt, "author session")
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, e event.DomainEvent, target string) {
	go func() {
		attemptCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		defer cancel()
		if err := sink.Consume(attemptCtx, e); err != nil {
			w.log.Debug("Sink consume failed", "target", target, "error", err)
		}
	}()
}

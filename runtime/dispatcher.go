package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/domain/event"
	"pairchat/moderation"
	"pairchat/repositories"
	"pairchat/runtime/workers"

	"github.com/google/uuid"
)

// Dispatcher orchestrates the delivery pipeline: conversation
// resolution, durable append, moderation, fan-out and reconnect
// catch-up. Durability always precedes delivery; a delivery failure is
// recorded on the receipt and never surfaces to the submitting caller.
type Dispatcher struct {
	mu             sync.Mutex
	log            *slog.Logger
	identity       repositories.IUserRepository
	conversations  repositories.IConversationRegistry
	messages       repositories.IMessageLog
	sessions       contract.IRegistry
	receipts       contract.IReceipts
	supervisor     contract.ISupervisor
	moderator      moderation.Moderator
	permanentSinks []contract.EventSink
	rawEvents      chan event.DomainEvent
	domainEvents   chan event.DomainEvent
	numWorkers     int
	sinkTimeout    time.Duration
	metricInterval time.Duration
	clock          contract.Clock
}

func NewDispatcher(log *slog.Logger, supervisor contract.ISupervisor, sessions contract.IRegistry,
	identity repositories.IUserRepository, conversations repositories.IConversationRegistry,
	messages repositories.IMessageLog, moderator moderation.Moderator,
	numWorkers, bufferSize int, sinkTimeout, metricInterval time.Duration,
	clock contract.Clock) *Dispatcher {
	return &Dispatcher{
		log:            log,
		identity:       identity,
		conversations:  conversations,
		messages:       messages,
		sessions:       sessions,
		receipts:       NewReceipts(clock),
		supervisor:     supervisor,
		moderator:      moderator,
		rawEvents:      make(chan event.DomainEvent, bufferSize),
		domainEvents:   make(chan event.DomainEvent, bufferSize),
		numWorkers:     numWorkers,
		sinkTimeout:    sinkTimeout,
		metricInterval: metricInterval,
		clock:          clock,
	}
}

// Add registers permanent sinks fed with every event alongside the
// recipient sessions. Must be called before Start.
func (d *Dispatcher) Add(sinks ...contract.EventSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.permanentSinks = append(d.permanentSinks, sinks...)
}

// Submit resolves the conversation (creating it lazily), appends the
// message and schedules fan-out. The returned message is durable; its
// receipt starts Pending regardless of recipient reachability.
func (d *Dispatcher) Submit(ctx context.Context, cmd domain.SubmitMessage) (domain.Message, domain.Receipt, error) {
	conv, err := d.conversations.GetOrCreate(cmd.AuthorID, cmd.PeerID)
	if err != nil {
		return domain.Message{}, domain.Receipt{}, err
	}

	message, err := d.messages.Append(conv.ID, cmd.AuthorID, cmd.Kind, cmd.Body, cmd.Aux)
	if err != nil {
		return domain.Message{}, domain.Receipt{}, err
	}

	if err = d.conversations.TouchActivity(conv.ID); err != nil {
		d.log.Warn("Failed to touch conversation activity", "conversation_id", conv.ID, "error", err)
	}

	recipient, _ := conv.OtherParticipant(cmd.AuthorID)
	receipt := d.receipts.Init(message.ID, recipient)

	d.dispatch(ctx, event.MessageAppended{Message: message, Recipient: recipient})
	return message, receipt, nil
}

// AcknowledgeRead flips the durable read flag, then moves the receipt
// and notifies the author's session. Notification is best-effort and
// never rolls back the read transition.
func (d *Dispatcher) AcknowledgeRead(ctx context.Context, cmd domain.MarkRead) (domain.Message, error) {
	message, flipped, err := d.messages.MarkRead(cmd.MessageID, cmd.ReaderID)
	if err != nil {
		return domain.Message{}, err
	}

	d.receipts.Transition(message.ID, cmd.ReaderID, domain.DeliveryRead)
	if !flipped {
		// Re-reading an already-read message: no duplicate notification.
		// The durable flag decides, the receipt record may already be gone.
		return message, nil
	}

	d.dispatch(ctx, event.MessageRead{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		ReaderID:       cmd.ReaderID,
		AuthorID:       message.AuthorID,
		At:             d.clock(),
	})
	return message, nil
}

// ListSince pages through a conversation's backlog with tombstone-aware
// author resolution.
func (d *Dispatcher) ListSince(cmd domain.ListSince) ([]domain.Message, []domain.AuthorRef, error) {
	messages, err := d.messages.ListSince(cmd.ConversationID, cmd.AfterSeq, cmd.Limit)
	if err != nil {
		return nil, nil, err
	}
	authors := make([]domain.AuthorRef, len(messages))
	for i, message := range messages {
		authors[i] = d.identity.ResolveAuthor(message.AuthorID)
	}
	return messages, authors, nil
}

// Receipt exposes the dispatcher-visible delivery state of a message.
func (d *Dispatcher) Receipt(messageID uuid.UUID, recipientID string) (domain.Receipt, bool) {
	return d.receipts.Get(messageID, recipientID)
}

// Connect registers a user's session sink and replays their backlog.
// Replayed deliveries move Undeliverable records back through Pending.
func (d *Dispatcher) Connect(ctx context.Context, userID string, sink contract.EventSink) error {
	if _, err := d.identity.Resolve(userID); err != nil {
		return err
	}
	d.sessions.Register(userID, sink)
	if err := d.identity.Touch(userID); err != nil {
		d.log.Warn("Failed to record last-seen", "user_id", userID, "error", err)
	}
	return d.catchUp(ctx, userID, sink)
}

// Disconnect drops the session. In-flight delivery attempts to this
// session fail on their own timeout and become Undeliverable; durable
// state is untouched. The sink identifies the closing session: a stale
// handler cannot unregister a replacement registered since.
func (d *Dispatcher) Disconnect(userID string, sink contract.EventSink) {
	d.sessions.Unregister(userID, sink)
}

// catchUp replays, per conversation, every message past the user's
// delivery cursor, in sequence order. Bodies are moderated at replay
// time so the catch-up path and the live path show the same content.
func (d *Dispatcher) catchUp(ctx context.Context, userID string, sink contract.EventSink) error {
	conversations, err := d.conversations.ListByParticipant(userID)
	if err != nil {
		return err
	}

	for _, conv := range conversations {
		cursor, err := d.messages.Cursor(conv.ID, userID)
		if err != nil {
			return err
		}
		backlog, err := d.messages.ListSince(conv.ID, cursor, 0)
		if err != nil {
			return err
		}
		for _, message := range backlog {
			if message.AuthorID == userID {
				// Own messages need no delivery; move the cursor past
				// them so the next reconnect does not rescan them.
				if err = d.messages.AdvanceCursor(conv.ID, userID, message.Seq); err != nil {
					return err
				}
				continue
			}
			d.receipts.Transition(message.ID, userID, domain.DeliveryPending)

			sanitized := message
			var censored []string
			if message.Kind == domain.KindText {
				sanitized.Body, censored = d.moderator.Censor(message.Body)
			}
			evt := event.SanitizedMessage{
				Message:       sanitized,
				Recipient:     userID,
				CensoredWords: censored,
			}

			attemptCtx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
			err = sink.Consume(attemptCtx, evt)
			cancel()
			if err != nil {
				d.receipts.Transition(message.ID, userID, domain.DeliveryUndeliverable)
				d.log.Warn("Catch-up delivery failed",
					"message_id", message.ID, "recipient", userID, "error", err)
				// Stay in order: do not skip ahead within this conversation.
				break
			}
			d.receipts.Transition(message.ID, userID, domain.DeliveryDelivered)
			if err = d.messages.AdvanceCursor(conv.ID, userID, message.Seq); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatch enqueues an event for the pipeline without ever blocking the
// caller. A full channel drops the live event and logs; the durable
// cursor guarantees the message is replayed on the next reconnect.
func (d *Dispatcher) dispatch(ctx context.Context, e event.DomainEvent) {
	select {
	case <-ctx.Done():
	case d.rawEvents <- e:
	default:
		d.log.Warn(fmt.Sprintf("Event channel full for conversation %s, deferring to catch-up", e.Conversation()))
	}
}

// Start wires the worker pipeline under supervision.
// Preparation happens without the lock; only the supervisor update is
// guarded.
func (d *Dispatcher) Start(ctx context.Context) error {
	var pipeline []contract.Worker
	for i := 0; i < d.numWorkers; i++ {
		pipeline = append(pipeline, workers.NewModerationWorker(d.moderator, d.rawEvents, d.domainEvents, d.log))
	}

	d.mu.Lock()
	fanout := workers.NewEventFanout(d.log, d.sessions, d.receipts, d.messages,
		d.permanentSinks, d.domainEvents, d.sinkTimeout)
	d.supervisor.Add(fanout)
	d.supervisor.Add(workers.NewTelemetryWorker(d.log, d.metricInterval))
	for _, w := range pipeline {
		d.supervisor.Add(w)
	}
	d.mu.Unlock()

	d.log.Info("Starting dispatcher and all supervised workers")
	go d.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown: workers stop on context
// cancellation, in-flight deliveries expire on their own timeout.
func (d *Dispatcher) Stop() {
	d.log.Info("Requesting dispatcher shutdown")
	d.supervisor.Stop()
}

//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"pairchat/domain"
	"pairchat/domain/event"

	"github.com/google/uuid"
)

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes domain events. A sink must honor ctx cancellation:
// the fan-out bounds every delivery attempt with a timeout.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks which users currently hold an active session.
// Unregister is sink-aware: a stale session tearing down after a
// reconnect must not remove the replacement sink.
type IRegistry interface {
	Get(userID string) (EventSink, bool)
	Register(userID string, sink EventSink)
	Unregister(userID string, sink EventSink)
}

// IReceipts tracks per-recipient delivery records for messages in flight.
type IReceipts interface {
	Init(messageID uuid.UUID, recipientID string) domain.Receipt
	Get(messageID uuid.UUID, recipientID string) (domain.Receipt, bool)
	Transition(messageID uuid.UUID, recipientID string, to domain.DeliveryState) (domain.Receipt, bool)
}

// Clock is the injectable time source used wherever a component
// assigns timestamps at the point of mutation.
type Clock func() time.Time

func UTCClock() time.Time {
	return time.Now().UTC()
}

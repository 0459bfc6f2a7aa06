package runtime

import (
	"sync"

	"pairchat/contract"
	"pairchat/domain"

	"github.com/google/uuid"
)

// Receipts is the in-memory delivery record tracker, one record per
// (message, recipient). Transitions follow domain.DeliveryState rules;
// an invalid transition is a silent no-op so duplicate acknowledgements
// stay idempotent. Records are process-local: after a restart the
// durable delivery cursors rebuild the backlog, not the receipts.
// Read is terminal, so reaching it evicts the record; the tracker only
// holds messages whose delivery is still in flight.
type Receipts struct {
	mu        sync.RWMutex
	clock     contract.Clock
	byMessage map[uuid.UUID]map[string]domain.Receipt
}

func NewReceipts(clock contract.Clock) *Receipts {
	return &Receipts{
		clock:     clock,
		byMessage: make(map[uuid.UUID]map[string]domain.Receipt),
	}
}

// Init creates the Pending record right after a durable append.
func (r *Receipts) Init(messageID uuid.UUID, recipientID string) domain.Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()

	receipt := domain.Receipt{
		MessageID:   messageID,
		RecipientID: recipientID,
		State:       domain.DeliveryPending,
		UpdatedAt:   r.clock(),
	}
	if _, ok := r.byMessage[messageID]; !ok {
		r.byMessage[messageID] = make(map[string]domain.Receipt)
	}
	r.byMessage[messageID][recipientID] = receipt
	return receipt
}

func (r *Receipts) Get(messageID uuid.UUID, recipientID string) (domain.Receipt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	receipt, ok := r.byMessage[messageID][recipientID]
	return receipt, ok
}

// Transition moves the record to the requested state when the state
// machine allows it. Returns the current record and whether it changed.
func (r *Receipts) Transition(messageID uuid.UUID, recipientID string, to domain.DeliveryState) (domain.Receipt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	receipt, ok := r.byMessage[messageID][recipientID]
	if !ok {
		// Only a read acknowledgement may concern a message without a
		// live record (appended before a restart, or already evicted).
		// Read is terminal, so the record is returned without storing it.
		if to != domain.DeliveryRead {
			return domain.Receipt{}, false
		}
		return domain.Receipt{
			MessageID:   messageID,
			RecipientID: recipientID,
			State:       to,
			UpdatedAt:   r.clock(),
		}, true
	}
	if !receipt.State.CanTransition(to) {
		return receipt, false
	}
	receipt.State = to
	receipt.UpdatedAt = r.clock()
	if to == domain.DeliveryRead {
		delete(r.byMessage[messageID], recipientID)
		if len(r.byMessage[messageID]) == 0 {
			delete(r.byMessage, messageID)
		}
		return receipt, true
	}
	r.byMessage[messageID][recipientID] = receipt
	return receipt, true
}

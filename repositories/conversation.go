//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_registry.go -package=mocks
package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IConversationRegistry interface {
	GetOrCreate(userA, userB string) (domain.Conversation, error)
	Get(id domain.ConversationID) (domain.Conversation, error)
	ListByParticipant(userID string) ([]domain.Conversation, error)
	TouchActivity(id domain.ConversationID) error
	Delete(id domain.ConversationID) error
}

// ConversationRegistry enforces the one-conversation-per-pair invariant.
// The pair index key is built from the canonical ordering of the two
// participant ids, so lookups are symmetric.
//
// Keys:
//
//	conv:{id}            -> conversation record
//	pair:{lo}:{hi}       -> conversation id
//	userconv:{user}:{id} -> membership index (one per participant)
type ConversationRegistry struct {
	db       *badger.DB
	identity IUserRepository
	clock    contract.Clock
}

func NewConversationRegistry(db *badger.DB, identity IUserRepository, clock contract.Clock) *ConversationRegistry {
	return &ConversationRegistry{db: db, identity: identity, clock: clock}
}

type diskConversation struct {
	ID             string    `json:"id"`
	UserLo         string    `json:"user_lo"`
	UserHi         string    `json:"user_hi"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func convKey(id domain.ConversationID) []byte {
	return []byte("conv:" + string(id))
}

func pairKey(lo, hi string) []byte {
	return []byte(fmt.Sprintf("pair:%s:%s", lo, hi))
}

func memberKey(userID string, id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("userconv:%s:%s", userID, id))
}

// GetOrCreate resolves the conversation for an unordered pair, creating
// it lazily on first use. Creation is a compare-and-create: the pair
// index is read and written inside one transaction, and a commit
// conflict means a concurrent caller won the race, so we re-read and
// return the winner's entity instead of inserting a duplicate.
func (c *ConversationRegistry) GetOrCreate(userA, userB string) (domain.Conversation, error) {
	lo, hi, err := domain.NormalizePair(userA, userB)
	if err != nil {
		return domain.Conversation{}, err
	}
	for _, id := range []string{userA, userB} {
		if _, err = c.identity.Resolve(id); err != nil {
			return domain.Conversation{}, fmt.Errorf("participant %s: %w", id, errors.ErrInvalidParticipants)
		}
	}

	for {
		var conv domain.Conversation
		err = c.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey(lo, hi))
			if err == nil {
				var existingID string
				if err = item.Value(func(val []byte) error {
					existingID = string(val)
					return nil
				}); err != nil {
					return err
				}
				conv, err = readConversation(txn, domain.ConversationID(existingID))
				return err
			}
			if !goerrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			now := c.clock()
			record := diskConversation{
				ID:             uuid.NewString(),
				UserLo:         lo,
				UserHi:         hi,
				CreatedAt:      now,
				LastActivityAt: now,
			}
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			id := domain.ConversationID(record.ID)
			if err = txn.Set(pairKey(lo, hi), []byte(record.ID)); err != nil {
				return err
			}
			if err = txn.Set(convKey(id), data); err != nil {
				return err
			}
			if err = txn.Set(memberKey(lo, id), nil); err != nil {
				return err
			}
			if err = txn.Set(memberKey(hi, id), nil); err != nil {
				return err
			}
			conv = toConversation(record)
			return nil
		})
		if goerrors.Is(err, badger.ErrConflict) {
			// Losing racer: converge on the winner's entity.
			continue
		}
		if err != nil {
			return domain.Conversation{}, err
		}
		return conv, nil
	}
}

func (c *ConversationRegistry) Get(id domain.ConversationID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = readConversation(txn, id)
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (c *ConversationRegistry) ListByParticipant(userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte("userconv:" + userID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := domain.ConversationID(it.Item().Key()[len(prefix):])
			conv, err := readConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// TouchActivity bumps the last-activity timestamp. The conversation is
// otherwise immutable after creation.
func (c *ConversationRegistry) TouchActivity(id domain.ConversationID) error {
	now := c.clock()
	for {
		err := c.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(convKey(id))
			if goerrors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("conversation %s: %w", id, errors.ErrConversationNotFound)
			}
			if err != nil {
				return err
			}
			var record diskConversation
			if err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			record.LastActivityAt = now
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			return txn.Set(convKey(id), data)
		})
		if goerrors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

// Delete removes a conversation and its indexes. Callers only invoke it
// once both participants are gone; messages are cleaned up separately.
func (c *ConversationRegistry) Delete(id domain.ConversationID) error {
	conv, err := c.Get(id)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(pairKey(conv.UserLo, conv.UserHi)); err != nil {
			return err
		}
		if err := txn.Delete(memberKey(conv.UserLo, id)); err != nil {
			return err
		}
		if err := txn.Delete(memberKey(conv.UserHi, id)); err != nil {
			return err
		}
		return txn.Delete(convKey(id))
	})
}

func readConversation(txn *badger.Txn, id domain.ConversationID) (domain.Conversation, error) {
	item, err := txn.Get(convKey(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, errors.ErrConversationNotFound)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var record diskConversation
	if err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(record), nil
}

func toConversation(record diskConversation) domain.Conversation {
	return domain.Conversation{
		ID:             domain.ConversationID(record.ID),
		UserLo:         record.UserLo,
		UserHi:         record.UserHi,
		CreatedAt:      record.CreatedAt,
		LastActivityAt: record.LastActivityAt,
	}
}

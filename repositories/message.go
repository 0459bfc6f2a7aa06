//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_log.go -package=mocks
package repositories

import (
	"context"
	"encoding/binary"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/errors"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageLog interface {
	Append(conversationID domain.ConversationID, authorID string, kind domain.Kind, body string, aux domain.AuxData) (domain.Message, error)
	ListSince(conversationID domain.ConversationID, afterSeq uint64, limit int) ([]domain.Message, error)
	MarkRead(messageID uuid.UUID, readerID string) (domain.Message, bool, error)
	Get(messageID uuid.UUID) (domain.Message, error)
	Cursor(conversationID domain.ConversationID, userID string) (uint64, error)
	AdvanceCursor(conversationID domain.ConversationID, userID string, seq uint64) error
	Search(ctx context.Context, conversationID domain.ConversationID, terms string, limit int) ([]domain.Message, error)
	DeleteConversation(conversationID domain.ConversationID) error
}

// MessageLog is the append-only per-conversation message store.
//
// Keys:
//
//	seq:{conv}          -> last allocated sequence number (big endian)
//	msg:{conv}:{seq}    -> message record, seq zero-padded to 20 digits
//	                       so lexicographic iteration equals sequence order
//	msgid:{uuid}        -> primary key, for id-based lookups
//	cursor:{conv}:{user}-> last sequence durably delivered to user
//
// Sequence allocation happens inside the same transaction as the record
// write. Badger aborts conflicting commits, so two concurrent appends to
// one conversation cannot allocate the same number and the retry keeps
// the sequence gap-free. Appends to different conversations never touch
// the same keys and proceed in parallel.
type MessageLog struct {
	registry IConversationRegistry
	db       *badger.DB
	index    *bluge.Writer
	log      *slog.Logger
	clock    contract.Clock
}

func NewMessageLog(db *badger.DB, index *bluge.Writer, registry IConversationRegistry,
	log *slog.Logger, clock contract.Clock) *MessageLog {
	return &MessageLog{db: db, index: index, registry: registry, log: log, clock: clock}
}

type diskMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	AuthorID       string     `json:"author_id"`
	Kind           string     `json:"kind"`
	Body           string     `json:"body"`
	Lat            *float64   `json:"lat,omitempty"`
	Lon            *float64   `json:"lon,omitempty"`
	MediaRef       string     `json:"media_ref,omitempty"`
	Seq            uint64     `json:"seq"`
	Read           bool       `json:"read"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func seqKey(conv domain.ConversationID) []byte {
	return []byte("seq:" + string(conv))
}

func msgKey(conv domain.ConversationID, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", conv, seq))
}

func msgIDKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func cursorKey(conv domain.ConversationID, userID string) []byte {
	return []byte(fmt.Sprintf("cursor:%s:%s", conv, userID))
}

// Append validates, allocates the next sequence number and persists the
// message. Validation failures leave no trace in storage.
func (m *MessageLog) Append(conversationID domain.ConversationID, authorID string,
	kind domain.Kind, body string, aux domain.AuxData) (domain.Message, error) {
	conv, err := m.registry.Get(conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !conv.HasParticipant(authorID) {
		return domain.Message{}, fmt.Errorf("author %s in conversation %s: %w",
			authorID, conversationID, errors.ErrAuthorNotParticipant)
	}
	if err = domain.ValidateAux(kind, aux); err != nil {
		return domain.Message{}, err
	}

	now := m.clock()
	record := diskMessage{
		ID:             uuid.NewString(),
		ConversationID: string(conversationID),
		AuthorID:       authorID,
		Kind:           string(kind),
		Body:           body,
		MediaRef:       aux.MediaRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if aux.Coordinates != nil {
		record.Lat = &aux.Coordinates.Lat
		record.Lon = &aux.Coordinates.Lon
	}

	for {
		err = m.db.Update(func(txn *badger.Txn) error {
			next := uint64(1)
			item, err := txn.Get(seqKey(conversationID))
			switch {
			case err == nil:
				if err = item.Value(func(val []byte) error {
					next = binary.BigEndian.Uint64(val) + 1
					return nil
				}); err != nil {
					return err
				}
			case !goerrors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			record.Seq = next

			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			var seqVal [8]byte
			binary.BigEndian.PutUint64(seqVal[:], next)
			if err = txn.Set(seqKey(conversationID), seqVal[:]); err != nil {
				return err
			}
			if err = txn.Set(msgKey(conversationID, next), data); err != nil {
				return err
			}
			return txn.Set(msgIDKey(uuid.MustParse(record.ID)), msgKey(conversationID, next))
		})
		if goerrors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return domain.Message{}, err
		}
		break
	}

	if err = m.indexMessage(record); err != nil {
		// The message is durable; a stale search index is recoverable.
		m.log.Warn("Failed to index message", "message_id", record.ID, "error", err)
	}
	return toMessage(record), nil
}

// ListSince returns up to limit messages with Seq > afterSeq, ascending.
// The padded key layout makes the prefix iteration return them in
// sequence order without sorting.
func (m *MessageLog) ListSince(conversationID domain.ConversationID, afterSeq uint64, limit int) ([]domain.Message, error) {
	if _, err := m.registry.Get(conversationID); err != nil {
		return nil, err
	}
	if afterSeq == math.MaxUint64 {
		// afterSeq+1 would wrap the seek key back to the start.
		return nil, nil
	}
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", conversationID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(msgKey(conversationID, afterSeq+1)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			var record diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			messages = append(messages, toMessage(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead flips the read flag for messageID. Only the non-author
// participant may read; re-reading an already-read message is a no-op
// returning the unchanged message. The bool reports whether this call
// flipped the flag, so callers can suppress duplicate notifications.
func (m *MessageLog) MarkRead(messageID uuid.UUID, readerID string) (domain.Message, bool, error) {
	for {
		var message domain.Message
		var flipped bool
		err := m.db.Update(func(txn *badger.Txn) error {
			record, primaryKey, err := m.loadByID(txn, messageID)
			if err != nil {
				return err
			}
			if record.AuthorID == readerID {
				return fmt.Errorf("author cannot read own message: %w", errors.ErrForbidden)
			}
			conv, err := readConversation(txn, domain.ConversationID(record.ConversationID))
			if err != nil {
				return err
			}
			if !conv.HasParticipant(readerID) {
				return fmt.Errorf("reader %s not in conversation %s: %w",
					readerID, record.ConversationID, errors.ErrForbidden)
			}
			if record.Read {
				// Idempotent: already read, nothing to persist.
				message = toMessage(record)
				return nil
			}
			record.Read = true
			record.UpdatedAt = m.clock()
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			message = toMessage(record)
			flipped = true
			return txn.Set(primaryKey, data)
		})
		if goerrors.Is(err, badger.ErrConflict) {
			flipped = false
			continue
		}
		if err != nil {
			return domain.Message{}, false, err
		}
		return message, flipped, nil
	}
}

func (m *MessageLog) Get(messageID uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		record, _, err := m.loadByID(txn, messageID)
		if err != nil {
			return err
		}
		message = toMessage(record)
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// Cursor returns the last sequence number durably delivered to userID.
// Zero means nothing has been delivered yet.
func (m *MessageLog) Cursor(conversationID domain.ConversationID, userID string) (uint64, error) {
	var seq uint64
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cursorKey(conversationID, userID))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			seq = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// AdvanceCursor is monotonic: a stale delivery acknowledgement never
// moves the cursor backwards.
func (m *MessageLog) AdvanceCursor(conversationID domain.ConversationID, userID string, seq uint64) error {
	for {
		err := m.db.Update(func(txn *badger.Txn) error {
			current := uint64(0)
			item, err := txn.Get(cursorKey(conversationID, userID))
			switch {
			case err == nil:
				if err = item.Value(func(val []byte) error {
					current = binary.BigEndian.Uint64(val)
					return nil
				}); err != nil {
					return err
				}
			case !goerrors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if seq <= current {
				return nil
			}
			var val [8]byte
			binary.BigEndian.PutUint64(val[:], seq)
			return txn.Set(cursorKey(conversationID, userID), val[:])
		})
		if goerrors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

// Search runs a full-text query over message bodies, scoped to one
// conversation, and resolves hits back to stored records.
func (m *MessageLog) Search(ctx context.Context, conversationID domain.ConversationID, terms string, limit int) ([]domain.Message, error) {
	reader, err := m.index.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("body")).
		AddMust(bluge.NewTermQuery(string(conversationID)).SetField("conversation"))
	request := bluge.NewTopNSearch(limit, query)

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	match, err := iterator.Next()
	for err == nil && match != nil {
		var id string
		if visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				id = string(value)
			}
			return true
		}); visitErr != nil {
			return nil, visitErr
		}
		if id != "" {
			messageID, parseErr := uuid.Parse(id)
			if parseErr != nil {
				return nil, parseErr
			}
			message, getErr := m.Get(messageID)
			if getErr != nil {
				return nil, getErr
			}
			messages = append(messages, message)
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteConversation drops all records of a conversation. Only called
// when both participants are gone; ordinary removal never cascades.
func (m *MessageLog) DeleteConversation(conversationID domain.ConversationID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		prefixes := [][]byte{
			[]byte(fmt.Sprintf("msg:%s:", conversationID)),
			[]byte(fmt.Sprintf("cursor:%s:", conversationID)),
		}
		var toDelete [][]byte
		for _, prefix := range prefixes {
			options := badger.DefaultIteratorOptions
			options.PrefetchValues = false
			it := txn.NewIterator(options)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				toDelete = append(toDelete, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		// Resolve id index entries before deleting the primary records.
		for _, key := range toDelete {
			if len(key) > 4 && string(key[:4]) == "msg:" {
				var record diskMessage
				item, err := txn.Get(key)
				if err != nil {
					return err
				}
				if err = item.Value(func(val []byte) error {
					return json.Unmarshal(val, &record)
				}); err != nil {
					return err
				}
				if err = txn.Delete([]byte("msgid:" + record.ID)); err != nil {
					return err
				}
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete(seqKey(conversationID))
	})
}

func (m *MessageLog) loadByID(txn *badger.Txn, messageID uuid.UUID) (diskMessage, []byte, error) {
	item, err := txn.Get(msgIDKey(messageID))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return diskMessage{}, nil, fmt.Errorf("message %s: %w", messageID, errors.ErrNotFound)
	}
	if err != nil {
		return diskMessage{}, nil, err
	}
	var primaryKey []byte
	if err = item.Value(func(val []byte) error {
		primaryKey = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return diskMessage{}, nil, err
	}
	primary, err := txn.Get(primaryKey)
	if err != nil {
		return diskMessage{}, nil, err
	}
	var record diskMessage
	if err = primary.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return diskMessage{}, nil, err
	}
	return record, primaryKey, nil
}

func (m *MessageLog) indexMessage(record diskMessage) error {
	doc := bluge.NewDocument(record.ID).
		AddField(bluge.NewKeywordField("conversation", record.ConversationID)).
		AddField(bluge.NewKeywordField("author", record.AuthorID)).
		AddField(bluge.NewTextField("body", record.Body)).
		AddField(bluge.NewNumericField("seq", float64(record.Seq)))
	return m.index.Update(doc.ID(), doc)
}

func toMessage(record diskMessage) domain.Message {
	message := domain.Message{
		ID:             uuid.MustParse(record.ID),
		ConversationID: domain.ConversationID(record.ConversationID),
		AuthorID:       record.AuthorID,
		Kind:           domain.Kind(record.Kind),
		Body:           record.Body,
		Aux:            domain.AuxData{MediaRef: record.MediaRef},
		Seq:            record.Seq,
		Read:           record.Read,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
	if record.Lat != nil && record.Lon != nil {
		message.Aux.Coordinates = &domain.Coordinates{Lat: *record.Lat, Lon: *record.Lon}
	}
	return message
}

//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
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

type IUserRepository interface {
	Create(email, firstName, lastName, avatar string) (domain.User, error)
	Resolve(id string) (domain.User, error)
	ResolveAuthor(id string) domain.AuthorRef
	Deactivate(id string) error
	Remove(id string) error
	Touch(id string) error
}

// UserRepository is the identity store. From the engine's perspective it
// is read-mostly: Resolve is the hot path, mutations happen on
// registration and profile/activity updates.
type UserRepository struct {
	db    *badger.DB
	clock contract.Clock
}

func NewUserRepository(db *badger.DB, clock contract.Clock) *UserRepository {
	return &UserRepository{db: db, clock: clock}
}

type diskUser struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Avatar     string    `json:"avatar,omitempty"`
	Active     bool      `json:"active"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func (u *UserRepository) Create(email, firstName, lastName, avatar string) (domain.User, error) {
	now := u.clock()
	record := diskUser{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Avatar:    avatar,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return domain.User{}, fmt.Errorf("marshal user: %w", err)
	}
	err = u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(record.ID), data)
	})
	if err != nil {
		return domain.User{}, err
	}
	return toUser(record), nil
}

// Resolve returns the user for id. Unknown and deactivated identifiers
// both resolve to ErrNotFound: a deactivated user cannot participate.
func (u *UserRepository) Resolve(id string) (domain.User, error) {
	record, err := u.load(id)
	if err != nil {
		return domain.User{}, err
	}
	if !record.Active {
		return domain.User{}, fmt.Errorf("user %s deactivated: %w", id, errors.ErrNotFound)
	}
	return toUser(record), nil
}

// ResolveAuthor never fails: a missing record degrades to a tombstone so
// message history survives author removal. Deactivated users still
// resolve here, only removal produces a tombstone.
func (u *UserRepository) ResolveAuthor(id string) domain.AuthorRef {
	record, err := u.load(id)
	if err != nil {
		return domain.Tombstone(id)
	}
	return domain.ActiveAuthor(toUser(record))
}

func (u *UserRepository) Deactivate(id string) error {
	return u.mutate(id, func(record *diskUser) {
		record.Active = false
	})
}

// Remove erases the record. History referencing this user resolves to a
// tombstone from now on.
func (u *UserRepository) Remove(id string) error {
	return u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(id)); goerrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("user %s: %w", id, errors.ErrNotFound)
		}
		return txn.Delete(userKey(id))
	})
}

// Touch records session activity as the last-seen timestamp.
func (u *UserRepository) Touch(id string) error {
	now := u.clock()
	return u.mutate(id, func(record *diskUser) {
		record.LastSeenAt = now
	})
}

func (u *UserRepository) load(id string) (diskUser, error) {
	var record diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return diskUser{}, fmt.Errorf("user %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return diskUser{}, err
	}
	return record, nil
}

func (u *UserRepository) mutate(id string, apply func(*diskUser)) error {
	for {
		err := u.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(userKey(id))
			if goerrors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("user %s: %w", id, errors.ErrNotFound)
			}
			if err != nil {
				return err
			}
			var record diskUser
			if err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			apply(&record)
			record.UpdatedAt = u.clock()
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			return txn.Set(userKey(id), data)
		})
		if goerrors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

func toUser(record diskUser) domain.User {
	return domain.User{
		ID:         record.ID,
		Email:      record.Email,
		FirstName:  record.FirstName,
		LastName:   record.LastName,
		Avatar:     record.Avatar,
		Active:     record.Active,
		LastSeenAt: record.LastSeenAt,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

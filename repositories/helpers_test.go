package repositories

import (
	"log/slog"
	"testing"

	"pairchat/contract"
	"pairchat/domain"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T) (*UserRepository, *ConversationRegistry, *MessageLog) {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = indexWriter.Close() })

	users := NewUserRepository(db, contract.UTCClock)
	registry := NewConversationRegistry(db, users, contract.UTCClock)
	messages := NewMessageLog(db, indexWriter, registry, slog.Default(), contract.UTCClock)
	return users, registry, messages
}

func mustCreateUser(t *testing.T, users *UserRepository, email string) domain.User {
	t.Helper()
	user, err := users.Create(email, "Test", "User", "")
	require.NoError(t, err)
	return user
}

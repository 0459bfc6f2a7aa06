package services

import (
	"context"
	"testing"

	"pairchat/domain"
	"pairchat/errors"

	"github.com/stretchr/testify/require"
)

func TestChatService_ListSince_Requires_Participation(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	alice := stack.register(t, "alice@example.com")
	bob := stack.register(t, "bob@example.com")
	eve := stack.register(t, "eve@example.com")
	message := stack.submit(t, alice, bob, "between us")

	_, _, err := stack.chat.ListSince(eve.ID, domain.ListSince{ConversationID: message.ConversationID})
	req.ErrorIs(err, errors.ErrForbidden)

	listed, _, err := stack.chat.ListSince(bob.ID, domain.ListSince{ConversationID: message.ConversationID})
	req.NoError(err)
	req.Len(listed, 1)
}

func TestChatService_Search_Requires_Participation(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	alice := stack.register(t, "alice@example.com")
	bob := stack.register(t, "bob@example.com")
	eve := stack.register(t, "eve@example.com")
	message := stack.submit(t, alice, bob, "secret rendezvous")

	_, err := stack.chat.Search(context.Background(), eve.ID, message.ConversationID, "rendezvous", 10)
	req.ErrorIs(err, errors.ErrForbidden)

	found, err := stack.chat.Search(context.Background(), bob.ID, message.ConversationID, "rendezvous", 10)
	req.NoError(err)
	req.Len(found, 1)
}

func TestChatService_Receipt_Passthrough(t *testing.T) {
	req := require.New(t)
	stack := newServiceStack(t)
	alice := stack.register(t, "alice@example.com")
	bob := stack.register(t, "bob@example.com")
	message := stack.submit(t, alice, bob, "status check")

	receipt, ok := stack.chat.Receipt(message.ID, bob.ID)
	req.True(ok)
	req.Equal(domain.DeliveryPending, receipt.State)
}

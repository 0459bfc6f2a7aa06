//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/errors"
	"pairchat/repositories"
	"pairchat/runtime"

	"github.com/google/uuid"
)

type IChatService interface {
	Submit(ctx context.Context, cmd domain.SubmitMessage) (domain.Message, domain.Receipt, error)
	ListSince(requesterID string, cmd domain.ListSince) ([]domain.Message, []domain.AuthorRef, error)
	MarkRead(ctx context.Context, cmd domain.MarkRead) (domain.Message, error)
	Search(ctx context.Context, requesterID string, conversationID domain.ConversationID, terms string, limit int) ([]domain.Message, error)
	Conversations(requesterID string) ([]domain.Conversation, error)
	Connect(ctx context.Context, userID string, sessionSink contract.EventSink) error
	Disconnect(userID string, sessionSink contract.EventSink)
}

// ChatService is the boundary the gateway talks to. It adds the
// caller-authorization checks the dispatcher and repositories assume
// have already happened.
type ChatService struct {
	dispatcher    *runtime.Dispatcher
	conversations repositories.IConversationRegistry
	messages      repositories.IMessageLog
}

func NewChatService(dispatcher *runtime.Dispatcher, conversations repositories.IConversationRegistry,
	messages repositories.IMessageLog) *ChatService {
	return &ChatService{dispatcher: dispatcher, conversations: conversations, messages: messages}
}

func (s *ChatService) Submit(ctx context.Context, cmd domain.SubmitMessage) (domain.Message, domain.Receipt, error) {
	return s.dispatcher.Submit(ctx, cmd)
}

func (s *ChatService) ListSince(requesterID string, cmd domain.ListSince) ([]domain.Message, []domain.AuthorRef, error) {
	if err := s.requireParticipant(cmd.ConversationID, requesterID); err != nil {
		return nil, nil, err
	}
	return s.dispatcher.ListSince(cmd)
}

func (s *ChatService) MarkRead(ctx context.Context, cmd domain.MarkRead) (domain.Message, error) {
	return s.dispatcher.AcknowledgeRead(ctx, cmd)
}

func (s *ChatService) Search(ctx context.Context, requesterID string, conversationID domain.ConversationID,
	terms string, limit int) ([]domain.Message, error) {
	if err := s.requireParticipant(conversationID, requesterID); err != nil {
		return nil, err
	}
	return s.messages.Search(ctx, conversationID, terms, limit)
}

func (s *ChatService) Conversations(requesterID string) ([]domain.Conversation, error) {
	return s.conversations.ListByParticipant(requesterID)
}

func (s *ChatService) Connect(ctx context.Context, userID string, sessionSink contract.EventSink) error {
	return s.dispatcher.Connect(ctx, userID, sessionSink)
}

func (s *ChatService) Disconnect(userID string, sessionSink contract.EventSink) {
	s.dispatcher.Disconnect(userID, sessionSink)
}

// Receipt exposes delivery state for transport-level status responses.
func (s *ChatService) Receipt(messageID uuid.UUID, recipientID string) (domain.Receipt, bool) {
	return s.dispatcher.Receipt(messageID, recipientID)
}

func (s *ChatService) requireParticipant(conversationID domain.ConversationID, userID string) error {
	conv, err := s.conversations.Get(conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return fmt.Errorf("user %s in conversation %s: %w", userID, conversationID, errors.ErrForbidden)
	}
	return nil
}

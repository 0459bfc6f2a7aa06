package services

import (
	"log/slog"

	"pairchat/domain"
	"pairchat/repositories"
)

// IdentityService fronts the identity store for the thin admin surface.
// Removal is the only operation with cross-entity consequences: message
// history survives via tombstones, but a conversation that has lost
// both participants is pruned along with its messages.
type IdentityService struct {
	identity      repositories.IUserRepository
	conversations repositories.IConversationRegistry
	messages      repositories.IMessageLog
	log           *slog.Logger
}

func NewIdentityService(identity repositories.IUserRepository,
	conversations repositories.IConversationRegistry,
	messages repositories.IMessageLog, log *slog.Logger) *IdentityService {
	return &IdentityService{
		identity:      identity,
		conversations: conversations,
		messages:      messages,
		log:           log,
	}
}

func (s *IdentityService) Register(email, firstName, lastName, avatar string) (domain.User, error) {
	return s.identity.Create(email, firstName, lastName, avatar)
}

func (s *IdentityService) Resolve(id string) (domain.User, error) {
	return s.identity.Resolve(id)
}

func (s *IdentityService) Deactivate(id string) error {
	return s.identity.Deactivate(id)
}

// Remove erases the user and prunes conversations whose other
// participant is already gone. Conversations with one surviving
// participant keep their full history; the removed side resolves to a
// tombstone at read time.
func (s *IdentityService) Remove(id string) error {
	conversations, err := s.conversations.ListByParticipant(id)
	if err != nil {
		return err
	}
	if err = s.identity.Remove(id); err != nil {
		return err
	}

	for _, conv := range conversations {
		other, ok := conv.OtherParticipant(id)
		if !ok {
			continue
		}
		if !s.identity.ResolveAuthor(other).Removed {
			continue
		}
		s.log.Info("Pruning conversation, both participants removed", "conversation_id", conv.ID)
		if err = s.messages.DeleteConversation(conv.ID); err != nil {
			return err
		}
		if err = s.conversations.Delete(conv.ID); err != nil {
			return err
		}
	}
	return nil
}

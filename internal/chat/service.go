package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/kel/internal/common"
)

// Service holds the conversation and message operations behind the CRUD
// routes. Turns go through the Orchestrator instead.
type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListConversations(ctx, limit)
}

func (s *Service) GetConversation(ctx context.Context, id uint64) (*Conversation, error) {
	return s.repo.GetConversation(ctx, id)
}

// RenameConversation sets a user-chosen title; it also stops any pending
// summary from replacing it.
func (s *Service) RenameConversation(ctx context.Context, id uint64, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, common.Invalid("title must not be empty")
	}
	if utf8.RuneCountInString(title) > 255 {
		return nil, common.Invalid("title must be at most 255 characters")
	}
	if _, err := s.repo.RefineTitle(ctx, id, title); err != nil {
		return nil, err
	}
	return s.repo.RenameConversation(ctx, id, title)
}

func (s *Service) DeleteConversation(ctx context.Context, id uint64) error {
	return s.repo.DeleteConversation(ctx, id)
}

// ListMessages returns the conversation history oldest first.
func (s *Service) ListMessages(ctx context.Context, conversationID uint64) ([]Message, error) {
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

type CreateMessageInput struct {
	ConversationID uint64  `json:"conversation_id" binding:"required"`
	Role           string  `json:"role" binding:"required"`
	Content        string  `json:"content"`
	Image          *string `json:"image"`
}

// CreateMessage appends a message outside of a turn, e.g. a system note or an
// imported history entry.
func (s *Service) CreateMessage(ctx context.Context, in CreateMessageInput) (*Message, error) {
	switch in.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return nil, common.Invalid("role must be user, assistant or system")
	}
	if in.Image != nil && *in.Image == "" {
		in.Image = nil
	}
	if in.Image != nil && in.Role != RoleUser {
		return nil, common.Invalid("only user messages may carry an image")
	}
	if strings.TrimSpace(in.Content) == "" && in.Image == nil {
		return nil, common.Invalid("content must not be empty")
	}

	m := &Message{ConversationID: in.ConversationID, Role: in.Role, Content: in.Content, Image: in.Image}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) DeleteMessage(ctx context.Context, id uint64) error {
	return s.repo.DeleteMessage(ctx, id)
}

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/kel/internal/common"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// CreateConversation inserts a conversation and its first message atomically.
func (r *Repo) CreateConversation(ctx context.Context, title string, first *Message) (*Conversation, error) {
	conv := &Conversation{Title: title}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		if first == nil {
			return nil
		}
		first.ConversationID = conv.ID
		return tx.Create(first).Error
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *Repo) GetConversation(ctx context.Context, id uint64) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, "conversation %d", id)
	}
	return &c, nil
}

// ListConversations returns the most recently active first.
func (r *Repo) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	q := r.db.WithContext(ctx).Order("updated_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Conversation
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) RenameConversation(ctx context.Context, id uint64, title string) (*Conversation, error) {
	res := r.db.WithContext(ctx).Model(&Conversation{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, common.NotFound("conversation %d", id)
	}
	return r.GetConversation(ctx, id)
}

// RefineTitle replaces the title once. It reports false when the conversation
// was already refined or no longer exists.
func (r *Repo) RefineTitle(ctx context.Context, id uint64, title string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND title_refined = ?", id, false).
		Updates(map[string]any{"title": title, "title_refined": true})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteConversation removes the conversation together with its messages.
func (r *Repo) DeleteConversation(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Conversation{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.NotFound("conversation %d", id)
		}
		return nil
	})
}

// InsertMessage appends m to an existing conversation and bumps its
// updated_at.
func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Conversation{}).Where("id = ?", m.ConversationID).Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.NotFound("conversation %d", m.ConversationID)
		}
		return tx.Create(m).Error
	})
}

// ListMessages returns the canonical history: oldest first.
func (r *Repo) ListMessages(ctx context.Context, conversationID uint64) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) DeleteMessage(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Delete(&Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("message %d", id)
	}
	return nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NotFound(format, args...)
	}
	return err
}

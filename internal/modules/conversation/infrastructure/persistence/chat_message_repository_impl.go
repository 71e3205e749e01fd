package persistence

import (
	"context"
	"errors"

	"RAGLink/internal/modules/conversation/domain/conversation"
	"RAGLink/internal/modules/conversation/domain/repository"

	"gorm.io/gorm"
)

type chatMessageRepositoryImpl struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) repository.ChatMessageRepository {
	return &chatMessageRepositoryImpl{db: db}
}

func (r *chatMessageRepositoryImpl) Create(ctx context.Context, m *conversation.ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *chatMessageRepositoryImpl) BatchCreate(ctx context.Context, msgs []*conversation.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(msgs, 100).Error
}

func (r *chatMessageRepositoryImpl) GetByID(ctx context.Context, id int64) (*conversation.ChatMessage, error) {
	var m conversation.ChatMessage
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *chatMessageRepositoryImpl) ListBySession(ctx context.Context, sessionID string, limit int) ([]*conversation.ChatMessage, error) {
	var msgs []*conversation.ChatMessage
	q := r.db.WithContext(ctx).
		Where("session_id = ? AND is_deleted = ? AND sender <> ?", sessionID, false, conversation.SenderTool).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentHistory 先倒序取最近 limit 条，再反转为正序返回。
func (r *chatMessageRepositoryImpl) ListRecentHistory(ctx context.Context, sessionID string, limit int) ([]*conversation.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	var msgs []*conversation.ChatMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND is_deleted = ? AND sender <> ?", sessionID, false, conversation.SenderTool).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *chatMessageRepositoryImpl) ListChildren(ctx context.Context, parentID int64) ([]*conversation.ChatMessage, error) {
	var msgs []*conversation.ChatMessage
	err := r.db.WithContext(ctx).
		Where("parent_id = ? AND is_deleted = ?", parentID, false).
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatMessageRepositoryImpl) UpdateStatus(ctx context.Context, id int64, status, traceback string) error {
	updates := map[string]any{"status": status}
	if traceback != "" {
		updates["traceback"] = traceback
	}
	return r.db.WithContext(ctx).Model(&conversation.ChatMessage{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *chatMessageRepositoryImpl) UpdateContent(ctx context.Context, id int64, content, referencesJson string) error {
	return r.db.WithContext(ctx).Model(&conversation.ChatMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content":         content,
			"references_json": referencesJson,
		}).Error
}

func (r *chatMessageRepositoryImpl) SoftDeleteBySession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Model(&conversation.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Update("is_deleted", true).Error
}

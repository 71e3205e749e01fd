package persistence

import (
	"context"
	"errors"
	"time"

	"RAGLink/internal/modules/conversation/domain/conversation"
	"RAGLink/internal/modules/conversation/domain/repository"

	"gorm.io/gorm"
)

type chatSessionRepositoryImpl struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) repository.ChatSessionRepository {
	return &chatSessionRepositoryImpl{db: db}
}

func (r *chatSessionRepositoryImpl) Create(ctx context.Context, s *conversation.ChatSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *chatSessionRepositoryImpl) GetByUser(ctx context.Context, userID string) (*conversation.ChatSession, error) {
	var s conversation.ChatSession
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *chatSessionRepositoryImpl) GetByID(ctx context.Context, id string) (*conversation.ChatSession, error) {
	var s conversation.ChatSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *chatSessionRepositoryImpl) Touch(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&conversation.ChatSession{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

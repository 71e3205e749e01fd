package repository

import (
	"context"

	"RAGLink/internal/modules/conversation/domain/conversation"
)

// ChatSessionRepository 会话仓储
type ChatSessionRepository interface {
	Create(ctx context.Context, s *conversation.ChatSession) error
	GetByUser(ctx context.Context, userID string) (*conversation.ChatSession, error)
	GetByID(ctx context.Context, id string) (*conversation.ChatSession, error)
	Touch(ctx context.Context, id string) error
}

// ChatMessageRepository 消息仓储
type ChatMessageRepository interface {
	Create(ctx context.Context, m *conversation.ChatMessage) error
	BatchCreate(ctx context.Context, msgs []*conversation.ChatMessage) error
	GetByID(ctx context.Context, id int64) (*conversation.ChatMessage, error)
	// ListBySession 按创建时间正序返回未删除消息，不含 tool 消息。
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*conversation.ChatMessage, error)
	// ListRecentHistory 返回拼接上下文用的最近 limit 条非 tool 消息（正序）。
	ListRecentHistory(ctx context.Context, sessionID string, limit int) ([]*conversation.ChatMessage, error)
	ListChildren(ctx context.Context, parentID int64) ([]*conversation.ChatMessage, error)
	UpdateStatus(ctx context.Context, id int64, status, traceback string) error
	UpdateContent(ctx context.Context, id int64, content, referencesJson string) error
	SoftDeleteBySession(ctx context.Context, sessionID string) error
}

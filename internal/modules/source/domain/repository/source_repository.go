package repository

import (
	"context"

	"RAGLink/internal/modules/source/domain/source"
)

// SourceFileRepository 负责 source_file 元数据（MySQL）的持久化
type SourceFileRepository interface {
	Create(ctx context.Context, file *source.SourceFile) error
	GetByID(ctx context.Context, id string) (*source.SourceFile, error)
	GetByIDs(ctx context.Context, ids []string) ([]*source.SourceFile, error)
	ListByUser(ctx context.Context, userID string) ([]*source.SourceFile, error)
	ListCompletedByUser(ctx context.Context, userID string, limit int) ([]*source.SourceFile, error)
	UpdateStatus(ctx context.Context, id string, status string, traceback string) error
	UpdateSummary(ctx context.Context, id string, summary string) error
	Delete(ctx context.Context, id string) error
}

// SourceFileChunkRepository 负责 PDF 分块的持久化
type SourceFileChunkRepository interface {
	BatchCreate(ctx context.Context, chunks []*source.SourceFileChunk) error
	GetByIDs(ctx context.Context, ids []int64) ([]*source.SourceFileChunk, error)
	ListParentsByFile(ctx context.Context, fileID string) ([]*source.SourceFileChunk, error)
	ListChildrenByParent(ctx context.Context, parentID int64) ([]*source.SourceFileChunk, error)
	// SearchChildrenBySubstring 在指定文件集合内对子块内容做子串匹配
	SearchChildrenBySubstring(ctx context.Context, userID string, fileIDs []string, keyword string, limit int) ([]*source.SourceFileChunk, error)
	GetParentOf(ctx context.Context, chunkID int64) (*source.SourceFileChunk, error)
	DeleteByFile(ctx context.Context, fileID string) error
	ListIDsByFile(ctx context.Context, fileID string) ([]int64, error)
}

// SourceFileTableRepository 负责结构化文件导入表的登记
type SourceFileTableRepository interface {
	BatchCreate(ctx context.Context, tables []*source.SourceFileTable) error
	ListByFile(ctx context.Context, fileID string) ([]*source.SourceFileTable, error)
	ListByFiles(ctx context.Context, fileIDs []string) ([]*source.SourceFileTable, error)
	ListByUser(ctx context.Context, userID string) ([]*source.SourceFileTable, error)
	DeleteByFile(ctx context.Context, fileID string) error
}

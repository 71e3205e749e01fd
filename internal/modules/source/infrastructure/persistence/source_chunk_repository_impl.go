package persistence

import (
	"context"
	"errors"

	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"

	"gorm.io/gorm"
)

type sourceFileChunkRepositoryImpl struct {
	db *gorm.DB
}

func NewSourceFileChunkRepository(db *gorm.DB) repository.SourceFileChunkRepository {
	return &sourceFileChunkRepositoryImpl{db: db}
}

func (r *sourceFileChunkRepositoryImpl) BatchCreate(ctx context.Context, chunks []*source.SourceFileChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 200).Error
}

func (r *sourceFileChunkRepositoryImpl) GetByIDs(ctx context.Context, ids []int64) ([]*source.SourceFileChunk, error) {
	if len(ids) == 0 {
		return []*source.SourceFileChunk{}, nil
	}
	var chunks []*source.SourceFileChunk
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&chunks).Error
	return chunks, err
}

func (r *sourceFileChunkRepositoryImpl) ListParentsByFile(ctx context.Context, fileID string) ([]*source.SourceFileChunk, error) {
	var chunks []*source.SourceFileChunk
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND parent_id IS NULL", fileID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *sourceFileChunkRepositoryImpl) ListChildrenByParent(ctx context.Context, parentID int64) ([]*source.SourceFileChunk, error) {
	var chunks []*source.SourceFileChunk
	err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *sourceFileChunkRepositoryImpl) SearchChildrenBySubstring(ctx context.Context, userID string, fileIDs []string, keyword string, limit int) ([]*source.SourceFileChunk, error) {
	if keyword == "" || limit <= 0 {
		return []*source.SourceFileChunk{}, nil
	}
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND parent_id IS NOT NULL", userID).
		Where("content LIKE ?", "%"+escapeLike(keyword)+"%")
	if len(fileIDs) > 0 {
		q = q.Where("file_id IN ?", fileIDs)
	}
	var chunks []*source.SourceFileChunk
	err := q.Order("id ASC").Limit(limit).Find(&chunks).Error
	return chunks, err
}

func (r *sourceFileChunkRepositoryImpl) GetParentOf(ctx context.Context, chunkID int64) (*source.SourceFileChunk, error) {
	var child source.SourceFileChunk
	err := r.db.WithContext(ctx).Where("id = ?", chunkID).First(&child).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !child.ParentId.Valid {
		return &child, nil
	}

	var parent source.SourceFileChunk
	err = r.db.WithContext(ctx).Where("id = ?", child.ParentId.Int64).First(&parent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &child, nil
	}
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

func (r *sourceFileChunkRepositoryImpl) DeleteByFile(ctx context.Context, fileID string) error {
	return r.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&source.SourceFileChunk{}).Error
}

func (r *sourceFileChunkRepositoryImpl) ListIDsByFile(ctx context.Context, fileID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&source.SourceFileChunk{}).
		Where("file_id = ?", fileID).
		Pluck("id", &ids).Error
	return ids, err
}

// escapeLike 转义 LIKE 通配符，关键词按字面意义匹配
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

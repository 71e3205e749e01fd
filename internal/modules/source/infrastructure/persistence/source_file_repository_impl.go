package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"

	"gorm.io/gorm"
)

type sourceFileRepositoryImpl struct {
	db *gorm.DB
}

func NewSourceFileRepository(db *gorm.DB) repository.SourceFileRepository {
	return &sourceFileRepositoryImpl{db: db}
}

func (r *sourceFileRepositoryImpl) Create(ctx context.Context, file *source.SourceFile) error {
	now := time.Now()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *sourceFileRepositoryImpl) GetByID(ctx context.Context, id string) (*source.SourceFile, error) {
	var file source.SourceFile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *sourceFileRepositoryImpl) GetByIDs(ctx context.Context, ids []string) ([]*source.SourceFile, error) {
	if len(ids) == 0 {
		return []*source.SourceFile{}, nil
	}
	var files []*source.SourceFile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&files).Error
	return files, err
}

func (r *sourceFileRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]*source.SourceFile, error) {
	var files []*source.SourceFile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&files).Error
	return files, err
}

func (r *sourceFileRepositoryImpl) ListCompletedByUser(ctx context.Context, userID string, limit int) ([]*source.SourceFile, error) {
	if limit <= 0 {
		limit = 5
	}
	var files []*source.SourceFile
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, source.StatusCompleted).
		Order("created_at DESC").
		Limit(limit).
		Find(&files).Error
	return files, err
}

func (r *sourceFileRepositoryImpl) UpdateStatus(ctx context.Context, id string, status string, traceback string) error {
	updates := map[string]any{
		"status":     status,
		"traceback":  traceback,
		"updated_at": time.Now(),
	}
	if status == source.StatusCompleted {
		updates["processed_at"] = sql.NullTime{Time: time.Now(), Valid: true}
	}
	return r.db.WithContext(ctx).
		Model(&source.SourceFile{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *sourceFileRepositoryImpl) UpdateSummary(ctx context.Context, id string, summary string) error {
	return r.db.WithContext(ctx).
		Model(&source.SourceFile{}).
		Where("id = ?", id).
		Updates(map[string]any{"summary": summary, "updated_at": time.Now()}).Error
}

func (r *sourceFileRepositoryImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&source.SourceFile{}).Error
}

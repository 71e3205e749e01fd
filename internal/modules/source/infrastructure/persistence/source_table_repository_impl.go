package persistence

import (
	"context"

	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"

	"gorm.io/gorm"
)

type sourceFileTableRepositoryImpl struct {
	db *gorm.DB
}

func NewSourceFileTableRepository(db *gorm.DB) repository.SourceFileTableRepository {
	return &sourceFileTableRepositoryImpl{db: db}
}

func (r *sourceFileTableRepositoryImpl) BatchCreate(ctx context.Context, tables []*source.SourceFileTable) error {
	if len(tables) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(tables).Error
}

func (r *sourceFileTableRepositoryImpl) ListByFile(ctx context.Context, fileID string) ([]*source.SourceFileTable, error) {
	var tables []*source.SourceFileTable
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Order("id ASC").Find(&tables).Error
	return tables, err
}

func (r *sourceFileTableRepositoryImpl) ListByFiles(ctx context.Context, fileIDs []string) ([]*source.SourceFileTable, error) {
	if len(fileIDs) == 0 {
		return []*source.SourceFileTable{}, nil
	}
	var tables []*source.SourceFileTable
	err := r.db.WithContext(ctx).Where("file_id IN ?", fileIDs).Order("id ASC").Find(&tables).Error
	return tables, err
}

func (r *sourceFileTableRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]*source.SourceFileTable, error) {
	var tables []*source.SourceFileTable
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&tables).Error
	return tables, err
}

func (r *sourceFileTableRepositoryImpl) DeleteByFile(ctx context.Context, fileID string) error {
	return r.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&source.SourceFileTable{}).Error
}

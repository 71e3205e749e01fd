package persistence

import (
	"context"
	"errors"

	"RAGLink/internal/modules/user/domain/repository"
	"RAGLink/internal/modules/user/domain/user"

	"gorm.io/gorm"
)

type userInfoRepositoryImpl struct {
	db *gorm.DB
}

func NewUserInfoRepository(db *gorm.DB) repository.UserInfoRepository {
	return &userInfoRepositoryImpl{db: db}
}

func (r *userInfoRepositoryImpl) Create(ctx context.Context, u *user.UserInfo) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userInfoRepositoryImpl) GetByUsername(ctx context.Context, username string) (*user.UserInfo, error) {
	var u user.UserInfo
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userInfoRepositoryImpl) GetByUUID(ctx context.Context, uuid string) (*user.UserInfo, error) {
	var u user.UserInfo
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

package repository

import (
	"context"

	"RAGLink/internal/modules/user/domain/user"
)

// UserInfoRepository 用户仓储
type UserInfoRepository interface {
	Create(ctx context.Context, u *user.UserInfo) error
	GetByUsername(ctx context.Context, username string) (*user.UserInfo, error)
	GetByUUID(ctx context.Context, uuid string) (*user.UserInfo, error)
}

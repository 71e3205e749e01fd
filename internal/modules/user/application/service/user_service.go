package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"RAGLink/internal/modules/user/application/dto/request"
	"RAGLink/internal/modules/user/application/dto/respond"
	"RAGLink/internal/modules/user/domain/repository"
	"RAGLink/internal/modules/user/domain/user"
	"RAGLink/pkg/util"
	"RAGLink/pkg/util/myjwt"
	"RAGLink/pkg/xerr"
	"RAGLink/pkg/zlog"

	"go.uber.org/zap"
)

var (
	ErrUserExists    = xerr.New(xerr.BadRequest, "用户已存在")
	ErrBadCredential = xerr.New(xerr.Unauthorized, "用户名或密码错误")
)

// UserInfoService 用户应用服务
type UserInfoService interface {
	Register(ctx context.Context, req *request.RegisterRequest) (*respond.RegisterRespond, error)
	Login(ctx context.Context, req *request.LoginRequest) (*respond.LoginRespond, error)
}

type userInfoServiceImpl struct {
	repo repository.UserInfoRepository
}

func NewUserInfoService(repo repository.UserInfoRepository) UserInfoService {
	return &userInfoServiceImpl{repo: repo}
}

func (s *userInfoServiceImpl) Register(ctx context.Context, req *request.RegisterRequest) (*respond.RegisterRespond, error) {
	username := strings.TrimSpace(req.Username)

	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		nickname = username
	}
	newUser := &user.UserInfo{
		Uuid:     util.GenerateUUID(),
		Username: username,
		Nickname: nickname,
		Password: hashPassword(req.Password),
	}
	if err := s.repo.Create(ctx, newUser); err != nil {
		zlog.Error("create user failed", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	return &respond.RegisterRespond{
		Uuid:     newUser.Uuid,
		Username: newUser.Username,
		Nickname: newUser.Nickname,
	}, nil
}

func (s *userInfoServiceImpl) Login(ctx context.Context, req *request.LoginRequest) (*respond.LoginRespond, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, err
	}
	if u == nil || u.Password != hashPassword(req.Password) {
		return nil, ErrBadCredential
	}

	token, err := myjwt.GenerateToken(u.Uuid, u.Username)
	if err != nil {
		zlog.Error("generate token failed", zap.String("username", u.Username), zap.Error(err))
		return nil, err
	}

	return &respond.LoginRespond{
		Uuid:     u.Uuid,
		Username: u.Username,
		Nickname: u.Nickname,
		Token:    token,
	}, nil
}

func hashPassword(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

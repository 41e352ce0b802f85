// Package auth はトークン認証とパスワード検証を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/filesman/internal/model"
	"github.com/hitoshi/filesman/internal/repository"
)

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenCache
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenCache) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// Connect はメールアドレスとパスワードを検証し、トークンを発行する。
// 認証に失敗した場合は理由を問わずUnauthorizedを返す。
func (s *Service) Connect(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(password, user.PasswordHash) {
		slog.Info("connect rejected", slog.String("reason", "invalid credentials"))
		return "", model.NewUnauthorizedError()
	}

	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user connected", slog.Int64("user_id", user.ID))
	return token, nil
}

// Disconnect はトークンを無効化する。
func (s *Service) Disconnect(ctx context.Context, token string) error {
	if token == "" {
		return model.NewUnauthorizedError()
	}
	if err := s.tokens.Revoke(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ResolveToken はトークンに紐付くユーザーIDを返す。
// 認可ミドルウェアから利用される。
func (s *Service) ResolveToken(ctx context.Context, token string) (int64, bool, error) {
	return s.tokens.Resolve(ctx, token)
}

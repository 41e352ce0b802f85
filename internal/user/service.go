// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/filesman/internal/auth"
	"github.com/hitoshi/filesman/internal/model"
	"github.com/hitoshi/filesman/internal/repository"
)

// JobKindWelcome は登録歓迎ジョブの種別名。
const JobKindWelcome = "welcome"

// Enqueuer はジョブ投入のインターフェース。
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any) (string, error)
}

// Service はユーザー管理のサービス層。
// 登録と現在のユーザー取得のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	jobs     Enqueuer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, jobs Enqueuer) *Service {
	return &Service{
		userRepo: userRepo,
		jobs:     jobs,
	}
}

// Register はユーザーを登録する。
// 登録後に歓迎ジョブを投入するが、投入の失敗は登録の失敗としない。
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" {
		return nil, model.NewMissingEmailError()
	}
	if password == "" {
		return nil, model.NewMissingPasswordError()
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, model.NewPasswordTooLongError()
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyExistError()
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	u := &model.User{Email: email, PasswordHash: hash}
	if err := s.userRepo.Create(ctx, u); err != nil {
		// 同時登録で一意制約に当たった場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyExistError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました", slog.Int64("user_id", u.ID))

	if s.jobs != nil {
		if _, err := s.jobs.Enqueue(ctx, JobKindWelcome, model.WelcomeJob{UserID: u.ID}); err != nil {
			slog.Error("歓迎ジョブの投入に失敗しました",
				slog.Int64("user_id", u.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return u, nil
}

// Me は現在のユーザーを返す。
// トークンが有効でもユーザーが存在しない場合はUnauthorizedを返す。
func (s *Service) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUnauthorizedError()
	}
	return u, nil
}

// Count は登録ユーザー数を返す。
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.userRepo.Count(ctx)
}

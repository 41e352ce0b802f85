// Package welcome は新規登録ユーザーへの歓迎処理ワーカーを提供する。
package welcome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/filesman/internal/model"
	"github.com/hitoshi/filesman/internal/queue"
)

var (
	// ErrMissingUserID はジョブにuserIdがないことを表す。
	ErrMissingUserID = errors.New("missing userId")
	// ErrUserNotFound は対象ユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("user not found")
)

// UserFinder はユーザー取得のインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// Worker は歓迎ジョブを処理する。
type Worker struct {
	users  UserFinder
	logger *slog.Logger
}

// NewWorker はWorkerを生成する。
func NewWorker(users UserFinder, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{users: users, logger: logger}
}

// Handle はキューから受け取ったジョブを処理する。
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var payload model.WelcomeJob
	if err := job.Decode(&payload); err != nil {
		return err
	}

	if payload.UserID == 0 {
		return queue.Permanent(ErrMissingUserID)
	}

	u, err := w.users.FindByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return queue.Permanent(ErrUserNotFound)
	}

	w.logger.Info(fmt.Sprintf("Welcome %s!", u.Email),
		slog.Int64("user_id", u.ID),
		slog.String("job_id", job.ID),
	)
	return nil
}

var _ queue.Handler = (*Worker)(nil)

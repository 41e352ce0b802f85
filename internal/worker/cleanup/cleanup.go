// Package cleanup は失敗ジョブの保持件数を制限する定期ジョブを提供する。
// 失敗リストは調査用に残すが、無制限に増えないよう日次で古いものから削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxFailed は失敗リストごとに保持する既定の件数。
const DefaultMaxFailed = 1000

// FailedTrimmer は失敗リストを切り詰めるインターフェース。queue.Queueが実装する。
type FailedTrimmer interface {
	Name() string
	TrimFailed(ctx context.Context, keep int) (int64, error)
}

// CleanupJob は失敗ジョブの保持件数を制限するバッチジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	queues    []FailedTrimmer
	logger    *slog.Logger
	MaxFailed int // キューごとの失敗ジョブの保持件数（デフォルト: 1000）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(logger *slog.Logger, queues ...FailedTrimmer) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		queues:    queues,
		logger:    logger,
		MaxFailed: DefaultMaxFailed,
	}
}

// Run は全キューの失敗リストをMaxFailed件まで切り詰める。
// 一部のキューで失敗しても残りのキューは処理を続け、エラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var errs []error
	var total int64
	for _, q := range j.queues {
		removed, err := q.TrimFailed(ctx, j.MaxFailed)
		if err != nil {
			j.logger.Error("失敗ジョブのクリーンアップに失敗しました",
				slog.String("queue", q.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("queue %s: %w", q.Name(), err))
			continue
		}
		total += removed
	}

	j.logger.Info("失敗ジョブのクリーンアップが完了しました",
		slog.Int64("deleted_count", total),
		slog.Int("max_failed", j.MaxFailed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return errors.Join(errs...)
}

// Start は起動直後に1回実行し、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

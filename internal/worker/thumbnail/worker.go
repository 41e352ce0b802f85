// Package thumbnail は画像ファイルのサムネイル生成ワーカーを提供する。
//
// ジョブの状態遷移: 受信 → 検証 → 取得 → デコード → 縮小(×3) → 完了。
// 検証、取得、デコードで失敗した場合は恒久的な失敗とし、
// 縮小や書き込みの失敗はキューの再試行ポリシーに委ねる。
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/filesman/internal/model"
	"github.com/hitoshi/filesman/internal/queue"
	"github.com/hitoshi/filesman/internal/storage"
)

// Widths は生成するサムネイルの幅（ピクセル）。
var Widths = []int{500, 250, 100}

var (
	// ErrMissingFileID はジョブにfileIdがないことを表す。
	ErrMissingFileID = errors.New("missing fileId")
	// ErrMissingUserID はジョブにuserIdがないことを表す。
	ErrMissingUserID = errors.New("missing userId")
	// ErrFileNotFound は対象ファイルが存在しないことを表す。
	ErrFileNotFound = errors.New("file not found")
)

// FileFinder は所有者を条件にファイルを取得するインターフェース。
type FileFinder interface {
	FindByIDAndUser(ctx context.Context, id, userID int64) (*model.File, error)
}

// Recorder はサムネイル生成数の記録先。
type Recorder interface {
	RecordThumbnailsGenerated(count int)
}

// Worker はサムネイル生成ジョブを処理する。queue.Handlerを実装する。
type Worker struct {
	files    FileFinder
	store    storage.Store
	logger   *slog.Logger
	recorder Recorder
}

// NewWorker はWorkerを生成する。recorderはnilでもよい。
func NewWorker(files FileFinder, store storage.Store, logger *slog.Logger, recorder Recorder) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		files:    files,
		store:    store,
		logger:   logger,
		recorder: recorder,
	}
}

// Handle はキューから受け取ったジョブを処理する。
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var payload model.ThumbnailJob
	if err := job.Decode(&payload); err != nil {
		return err
	}
	return w.Process(ctx, payload)
}

// Process はジョブのペイロードに対してサムネイルを生成する。
// 3つの幅の生成は並行に行い、全て成功した場合のみ完了とする。
func (w *Worker) Process(ctx context.Context, job model.ThumbnailJob) error {
	start := time.Now()

	if job.FileID == 0 {
		return queue.Permanent(ErrMissingFileID)
	}
	if job.UserID == 0 {
		return queue.Permanent(ErrMissingUserID)
	}

	f, err := w.files.FindByIDAndUser(ctx, job.FileID, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}
	if f == nil {
		return queue.Permanent(ErrFileNotFound)
	}

	original, err := w.store.Read(ctx, f.LocalPath)
	if errors.Is(err, storage.ErrNotFound) {
		return queue.Permanent(fmt.Errorf("original content missing: %w", err))
	}
	if err != nil {
		return fmt.Errorf("failed to read original: %w", err)
	}

	// 元画像のデコードは1回だけ行い、各幅の縮小で共有する
	src, err := Decode(original)
	if err != nil {
		w.logger.Warn("元画像をデコードできません",
			slog.Int64("file_id", f.ID),
			slog.String("error", err.Error()),
		)
		return queue.Permanent(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, width := range Widths {
		width := width
		g.Go(func() error {
			thumb, err := src.Resize(width)
			if err != nil {
				return fmt.Errorf("width %d: %w", width, err)
			}
			if err := w.store.Write(gctx, f.ThumbnailPath(width), thumb); err != nil {
				return fmt.Errorf("width %d: %w", width, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.logger.Error("サムネイル生成に失敗しました",
			slog.Int64("file_id", f.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	if w.recorder != nil {
		w.recorder.RecordThumbnailsGenerated(len(Widths))
	}
	w.logger.Info("サムネイルを生成しました",
		slog.Int64("file_id", f.ID),
		slog.String("path", f.LocalPath),
		slog.Any("widths", Widths),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

var _ queue.Handler = (*Worker)(nil)

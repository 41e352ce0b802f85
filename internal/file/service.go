// Package file はファイルのアップロードと参照に関するドメインロジックを提供する。
package file

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/filesman/internal/model"
	"github.com/hitoshi/filesman/internal/repository"
	"github.com/hitoshi/filesman/internal/storage"
)

// PageSize は一覧取得の1ページあたりの件数。
const PageSize = 20

// JobKindThumbnail はサムネイル生成ジョブの種別名。
const JobKindThumbnail = "thumbnail"

// Enqueuer はジョブ投入のインターフェース。
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any) (string, error)
}

// Recorder はファイル作成の記録先。
type Recorder interface {
	RecordFileCreated(fileType string)
}

// CreateInput はファイル作成の入力。
// ParentIDは10進数の文字列で、空文字列と"0"はルートを表す。
type CreateInput struct {
	Name     string
	Type     string
	ParentID string
	IsPublic bool
	Data     string
}

// Service はファイル管理のサービス層。
type Service struct {
	fileRepo repository.FileRepository
	store    storage.Store
	jobs     Enqueuer
	recorder Recorder
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(fileRepo repository.FileRepository, store storage.Store, jobs Enqueuer, recorder Recorder) *Service {
	return &Service{
		fileRepo: fileRepo,
		store:    store,
		jobs:     jobs,
		recorder: recorder,
	}
}

// ParseID はIDの文字列表現を解釈する。正の整数でなければfalseを返す。
func ParseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Create はフォルダまたはファイルを作成する。
// 検証は name → type → data → parent の順に行い、最初の失敗を返す。
// フォルダはメタデータのみを保存し、それ以外は本体をストアに書き込んでからメタデータを保存する。
// 画像の場合はサムネイル生成ジョブを投入する。
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*model.File, error) {
	if in.Name == "" {
		return nil, model.NewMissingNameError()
	}
	fileType, ok := model.ParseFileType(in.Type)
	if !ok {
		return nil, model.NewMissingTypeError()
	}
	if fileType != model.FileTypeFolder && in.Data == "" {
		return nil, model.NewMissingDataError()
	}

	parentID, err := s.resolveParent(ctx, userID, in.ParentID)
	if err != nil {
		return nil, err
	}

	f := &model.File{
		UserID:   userID,
		Name:     in.Name,
		Type:     fileType,
		ParentID: parentID,
		IsPublic: in.IsPublic,
	}

	if fileType == model.FileTypeFolder {
		if err := s.fileRepo.Create(ctx, f); err != nil {
			return nil, fmt.Errorf("フォルダの作成に失敗しました: %w", err)
		}
		s.recordCreated(f)
		return f, nil
	}

	data, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return nil, model.NewInvalidDataError()
	}

	f.LocalPath = s.store.Path(uuid.NewString())
	if err := s.store.Write(ctx, f.LocalPath, data); err != nil {
		return nil, fmt.Errorf("ファイル本体の書き込みに失敗しました: %w", err)
	}

	if err := s.fileRepo.Create(ctx, f); err != nil {
		// メタデータのないファイル本体を残さない
		if delErr := s.store.Delete(context.WithoutCancel(ctx), f.LocalPath); delErr != nil {
			slog.Error("孤立したファイル本体の削除に失敗しました",
				slog.String("path", f.LocalPath),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("ファイルメタデータの作成に失敗しました: %w", err)
	}
	s.recordCreated(f)

	if fileType == model.FileTypeImage {
		s.enqueueThumbnail(ctx, f)
	}

	return f, nil
}

// resolveParent は親IDを解釈し、親が存在するフォルダであることを確認する。
func (s *Service) resolveParent(ctx context.Context, userID int64, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return model.RootParentID, nil
	}

	parentID, ok := ParseID(raw)
	if !ok {
		return 0, model.NewParentNotFoundError()
	}

	parent, err := s.fileRepo.FindByIDAndUser(ctx, parentID, userID)
	if err != nil {
		return 0, fmt.Errorf("親フォルダの取得に失敗しました: %w", err)
	}
	if parent == nil {
		return 0, model.NewParentNotFoundError()
	}
	if !parent.IsFolder() {
		return 0, model.NewParentNotFolderError()
	}
	return parentID, nil
}

// enqueueThumbnail はサムネイル生成ジョブを投入する。
// 投入の失敗はファイル作成の失敗とせず、ログに記録するのみとする。
func (s *Service) enqueueThumbnail(ctx context.Context, f *model.File) {
	jobID, err := s.jobs.Enqueue(ctx, JobKindThumbnail, model.ThumbnailJob{UserID: f.UserID, FileID: f.ID})
	if err != nil {
		slog.Error("サムネイル生成ジョブの投入に失敗しました",
			slog.Int64("file_id", f.ID),
			slog.Int64("user_id", f.UserID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Info("サムネイル生成ジョブを投入しました",
		slog.Int64("file_id", f.ID),
		slog.String("job_id", jobID),
	)
}

func (s *Service) recordCreated(f *model.File) {
	if s.recorder != nil {
		s.recorder.RecordFileCreated(string(f.Type))
	}
}

// Show は所有者が一致するファイルを返す。
// 存在しない場合と他ユーザーの所有の場合は区別せずNotFoundを返す。
func (s *Service) Show(ctx context.Context, userID, fileID int64) (*model.File, error) {
	f, err := s.fileRepo.FindByIDAndUser(ctx, fileID, userID)
	if err != nil {
		return nil, fmt.Errorf("ファイルの取得に失敗しました: %w", err)
	}
	if f == nil {
		return nil, model.NewNotFoundError()
	}
	return f, nil
}

// List はユーザー所有で親IDが一致するファイルを作成順に返す。
// pageは0始まりで、負の値は0として扱う。範囲外のページは空スライスを返す。
func (s *Service) List(ctx context.Context, userID, parentID int64, page int) ([]*model.File, error) {
	if page < 0 {
		page = 0
	}
	files, err := s.fileRepo.ListByUserAndParent(ctx, userID, parentID, PageSize, page*PageSize)
	if err != nil {
		return nil, fmt.Errorf("ファイル一覧の取得に失敗しました: %w", err)
	}
	if files == nil {
		files = []*model.File{}
	}
	return files, nil
}

// Publish はファイルを公開状態にする。
func (s *Service) Publish(ctx context.Context, userID, fileID int64) (*model.File, error) {
	return s.setPublic(ctx, userID, fileID, true)
}

// Unpublish はファイルを非公開状態にする。
func (s *Service) Unpublish(ctx context.Context, userID, fileID int64) (*model.File, error) {
	return s.setPublic(ctx, userID, fileID, false)
}

func (s *Service) setPublic(ctx context.Context, userID, fileID int64, isPublic bool) (*model.File, error) {
	f, err := s.fileRepo.UpdateIsPublic(ctx, fileID, userID, isPublic)
	if err != nil {
		return nil, fmt.Errorf("公開状態の更新に失敗しました: %w", err)
	}
	if f == nil {
		return nil, model.NewNotFoundError()
	}
	return f, nil
}

// Count は登録ファイル数を返す。
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.fileRepo.Count(ctx)
}

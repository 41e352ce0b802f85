// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/filesman/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとcreated_atをuserに設定する。
	// メールアドレスが既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// Count は登録ユーザー数を返す。
	Count(ctx context.Context) (int64, error)
}

// FileRepository はファイルメタデータの永続化インターフェース。
type FileRepository interface {
	// FindByIDAndUser は指定IDかつ指定ユーザー所有のファイルを取得する。
	// 見つからない場合、または所有者が異なる場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID int64) (*model.File, error)

	// Create はファイルを作成し、採番されたIDとcreated_atをfileに設定する。
	Create(ctx context.Context, file *model.File) error

	// ListByUserAndParent はユーザーと親IDで絞り込んだファイルをID昇順で返す。
	ListByUserAndParent(ctx context.Context, userID, parentID int64, limit, offset int) ([]*model.File, error)

	// UpdateIsPublic は公開フラグを更新し、更新後のレコードを返す。
	// 該当レコードがない場合はnilを返す。
	UpdateIsPublic(ctx context.Context, id, userID int64, isPublic bool) (*model.File, error)

	// Count は登録ファイル数を返す。
	Count(ctx context.Context) (int64, error)
}

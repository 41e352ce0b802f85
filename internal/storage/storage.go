// Package storage はファイル本体を保存するコンテンツストアを提供する。
package storage

import (
	"context"
	"errors"
)

// ErrNotFound は指定パスにコンテンツが存在しないことを表す。
var ErrNotFound = errors.New("content not found")

// Store はファイル本体の保存先。
// パスはPathで組み立てたものをそのままメタデータに記録し、以降の読み書きに使用する。
type Store interface {
	// Path は名前から保存先パスを組み立てる。
	Path(name string) string
	// Write はパスにデータを書き込む。既存の内容は上書きされる。
	Write(ctx context.Context, path string, data []byte) error
	// Read はパスの内容を読み込む。存在しない場合はErrNotFoundを返す。
	Read(ctx context.Context, path string) ([]byte, error)
	// Delete はパスの内容を削除する。存在しない場合も成功とする。
	Delete(ctx context.Context, path string) error
}

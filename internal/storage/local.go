package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore はローカルファイルシステムを使用するStore。
type LocalStore struct {
	root string
}

// NewLocalStore はLocalStoreを生成する。rootは最初の書き込み時に作成される。
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Root はルートディレクトリを返す。
func (s *LocalStore) Root() string {
	return s.root
}

// Path はルート直下のパスを返す。
func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Write はパスにデータを書き込む。親ディレクトリがなければ作成する。
func (s *LocalStore) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Read はパスの内容を読み込む。
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Delete はパスのファイルを削除する。
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)

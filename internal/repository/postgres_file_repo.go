package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/filesman/internal/model"
)

const fileColumns = `id, user_id, name, type, parent_id, is_public, local_path, created_at`

// PostgresFileRepo はPostgreSQLを使用したファイルメタデータリポジトリ。
type PostgresFileRepo struct {
	db *sql.DB
}

// NewPostgresFileRepo はPostgresFileRepoを生成する。
func NewPostgresFileRepo(db *sql.DB) *PostgresFileRepo {
	return &PostgresFileRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner) (*model.File, error) {
	f := &model.File{}
	var fileType string
	var localPath sql.NullString
	if err := s.Scan(&f.ID, &f.UserID, &f.Name, &fileType, &f.ParentID, &f.IsPublic, &localPath, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Type = model.FileType(fileType)
	f.LocalPath = nullStringValue(localPath)
	return f, nil
}

// FindByIDAndUser は所有者を条件に含めてファイルを取得する。
func (r *PostgresFileRepo) FindByIDAndUser(ctx context.Context, id, userID int64) (*model.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1 AND user_id = $2`, id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file by ID and user: %w", err)
	}
	return f, nil
}

// Create はファイルを作成する。
func (r *PostgresFileRepo) Create(ctx context.Context, file *model.File) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO files (user_id, name, type, parent_id, is_public, local_path)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		file.UserID, file.Name, string(file.Type), file.ParentID, file.IsPublic, nullString(file.LocalPath),
	).Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// ListByUserAndParent はユーザーと親IDで絞り込んだファイルをID昇順で返す。
// 範囲外のoffsetの場合は空スライスを返す。
func (r *PostgresFileRepo) ListByUserAndParent(ctx context.Context, userID, parentID int64, limit, offset int) ([]*model.File, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE user_id = $1 AND parent_id = $2
		 ORDER BY id
		 LIMIT $3 OFFSET $4`,
		userID, parentID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := make([]*model.File, 0, limit)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}
	return files, nil
}

// UpdateIsPublic は公開フラグを更新し、更新後のレコードを返す。
func (r *PostgresFileRepo) UpdateIsPublic(ctx context.Context, id, userID int64, isPublic bool) (*model.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx,
		`UPDATE files SET is_public = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+fileColumns,
		id, userID, isPublic,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update file visibility: %w", err)
	}
	return f, nil
}

// Count は登録ファイル数を返す。
func (r *PostgresFileRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ FileRepository = (*PostgresFileRepo)(nil)

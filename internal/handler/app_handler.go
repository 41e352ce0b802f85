package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// RedisHealth はRedisの疎通確認インターフェース。
type RedisHealth interface {
	IsAlive(ctx context.Context) bool
}

// DBHealth はDBの疎通確認インターフェース。*sql.DBが実装する。
type DBHealth interface {
	PingContext(ctx context.Context) error
}

// Counter は件数を返すインターフェース。
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// AppHandler はサービスの稼働状態と統計を返すHTTPハンドラー。
type AppHandler struct {
	redis RedisHealth
	db    DBHealth
	users Counter
	files Counter
}

// NewAppHandler はAppHandlerを生成する。
func NewAppHandler(redis RedisHealth, db DBHealth, users, files Counter) *AppHandler {
	return &AppHandler{
		redis: redis,
		db:    db,
		users: users,
		files: files,
	}
}

type statusResponse struct {
	Redis bool `json:"redis"`
	DB    bool `json:"db"`
}

type statsResponse struct {
	Users int64 `json:"users"`
	Files int64 `json:"files"`
}

// Status はRedisとDBの疎通状態を返す。
// GET /status
func (h *AppHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	writeJSON(w, http.StatusOK, statusResponse{
		Redis: h.redis.IsAlive(ctx),
		DB:    h.db.PingContext(ctx) == nil,
	})
}

// Stats はユーザー数とファイル数を返す。
// GET /stats
func (h *AppHandler) Stats(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Count(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	files, err := h.files.Count(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Debug("stats requested", slog.Int64("users", users), slog.Int64("files", files))
	writeJSON(w, http.StatusOK, statsResponse{Users: users, Files: files})
}

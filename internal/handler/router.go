package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/filesman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenResolver     middleware.TokenResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder // nilの場合はステータスを記録しない
	MetricsHandler    http.Handler              // nilの場合は /metrics を公開しない

	// ハンドラー依存
	AuthService    AuthServiceInterface
	UserService    UserServiceInterface
	FileService    FileServiceInterface
	MaxUploadBytes int64

	// 稼働状態と統計
	RedisHealth RedisHealth
	DBHealth    DBHealth
	UserCounter Counter
	FileCounter Counter
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// 認証が必要なルートには Token → RateLimit(General) を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	appHandler := NewAppHandler(deps.RedisHealth, deps.DBHealth, deps.UserCounter, deps.FileCounter)
	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	fileHandler := NewFileHandler(deps.FileService, deps.MaxUploadBytes)

	// --- 認証不要のルート ---
	r.Get("/status", appHandler.Status)
	r.Get("/stats", appHandler.Stats)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/users", userHandler.Register)
	r.With(deps.RateLimiter.ConnectMiddleware()).Get("/connect", authHandler.Connect)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTokenMiddleware(deps.TokenResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/disconnect", authHandler.Disconnect)
		r.Get("/users/me", userHandler.Me)

		r.Route("/files", func(r chi.Router) {
			r.Post("/", fileHandler.Create)
			r.Get("/", fileHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", fileHandler.Show)
				r.Put("/publish", fileHandler.Publish)
				r.Put("/unpublish", fileHandler.Unpublish)
			})
		})
	})

	return r
}

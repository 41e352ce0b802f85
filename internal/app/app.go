// Package app はサブコマンドごとの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/filesman/internal/auth"
	"github.com/hitoshi/filesman/internal/cache"
	"github.com/hitoshi/filesman/internal/config"
	"github.com/hitoshi/filesman/internal/database"
	"github.com/hitoshi/filesman/internal/file"
	"github.com/hitoshi/filesman/internal/handler"
	"github.com/hitoshi/filesman/internal/logger"
	"github.com/hitoshi/filesman/internal/metrics"
	"github.com/hitoshi/filesman/internal/middleware"
	"github.com/hitoshi/filesman/internal/queue"
	"github.com/hitoshi/filesman/internal/repository"
	"github.com/hitoshi/filesman/internal/storage"
	"github.com/hitoshi/filesman/internal/user"
	"github.com/hitoshi/filesman/internal/worker/cleanup"
	"github.com/hitoshi/filesman/internal/worker/thumbnail"
	"github.com/hitoshi/filesman/internal/worker/welcome"
)

// キュー名
const (
	FileQueueName = "fileQueue"
	UserQueueName = "userQueue"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "5000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("storage_driver", cfg.StorageDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// openRedis はRedisクライアントを生成する。
// 起動時に疎通できなくてもエラーとせず、/status で状態を公開する。
func openRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	client := cache.NewClient(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis is not reachable at startup",
			slog.String("addr", cfg.RedisAddr),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
	}
	return client
}

// newStore は設定されたドライバのコンテンツストアを生成する。
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMinIO:
		store, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("failed to create minio store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
		}
		return store, nil
	default:
		return storage.NewLocalStore(cfg.FolderPath), nil
	}
}

// newRegistry はプロセスとGoランタイムの標準メトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. Redis接続とキュー
	rdb := openRedis(ctx, cfg)
	defer rdb.Close()

	kv := cache.NewStore(rdb)
	fileQueue := queue.New(rdb, FileQueueName)
	userQueue := queue.New(rdb, UserQueueName)

	// 3. コンテンツストア
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	// 4. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 5. リポジトリとドメインサービスの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	fileRepo := repository.NewPostgresFileRepo(db)

	authService := auth.NewService(userRepo, auth.NewTokenCache(kv, cfg.TokenTTL))
	userService := user.NewService(userRepo, userQueue)
	fileService := file.NewService(fileRepo, store, fileQueue, collector)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitConnect))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		TokenResolver:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		MetricsHandler:    metrics.Handler(reg),

		AuthService:    authService,
		UserService:    userService,
		FileService:    fileService,
		MaxUploadBytes: cfg.MaxUploadBytes,

		RedisHealth: kv,
		DBHealth:    db,
		UserCounter: userService,
		FileCounter: fileService,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// fileQueueとuserQueueのコンシューマを起動し、ctxがキャンセルされるまで処理を続ける。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. Redis接続とキュー
	rdb := openRedis(ctx, cfg)
	defer rdb.Close()

	fileQueue := queue.New(rdb, FileQueueName)
	userQueue := queue.New(rdb, UserQueueName)

	// 3. コンテンツストア
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	// 4. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 5. ワーカーの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	fileRepo := repository.NewPostgresFileRepo(db)

	// 停止したインスタンスの処理中ジョブは各コンシューマがハートビートを基に回収する
	consumerCfg := queue.ConsumerConfig{
		Concurrency: cfg.WorkerConcurrency,
		MaxAttempts: cfg.JobMaxAttempts,
		BackoffBase: cfg.JobBackoffBase,
		BackoffMax:  cfg.JobBackoffMax,
	}

	thumbnailWorker := thumbnail.NewWorker(fileRepo, store, slog.Default(), collector)
	welcomeWorker := welcome.NewWorker(userRepo, slog.Default())

	fileConsumer := queue.NewConsumer(fileQueue, thumbnailWorker, consumerCfg, slog.Default(), collector)
	userConsumer := queue.NewConsumer(userQueue, welcomeWorker, consumerCfg, slog.Default(), collector)

	cleanupJob := cleanup.NewCleanupJob(slog.Default(), fileQueue, userQueue)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("worker starting",
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.Int("max_attempts", cfg.JobMaxAttempts),
		slog.String("metrics_addr", metricsServer.Addr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fileConsumer.Run(gctx) })
	g.Go(func() error { return userConsumer.Run(gctx) })
	g.Go(func() error { return serveUntilDone(gctx, metricsServer, "worker metrics server") })
	g.Go(func() error {
		cleanupJob.Start(gctx, 24*time.Hour)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// serveUntilDone はHTTPサーバーを起動し、ctxがキャンセルされたらグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /status エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkStatus(fmt.Sprintf("http://localhost:%s/status", port))
}

func checkStatus(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

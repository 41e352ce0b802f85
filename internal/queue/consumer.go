package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Handler はジョブを処理するインターフェース。
// nilを返すとジョブは完了となる。Permanentでラップしたエラーは再試行されない。
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc は関数をHandlerとして扱うためのアダプタ。
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle はf(ctx, job)を呼び出す。
func (f HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Recorder はジョブ処理結果の記録先。metrics.Collectorが実装する。
type Recorder interface {
	RecordJobProcessed(queue string)
	RecordJobRetried(queue string)
	RecordJobFailed(queue string, reason string)
	RecordJobLatency(queue string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordJobProcessed(string) {}
func (nopRecorder) RecordJobRetried(string) {}
func (nopRecorder) RecordJobFailed(string, string) {}
func (nopRecorder) RecordJobLatency(string, time.Duration) {}

// 失敗理由のラベル。
const (
	failReasonPermanent = "permanent"
	failReasonExhausted = "exhausted"
	failReasonPoison    = "poison"
)

// promoteBatchSize は1回の昇格処理で移動する遅延ジョブの最大数。
const promoteBatchSize = 100

// promoteScript は再投入時刻を過ぎた遅延ジョブを投入済みリストへ原子的に移す。
var promoteScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('LPUSH', KEYS[2], item)
end
return #items
`)

// ハートビートの既定値。
const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultStaleAfter        = time.Minute
)

// ConsumerConfig はConsumerの設定。ゼロ値の項目には既定値が使われる。
type ConsumerConfig struct {
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// PollTimeout はジョブ待ちのブロック時間。Redisの制約により1秒未満は1秒として扱われる。
	PollTimeout time.Duration
	// InstanceID は処理中リストを識別するID。空の場合はUUIDを採番する。
	InstanceID string
	// HeartbeatInterval はハートビートと停止インスタンス回収の間隔。
	HeartbeatInterval time.Duration
	// StaleAfter はハートビートが途絶えたインスタンスを停止とみなすまでの時間。
	// HeartbeatIntervalより十分長くすること。
	StaleAfter time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	return c
}

// Consumer はキューからジョブを取り出してHandlerに渡す。
// 失敗したジョブは指数バックオフで再試行し、上限に達したものは失敗リストへ移す。
type Consumer struct {
	queue      *Queue
	handler    Handler
	cfg        ConsumerConfig
	processing string
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
}

// NewConsumer はConsumerを生成する。recorderがnilの場合は記録しない。
func NewConsumer(q *Queue, handler Handler, cfg ConsumerConfig, logger *slog.Logger, recorder Recorder) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	cfg = cfg.withDefaults()
	return &Consumer{
		queue:      q,
		handler:    handler,
		cfg:        cfg,
		processing: q.processingKey(cfg.InstanceID),
		logger:     logger,
		recorder:   recorder,
		now:        time.Now,
	}
}

// InstanceID はこのコンシューマのインスタンスIDを返す。
func (c *Consumer) InstanceID() string {
	return c.cfg.InstanceID
}

// Heartbeat は現在時刻でインスタンスの稼働を記録する。
func (c *Consumer) Heartbeat(ctx context.Context) error {
	return c.queue.Heartbeat(ctx, c.cfg.InstanceID, c.now())
}

// RecoverStale はStaleAfterを超えてハートビートのないインスタンスの処理中ジョブを回収する。
func (c *Consumer) RecoverStale(ctx context.Context) (int, error) {
	return c.queue.RecoverStale(ctx, c.now().Add(-c.cfg.StaleAfter))
}

// Run はコンテキストがキャンセルされるまでジョブを処理する。
// Concurrency個のゴルーチンが並行して取り出しを行う。
// 停止時はインスタンスの登録を解除し、残った処理中ジョブを投入済みリストへ戻す。
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("ジョブコンシューマを開始しました",
		slog.String("queue", c.queue.Name()),
		slog.String("instance", c.cfg.InstanceID),
		slog.Int("concurrency", c.cfg.Concurrency),
		slog.Int("max_attempts", c.cfg.MaxAttempts),
	)

	c.maintain(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.maintain(ctx)
			}
		}
	}()
	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.loop(ctx)
		}()
	}
	wg.Wait()

	n, err := c.queue.Unregister(context.WithoutCancel(ctx), c.cfg.InstanceID)
	if err != nil {
		c.logger.Error("コンシューマの登録解除に失敗しました",
			slog.String("queue", c.queue.Name()),
			slog.String("instance", c.cfg.InstanceID),
			slog.String("error", err.Error()),
		)
	}
	c.logger.Info("ジョブコンシューマを停止しました",
		slog.String("queue", c.queue.Name()),
		slog.Int("requeued", n),
	)
	return nil
}

// maintain はハートビートを記録し、停止したインスタンスのジョブを回収する。
func (c *Consumer) maintain(ctx context.Context) {
	if err := c.Heartbeat(ctx); err != nil {
		if ctx.Err() == nil {
			c.logger.Error("ハートビートの記録に失敗しました",
				slog.String("queue", c.queue.Name()),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	n, err := c.RecoverStale(ctx)
	if err != nil && ctx.Err() == nil {
		c.logger.Error("停止インスタンスのジョブ回収に失敗しました",
			slog.String("queue", c.queue.Name()),
			slog.String("error", err.Error()),
		)
	}
	if n > 0 {
		c.logger.Info("停止インスタンスのジョブを回収しました",
			slog.String("queue", c.queue.Name()),
			slog.Int("count", n),
		)
	}
}

func (c *Consumer) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := c.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("遅延ジョブの再投入に失敗しました",
				slog.String("queue", c.queue.Name()),
				slog.String("error", err.Error()),
			)
		}

		if _, err := c.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("ジョブの取り出しに失敗しました",
				slog.String("queue", c.queue.Name()),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// PromoteDelayed は再投入時刻を過ぎた遅延ジョブを投入済みリストへ戻し、移動件数を返す。
func (c *Consumer) PromoteDelayed(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, c.queue.client,
		[]string{c.queue.delayedKey(), c.queue.readyKey()},
		strconv.FormatInt(c.now().UnixMilli(), 10), promoteBatchSize,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	return n, nil
}

// ProcessOne はジョブを1件取り出して処理する。
// PollTimeout内にジョブがなければfalseを返す。
func (c *Consumer) ProcessOne(ctx context.Context) (bool, error) {
	raw, err := c.queue.client.BLMove(ctx,
		c.queue.readyKey(), c.processing, "RIGHT", "LEFT", c.cfg.PollTimeout,
	).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// 後始末はシャットダウン中でも完了させる
	settleCtx := context.WithoutCancel(ctx)

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.logger.Warn("デコードできないジョブを失敗リストへ移します",
			slog.String("queue", c.queue.Name()),
			slog.String("error", err.Error()),
		)
		c.recorder.RecordJobFailed(c.queue.Name(), failReasonPoison)
		return true, c.moveToFailed(settleCtx, raw, raw)
	}

	start := c.now()
	herr := c.invoke(ctx, &job)
	c.recorder.RecordJobLatency(c.queue.Name(), c.now().Sub(start))

	if herr == nil {
		c.recorder.RecordJobProcessed(c.queue.Name())
		c.logger.Debug("ジョブが完了しました",
			slog.String("queue", c.queue.Name()),
			slog.String("job_id", job.ID),
			slog.String("kind", job.Kind),
		)
		return true, c.ack(settleCtx, raw)
	}

	// シャットダウンによる中断は試行回数に数えず、そのまま戻す
	if ctx.Err() != nil && !IsPermanent(herr) {
		return true, c.requeue(settleCtx, raw)
	}

	job.Attempts++
	job.LastError = herr.Error()
	updated, err := json.Marshal(job)
	if err != nil {
		return true, fmt.Errorf("failed to encode job: %w", err)
	}

	if IsPermanent(herr) || job.Attempts >= c.cfg.MaxAttempts {
		reason := failReasonExhausted
		if IsPermanent(herr) {
			reason = failReasonPermanent
		}
		c.recorder.RecordJobFailed(c.queue.Name(), reason)
		c.logger.Warn("ジョブが失敗しました",
			slog.String("queue", c.queue.Name()),
			slog.String("job_id", job.ID),
			slog.String("kind", job.Kind),
			slog.Int("attempts", job.Attempts),
			slog.String("reason", reason),
			slog.String("error", herr.Error()),
		)
		return true, c.moveToFailed(settleCtx, raw, string(updated))
	}

	delay := CalculateBackoff(job.Attempts, c.cfg.BackoffBase, c.cfg.BackoffMax)
	c.recorder.RecordJobRetried(c.queue.Name())
	c.logger.Info("ジョブを再試行に回します",
		slog.String("queue", c.queue.Name()),
		slog.String("job_id", job.ID),
		slog.String("kind", job.Kind),
		slog.Int("attempts", job.Attempts),
		slog.Duration("delay", delay),
		slog.String("error", herr.Error()),
	)
	return true, c.scheduleRetry(settleCtx, raw, string(updated), c.now().Add(delay))
}

// invoke はハンドラーを呼び出す。panicはエラーとして扱う。
func (c *Consumer) invoke(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler.Handle(ctx, job)
}

func (c *Consumer) ack(ctx context.Context, raw string) error {
	if err := c.queue.client.LRem(ctx, c.processing, 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

func (c *Consumer) requeue(ctx context.Context, raw string) error {
	_, err := c.queue.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, c.processing, 1, raw)
		p.RPush(ctx, c.queue.readyKey(), raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

func (c *Consumer) moveToFailed(ctx context.Context, raw, updated string) error {
	_, err := c.queue.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, c.processing, 1, raw)
		p.LPush(ctx, c.queue.failedKey(), updated)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to move job to failed list: %w", err)
	}
	return nil
}

func (c *Consumer) scheduleRetry(ctx context.Context, raw, updated string, at time.Time) error {
	_, err := c.queue.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, c.processing, 1, raw)
		p.ZAdd(ctx, c.queue.delayedKey(), redis.Z{Score: float64(at.UnixMilli()), Member: updated})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

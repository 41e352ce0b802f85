// Package queue はRedisリストを用いた永続ジョブキューを提供する。
//
// キーの構成:
//
//	queue:<name>             投入済みジョブ（LPUSHで追加、右端から取り出す）
//	queue:<name>:processing:<id>  コンシューマインスタンスごとの処理中ジョブ
//	queue:<name>:consumers        稼働中インスタンス（スコア = 最終ハートビートのUnixミリ秒）
//	queue:<name>:delayed          再試行待ちジョブ（スコア = 再投入可能時刻のUnixミリ秒）
//	queue:<name>:failed           最終的に失敗したジョブ
//
// 処理中リストをインスタンス単位に分けることで、複数のワーカーを同時に動かしても
// 他のインスタンスが処理中のジョブを回収しない。回収はハートビートが途絶えた
// インスタンスに対してのみ行う。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job はキューに格納されるジョブのエンベロープ。
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Attempts   int             `json:"attempts"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	LastError  string          `json:"lastError,omitempty"`
}

// Decode はペイロードをvにデコードする。
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("failed to decode payload: %w", err))
	}
	return nil
}

// Queue は名前付きジョブキュー。
type Queue struct {
	client redis.UniversalClient
	name   string
}

// New はQueueを生成する。
func New(client redis.UniversalClient, name string) *Queue {
	return &Queue{client: client, name: name}
}

// Name はキュー名を返す。
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) readyKey() string     { return "queue:" + q.name }
func (q *Queue) consumersKey() string { return "queue:" + q.name + ":consumers" }
func (q *Queue) delayedKey() string   { return "queue:" + q.name + ":delayed" }
func (q *Queue) failedKey() string    { return "queue:" + q.name + ":failed" }

func (q *Queue) processingKey(instance string) string {
	return "queue:" + q.name + ":processing:" + instance
}

// Enqueue はジョブを投入し、ジョブIDを返す。
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	job := Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}

	if err := q.client.LPush(ctx, q.readyKey(), raw).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

// Stats はキューの各状態のジョブ数。
type Stats struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Failed     int64 `json:"failed"`
}

// Stats はキューの各状態のジョブ数を返す。
// Processingは登録中の全インスタンスの処理中ジョブの合計。
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	instances, err := q.client.ZRange(ctx, q.consumersKey(), 0, -1).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list consumers: %w", err)
	}

	var ready, delayed, failed *redis.IntCmd
	processing := make([]*redis.IntCmd, 0, len(instances))
	_, err = q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		ready = p.LLen(ctx, q.readyKey())
		for _, id := range instances {
			processing = append(processing, p.LLen(ctx, q.processingKey(id)))
		}
		delayed = p.ZCard(ctx, q.delayedKey())
		failed = p.LLen(ctx, q.failedKey())
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	stats := Stats{
		Ready:   ready.Val(),
		Delayed: delayed.Val(),
		Failed:  failed.Val(),
	}
	for _, cmd := range processing {
		stats.Processing += cmd.Val()
	}
	return stats, nil
}

// Heartbeat はインスタンスの稼働をatの時刻で記録する。
func (q *Queue) Heartbeat(ctx context.Context, instance string, at time.Time) error {
	err := q.client.ZAdd(ctx, q.consumersKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: instance,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// Unregister はインスタンスの処理中ジョブを投入済みリストへ戻し、登録を解除する。
// 戻したジョブ数を返す。
func (q *Queue) Unregister(ctx context.Context, instance string) (int, error) {
	n, err := q.requeueProcessing(ctx, instance)
	if err != nil {
		return n, err
	}
	if err := q.client.ZRem(ctx, q.consumersKey(), instance).Err(); err != nil {
		return n, fmt.Errorf("failed to unregister consumer: %w", err)
	}
	return n, nil
}

// RecoverStale は最終ハートビートがstaleBefore以前のインスタンスを登録解除し、
// その処理中ジョブを投入済みリストへ戻す。戻したジョブ数を返す。
func (q *Queue) RecoverStale(ctx context.Context, staleBefore time.Time) (int, error) {
	stale, err := q.client.ZRangeByScore(ctx, q.consumersKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(staleBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list stale consumers: %w", err)
	}

	total := 0
	for _, instance := range stale {
		n, err := q.Unregister(ctx, instance)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// requeueProcessing はインスタンスの処理中リストを投入済みリストの取り出し側へ戻す。
func (q *Queue) requeueProcessing(ctx context.Context, instance string) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(instance), q.readyKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to requeue processing jobs: %w", err)
		}
		n++
	}
}

// TrimFailed は失敗リストを新しい順にkeep件まで切り詰め、削除した件数を返す。
func (q *Queue) TrimFailed(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var length *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		length = p.LLen(ctx, q.failedKey())
		p.LTrim(ctx, q.failedKey(), 0, int64(keep)-1)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to trim failed list: %w", err)
	}
	removed := length.Val() - int64(keep)
	if removed < 0 {
		removed = 0
	}
	return removed, nil
}

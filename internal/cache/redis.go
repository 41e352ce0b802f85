// Package cache はRedisを用いたキーバリューキャッシュを提供する。
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout は死活確認のタイムアウト。
const pingTimeout = 500 * time.Millisecond

// Options はRedis接続設定。
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient はRedisクライアントを生成する。
// redis.NewClientは接続を試行しないため、疎通確認にはPingを使用すること。
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Store はRedis上のキーバリューストア。
// 値は文字列として保存し、有効期限はRedisのTTLに委ねる。
type Store struct {
	client redis.UniversalClient
}

// NewStore はStoreを生成する。
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Get はキーの値を取得する。存在しない場合はokがfalseとなる。
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}
	return val, true, nil
}

// Set はキーに値を設定する。ttlが0以下の場合は無期限となる。
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Del はキーを削除する。存在しないキーの削除は成功として扱う。
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// IsAlive はRedisへ疎通できるかを返す。
func (s *Store) IsAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// tokenKeyPrefix はトークンをキャッシュに保存する際のキー接頭辞。
const tokenKeyPrefix = "auth_"

// DefaultTokenTTL はトークンの既定の有効期間（24時間）。
const DefaultTokenTTL = 24 * time.Hour

// KV はトークン保存に用いるキーバリューストアのインターフェース。
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// TokenCache は不透明トークンとユーザーIDの対応を管理する。
// 有効期限はストアのTTLに委ね、アプリケーション側では期限切れを判定しない。
type TokenCache struct {
	kv  KV
	ttl time.Duration
}

// NewTokenCache はTokenCacheを生成する。ttlが0以下の場合はDefaultTokenTTLを使用する。
func NewTokenCache(kv KV, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCache{kv: kv, ttl: ttl}
}

// Issue は新しいトークンを発行し、ユーザーIDと紐付けて保存する。
func (c *TokenCache) Issue(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := c.kv.Set(ctx, tokenKey(token), strconv.FormatInt(userID, 10), c.ttl); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// Resolve はトークンに紐付くユーザーIDを返す。
// 未発行・失効・期限切れのいずれの場合もokはfalseとなり、区別しない。
func (c *TokenCache) Resolve(ctx context.Context, token string) (int64, bool, error) {
	if token == "" {
		return 0, false, nil
	}
	val, ok, err := c.kv.Get(ctx, tokenKey(token))
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve token: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false, nil
	}
	return userID, true, nil
}

// Revoke はトークンを無効化する。未発行のトークンに対しても成功する。
func (c *TokenCache) Revoke(ctx context.Context, token string) error {
	if err := c.kv.Del(ctx, tokenKey(token)); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

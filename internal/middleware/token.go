// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/filesman/internal/model"
)

// TokenHeader は認証トークンを運ぶリクエストヘッダー名。
const TokenHeader = "X-Token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// tokenContextKey はリクエストコンテキストに認証トークンを格納するためのキー。
	tokenContextKey = contextKey("token")
)

// TokenResolver はトークンからユーザーIDを解決するインターフェース。
// auth.Serviceが実装する。
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (int64, bool, error)
}

// NewTokenMiddleware はX-Tokenヘッダーのトークンを検証するミドルウェアを返す。
// 認証済みユーザーIDとトークンをリクエストコンテキストに注入する。
// トークンがない場合と無効な場合は401、ストアの障害時は500を返す。
func NewTokenMiddleware(resolver TokenResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			userID, ok, err := resolver.ResolveToken(r.Context(), token)
			if err != nil {
				slog.Error("failed to resolve token",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithUserID(r.Context(), userID)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// トークンミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	if !ok || userID <= 0 {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// ロギングミドルウェアの配下であれば、ログ出力用にもユーザーIDを記録する。
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	if st, ok := ctx.Value(requestStateKey).(*requestState); ok {
		st.setUserID(userID)
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

// TokenFromContext はリクエストコンテキストから認証トークンを取得する。
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok && token != ""
}

package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/filesman/internal/middleware"
	"github.com/hitoshi/filesman/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Connect は資格情報を検証してトークンを発行する。
	Connect(ctx context.Context, email, password string) (string, error)
	// Disconnect はトークンを無効化する。
	Disconnect(ctx context.Context, token string) error
}

// AuthHandler はトークンの発行と破棄を扱うHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

type connectResponse struct {
	Token string `json:"token"`
}

// Connect はBasic認証の資格情報でトークンを発行する。
// GET /connect
func (h *AuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	token, err := h.service.Connect(r.Context(), email, password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, connectResponse{Token: token})
}

// Disconnect はリクエストのトークンを無効化する。
// GET /disconnect
func (h *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Disconnect(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

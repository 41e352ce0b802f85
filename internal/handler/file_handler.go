package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/filesman/internal/file"
	"github.com/hitoshi/filesman/internal/middleware"
	"github.com/hitoshi/filesman/internal/model"
)

// FileServiceInterface はファイルハンドラーが必要とするサービスインターフェース。
type FileServiceInterface interface {
	Create(ctx context.Context, userID int64, in file.CreateInput) (*model.File, error)
	Show(ctx context.Context, userID, fileID int64) (*model.File, error)
	List(ctx context.Context, userID, parentID int64, page int) ([]*model.File, error)
	Publish(ctx context.Context, userID, fileID int64) (*model.File, error)
	Unpublish(ctx context.Context, userID, fileID int64) (*model.File, error)
}

// FileHandler はファイル管理のHTTPハンドラー。
type FileHandler struct {
	service        FileServiceInterface
	maxUploadBytes int64
}

// NewFileHandler はFileHandlerを生成する。maxUploadBytesが0以下の場合はボディサイズを制限しない。
func NewFileHandler(service FileServiceInterface, maxUploadBytes int64) *FileHandler {
	return &FileHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// idParam は数値と数値文字列の両方を受け付けるJSONフィールド。
type idParam string

// UnmarshalJSON は数値、文字列、nullを受け付ける。
func (p *idParam) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = idParam(s)
		return nil
	}
	*p = idParam(data)
	return nil
}

type createFileRequest struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	ParentID idParam `json:"parentId"`
	IsPublic bool    `json:"isPublic"`
	Data     string  `json:"data"`
}

// fileResponse はファイルのAPIレスポンス。保存先パスは公開しない。
type fileResponse struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsPublic bool   `json:"isPublic"`
	ParentID int64  `json:"parentId"`
}

func toFileResponse(f *model.File) fileResponse {
	return fileResponse{
		ID:       f.ID,
		UserID:   f.UserID,
		Name:     f.Name,
		Type:     string(f.Type),
		IsPublic: f.IsPublic,
		ParentID: f.ParentID,
	}
}

// Create はフォルダまたはファイルを作成する。
// POST /files
func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError())
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	f, err := h.service.Create(r.Context(), userID, file.CreateInput{
		Name:     req.Name,
		Type:     req.Type,
		ParentID: string(req.ParentID),
		IsPublic: req.IsPublic,
		Data:     req.Data,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFileResponse(f))
}

// Show はファイルを1件返す。
// GET /files/{id}
func (h *FileHandler) Show(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	fileID, ok := file.ParseID(chi.URLParam(r, "id"))
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
		return
	}

	f, err := h.service.Show(r.Context(), userID, fileID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(f))
}

// List はファイル一覧を返す。
// GET /files?parentId=&page=
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	parentID := model.RootParentID
	if raw := strings.TrimSpace(query.Get("parentId")); raw != "" && raw != "0" {
		id, ok := file.ParseID(raw)
		if !ok {
			// 数値でない親IDに一致するファイルは存在しない
			writeJSON(w, http.StatusOK, []fileResponse{})
			return
		}
		parentID = id
	}

	page, err := strconv.Atoi(query.Get("page"))
	if err != nil {
		page = 0
	}

	files, err := h.service.List(r.Context(), userID, parentID, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]fileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, toFileResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Publish はファイルを公開する。
// PUT /files/{id}/publish
func (h *FileHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.setPublic(w, r, h.service.Publish)
}

// Unpublish はファイルを非公開にする。
// PUT /files/{id}/unpublish
func (h *FileHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.setPublic(w, r, h.service.Unpublish)
}

func (h *FileHandler) setPublic(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, fileID int64) (*model.File, error)) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	fileID, ok := file.ParseID(chi.URLParam(r, "id"))
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
		return
	}

	f, err := fn(r.Context(), userID, fileID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(f))
}

// requireUserID はコンテキストからユーザーIDを取り出す。取得できない場合は401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return 0, false
	}
	return userID, true
}

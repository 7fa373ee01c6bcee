package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/partban/internal/middleware"
	"github.com/hitoshi/partban/internal/model"
)

// ClaimServiceInterface はパートハンドラーが必要とするサービスインターフェース。
type ClaimServiceInterface interface {
	// Claim はパートを確保する。
	Claim(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error)
	// Release は確保済みパートを解放する。
	Release(ctx context.Context, weekID string, number int, callerID string) (*model.Part, error)
}

// PartHandler はパートの確保・解放のHTTPハンドラー。
type PartHandler struct {
	service ClaimServiceInterface
}

// NewPartHandler はPartHandlerを生成する。
func NewPartHandler(service ClaimServiceInterface) *PartHandler {
	return &PartHandler{service: service}
}

// claimRequest は確保リクエストのボディ。省略可能。
type claimRequest struct {
	Name string `json:"name"` // 表示名の上書き。空の場合は保存済みの名前を使う
}

// Claim はパートを確保する。
// POST /api/parts/{weekID}/{number}/claim
func (h *PartHandler) Claim(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	weekID := chi.URLParam(r, "weekID")
	number, ok := parsePartNumber(w, r)
	if !ok {
		return
	}

	// ボディは省略可能
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	part, err := h.service.Claim(r.Context(), weekID, number, userID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPartResponse(part))
}

// Release は確保済みパートを解放する。
// DELETE /api/parts/{weekID}/{number}/claim
func (h *PartHandler) Release(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	weekID := chi.URLParam(r, "weekID")
	number, ok := parsePartNumber(w, r)
	if !ok {
		return
	}

	part, err := h.service.Release(r.Context(), weekID, number, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPartResponse(part))
}

// parsePartNumber はURLパラメータからパート番号を取得する。
// 不正な値の場合はエラーレスポンスを書き込みfalseを返す。
func parsePartNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "number")
	number, err := strconv.Atoi(raw)
	if err != nil || number < 1 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("パート番号が不正です: "+raw))
		return 0, false
	}
	return number, true
}

package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/partban/internal/middleware"
	"github.com/hitoshi/partban/internal/model"
)

// ResetServiceInterface は管理者ハンドラーが必要とするリセット操作のインターフェース。
type ResetServiceInterface interface {
	// Reset は週の全パートを一括で空きに戻す。
	Reset(ctx context.Context, weekKey, callerID string) (*model.WeekSnapshot, error)
}

// AdminServiceInterface は管理者権限の付与・剥奪のインターフェース。
type AdminServiceInterface interface {
	// SetAdmin は管理者フラグを明示的に設定する。
	SetAdmin(ctx context.Context, actorID, targetID string, makeAdmin bool) (*model.User, error)
}

// SessionInvalidator は対象ユーザーのセッション失効のインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// AdminHandler は週リセットと管理者権限管理のHTTPハンドラー。
type AdminHandler struct {
	reset    ResetServiceInterface
	admin    AdminServiceInterface
	identity IdentityServiceInterface
	sessions SessionInvalidator
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(
	reset ResetServiceInterface,
	admin AdminServiceInterface,
	identity IdentityServiceInterface,
	sessions SessionInvalidator,
) *AdminHandler {
	return &AdminHandler{
		reset:    reset,
		admin:    admin,
		identity: identity,
		sessions: sessions,
	}
}

// resetRequest はリセットリクエストのボディ。省略可能。
// プロフィールヒントを伴う場合はリセットの前にマージされる。
// 設定済みの管理者名・電話番号を提示したユーザーはこの時点で昇格し、
// そのままリセットを実行できる。
type resetRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// setAdminRequest は管理者フラグ設定リクエストのボディ。
type setAdminRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

// setAdminResponse は管理者フラグ設定のレスポンス。
type setAdminResponse struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// ResetWeek は週の全パートを一括で空きに戻す。管理者のみ。
// POST /api/weeks/{key}/reset
func (h *AdminHandler) ResetWeek(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	key := chi.URLParam(r, "key")

	// ボディは省略可能
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	// プロフィールヒントがあれば先にマージする（ポリシー昇格の経路）
	if req.Name != "" || req.Phone != "" {
		if _, err := h.identity.UpdateProfile(r.Context(), userID, model.ProfileHint{
			Name:  req.Name,
			Phone: req.Phone,
		}); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	snap, err := h.reset.Reset(r.Context(), key, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWeekResponse(snap))
}

// SetAdmin は対象ユーザーの管理者フラグを設定する。管理者のみ。
// 変更後は対象ユーザーの全セッションを失効させ、再ログインを強制する。
// 古いセッションが変更前の権限を主張し続けることはない。
// PUT /api/admin/users/{id}
func (h *AdminHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	targetID := chi.URLParam(r, "id")

	var req setAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}
	if req.IsAdmin == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("is_adminを指定してください"))
		return
	}

	target, err := h.admin.SetAdmin(r.Context(), actorID, targetID, *req.IsAdmin)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.sessions.Invalidate(r.Context(), target.ID); err != nil {
		// 失効の失敗はセッション期限で回収されるため、レスポンスは成功のまま返す
		slog.Error("failed to invalidate target sessions",
			slog.String("target_id", target.ID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, setAdminResponse{
		UserID:  target.ID,
		IsAdmin: target.IsAdmin,
	})
}

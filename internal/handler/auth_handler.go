package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/partban/internal/middleware"
	"github.com/hitoshi/partban/internal/model"
)

const sessionCookieName = "session_id"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, externalKey string, hint model.ProfileHint) (*model.User, *model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
	Rotate(ctx context.Context, userID string) (*model.Session, error)
}

// IdentityServiceInterface はプロフィール更新ハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	UpdateProfile(ctx context.Context, userID string, hint model.ProfileHint) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・セッション・プロフィール関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	identity IdentityServiceInterface
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, identity IdentityServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		identity: identity,
		config:   config,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	ExternalKey string `json:"external_key"` // 外部認証済みの場合のみ
}

// profileRequest はプロフィール更新リクエストのボディ。
type profileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Login はログインを処理し、セッションCookieを発行する。
// 未登録の場合はユーザーを自動作成する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	if req.Name == "" && req.Phone == "" && req.ExternalKey == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("名前か電話番号を指定してください"))
		return
	}

	user, session, err := h.service.Login(r.Context(), req.ExternalKey, model.ProfileHint{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.CurrentUser(r.Context(), cookie.Value)
	if err != nil {
		slog.Warn("failed to get current user", slog.String("error", err.Error()))
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// UpdateProfile はプロフィールをマージ更新する。
// 更新後はセッションをローテーションし、新しいCookieを発行する。
// 古いセッションが更新前のプロフィール・権限を主張し続けることはない。
// PUT /api/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	user, err := h.identity.UpdateProfile(r.Context(), userID, model.ProfileHint{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.service.Rotate(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieをクリアする。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

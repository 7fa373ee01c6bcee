// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/partban/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// partResponse はパート情報のAPIレスポンス。
type partResponse struct {
	Number      int        `json:"number"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
	ClaimedName string     `json:"claimed_name,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// weekResponse は週とその全パートのAPIレスポンス。
type weekResponse struct {
	WeekID  string         `json:"week_id"`
	WeekKey string         `json:"week_key"`
	Parts   []partResponse `json:"parts"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

// toPartResponse はmodel.PartからAPIレスポンスに変換する。
func toPartResponse(part *model.Part) partResponse {
	return partResponse{
		Number:      part.Number,
		ClaimedBy:   part.ClaimedBy,
		ClaimedName: part.ClaimedName,
		ClaimedAt:   part.ClaimedAt,
	}
}

// toWeekResponse はmodel.WeekSnapshotからAPIレスポンスに変換する。
func toWeekResponse(snap *model.WeekSnapshot) weekResponse {
	parts := make([]partResponse, 0, len(snap.Parts))
	for _, p := range snap.Parts {
		parts = append(parts, toPartResponse(p))
	}
	return weekResponse{
		WeekID:  snap.Week.ID,
		WeekKey: snap.Week.Key,
		Parts:   parts,
	}
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:      user.ID,
		Name:    user.Name,
		Phone:   user.Phone,
		IsAdmin: user.IsAdmin,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeUnauthorized は401レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラー（ロック待ちタイムアウト、DB接続断等）は
	// 内部サーバーエラーとして扱う。リトライ可能
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeWeekRequired, model.ErrCodeInvalidBody:
		return http.StatusBadRequest
	case model.ErrCodeNotOwner, model.ErrCodeNotAdmin:
		return http.StatusForbidden
	case model.ErrCodePartNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyClaimed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/partban/internal/middleware"
	"github.com/hitoshi/partban/internal/model"
)

// --- モック定義 ---

// mockClaimService はClaimServiceInterfaceのモック実装。
type mockClaimService struct {
	claimFn   func(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error)
	releaseFn func(ctx context.Context, weekID string, number int, callerID string) (*model.Part, error)
}

func (m *mockClaimService) Claim(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, weekID, number, callerID, nameOverride)
	}
	return nil, nil
}

func (m *mockClaimService) Release(ctx context.Context, weekID string, number int, callerID string) (*model.Part, error) {
	if m.releaseFn != nil {
		return m.releaseFn(ctx, weekID, number, callerID)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func newClaimRequest(t *testing.T, method, weekID, number string, body []byte) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, "/api/parts/"+weekID+"/"+number+"/claim", bytes.NewReader(body))
	r = withChiURLParams(r, map[string]string{"weekID": weekID, "number": number})
	return withUserID(r, "user-123")
}

// --- POST /api/parts/{weekID}/{number}/claim テスト ---

func TestPartHandler_Claim_Success(t *testing.T) {
	svc := &mockClaimService{
		claimFn: func(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error) {
			if weekID != "week-1" || number != 5 || callerID != "user-123" {
				t.Errorf("Claim(%q, %d, %q), want (week-1, 5, user-123)", weekID, number, callerID)
			}
			if nameOverride != "" {
				t.Errorf("nameOverride = %q, want empty", nameOverride)
			}
			return &model.Part{WeekID: weekID, Number: number, ClaimedBy: callerID, ClaimedName: "山田"}, nil
		},
	}

	h := NewPartHandler(svc)

	w := httptest.NewRecorder()
	h.Claim(w, newClaimRequest(t, http.MethodPost, "week-1", "5", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["number"] != float64(5) {
		t.Errorf("number = %v, want 5", resp["number"])
	}
	if resp["claimed_by"] != "user-123" {
		t.Errorf("claimed_by = %v, want user-123", resp["claimed_by"])
	}
}

func TestPartHandler_Claim_WithNameOverride(t *testing.T) {
	svc := &mockClaimService{
		claimFn: func(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error) {
			if nameOverride != "別名" {
				t.Errorf("nameOverride = %q, want %q", nameOverride, "別名")
			}
			return &model.Part{WeekID: weekID, Number: number, ClaimedBy: callerID, ClaimedName: nameOverride}, nil
		},
	}

	h := NewPartHandler(svc)

	body, _ := json.Marshal(map[string]string{"name": "別名"})
	w := httptest.NewRecorder()
	h.Claim(w, newClaimRequest(t, http.MethodPost, "week-1", "5", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestPartHandler_Claim_AlreadyClaimed_ReturnsConflict(t *testing.T) {
	svc := &mockClaimService{
		claimFn: func(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error) {
			return nil, model.NewAlreadyClaimedError(number)
		},
	}

	h := NewPartHandler(svc)

	w := httptest.NewRecorder()
	h.Claim(w, newClaimRequest(t, http.MethodPost, "week-1", "5", nil))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeAlreadyClaimed {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeAlreadyClaimed)
	}
}

func TestPartHandler_Claim_PartNotFound_ReturnsNotFound(t *testing.T) {
	svc := &mockClaimService{
		claimFn: func(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error) {
			return nil, model.NewPartNotFoundError(number)
		},
	}

	h := NewPartHandler(svc)

	w := httptest.NewRecorder()
	h.Claim(w, newClaimRequest(t, http.MethodPost, "week-1", "99", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPartHandler_Claim_InvalidNumber_ReturnsBadRequest(t *testing.T) {
	h := NewPartHandler(&mockClaimService{})

	w := httptest.NewRecorder()
	h.Claim(w, newClaimRequest(t, http.MethodPost, "week-1", "abc", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeInvalidBody {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeInvalidBody)
	}
}

func TestPartHandler_Claim_ZeroNumber_ReturnsBadRequest(t *testing.T) {
	h := NewPartHandler(&mockClaimService{})

	w := httptest.NewRecorder()
	h.Claim(w, newClaimRequest(t, http.MethodPost, "week-1", "0", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPartHandler_Claim_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewPartHandler(&mockClaimService{})

	r := httptest.NewRequest(http.MethodPost, "/api/parts/week-1/5/claim", nil)
	r = withChiURLParams(r, map[string]string{"weekID": "week-1", "number": "5"})

	w := httptest.NewRecorder()
	h.Claim(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestPartHandler_Claim_InternalError_ReturnsInternalServerError(t *testing.T) {
	svc := &mockClaimService{
		claimFn: func(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error) {
			return nil, context.DeadlineExceeded
		},
	}

	h := NewPartHandler(svc)

	w := httptest.NewRecorder()
	h.Claim(w, newClaimRequest(t, http.MethodPost, "week-1", "5", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeInternal)
	}
}

// --- DELETE /api/parts/{weekID}/{number}/claim テスト ---

func TestPartHandler_Release_Success(t *testing.T) {
	svc := &mockClaimService{
		releaseFn: func(ctx context.Context, weekID string, number int, callerID string) (*model.Part, error) {
			if weekID != "week-1" || number != 5 || callerID != "user-123" {
				t.Errorf("Release(%q, %d, %q), want (week-1, 5, user-123)", weekID, number, callerID)
			}
			return &model.Part{WeekID: weekID, Number: number}, nil
		},
	}

	h := NewPartHandler(svc)

	w := httptest.NewRecorder()
	h.Release(w, newClaimRequest(t, http.MethodDelete, "week-1", "5", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	// 解放済みパートはclaimed_byを含まない
	if _, ok := resp["claimed_by"]; ok {
		t.Error("released part should not carry claimed_by")
	}
}

func TestPartHandler_Release_NotOwner_ReturnsForbidden(t *testing.T) {
	svc := &mockClaimService{
		releaseFn: func(ctx context.Context, weekID string, number int, callerID string) (*model.Part, error) {
			return nil, model.NewNotOwnerError(number)
		},
	}

	h := NewPartHandler(svc)

	w := httptest.NewRecorder()
	h.Release(w, newClaimRequest(t, http.MethodDelete, "week-1", "5", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeNotOwner {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeNotOwner)
	}
}

func TestPartHandler_Release_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewPartHandler(&mockClaimService{})

	r := httptest.NewRequest(http.MethodDelete, "/api/parts/week-1/5/claim", nil)
	r = withChiURLParams(r, map[string]string{"weekID": "week-1", "number": "5"})

	w := httptest.NewRecorder()
	h.Release(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

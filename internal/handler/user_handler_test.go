package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/plantcare/internal/middleware"
	"github.com/hitoshi/plantcare/internal/model"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	withdrawFn func(ctx context.Context, caller model.Caller) error
}

func (m *mockUserService) Withdraw(ctx context.Context, caller model.Caller) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, caller)
	}
	return nil
}

// --- DELETE /api/users/me テスト ---

func TestUserHandler_Withdraw_Success(t *testing.T) {
	withdrawCalled := false
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, caller model.Caller) error {
			withdrawCalled = true
			if caller.UserID != "user-123" {
				t.Errorf("userID = %q, want %q", caller.UserID, "user-123")
			}
			return nil
		},
	}

	h := NewUserHandler(svc, newTestCookie())

	req := withCaller(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), testCaller)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if !withdrawCalled {
		t.Error("expected Withdraw to be called")
	}
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie must be cleared, got %+v", c)
	}
}

func TestUserHandler_Withdraw_NoCaller_ReturnsUnauthorized(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, newTestCookie())

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestUserHandler_Withdraw_UserNotFound(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, caller model.Caller) error {
			return model.NewUserNotFoundError()
		},
	}
	h := NewUserHandler(svc, newTestCookie())

	req := withCaller(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), testCaller)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUserHandler_Withdraw_InternalError(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, caller model.Caller) error {
			return errors.New("transaction failed")
		},
	}
	h := NewUserHandler(svc, newTestCookie())

	req := withCaller(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), testCaller)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

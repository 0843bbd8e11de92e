package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/plantcare/internal/middleware"
	"github.com/hitoshi/plantcare/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// セッションとユーザーを削除し、植物はCASCADE削除される。
	Withdraw(ctx context.Context, caller model.Caller) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  *middleware.SessionCookie
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, cookie *middleware.SessionCookie) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
	}
}

// Withdraw はユーザーの退会処理を実行し、セッションCookieを削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), caller); err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookie.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

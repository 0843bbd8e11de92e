// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/plantcare/internal/auth"
	"github.com/hitoshi/plantcare/internal/middleware"
	"github.com/hitoshi/plantcare/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginWithPassword(ctx context.Context, username, password string) (*auth.LoginResult, error)
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ResolveSession(ctx context.Context, token string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	ClientURL    string // OAuth完了後のリダイレクト先
	OAuthEnabled bool
	CookieSecure bool // oauth_state Cookie用
}

// AuthHandler はログイン・ログアウト・OAuth関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	cookie   *middleware.SessionCookie
	config   AuthHandlerConfig
	validate *validator.Validate
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookie *middleware.SessionCookie, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		cookie:   cookie,
		config:   config,
		validate: validator.New(),
	}
}

// loginRequest はパスワードログインのリクエストボディ。
// bcryptは72バイトを超えるパスワードを扱えない。
type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginResponse struct {
	OK       bool   `json:"ok"`
	Created  bool   `json:"created"`
	Username string `json:"username"`
}

type meResponse struct {
	User *userResponse `json:"user"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	GitHubID  *string   `json:"githubId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type configResponse struct {
	OAuthEnabled bool `json:"oauthEnabled"`
}

// Login はユーザー名とパスワードでログインする。未登録のユーザー名は新規登録される。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingCredentialsError())
					return
				}
			}
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(strings.ToLower(verrs[0].Field())))
			return
		}
		handleServiceError(w, err)
		return
	}

	result, err := h.service.LoginWithPassword(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	case errors.Is(err, auth.ErrWrongAuthMethod):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewWrongAuthMethodError())
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("password"))
		return
	case err != nil:
		handleServiceError(w, err)
		return
	}

	if err := h.cookie.Write(w, result.Session.ID, result.Session.ExpiresAt); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		OK:       true,
		Created:  result.Created,
		Username: result.User.Username,
	})
}

// Logout はセッションを破棄する。
// セッション削除に失敗してもCookieはクリアし、成功として応答する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.cookie.Read(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	h.cookie.Clear(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Me は現在のログインユーザー情報を返す。未ログインの場合はuser:nullを返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token := h.cookie.Read(r)
	if token == "" {
		writeJSON(w, http.StatusOK, meResponse{})
		return
	}

	user, err := h.service.ResolveSession(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusOK, meResponse{})
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: &userResponse{
		ID:        user.ID,
		Username:  user.Username,
		GitHubID:  user.GitHubID,
		CreatedAt: user.CreatedAt,
	}})
}

// Config はクライアントが必要とする公開設定を返す。
// GET /api/config
func (h *AuthHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{OAuthEnabled: h.config.OAuthEnabled})
}

// GitHubLogin はGitHub OAuthフローを開始する。
// GET /auth/github
func (h *AuthHandler) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GitHubCallback はOAuthコールバックを処理する。
// 失敗時はクライアントに ?oauth=failed を付けてリダイレクトする。
// GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.redirectOAuthFailed(w, r)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("oauth callback without code",
			slog.String("oauth_error", r.URL.Query().Get("error")),
		)
		h.redirectOAuthFailed(w, r)
		return
	}

	result, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectOAuthFailed(w, r)
		return
	}

	if err := h.cookie.Write(w, result.Session.ID, result.Session.ExpiresAt); err != nil {
		slog.Error("failed to write session cookie", slog.String("error", err.Error()))
		h.redirectOAuthFailed(w, r)
		return
	}

	http.Redirect(w, r, h.config.ClientURL, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) redirectOAuthFailed(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, oauthFailedURL(h.config.ClientURL), http.StatusTemporaryRedirect)
}

// oauthFailedURL はclientURLにoauth=failedクエリを付与する。
func oauthFailedURL(clientURL string) string {
	u, err := url.Parse(clientURL)
	if err != nil {
		return "/?oauth=failed"
	}
	q := u.Query()
	q.Set("oauth", "failed")
	u.RawQuery = q.Encode()
	return u.String()
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

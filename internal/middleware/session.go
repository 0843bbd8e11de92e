// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/hitoshi/plantcare/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// callerContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
var callerContextKey = contextKey("caller")

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // 秒
}

// SessionCookie はセッショントークンを署名付きCookieとして読み書きする。
type SessionCookie struct {
	codec  *securecookie.SecureCookie
	config CookieConfig
}

// NewSessionCookie はsecretで署名するSessionCookieを生成する。
func NewSessionCookie(secret string, config CookieConfig) *SessionCookie {
	codec := securecookie.New([]byte(secret), nil)
	if config.MaxAge > 0 {
		codec.MaxAge(config.MaxAge)
	}
	return &SessionCookie{codec: codec, config: config}
}

// Write はセッショントークンをCookieに設定する。
func (c *SessionCookie) Write(w http.ResponseWriter, token string, expiresAt time.Time) error {
	encoded, err := c.codec.Encode(SessionCookieName, token)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		Domain:   c.config.Domain,
		Expires:  expiresAt,
		MaxAge:   c.config.MaxAge,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear はセッションCookieを削除する。
func (c *SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read はCookieからセッショントークンを取り出す。
// Cookieがない、または署名が不正な場合は空文字を返す。
func (c *SessionCookie) Read(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	var token string
	if err := c.codec.Decode(SessionCookieName, cookie.Value, &token); err != nil {
		return ""
	}
	return token
}

// SessionResolver はセッショントークンからユーザーを解決するインターフェース。
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*model.User, error)
}

// NewSessionMiddleware はCookieのセッションを解決し、
// 認証済みであれば呼び出し元（model.Caller）をリクエストコンテキストに注入する。
// 未認証のリクエストもそのまま通す。認証必須のルートにはRequireAuthを重ねる。
func NewSessionMiddleware(resolver SessionResolver, cookie *SessionCookie) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookie.Read(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.ResolveSession(r.Context(), token)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}

			annotateUserID(r.Context(), user.ID)
			ctx := ContextWithCaller(r.Context(), model.Caller{UserID: user.ID, Username: user.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth は呼び出し元が未認証のリクエストに401を返すミドルウェア。
// NewSessionMiddlewareの後に配置する。
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFromContext(r.Context()); !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CallerFromContext はリクエストコンテキストから呼び出し元を取得する。
func CallerFromContext(ctx context.Context) (model.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(model.Caller)
	if !ok || caller.UserID == "" {
		return model.Caller{}, false
	}
	return caller, true
}

// ContextWithCaller はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithCaller(ctx context.Context, caller model.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

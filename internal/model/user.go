// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashとGitHubIDの少なくとも一方が必ず設定される。
type User struct {
	ID           string
	Username     string
	PasswordHash *string // パスワードログインで作成されたアカウントのみ
	GitHubID     *string // GitHubログインで作成・紐付けされたアカウントのみ
	CreatedAt    time.Time
}

// HasPassword はパスワード認証情報を持つかどうかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// HasExternalIdentity は外部IdPと紐付いているかどうかを返す。
func (u *User) HasExternalIdentity() bool {
	return u.GitHubID != nil && *u.GitHubID != ""
}

// Session はユーザーのログインセッションを表す。
// IDはCookieで運ばれる不透明なトークンそのもの。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired は指定時刻の時点でセッションが失効しているかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Caller はセッションから解決された認証済みリクエスト元を表す。
// ハンドラーからサービス層へ明示的に渡される。
type Caller struct {
	UserID   string
	Username string
}

// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/plantcare/internal/model"
)

var (
	// ErrUsernameTaken はユーザー名の一意制約違反を表す。
	ErrUsernameTaken = errors.New("username already taken")
	// ErrExternalIDTaken はGitHub IDの一意制約違反を表す。
	ErrExternalIDTaken = errors.New("external identity already linked")
)

// UserRepository はユーザー（認証情報）の永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByGitHubID はGitHub IDでユーザーを取得する。見つからない場合はnilを返す。
	FindByGitHubID(ctx context.Context, githubID string) (*model.User, error)

	// UsernameExists はユーザー名が使用済みかどうかを返す。
	UsernameExists(ctx context.Context, username string) (bool, error)

	// Create はユーザーを作成する。
	// 一意制約違反の場合はErrUsernameTakenまたはErrExternalIDTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// LinkGitHubID は未紐付けのユーザーにGitHub IDを設定する。
	// 既に紐付け済み（競合で先を越された場合を含む）の場合はfalseを返す。
	LinkGitHubID(ctx context.Context, userID, githubID string) (bool, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するplantsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 期限切れの判定は呼び出し側で行う。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は有効期限がnow以前のセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PlantRepository は植物レコードの永続化インターフェース。
// すべての操作は所有者IDを条件に含み、IDのみでのアクセスはできない。
type PlantRepository interface {
	// Create は植物を作成する。
	Create(ctx context.Context, plant *model.Plant) error

	// ListByUserID はユーザーの植物一覧をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Plant, error)

	// UpdateOwned は所有者が一致する植物を更新し、更新後の値を返す。
	// 該当がない場合はnilを返す。
	UpdateOwned(ctx context.Context, userID, plantID string, fields model.PlantFields) (*model.Plant, error)

	// DeleteOwned は所有者が一致する植物を削除する。
	// 削除した場合はtrue、該当がない場合はfalseを返す。
	DeleteOwned(ctx context.Context, userID, plantID string) (bool, error)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/plantcare/internal/model"
)

const (
	// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
	pqUniqueViolation = "23505"

	constraintUsernameUnique = "users_username_unique"
	constraintGitHubIDUnique = "users_github_id_unique"
)

const userColumns = `id, username, password_hash, github_id, created_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// FindByGitHubID はGitHub IDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByGitHubID(ctx context.Context, githubID string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE github_id = $1`, githubID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by github ID: %w", err)
	}
	return user, nil
}

// UsernameExists はユーザー名が使用済みかどうかを返す。
func (r *PostgresUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// Create はユーザーを作成する。
// 一意制約違反はErrUsernameTaken / ErrExternalIDTakenに変換する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, github_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.PasswordHash, user.GitHubID, user.CreatedAt,
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// LinkGitHubID は未紐付けのユーザーにGitHub IDを設定する。
// github_id IS NULL を条件に含めるため、並行リクエストで二重に紐付くことはない。
func (r *PostgresUserRepo) LinkGitHubID(ctx context.Context, userID, githubID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET github_id = $1 WHERE id = $2 AND github_id IS NULL`,
		githubID, userID,
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return false, mapped
		}
		return false, fmt.Errorf("failed to link github ID: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するplantsとsessionsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	user := &model.User{}
	var passwordHash, githubID sql.NullString
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Username, &passwordHash, &githubID, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if passwordHash.Valid {
		user.PasswordHash = &passwordHash.String
	}
	if githubID.Valid {
		user.GitHubID = &githubID.String
	}
	return user, nil
}

// mapUniqueViolation はpqの一意制約違反をリポジトリのエラーに変換する。
// 一意制約違反でない場合はnilを返す。
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case constraintGitHubIDUnique:
		return ErrExternalIDTaken
	default:
		return ErrUsernameTaken
	}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

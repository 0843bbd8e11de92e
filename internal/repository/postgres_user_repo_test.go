package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/plantcare/internal/model"
)

func setupUserRepoMock(t *testing.T) (*PostgresUserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresUserRepo(db), mock
}

func strPtr(s string) *string { return &s }

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

func TestPostgresUserRepo_FindByUsername_Found(t *testing.T) {
	repo, mock := setupUserRepoMock(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, password_hash, github_id, created_at FROM users WHERE username = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "github_id", "created_at"}).
			AddRow("user-1", "alice", "$2a$10$hash", nil, created))

	user, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.ID)
	assert.True(t, user.HasPassword())
	assert.False(t, user.HasExternalIdentity())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepo_FindByGitHubID_NotFound_ReturnsNil(t *testing.T) {
	repo, mock := setupUserRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE github_id = $1`)).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "github_id", "created_at"}))

	user, err := repo.FindByGitHubID(context.Background(), "42")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepo_UsernameExists(t *testing.T) {
	repo, mock := setupUserRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`)).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.UsernameExists(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPostgresUserRepo_Create_UsernameUniqueViolation(t *testing.T) {
	repo, mock := setupUserRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_unique"})

	err := repo.Create(context.Background(), &model.User{
		ID: "user-1", Username: "alice", PasswordHash: strPtr("hash"), CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestPostgresUserRepo_Create_GitHubIDUniqueViolation(t *testing.T) {
	repo, mock := setupUserRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_github_id_unique"})

	err := repo.Create(context.Background(), &model.User{
		ID: "user-1", Username: "alice", GitHubID: strPtr("42"), CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrExternalIDTaken)
}

func TestPostgresUserRepo_Create_OtherError_IsWrapped(t *testing.T) {
	repo, mock := setupUserRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(errors.New("connection refused"))

	err := repo.Create(context.Background(), &model.User{ID: "user-1", Username: "alice"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUsernameTaken)
	assert.NotErrorIs(t, err, ErrExternalIDTaken)
}

func TestPostgresUserRepo_LinkGitHubID(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		want         bool
	}{
		{name: "未紐付けのユーザーは紐付けできる", rowsAffected: 1, want: true},
		{name: "紐付け済みのユーザーは更新されない", rowsAffected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupUserRepoMock(t)
			mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET github_id = $1 WHERE id = $2 AND github_id IS NULL`)).
				WithArgs("42", "user-1").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			linked, err := repo.LinkGitHubID(context.Background(), "user-1", "42")
			require.NoError(t, err)
			assert.Equal(t, tt.want, linked)
		})
	}
}

func TestPostgresUserRepo_DeleteByID_NotFound(t *testing.T) {
	repo, mock := setupUserRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteByID(context.Background(), "missing")
	assert.Error(t, err)
}

// Package auth はパスワード認証、GitHub OAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/plantcare/internal/metrics"
	"github.com/hitoshi/plantcare/internal/model"
	"github.com/hitoshi/plantcare/internal/repository"
)

const (
	// bcryptCost はパスワードハッシュのコスト係数。
	bcryptCost = 10
	// MaxPasswordBytes はbcryptが受け付けるパスワード長の上限（バイト数）。
	MaxPasswordBytes = 72
	// maxUsernameSuffix はユーザー名の連番サフィックスの上限。
	maxUsernameSuffix = 50
	// externalUsernamePrefix は外部IDから生成するユーザー名の接頭辞。
	externalUsernamePrefix = "external_gh_"

	loginMethodPassword = "password"
	loginMethodGitHub   = "github"
)

var (
	// ErrInvalidCredentials はパスワード不一致を表す。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWrongAuthMethod はパスワードを持たないアカウントへのパスワードログインを表す。
	ErrWrongAuthMethod = errors.New("account requires external login")
	// ErrPasswordTooLong はパスワードがMaxPasswordBytesを超えることを表す。
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
	// ErrUsernameExhausted は候補ユーザー名がすべて使用済みであることを表す。
	ErrUsernameExhausted = errors.New("no available username")
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Login          string // プロバイダー上のユーザー名。ユーザー名の候補に使う
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// LoginRecorder はログイン結果の記録先。
type LoginRecorder interface {
	RecordLogin(method, outcome string)
	RecordSessionCreated()
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Created bool // 今回のログインでユーザーを新規作成したか
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	recorder    LoginRecorder
	now         func() time.Time
}

// NewService はServiceを生成する。
// oauthがnilの場合、外部ID連携は無効になる。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// WithRecorder はログイン結果の記録先を設定する。
func (s *Service) WithRecorder(r LoginRecorder) *Service {
	s.recorder = r
	return s
}

// WithClock はセッション期限の判定に使う時計を差し替える。テスト用。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Enabled は外部ID連携が設定済みかどうかを返す。
func (s *Service) Enabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	if s.oauth == nil {
		return ""
	}
	return s.oauth.GetLoginURL(state)
}

// LoginWithPassword はユーザー名とパスワードでログインする。
// 未登録のユーザー名の場合はそのままアカウントを作成してログインする。
func (s *Service) LoginWithPassword(ctx context.Context, username, password string) (*LoginResult, error) {
	// 文字数ではなくバイト数で判定する（マルチバイト文字は1文字で最大4バイト）
	if len(password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		s.recordLogin(loginMethodPassword, metrics.LoginOutcomeError)
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	created := false
	if user == nil {
		user, err = s.registerWithPassword(ctx, username, password)
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			// 同名の登録が並行して成功した。既存ユーザーとして照合する
			user, err = s.userRepo.FindByUsername(ctx, username)
			if err != nil {
				s.recordLogin(loginMethodPassword, metrics.LoginOutcomeError)
				return nil, fmt.Errorf("failed to find user: %w", err)
			}
			if user == nil {
				s.recordLogin(loginMethodPassword, metrics.LoginOutcomeError)
				return nil, fmt.Errorf("user %q vanished after unique violation", username)
			}
		case err != nil:
			s.recordLogin(loginMethodPassword, metrics.LoginOutcomeError)
			return nil, err
		default:
			created = true
		}
	}

	if !created {
		if err := verifyPassword(user, password); err != nil {
			if errors.Is(err, ErrWrongAuthMethod) {
				s.recordLogin(loginMethodPassword, metrics.LoginOutcomeWrongMethod)
			} else {
				s.recordLogin(loginMethodPassword, metrics.LoginOutcomeInvalidCredentials)
			}
			return nil, err
		}
	}

	session, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		s.recordLogin(loginMethodPassword, metrics.LoginOutcomeError)
		return nil, err
	}

	if created {
		s.recordLogin(loginMethodPassword, metrics.LoginOutcomeCreated)
	} else {
		s.recordLogin(loginMethodPassword, metrics.LoginOutcomeSuccess)
	}
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", loginMethodPassword),
		slog.Bool("created", created),
	)

	return &LoginResult{User: user, Session: session, Created: created}, nil
}

// registerWithPassword はパスワード付きのユーザーを作成する。
func (s *Service) registerWithPassword(ctx context.Context, username, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashStr := string(hash)

	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: &hashStr,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("method", loginMethodPassword),
	)
	return user, nil
}

// verifyPassword はパスワードを定数時間で照合する。
func verifyPassword(user *model.User, password string) error {
	if !user.HasPassword() {
		return ErrWrongAuthMethod
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*LoginResult, error) {
	if s.oauth == nil {
		return nil, fmt.Errorf("external login is not configured")
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.recordLogin(loginMethodGitHub, metrics.LoginOutcomeError)
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	return s.LoginWithExternalIdentity(ctx, userInfo.ProviderUserID, userInfo.Login)
}

// LoginWithExternalIdentity は外部IDでログインする。
//  1. 外部IDで紐付け済みのユーザーがあればそのユーザー
//  2. 候補ユーザー名のユーザーが未紐付けなら外部IDを紐付ける
//  3. いずれもなければ重複しないユーザー名で新規作成する
func (s *Service) LoginWithExternalIdentity(ctx context.Context, externalID, suggestedUsername string) (*LoginResult, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external ID is required")
	}

	user, created, err := s.resolveExternalUser(ctx, externalID, suggestedUsername)
	if err != nil {
		s.recordLogin(loginMethodGitHub, metrics.LoginOutcomeError)
		return nil, err
	}

	session, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		s.recordLogin(loginMethodGitHub, metrics.LoginOutcomeError)
		return nil, err
	}

	if created {
		s.recordLogin(loginMethodGitHub, metrics.LoginOutcomeCreated)
	} else {
		s.recordLogin(loginMethodGitHub, metrics.LoginOutcomeSuccess)
	}
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", loginMethodGitHub),
		slog.Bool("created", created),
	)

	return &LoginResult{User: user, Session: session, Created: created}, nil
}

func (s *Service) resolveExternalUser(ctx context.Context, externalID, suggested string) (*model.User, bool, error) {
	user, err := s.userRepo.FindByGitHubID(ctx, externalID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user by github id: %w", err)
	}
	if user != nil {
		return user, false, nil
	}

	if suggested != "" {
		existing, err := s.userRepo.FindByUsername(ctx, suggested)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find user by username: %w", err)
		}
		if existing != nil && !existing.HasExternalIdentity() {
			linked, err := s.userRepo.LinkGitHubID(ctx, existing.ID, externalID)
			switch {
			case errors.Is(err, repository.ErrExternalIDTaken):
				return s.findLinkedUser(ctx, externalID)
			case err != nil:
				return nil, false, fmt.Errorf("failed to link github id: %w", err)
			case linked:
				existing.GitHubID = &externalID
				slog.Info("external identity linked", slog.String("user_id", existing.ID))
				return existing, false, nil
			}
			// 並行して別の外部IDが紐付けられた。新規作成に進む
		}
	}

	return s.createExternalUser(ctx, externalID, suggested)
}

// createExternalUser は候補ユーザー名を順に試してユーザーを作成する。
func (s *Service) createExternalUser(ctx context.Context, externalID, suggested string) (*model.User, bool, error) {
	for _, candidate := range usernameCandidates(suggested, externalID) {
		taken, err := s.userRepo.UsernameExists(ctx, candidate)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			continue
		}

		githubID := externalID
		user := &model.User{
			ID:        uuid.New().String(),
			Username:  candidate,
			GitHubID:  &githubID,
			CreatedAt: s.now().UTC(),
		}
		err = s.userRepo.Create(ctx, user)
		switch {
		case err == nil:
			slog.Info("new user created",
				slog.String("user_id", user.ID),
				slog.String("method", loginMethodGitHub),
			)
			return user, true, nil
		case errors.Is(err, repository.ErrUsernameTaken):
			continue
		case errors.Is(err, repository.ErrExternalIDTaken):
			// 同じ外部IDの並行サインアップが先に完了した
			return s.findLinkedUser(ctx, externalID)
		default:
			return nil, false, fmt.Errorf("failed to create user: %w", err)
		}
	}

	return nil, false, fmt.Errorf("github id %s: %w", externalID, ErrUsernameExhausted)
}

func (s *Service) findLinkedUser(ctx context.Context, externalID string) (*model.User, bool, error) {
	user, err := s.userRepo.FindByGitHubID(ctx, externalID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user by github id: %w", err)
	}
	if user == nil {
		return nil, false, fmt.Errorf("github id %s reported as linked but not found", externalID)
	}
	return user, false, nil
}

// usernameCandidates は外部IDユーザーのユーザー名候補を優先順に返す。
// suggested, suggested-1 … suggested-50, external_gh_<id>, external_gh_<id>-1 … -50
func usernameCandidates(suggested, externalID string) []string {
	fallback := externalUsernamePrefix + externalID
	bases := []string{fallback}
	if suggested != "" && suggested != fallback {
		bases = []string{suggested, fallback}
	}

	candidates := make([]string, 0, len(bases)*(maxUsernameSuffix+1))
	for _, base := range bases {
		candidates = append(candidates, base)
		for i := 1; i <= maxUsernameSuffix; i++ {
			candidates = append(candidates, fmt.Sprintf("%s-%d", base, i))
		}
	}
	return candidates
}

// CreateSession はセッションを作成し永続化する。
func (s *Service) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordSessionCreated()
	}
	return session, nil
}

// ResolveSession はセッショントークンからユーザーを取得する。
// セッションが存在しない、期限切れ、またはユーザーが削除済みの場合はnilを返す。
// 期限切れのセッションはこの時点で削除する。
func (s *Service) ResolveSession(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if session.Expired(s.now()) {
		if err := s.sessionRepo.DeleteByID(ctx, token); err != nil {
			slog.Warn("failed to delete expired session", slog.String("error", err.Error()))
		}
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// Logout はセッションを破棄する。存在しないセッションの破棄もエラーにしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: plants）
func (s *Service) Withdraw(ctx context.Context, caller model.Caller) error {
	user, err := s.userRepo.FindByID(ctx, caller.UserID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します", slog.String("user_id", caller.UserID))

	if err := s.sessionRepo.DeleteByUserID(ctx, caller.UserID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, caller.UserID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", caller.UserID))
	return nil
}

func (s *Service) recordLogin(method, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(method, outcome)
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

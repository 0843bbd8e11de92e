package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, plant, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeMissingCredentials = "MISSING_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeWrongAuthMethod    = "WRONG_AUTH_METHOD"
	ErrCodePlantNotFound      = "PLANT_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
// fieldsには不正なフィールド名を渡す。
func NewValidationError(fields ...string) *APIError {
	msg := "必須項目が入力されていないか、値が不正です。"
	if len(fields) > 0 {
		msg = fmt.Sprintf("必須項目が入力されていないか、値が不正です: %s", strings.Join(fields, ", "))
	}
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  msg,
		Category: "validation",
		Action:   "名前・最終水やり日・間隔（1日以上）を入力してください。",
	}
}

// NewMissingCredentialsError はユーザー名またはパスワード未入力エラーを生成する。
func NewMissingCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCredentials,
		Message:  "ユーザー名とパスワードを入力してください。",
		Category: "validation",
		Action:   "ユーザー名とパスワードの両方を入力してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はパスワード不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "パスワードが正しくありません。",
		Category: "auth",
		Action:   "パスワードを確認して再度お試しください。",
	}
}

// NewWrongAuthMethodError はGitHub専用アカウントへのパスワードログインエラーを生成する。
func NewWrongAuthMethodError() *APIError {
	return &APIError{
		Code:     ErrCodeWrongAuthMethod,
		Message:  "このアカウントはGitHubログイン専用です。",
		Category: "auth",
		Action:   "GitHubでログインしてください。",
	}
}

// NewPlantNotFoundError は植物未検出エラーを生成する。
// 他ユーザーの植物である場合も同じエラーを返し、存在を漏らさない。
func NewPlantNotFoundError(plantID string) *APIError {
	return &APIError{
		Code:     ErrCodePlantNotFound,
		Message:  fmt.Sprintf("指定された植物が見つかりません: %s", plantID),
		Category: "plant",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, system
	Action   string // ユーザー向け対処方法
	Field    string // 入力エラーの対象フィールド（入力エラー以外は空）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeMovieNotFound        = "MOVIE_NOT_FOUND"
	ErrCodeBannerNotFound       = "BANNER_NOT_FOUND"
	ErrCodeMetadataNotFound     = "METADATA_NOT_FOUND"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrCodeInvalidView          = "INVALID_VIEW"
	ErrCodeCSRFFailed           = "CSRF_VALIDATION_FAILED"
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// InvalidCredentialsMessage は認証失敗時にユーザーへ表示する唯一のメッセージ。
// どのフィールドが誤っていたかは含めない。
const InvalidCredentialsMessage = "Invalid credentials. Access denied."

// NewInvalidCredentialsError は認証失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  InvalidCredentialsMessage,
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Sign in to the admin dashboard.",
	}
}

// NewValidationError は必須項目の欠落などの入力エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("%s %s", field, reason),
		Category: "validation",
		Action:   "Fill in the required fields and submit again.",
		Field:    field,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Failed to parse the request body.",
		Category: "validation",
		Action:   "Send a well-formed JSON body.",
	}
}

// NewMovieNotFoundError は映画未検出エラーを生成する。
func NewMovieNotFoundError(movieID string) *APIError {
	return &APIError{
		Code:     ErrCodeMovieNotFound,
		Message:  fmt.Sprintf("Movie not found: %s", movieID),
		Category: "catalog",
		Action:   "Reload the catalog; the movie may have been removed.",
	}
}

// NewBannerNotFoundError はバナー未検出エラーを生成する。
func NewBannerNotFoundError(bannerID string) *APIError {
	return &APIError{
		Code:     ErrCodeBannerNotFound,
		Message:  fmt.Sprintf("Banner not found: %s", bannerID),
		Category: "catalog",
		Action:   "Reload the dashboard; the banner may have been removed.",
	}
}

// NewMetadataNotFoundError はカテゴリ・ジャンル未検出エラーを生成する。
func NewMetadataNotFoundError(kind MetadataKind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeMetadataNotFound,
		Message:  fmt.Sprintf("%s not found: %s", kind, id),
		Category: "catalog",
		Action:   "Reload the dashboard; the entry may have been removed.",
	}
}

// NewConfirmationRequiredError は確認なしで破壊的操作が要求された場合のエラーを生成する。
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationRequired,
		Message:  "Are you sure you want to delete this movie?",
		Category: "validation",
		Action:   "Confirm the deletion to proceed. This cannot be undone.",
	}
}

// NewInvalidViewError は未知の画面名が指定された場合のエラーを生成する。
func NewInvalidViewError(view string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidView,
		Message:  fmt.Sprintf("Unknown view: %s", view),
		Category: "validation",
		Action:   "Use one of home, categories or search.",
	}
}

// NewCSRFFailedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the dashboard and try again.",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録すること。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong on our side.",
		Category: "system",
		Action:   "Please try again in a moment.",
	}
}

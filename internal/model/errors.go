// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Messageはクライアントにそのまま返すため、内部情報を含めてはならない。
type APIError struct {
	Code     string // エラーコード
	Message  string // クライアント向けメッセージ
	Category string // カテゴリ: validation, auth, not_found, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryNotFound   = "not_found"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeMissingEmail    = "MISSING_EMAIL"
	ErrCodeMissingPassword = "MISSING_PASSWORD"
	ErrCodePasswordTooLong = "PASSWORD_TOO_LONG"
	ErrCodeAlreadyExist    = "ALREADY_EXIST"
	ErrCodeMissingName     = "MISSING_NAME"
	ErrCodeMissingType     = "MISSING_TYPE"
	ErrCodeMissingData     = "MISSING_DATA"
	ErrCodeInvalidData     = "INVALID_DATA"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeParentNotFound  = "PARENT_NOT_FOUND"
	ErrCodeParentNotFolder = "PARENT_NOT_FOLDER"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

func newValidationError(code, message string) *APIError {
	return &APIError{Code: code, Message: message, Category: CategoryValidation}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
// トークン未指定・不正・期限切れを区別しない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: CategoryAuth,
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
// 他ユーザー所有のリソースに対しても同じエラーを返し、存在を漏らさない。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "Not found",
		Category: CategoryNotFound,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return newValidationError(ErrCodeInvalidRequest, "Invalid request body")
}

// NewMissingEmailError はメールアドレス未指定エラーを生成する。
func NewMissingEmailError() *APIError {
	return newValidationError(ErrCodeMissingEmail, "Missing email")
}

// NewMissingPasswordError はパスワード未指定エラーを生成する。
func NewMissingPasswordError() *APIError {
	return newValidationError(ErrCodeMissingPassword, "Missing password")
}

// NewPasswordTooLongError はハッシュ化できる長さを超えたパスワードのエラーを生成する。
func NewPasswordTooLongError() *APIError {
	return newValidationError(ErrCodePasswordTooLong, "Password too long")
}

// NewAlreadyExistError はメールアドレス重複エラーを生成する。
func NewAlreadyExistError() *APIError {
	return newValidationError(ErrCodeAlreadyExist, "Already exist")
}

// NewMissingNameError はファイル名未指定エラーを生成する。
func NewMissingNameError() *APIError {
	return newValidationError(ErrCodeMissingName, "Missing name")
}

// NewMissingTypeError は種別未指定または不正な種別のエラーを生成する。
func NewMissingTypeError() *APIError {
	return newValidationError(ErrCodeMissingType, "Missing type")
}

// NewMissingDataError はフォルダ以外でデータ未指定のエラーを生成する。
func NewMissingDataError() *APIError {
	return newValidationError(ErrCodeMissingData, "Missing data")
}

// NewInvalidDataError はBase64として解釈できないデータのエラーを生成する。
func NewInvalidDataError() *APIError {
	return newValidationError(ErrCodeInvalidData, "Invalid data")
}

// NewPayloadTooLargeError はリクエストボディが上限を超えた場合のエラーを生成する。
func NewPayloadTooLargeError() *APIError {
	return newValidationError(ErrCodePayloadTooLarge, "Payload too large")
}

// NewParentNotFoundError は親ファイル未検出エラーを生成する。
func NewParentNotFoundError() *APIError {
	return newValidationError(ErrCodeParentNotFound, "Parent not found")
}

// NewParentNotFolderError は親がフォルダでない場合のエラーを生成する。
func NewParentNotFolderError() *APIError {
	return newValidationError(ErrCodeParentNotFolder, "Parent is not a folder")
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Server error",
		Category: CategorySystem,
	}
}

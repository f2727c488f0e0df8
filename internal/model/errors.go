// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"sort"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, listing, submission, payment, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド単位の検証エラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(keys, ", "))
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUserExists          = "USER_EXISTS"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeListingNotFound     = "LISTING_NOT_FOUND"
	ErrCodeSubmissionNotFound  = "SUBMISSION_NOT_FOUND"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeStateMismatch       = "STATE_MISMATCH"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodePaymentNotConfirmed = "PAYMENT_NOT_CONFIRMED"
	ErrCodePaymentsDisabled    = "PAYMENTS_DISABLED"
	ErrCodeImageUploadDisabled = "IMAGE_UPLOAD_DISABLED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError はフィールド単位の検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目の入力内容を確認してください。",
		Fields:   fields,
	}
}

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUserExistsError はメールアドレス重複エラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "メールアドレスを確認するか、新規登録してください。",
	}
}

// NewListingNotFoundError は募集が見つからない場合のエラーを生成する。
func NewListingNotFoundError(listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("指定された募集が見つかりません: %s", listingID),
		Category: "listing",
		Action:   "募集IDを確認してください。",
	}
}

// NewSubmissionNotFoundError は応募が見つからない場合のエラーを生成する。
func NewSubmissionNotFoundError(submissionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionNotFound,
		Message:  fmt.Sprintf("指定された応募が見つかりません: %s", submissionID),
		Category: "submission",
		Action:   "応募IDを確認してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "募集の作成者としてログインしてください。",
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

// NewStateMismatchError はOAuth stateパラメータ不一致エラーを生成する。
func NewStateMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeStateMismatch,
		Message:  "stateパラメータが一致しません。",
		Category: "auth",
		Action:   "もう一度Googleログインをやり直してください。",
	}
}

// NewInvalidStateError はハンドオフコードが無効な場合のエラーを生成する。
// 未知・期限切れ・使用済みを区別しない。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "stateが無効です。",
		Category: "auth",
		Action:   "もう一度ログインをやり直してください。",
	}
}

// NewPaymentNotConfirmedError は決済が完了していない場合のエラーを生成する。
func NewPaymentNotConfirmedError(status string) *APIError {
	return &APIError{
		Code:     ErrCodePaymentNotConfirmed,
		Message:  fmt.Sprintf("決済が完了していません: %s", status),
		Category: "payment",
		Action:   "決済を完了してから再度お試しください。",
	}
}

// NewPaymentsDisabledError は決済機能が無効な場合のエラーを生成する。
func NewPaymentsDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodePaymentsDisabled,
		Message:  "決済機能は現在利用できません。",
		Category: "payment",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewImageUploadDisabledError は画像アップロードが無効な場合のエラーを生成する。
func NewImageUploadDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeImageUploadDisabled,
		Message:  "画像アップロードは現在利用できません。",
		Category: "validation",
		Action:   "画像URLを指定するか、画像なしで登録してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

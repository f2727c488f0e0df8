package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/roomie/internal/model"
)

const (
	// MinNameLength は名前の最小文字数。
	MinNameLength = 2
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 6
	// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
	MaxPasswordBytes = 72
)

// NormalizeEmail はメールアドレスの前後空白を除去し小文字にする。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isValidEmail はメールアドレスの構文を検証する。
// 表示名付き（"Name <a@b>"）の形式は受け付けない。
func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// ValidateSignup は登録入力を検証する。違反したすべての項目をFieldsに含める。
func ValidateSignup(name, email, password string) error {
	fields := make(map[string]string)

	if utf8.RuneCountInString(strings.TrimSpace(name)) < MinNameLength {
		fields["name"] = "名前は2文字以上で入力してください。"
	}
	if !isValidEmail(email) {
		fields["email"] = "メールアドレスの形式が正しくありません。"
	}
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		fields["password"] = "パスワードは6文字以上で入力してください。"
	case len(password) > MaxPasswordBytes:
		fields["password"] = "パスワードが長すぎます。"
	}

	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}

// ValidateSignin はログイン入力を検証する。
func ValidateSignin(email, password string) error {
	fields := make(map[string]string)

	if !isValidEmail(email) {
		fields["email"] = "メールアドレスの形式が正しくありません。"
	}
	if password == "" {
		fields["password"] = "パスワードを入力してください。"
	}

	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}

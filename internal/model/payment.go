package model

import "time"

// PackageType は募集公開プランの種別。
type PackageType string

const (
	// PackageMonthly は30日間公開するプラン。
	PackageMonthly PackageType = "monthly"
	// PackageUntilFound は見つかるまで（最長365日）公開するプラン。
	PackageUntilFound PackageType = "until-found"
)

// ParsePackageType は入力文字列をPackageTypeに変換する。
// "untilFound" も until-found の別名として受け付ける。
func ParsePackageType(s string) (PackageType, bool) {
	switch s {
	case string(PackageMonthly):
		return PackageMonthly, true
	case string(PackageUntilFound), "untilFound":
		return PackageUntilFound, true
	default:
		return "", false
	}
}

// AmountCents はプランの価格（セント単位）を返す。
func (p PackageType) AmountCents() int64 {
	switch p {
	case PackageMonthly:
		return 899
	case PackageUntilFound:
		return 1299
	default:
		return 0
	}
}

// Duration はプランの公開期間を返す。
func (p PackageType) Duration() time.Duration {
	switch p {
	case PackageMonthly:
		return 30 * 24 * time.Hour
	case PackageUntilFound:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// PaymentStatus は決済結果。
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment は募集公開のための決済記録を表す。
type Payment struct {
	ID                    string        `json:"_id" bson:"_id"`
	UserID                string        `json:"user" bson:"user"`
	ListingID             string        `json:"form" bson:"form"`
	PackageType           PackageType   `json:"packageType" bson:"packageType"`
	Amount                int64         `json:"amount" bson:"amount"`
	Currency              string        `json:"currency" bson:"currency"`
	ProviderTransactionID string        `json:"stripePaymentId" bson:"stripePaymentId"`
	Status                PaymentStatus `json:"paymentStatus" bson:"paymentStatus"`
	PaymentDate           time.Time     `json:"paymentDate" bson:"paymentDate"`
	CreatedAt             time.Time     `json:"createdAt" bson:"createdAt"`
}

package model

import "time"

// ContactPlatform は応募者の連絡手段の種別。
type ContactPlatform string

const (
	ContactWhatsApp  ContactPlatform = "whatsapp"
	ContactInstagram ContactPlatform = "instagram"
	ContactFacebook  ContactPlatform = "facebook"
	ContactEmail     ContactPlatform = "email"
	ContactPhone     ContactPlatform = "phone"
)

// Valid は定義済みの連絡手段かどうかを返す。
func (p ContactPlatform) Valid() bool {
	switch p {
	case ContactWhatsApp, ContactInstagram, ContactFacebook, ContactEmail, ContactPhone:
		return true
	default:
		return false
	}
}

// ContactChannel は連絡手段とそのアカウント名。
type ContactChannel struct {
	Platform ContactPlatform `json:"platform" bson:"platform"`
	Username string          `json:"username" bson:"username"`
}

// SubmitterProfile は応募者が入力するプロフィール。
type SubmitterProfile struct {
	Lifestyle   `bson:",inline"`
	ContactInfo []ContactChannel `json:"contactInfo" bson:"contactInfo"`
	Faculty     string           `json:"faculty" bson:"faculty"`
	Year        int              `json:"year" bson:"year"`
}

// Submission は募集への応募を表す。
// SubmitterUserIDは匿名応募の場合は空。
type Submission struct {
	ID              string           `json:"_id" bson:"_id"`
	ListingID       string           `json:"form" bson:"form"`
	Submitter       SubmitterProfile `json:"submitter" bson:"submitter"`
	SubmitterUserID string           `json:"submitterUserId,omitempty" bson:"submitterUserId,omitempty"`
	IsRead          bool             `json:"isRead" bson:"isRead"`
	CreatedAt       time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt" bson:"updatedAt"`
}

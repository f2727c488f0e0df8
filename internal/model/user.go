// Package model はドメインモデルを定義する。
package model

import "time"

// Lifestyle はユーザー・募集者・応募者が共有する生活スタイル情報。
type Lifestyle struct {
	Personality        string   `json:"personality,omitempty" bson:"personality,omitempty"`
	MorningOrLateNight string   `json:"morningOrLateNight,omitempty" bson:"morningOrLateNight,omitempty"`
	Cleanliness        string   `json:"cleanliness,omitempty" bson:"cleanliness,omitempty"`
	Partying           string   `json:"partying,omitempty" bson:"partying,omitempty"`
	Smoking            string   `json:"smoking,omitempty" bson:"smoking,omitempty"`
	Hobbies            []string `json:"hobbies,omitempty" bson:"hobbies,omitempty"`
}

// UserContactInfo はユーザーの連絡先情報。
type UserContactInfo struct {
	Instagram string `json:"instagram,omitempty" bson:"instagram,omitempty"`
}

// PrivacySettings はユーザーの公開設定。
type PrivacySettings struct {
	ShowLastName    bool `json:"showLastName" bson:"showLastName"`
	ShowContactInfo bool `json:"showContactInfo" bson:"showContactInfo"`
}

// User はサービス利用ユーザーを表す。
// メールアドレスは一意。GoogleIDは設定されている場合のみ一意。
type User struct {
	ID              string          `json:"_id" bson:"_id"`
	GoogleID        string          `json:"-" bson:"googleId,omitempty"`
	PasswordHash    string          `json:"-" bson:"password,omitempty"`
	Name            string          `json:"name" bson:"name"`
	Email           string          `json:"email" bson:"email"`
	Lifestyle       Lifestyle       `json:"lifestyle" bson:"lifestyle"`
	Faculty         string          `json:"faculty,omitempty" bson:"faculty,omitempty"`
	Year            int             `json:"year,omitempty" bson:"year,omitempty"`
	ContactInfo     UserContactInfo `json:"contactInfo" bson:"contactInfo"`
	CreatedListings []string        `json:"createdListings" bson:"createdListings"`
	Favorites       []string        `json:"favorites" bson:"favorites"`
	Privacy         PrivacySettings `json:"privacySettings" bson:"privacySettings"`
	CreatedAt       time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// HasPassword はパスワードログインが可能なアカウントかどうかを返す。
// Googleログインのみで作成されたアカウントはパスワードを持たない。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Caller は認証済みリクエストの発行者を表す。
// 資格情報（JWT）のクレームから復元される。
type Caller struct {
	UserID string
	Email  string
	Name   string
}

package model

import (
	"sort"
	"time"
)

const (
	// DefaultCurrency は通貨未指定時に使用する通貨コード。
	DefaultCurrency = "USD"
	// BoostDuration はブーストの有効期間。
	BoostDuration = 7 * 24 * time.Hour
)

// PriceRange は家賃の価格帯。
type PriceRange struct {
	Min float64 `json:"min" bson:"min"`
	Max float64 `json:"max" bson:"max"`
}

// RoomDetails は部屋の詳細情報。
type RoomDetails struct {
	Name             string     `json:"name" bson:"name"`
	Address          string     `json:"address" bson:"address"`
	NearbyUniversity string     `json:"nearbyUniversity" bson:"nearbyUniversity"`
	TotalBedrooms    int        `json:"totalBedrooms" bson:"totalBedrooms"`
	TotalBathrooms   int        `json:"totalBathrooms" bson:"totalBathrooms"`
	Description      string     `json:"description" bson:"description"`
	MonthlyRent      float64    `json:"monthlyRent" bson:"monthlyRent"`
	Currency         string     `json:"currency" bson:"currency"`
	SecurityDeposit  float64    `json:"securityDeposit" bson:"securityDeposit"`
	Images           []string   `json:"images" bson:"images"`
	Furniture        []string   `json:"furniture" bson:"furniture"`
	LeaseTerms       string     `json:"leaseTerms" bson:"leaseTerms"`
	PriceRange       PriceRange `json:"priceRange" bson:"priceRange"`
	NearbyLocations  []string   `json:"nearbyLocations" bson:"nearbyLocations"`
}

// OwnerDetails は募集者の自己紹介情報。
type OwnerDetails struct {
	Lifestyle       `bson:",inline"`
	Gender          string `json:"gender,omitempty" bson:"gender,omitempty"`
	PreferredGender string `json:"preferredGender,omitempty" bson:"preferredGender,omitempty"`
	Faculty         string `json:"faculty,omitempty" bson:"faculty,omitempty"`
	Year            int    `json:"year,omitempty" bson:"year,omitempty"`
}

// PreferenceFilters はルームメイトに求める条件。
type PreferenceFilters struct {
	Personality        string `json:"personality,omitempty" bson:"personality,omitempty"`
	Cleanliness        string `json:"cleanliness,omitempty" bson:"cleanliness,omitempty"`
	MorningOrLateNight string `json:"morningOrLateNight,omitempty" bson:"morningOrLateNight,omitempty"`
}

// Coordinates は緯度経度。
type Coordinates struct {
	Lat  float64 `json:"lat" bson:"lat"`
	Long float64 `json:"long" bson:"long"`
}

// CommuteTime は目的地までの通学・通勤時間。
type CommuteTime struct {
	Destination   string `json:"destination" bson:"destination"`
	TimeInMinutes int    `json:"timeInMinutes" bson:"timeInMinutes"`
}

// Location は物件の所在地情報。
type Location struct {
	Address      string        `json:"address" bson:"address"`
	Coordinates  Coordinates   `json:"coordinates" bson:"coordinates"`
	NearbyPlaces []string      `json:"nearbyPlaces" bson:"nearbyPlaces"`
	CommuteTimes []CommuteTime `json:"commuteTimes" bson:"commuteTimes"`
}

// Analytics は募集の閲覧・応募統計。
type Analytics struct {
	Views            int64   `json:"views" bson:"views"`
	ApplicationCount int64   `json:"applicationCount" bson:"applicationCount"`
	ResponseRate     float64 `json:"responseRate" bson:"responseRate"`
}

// ApplicationStatus は応募の審査状態を表す。
type ApplicationStatus string

const (
	// ApplicationStatusPending は未対応の応募。
	ApplicationStatusPending ApplicationStatus = "pending"
	// ApplicationStatusRejected は見送られた応募。
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Valid は定義済みの状態かどうかを返す。
func (s ApplicationStatus) Valid() bool {
	return s == ApplicationStatusPending || s == ApplicationStatusRejected
}

// ApplicationRef は募集に埋め込まれる応募の参照。
// 応募本体（Submission）が正であり、これは状態のキャッシュに過ぎない。
type ApplicationRef struct {
	SubmissionID string            `json:"submissionId" bson:"submissionId"`
	Status       ApplicationStatus `json:"status" bson:"status"`
}

// Listing はルームメイト募集（フォーム）を表す。
type Listing struct {
	ID             string            `json:"_id" bson:"_id"`
	OwnerID        string            `json:"owner" bson:"owner"`
	Room           RoomDetails       `json:"roomDetails" bson:"roomDetails"`
	Owner          OwnerDetails      `json:"ownerDetails" bson:"ownerDetails"`
	Filters        PreferenceFilters `json:"filters" bson:"filters"`
	Location       Location          `json:"location" bson:"location"`
	IsActive       bool              `json:"isActive" bson:"isActive"`
	BoostStatus    bool              `json:"boostStatus" bson:"boostStatus"`
	BoostedUntil   *time.Time        `json:"boostedUntil,omitempty" bson:"boostedUntil,omitempty"`
	PublishDate    *time.Time        `json:"publishDate,omitempty" bson:"publishDate,omitempty"`
	ExpirationDate *time.Time        `json:"expirationDate,omitempty" bson:"expirationDate,omitempty"`
	Analytics      Analytics         `json:"analytics" bson:"analytics"`
	Applications   []ApplicationRef  `json:"applications" bson:"applications"`
	CreatedAt      time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt" bson:"updatedAt"`

	// State は応答時に導出するライフサイクル状態。保存しない。
	State ListingState `json:"state,omitempty" bson:"-"`
}

// ListingState は募集のライフサイクル状態を表す。保存はせず都度導出する。
type ListingState string

const (
	ListingStateDraft     ListingState = "draft"
	ListingStatePublished ListingState = "published"
	ListingStateBoosted   ListingState = "boosted"
	ListingStateExpired   ListingState = "expired"
)

// StateAt は指定時刻における募集の状態を導出する。
func (l *Listing) StateAt(now time.Time) ListingState {
	if l.ExpirationDate != nil && now.After(*l.ExpirationDate) {
		return ListingStateExpired
	}
	if !l.IsActive {
		return ListingStateDraft
	}
	if l.IsBoostedAt(now) {
		return ListingStateBoosted
	}
	return ListingStatePublished
}

// IsBoostedAt は指定時刻にブーストが有効かどうかを返す。
func (l *Listing) IsBoostedAt(now time.Time) bool {
	return l.BoostStatus && l.BoostedUntil != nil && now.Before(*l.BoostedUntil)
}

// VisibleAt は一覧に表示される状態かどうかを返す。
func (l *Listing) VisibleAt(now time.Time) bool {
	s := l.StateAt(now)
	return s == ListingStatePublished || s == ListingStateBoosted
}

// SortForBrowse は一覧表示順（nowの時点で有効なブースト優先、公開日の新しい順）に並べ替える。
// ブースト期限を過ぎた募集は非ブーストとして扱う。公開日のない募集は末尾に置く。
func SortForBrowse(listings []*Listing, now time.Time) {
	sort.SliceStable(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if ab, bb := a.IsBoostedAt(now), b.IsBoostedAt(now); ab != bb {
			return ab
		}
		switch {
		case a.PublishDate == nil:
			return false
		case b.PublishDate == nil:
			return true
		default:
			return a.PublishDate.After(*b.PublishDate)
		}
	})
}

// ResponseRate は対応済み（pending以外）の応募の割合を返す。応募がなければ0。
func ResponseRate(apps []ApplicationRef) float64 {
	if len(apps) == 0 {
		return 0
	}
	responded := 0
	for _, a := range apps {
		if a.Status != ApplicationStatusPending {
			responded++
		}
	}
	return float64(responded) / float64(len(apps))
}

// ListingFilter は募集一覧の検索条件。
type ListingFilter struct {
	University string
	MinPrice   *float64
	MaxPrice   *float64
	Order      ListingOrder
}

// ListingOrder は公開中募集の並び順。
type ListingOrder int

const (
	// OrderBoostedFirst は有効なブーストを優先し、公開日の新しい順に並べる（一覧表示）。
	OrderBoostedFirst ListingOrder = iota
	// OrderNewest は公開日の新しい順に並べる（RSSフィード）。
	OrderNewest
)

// ListingPatch は募集者が更新できる項目のみを持つ部分更新。
// nilのフィールドは変更しない。
type ListingPatch struct {
	Description *string       `json:"description"`
	Currency    *string       `json:"currency"`
	IsActive    *bool         `json:"isActive"`
	Owner       *OwnerDetails `json:"ownerDetails"`
}

// IsEmpty は更新項目が一つもないかどうかを返す。
func (p ListingPatch) IsEmpty() bool {
	return p.Description == nil && p.Currency == nil && p.IsActive == nil && p.Owner == nil
}

package listing

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/security"
)

const (
	maxDescriptionLength = 5000
	maxImages            = 10
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// SanitizeLifestyle は生活スタイル情報の自由記述をサニタイズする。
// 応募者プロフィールでも使用する。
func SanitizeLifestyle(s security.TextSanitizer, l model.Lifestyle) model.Lifestyle {
	return model.Lifestyle{
		Personality:        s.SanitizeText(l.Personality),
		MorningOrLateNight: s.SanitizeText(l.MorningOrLateNight),
		Cleanliness:        s.SanitizeText(l.Cleanliness),
		Partying:           s.SanitizeText(l.Partying),
		Smoking:            s.SanitizeText(l.Smoking),
		Hobbies:            security.SanitizeAll(s, l.Hobbies),
	}
}

func (s *Service) sanitizeOwner(o model.OwnerDetails) model.OwnerDetails {
	o.Lifestyle = SanitizeLifestyle(s.sanitizer, o.Lifestyle)
	o.Gender = s.sanitizer.SanitizeText(o.Gender)
	o.PreferredGender = s.sanitizer.SanitizeText(o.PreferredGender)
	o.Faculty = s.sanitizer.SanitizeText(o.Faculty)
	return o
}

func (s *Service) sanitizeInput(in CreateInput) CreateInput {
	san := s.sanitizer
	r := &in.Room
	r.Name = san.SanitizeText(r.Name)
	r.Address = san.SanitizeText(r.Address)
	r.NearbyUniversity = san.SanitizeText(r.NearbyUniversity)
	r.Description = san.SanitizeText(r.Description)
	r.LeaseTerms = san.SanitizeText(r.LeaseTerms)
	r.Currency = normalizeCurrency(r.Currency)
	r.Furniture = security.SanitizeAll(san, r.Furniture)
	r.NearbyLocations = security.SanitizeAll(san, r.NearbyLocations)
	r.Images = cleanImageURLs(r.Images)

	in.Owner = s.sanitizeOwner(in.Owner)
	in.Filters = model.PreferenceFilters{
		Personality:        san.SanitizeText(in.Filters.Personality),
		Cleanliness:        san.SanitizeText(in.Filters.Cleanliness),
		MorningOrLateNight: san.SanitizeText(in.Filters.MorningOrLateNight),
	}

	loc := &in.Location
	loc.Address = san.SanitizeText(loc.Address)
	loc.NearbyPlaces = security.SanitizeAll(san, loc.NearbyPlaces)
	commutes := make([]model.CommuteTime, 0, len(loc.CommuteTimes))
	for _, c := range loc.CommuteTimes {
		if dest := san.SanitizeText(c.Destination); dest != "" {
			commutes = append(commutes, model.CommuteTime{Destination: dest, TimeInMinutes: c.TimeInMinutes})
		}
	}
	loc.CommuteTimes = commutes
	return in
}

func (s *Service) validateCreate(in CreateInput) error {
	fields := make(map[string]string)
	r := in.Room

	if r.Name == "" {
		fields["roomDetails.name"] = "物件名を入力してください。"
	}
	if r.Address == "" {
		fields["roomDetails.address"] = "住所を入力してください。"
	}
	if r.MonthlyRent < 0 || math.IsNaN(r.MonthlyRent) || math.IsInf(r.MonthlyRent, 0) {
		fields["roomDetails.monthlyRent"] = "家賃は0以上の数値で入力してください。"
	}
	if r.SecurityDeposit < 0 {
		fields["roomDetails.securityDeposit"] = "敷金は0以上の数値で入力してください。"
	}
	if r.TotalBedrooms < 0 {
		fields["roomDetails.totalBedrooms"] = "寝室数は0以上で入力してください。"
	}
	if r.TotalBathrooms < 0 {
		fields["roomDetails.totalBathrooms"] = "浴室数は0以上で入力してください。"
	}
	if r.PriceRange.Min < 0 || r.PriceRange.Max < 0 ||
		(r.PriceRange.Max > 0 && r.PriceRange.Min > r.PriceRange.Max) {
		fields["roomDetails.priceRange"] = "価格帯の指定が正しくありません。"
	}
	if len([]rune(r.Description)) > maxDescriptionLength {
		fields["roomDetails.description"] = fmt.Sprintf("説明は%d文字以内で入力してください。", maxDescriptionLength)
	}
	if !currencyPattern.MatchString(r.Currency) {
		fields["roomDetails.currency"] = "通貨は3文字の通貨コードで指定してください。"
	}
	if len(r.Images) > maxImages {
		fields["roomDetails.images"] = fmt.Sprintf("画像は%d枚までです。", maxImages)
	}
	for _, img := range r.Images {
		if err := s.urls.ValidateImageURL(img); err != nil {
			fields["roomDetails.images"] = "画像URLはhttpsの公開URLを指定してください。"
			break
		}
	}
	if in.Owner.Year < 0 {
		fields["ownerDetails.year"] = "学年は0以上で入力してください。"
	}
	c := in.Location.Coordinates
	if c.Lat < -90 || c.Lat > 90 || c.Long < -180 || c.Long > 180 {
		fields["location.coordinates"] = "座標の範囲が正しくありません。"
	}
	for _, ct := range in.Location.CommuteTimes {
		if ct.TimeInMinutes < 0 {
			fields["location.commuteTimes"] = "所要時間は0以上で入力してください。"
			break
		}
	}

	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}

func (s *Service) sanitizePatch(p model.ListingPatch) model.ListingPatch {
	if p.Description != nil {
		d := s.sanitizer.SanitizeText(*p.Description)
		p.Description = &d
	}
	if p.Currency != nil {
		c := normalizeCurrency(*p.Currency)
		p.Currency = &c
	}
	if p.Owner != nil {
		o := s.sanitizeOwner(*p.Owner)
		p.Owner = &o
	}
	return p
}

// validatePatch は部分更新を検証する。
// 公開は決済を経由するため、有効期限の切れた募集や下書きを直接有効にはできない。
func validatePatch(p model.ListingPatch, current *model.Listing, now time.Time) error {
	fields := make(map[string]string)

	if p.Description != nil && len([]rune(*p.Description)) > maxDescriptionLength {
		fields["description"] = fmt.Sprintf("説明は%d文字以内で入力してください。", maxDescriptionLength)
	}
	if p.Currency != nil && !currencyPattern.MatchString(*p.Currency) {
		fields["currency"] = "通貨は3文字の通貨コードで指定してください。"
	}
	if p.IsActive != nil && *p.IsActive {
		if current.ExpirationDate == nil || !now.Before(*current.ExpirationDate) {
			fields["isActive"] = "公開するには掲載プランの購入が必要です。"
		}
	}
	if p.Owner != nil && p.Owner.Year < 0 {
		fields["ownerDetails.year"] = "学年は0以上で入力してください。"
	}

	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}

// ParseFilter はクエリパラメータから一覧の検索条件を生成する。
// university, minPrice, maxPrice を受け付け、数値として解釈できない場合や
// 下限が上限を上回る場合はVALIDATION_ERRORを返す。
func ParseFilter(q url.Values) (model.ListingFilter, error) {
	filter := model.ListingFilter{University: strings.TrimSpace(q.Get("university"))}
	fields := make(map[string]string)

	parse := func(key string) *float64 {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			fields[key] = "0以上の数値で指定してください。"
			return nil
		}
		return &v
	}
	filter.MinPrice = parse("minPrice")
	filter.MaxPrice = parse("maxPrice")

	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		fields["minPrice"] = "下限は上限以下で指定してください。"
	}
	if len(fields) > 0 {
		return model.ListingFilter{}, model.NewValidationError(fields)
	}
	return filter, nil
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return model.DefaultCurrency
	}
	return c
}

func cleanImageURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

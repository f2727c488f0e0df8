// Package listing は募集（フォーム）のライフサイクル管理のドメインロジックを提供する。
//
// 募集は下書き（isActive=false）として作成され、決済確認後のPublishでのみ公開される。
// 公開中の募集は有効期限を過ぎると、expiryワーカーの実行有無にかかわらず一覧から除外される。
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/roomie/internal/media"
	"github.com/hitoshi/roomie/internal/metrics"
	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/repository"
	"github.com/hitoshi/roomie/internal/security"
)

// FavoriteAction はお気に入り切り替えの結果を表す。
type FavoriteAction string

const (
	FavoriteAdded   FavoriteAction = "added"
	FavoriteRemoved FavoriteAction = "removed"
)

// ImageURLValidator は募集画像URLの検証インターフェース。
type ImageURLValidator interface {
	ValidateImageURL(rawURL string) error
}

// CreateInput は募集作成の入力。
type CreateInput struct {
	Room     model.RoomDetails       `json:"roomDetails"`
	Owner    model.OwnerDetails      `json:"ownerDetails"`
	Filters  model.PreferenceFilters `json:"filters"`
	Location model.Location          `json:"location"`
}

// Service は募集ライフサイクルのサービス層。
type Service struct {
	listings  repository.ListingRepository
	users     repository.UserRepository
	sanitizer security.TextSanitizer
	urls      ImageURLValidator
	images    media.ImageStore
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// imagesがnilの場合、画像アップロードはIMAGE_UPLOAD_DISABLEDで拒否される。
func NewService(
	listings repository.ListingRepository,
	users repository.UserRepository,
	sanitizer security.TextSanitizer,
	urls ImageURLValidator,
	images media.ImageStore,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		listings:  listings,
		users:     users,
		sanitizer: sanitizer,
		urls:      urls,
		images:    images,
		metrics:   collector,
		now:       time.Now,
	}
}

// CallerOwns は呼び出し元が募集の作成者かどうかを判定する。
// 募集・応募・決済の全ての変更操作はこの判定を通す。
func CallerOwns(listing *model.Listing, callerID string) bool {
	return listing != nil && callerID != "" && listing.OwnerID == callerID
}

// OwnedListing は募集を取得し、呼び出し元が作成者であることを確認する。
// 募集がなければLISTING_NOT_FOUND、作成者でなければFORBIDDENを返す。
func (s *Service) OwnedListing(ctx context.Context, callerID, listingID string) (*model.Listing, error) {
	listing, err := s.Find(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !CallerOwns(listing, callerID) {
		slog.Warn("listing ownership check failed",
			slog.String("listing_id", listingID),
			slog.String("caller_id", callerID),
		)
		return nil, model.NewForbiddenError()
	}
	return listing, nil
}

// Find は閲覧数を変えずに募集を取得する。見つからない場合はLISTING_NOT_FOUNDを返す。
func (s *Service) Find(ctx context.Context, listingID string) (*model.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("募集の取得に失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}
	return listing, nil
}

// Create は募集を下書きとして作成し、作成者の作成済み募集に追加する。
// imageが指定された場合はオブジェクトストレージに保存し、画像一覧の先頭に置く。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput, image *media.Upload) (*model.Listing, error) {
	in = s.sanitizeInput(in)
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	if image != nil {
		if s.images == nil {
			return nil, model.NewImageUploadDisabledError()
		}
		url, err := media.Store(ctx, s.images, ownerID, *image)
		if err != nil {
			if isImageRejected(err) {
				return nil, model.NewValidationError(map[string]string{"image": imageErrorMessage(err)})
			}
			return nil, fmt.Errorf("画像の保存に失敗しました: %w", err)
		}
		in.Room.Images = append([]string{url}, in.Room.Images...)
	}

	now := s.now().UTC()
	listing := &model.Listing{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Room:         in.Room,
		Owner:        in.Owner,
		Filters:      in.Filters,
		Location:     in.Location,
		Applications: []model.ApplicationRef{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("募集の作成に失敗しました: %w", err)
	}
	// 作成者はowner_idから辿れるため、作成済み一覧への追加失敗では作成を失敗扱いにしない
	if err := s.users.AddCreatedListing(ctx, ownerID, listing.ID); err != nil {
		slog.Error("failed to add created listing",
			slog.String("listing_id", listing.ID),
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.RecordListingCreated()
	slog.Info("listing created",
		slog.String("listing_id", listing.ID),
		slog.String("owner_id", ownerID),
	)
	return listing, nil
}

// Publish は募集を公開する。決済確認後に決済サービスからのみ呼ばれる。
// 公開日はnow、有効期限はnowにプランの期間を加えた日時になる。
func (s *Service) Publish(ctx context.Context, listingID string, pkg model.PackageType, now time.Time) (*model.Listing, error) {
	if pkg.Duration() <= 0 {
		return nil, model.NewValidationError(map[string]string{"packageType": "プランが不正です。"})
	}
	publishDate := now.UTC()
	expiration := publishDate.Add(pkg.Duration())

	listing, err := s.listings.Publish(ctx, listingID, publishDate, expiration)
	if err != nil {
		return nil, fmt.Errorf("募集の公開に失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}

	s.metrics.RecordListingPublished(string(pkg))
	slog.Info("listing published",
		slog.String("listing_id", listingID),
		slog.String("package", string(pkg)),
		slog.Time("expiration_date", expiration),
	)
	return listing, nil
}

// Boost は募集のブーストを有効にする。作成者以外はFORBIDDENとなり状態は変わらない。
func (s *Service) Boost(ctx context.Context, callerID, listingID string) (*model.Listing, error) {
	if _, err := s.OwnedListing(ctx, callerID, listingID); err != nil {
		return nil, err
	}

	until := s.now().UTC().Add(model.BoostDuration)
	listing, err := s.listings.Boost(ctx, listingID, until)
	if err != nil {
		return nil, fmt.Errorf("ブーストに失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}

	s.metrics.RecordListingBoosted()
	slog.Info("listing boosted",
		slog.String("listing_id", listingID),
		slog.Time("boosted_until", until),
	)
	return listing, nil
}

// Update は許可された項目のみを更新する。
// isActive=trueは有効期限が未来の募集（決済済み）にのみ指定できる。
func (s *Service) Update(ctx context.Context, callerID, listingID string, patch model.ListingPatch) (*model.Listing, error) {
	current, err := s.OwnedListing(ctx, callerID, listingID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	patch = s.sanitizePatch(patch)
	if err := validatePatch(patch, current, s.now()); err != nil {
		return nil, err
	}

	updated, err := s.listings.ApplyPatch(ctx, listingID, patch)
	if err != nil {
		return nil, fmt.Errorf("募集の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}
	return updated, nil
}

// List は公開中の募集をブースト優先、公開日の新しい順に返す。
// ブーストは期限内のものだけを優先し、expiryワーカーが未実行でも期限切れは反映される。
func (s *Service) List(ctx context.Context, filter model.ListingFilter) ([]*model.Listing, error) {
	now := s.now().UTC()
	listings, err := s.listings.FindVisible(ctx, filter, now, repository.BrowseLimit)
	if err != nil {
		return nil, fmt.Errorf("募集一覧の取得に失敗しました: %w", err)
	}
	listings = slices.DeleteFunc(listings, func(l *model.Listing) bool { return !l.VisibleAt(now) })
	model.SortForBrowse(listings, now)
	withState(now, listings...)
	return listings, nil
}

// Get は募集を取得し、閲覧数を1増やす。
func (s *Service) Get(ctx context.Context, listingID string) (*model.Listing, error) {
	listing, err := s.listings.IncrementViews(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("募集の取得に失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}
	withState(s.now().UTC(), listing)
	return listing, nil
}

// ListByOwner は指定ユーザーが作成した募集を新しい順に返す。
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error) {
	listings, err := s.listings.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("作成した募集の取得に失敗しました: %w", err)
	}
	withState(s.now().UTC(), listings...)
	return listings, nil
}

// withState は応答用に各募集の状態を導出して設定する。
func withState(now time.Time, listings ...*model.Listing) {
	for _, l := range listings {
		l.State = l.StateAt(now)
	}
}

// ToggleFavorite はお気に入りを切り替え、実行された操作を返す。
func (s *Service) ToggleFavorite(ctx context.Context, userID, listingID string) (FavoriteAction, error) {
	if _, err := s.Find(ctx, listingID); err != nil {
		return "", err
	}

	added, err := s.users.AddFavorite(ctx, userID, listingID)
	if err != nil {
		return "", fmt.Errorf("お気に入りの追加に失敗しました: %w", err)
	}
	if added {
		return FavoriteAdded, nil
	}

	if _, err := s.users.RemoveFavorite(ctx, userID, listingID); err != nil {
		return "", fmt.Errorf("お気に入りの削除に失敗しました: %w", err)
	}
	return FavoriteRemoved, nil
}

func isImageRejected(err error) bool {
	return errors.Is(err, media.ErrUnsupportedImageType) ||
		errors.Is(err, media.ErrImageTooLarge) ||
		errors.Is(err, media.ErrEmptyImage)
}

func imageErrorMessage(err error) string {
	switch {
	case errors.Is(err, media.ErrImageTooLarge):
		return "画像は5MB以下にしてください。"
	case errors.Is(err, media.ErrEmptyImage):
		return "画像ファイルが空です。"
	default:
		return "画像はJPEG、PNG、WebPのいずれかにしてください。"
	}
}

package listing

import (
	"context"
	"io"
	"time"

	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/repository"
)

// --- モック定義 ---

type mockListingRepo struct {
	createFn            func(ctx context.Context, l *model.Listing) error
	findByIDFn          func(ctx context.Context, id string) (*model.Listing, error)
	findVisibleFn       func(ctx context.Context, f model.ListingFilter, now time.Time, limit int) ([]*model.Listing, error)
	findByOwnerFn       func(ctx context.Context, ownerID string) ([]*model.Listing, error)
	incrementViewsFn    func(ctx context.Context, id string) (*model.Listing, error)
	applyPatchFn        func(ctx context.Context, id string, p model.ListingPatch) (*model.Listing, error)
	publishFn           func(ctx context.Context, id string, publishDate, expirationDate time.Time) (*model.Listing, error)
	boostFn             func(ctx context.Context, id string, until time.Time) (*model.Listing, error)
	updateAppStatusFn   func(ctx context.Context, listingID, submissionID string, status model.ApplicationStatus) (*model.Listing, error)
	setResponseRateFn   func(ctx context.Context, id string, rate float64) error
	deactivateExpiredFn func(ctx context.Context, now time.Time) (int64, error)
	clearBoostsFn       func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockListingRepo) Create(ctx context.Context, l *model.Listing) error {
	if m.createFn != nil {
		return m.createFn(ctx, l)
	}
	return nil
}

func (m *mockListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockListingRepo) FindByIDs(context.Context, []string) ([]*model.Listing, error) {
	return []*model.Listing{}, nil
}

func (m *mockListingRepo) FindVisible(ctx context.Context, f model.ListingFilter, now time.Time, limit int) ([]*model.Listing, error) {
	if m.findVisibleFn != nil {
		return m.findVisibleFn(ctx, f, now, limit)
	}
	return []*model.Listing{}, nil
}

func (m *mockListingRepo) FindByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error) {
	if m.findByOwnerFn != nil {
		return m.findByOwnerFn(ctx, ownerID)
	}
	return []*model.Listing{}, nil
}

func (m *mockListingRepo) IncrementViews(ctx context.Context, id string) (*model.Listing, error) {
	if m.incrementViewsFn != nil {
		return m.incrementViewsFn(ctx, id)
	}
	return nil, nil
}

func (m *mockListingRepo) ApplyPatch(ctx context.Context, id string, p model.ListingPatch) (*model.Listing, error) {
	if m.applyPatchFn != nil {
		return m.applyPatchFn(ctx, id, p)
	}
	return nil, nil
}

func (m *mockListingRepo) Publish(ctx context.Context, id string, publishDate, expirationDate time.Time) (*model.Listing, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, id, publishDate, expirationDate)
	}
	return nil, nil
}

func (m *mockListingRepo) Boost(ctx context.Context, id string, until time.Time) (*model.Listing, error) {
	if m.boostFn != nil {
		return m.boostFn(ctx, id, until)
	}
	return nil, nil
}

func (m *mockListingRepo) UpdateApplicationStatus(ctx context.Context, listingID, submissionID string, status model.ApplicationStatus) (*model.Listing, error) {
	if m.updateAppStatusFn != nil {
		return m.updateAppStatusFn(ctx, listingID, submissionID, status)
	}
	return nil, nil
}

func (m *mockListingRepo) SetResponseRate(ctx context.Context, id string, rate float64) error {
	if m.setResponseRateFn != nil {
		return m.setResponseRateFn(ctx, id, rate)
	}
	return nil
}

func (m *mockListingRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.deactivateExpiredFn != nil {
		return m.deactivateExpiredFn(ctx, now)
	}
	return 0, nil
}

func (m *mockListingRepo) ClearLapsedBoosts(ctx context.Context, now time.Time) (int64, error) {
	if m.clearBoostsFn != nil {
		return m.clearBoostsFn(ctx, now)
	}
	return 0, nil
}

type mockUserRepo struct {
	addCreatedListingFn func(ctx context.Context, userID, listingID string) error
	addFavoriteFn       func(ctx context.Context, userID, listingID string) (bool, error)
	removeFavoriteFn    func(ctx context.Context, userID, listingID string) (bool, error)
}

func (m *mockUserRepo) FindByID(context.Context, string) (*model.User, error)       { return nil, nil }
func (m *mockUserRepo) FindByEmail(context.Context, string) (*model.User, error)    { return nil, nil }
func (m *mockUserRepo) FindByGoogleID(context.Context, string) (*model.User, error) { return nil, nil }
func (m *mockUserRepo) Create(context.Context, *model.User) error                   { return nil }

func (m *mockUserRepo) UpsertByGoogleID(_ context.Context, u *model.User) (*model.User, error) {
	return u, nil
}

func (m *mockUserRepo) AddCreatedListing(ctx context.Context, userID, listingID string) error {
	if m.addCreatedListingFn != nil {
		return m.addCreatedListingFn(ctx, userID, listingID)
	}
	return nil
}

func (m *mockUserRepo) AddFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	if m.addFavoriteFn != nil {
		return m.addFavoriteFn(ctx, userID, listingID)
	}
	return true, nil
}

func (m *mockUserRepo) RemoveFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	if m.removeFavoriteFn != nil {
		return m.removeFavoriteFn(ctx, userID, listingID)
	}
	return true, nil
}

type mockImageStore struct {
	putFn func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

func (m *mockImageStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	return m.putFn(ctx, key, r, size, contentType)
}

type recordingMetrics struct {
	created   int
	published []string
	boosted   int
}

func (r *recordingMetrics) RecordSignup(string)                {}
func (r *recordingMetrics) RecordLogin(string, string)         {}
func (r *recordingMetrics) RecordHandoffVerification(string)   {}
func (r *recordingMetrics) RecordListingCreated()              { r.created++ }
func (r *recordingMetrics) RecordListingPublished(pkg string)  { r.published = append(r.published, pkg) }
func (r *recordingMetrics) RecordListingBoosted()              { r.boosted++ }
func (r *recordingMetrics) RecordSubmission(bool)              {}
func (r *recordingMetrics) RecordListingsExpired(int64)        {}
func (r *recordingMetrics) RecordBoostsCleared(int64)          {}
func (r *recordingMetrics) RecordHTTPStatus(int)               {}
func (r *recordingMetrics) RecordRequestLatency(time.Duration) {}

// --- compile-time interface checks ---
var _ repository.ListingRepository = (*mockListingRepo)(nil)
var _ repository.UserRepository = (*mockUserRepo)(nil)

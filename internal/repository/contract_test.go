package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/roomie/internal/model"
)

// repoSet はストレージ実装ごとのリポジトリ一式。
type repoSet struct {
	users       UserRepository
	listings    ListingRepository
	submissions SubmissionRepository
	payments    PaymentRepository
}

// runRepositoryContract はPostgreSQL実装とMongoDB実装が同じ振る舞いをすることを検証する。
// setupは各サブテストの前に呼ばれ、空のストアを返す。
func runRepositoryContract(t *testing.T, setup func(t *testing.T) repoSet) {
	t.Run("User_CreateAndFind", func(t *testing.T) { testUserCreateAndFind(t, setup(t)) })
	t.Run("User_UpsertByGoogleID", func(t *testing.T) { testUserUpsertByGoogleID(t, setup(t)) })
	t.Run("User_Favorites", func(t *testing.T) { testUserFavorites(t, setup(t)) })
	t.Run("Listing_Visibility", func(t *testing.T) { testListingVisibility(t, setup(t)) })
	t.Run("Listing_LapsedBoostOrder", func(t *testing.T) { testListingLapsedBoostOrder(t, setup(t)) })
	t.Run("Listing_PatchAndViews", func(t *testing.T) { testListingPatchAndViews(t, setup(t)) })
	t.Run("Listing_Sweeps", func(t *testing.T) { testListingSweeps(t, setup(t)) })
	t.Run("Submission_Lifecycle", func(t *testing.T) { testSubmissionLifecycle(t, setup(t)) })
	t.Run("Submission_MissingListing", func(t *testing.T) { testSubmissionMissingListing(t, setup(t)) })
	t.Run("Payment_Idempotency", func(t *testing.T) { testPaymentIdempotency(t, setup(t)) })
}

// --- フィクスチャ ---

func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func mustCreateUser(t *testing.T, repos repoSet, email string) *model.User {
	t.Helper()
	now := baseTime()
	u := &model.User{
		ID:           uuid.NewString(),
		PasswordHash: "hash",
		Name:         "Test User",
		Email:        email,
		Lifestyle:    model.Lifestyle{Personality: "introvert", Hobbies: []string{"chess"}},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repos.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func mustCreateListing(t *testing.T, repos repoSet, ownerID string, university string, rent float64) *model.Listing {
	t.Helper()
	now := baseTime()
	l := &model.Listing{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Room: model.RoomDetails{
			Name:             "Sunny room",
			NearbyUniversity: university,
			MonthlyRent:      rent,
			Currency:         model.DefaultCurrency,
			Description:      "near campus",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.listings.Create(context.Background(), l); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

// --- テスト ---

func testUserCreateAndFind(t *testing.T, repos repoSet) {
	ctx := context.Background()
	u := mustCreateUser(t, repos, "alice@example.com")

	got, err := repos.users.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil || got.Email != u.Email || got.Lifestyle.Personality != "introvert" {
		t.Fatalf("FindByID = %+v", got)
	}
	if !got.HasPassword() {
		t.Error("expected password hash to be stored")
	}

	byEmail, err := repos.users.FindByEmail(ctx, "alice@example.com")
	if err != nil || byEmail == nil || byEmail.ID != u.ID {
		t.Fatalf("FindByEmail = %+v, %v", byEmail, err)
	}

	missing, err := repos.users.FindByID(ctx, uuid.NewString())
	if err != nil || missing != nil {
		t.Errorf("FindByID(missing) = %+v, %v; want nil, nil", missing, err)
	}

	dup := &model.User{ID: uuid.NewString(), Name: "Other", Email: "alice@example.com", CreatedAt: baseTime(), UpdatedAt: baseTime()}
	if err := repos.users.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create(duplicate email) error = %v, want ErrDuplicate", err)
	}
}

func testUserUpsertByGoogleID(t *testing.T, repos repoSet) {
	ctx := context.Background()
	now := baseTime()
	candidate := func() *model.User {
		return &model.User{
			ID: uuid.NewString(), GoogleID: "google-sub-1", Name: "Bob",
			Email: "bob@example.com", CreatedAt: now, UpdatedAt: now,
		}
	}

	first, err := repos.users.UpsertByGoogleID(ctx, candidate())
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := repos.users.UpsertByGoogleID(ctx, candidate())
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("upsert created two users: %s and %s", first.ID, second.ID)
	}
	if first.HasPassword() {
		t.Error("google user should not have a password")
	}

	// パスワード登録済みユーザーへの連携
	carol := mustCreateUser(t, repos, "carol@example.com")
	linked, err := repos.users.UpsertByGoogleID(ctx, &model.User{
		ID: uuid.NewString(), GoogleID: "google-sub-2", Name: "Carol",
		Email: "carol@example.com", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("link upsert: %v", err)
	}
	if linked.ID != carol.ID || linked.GoogleID != "google-sub-2" {
		t.Errorf("linked = %+v, want existing user %s with google id", linked, carol.ID)
	}

	// 別のGoogleアカウントに連携済みのメールアドレス
	_, err = repos.users.UpsertByGoogleID(ctx, &model.User{
		ID: uuid.NewString(), GoogleID: "google-sub-3", Name: "Mallory",
		Email: "carol@example.com", CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("conflicting upsert error = %v, want ErrDuplicate", err)
	}
}

func testUserFavorites(t *testing.T, repos repoSet) {
	ctx := context.Background()
	u := mustCreateUser(t, repos, "fav@example.com")
	l := mustCreateListing(t, repos, u.ID, "UBC", 700)

	changed, err := repos.users.AddFavorite(ctx, u.ID, l.ID)
	if err != nil || !changed {
		t.Fatalf("AddFavorite = %v, %v; want true", changed, err)
	}
	changed, err = repos.users.AddFavorite(ctx, u.ID, l.ID)
	if err != nil || changed {
		t.Fatalf("AddFavorite(again) = %v, %v; want false", changed, err)
	}

	got, _ := repos.users.FindByID(ctx, u.ID)
	if len(got.Favorites) != 1 || got.Favorites[0] != l.ID {
		t.Errorf("favorites = %v", got.Favorites)
	}

	changed, err = repos.users.RemoveFavorite(ctx, u.ID, l.ID)
	if err != nil || !changed {
		t.Fatalf("RemoveFavorite = %v, %v; want true", changed, err)
	}
	changed, err = repos.users.RemoveFavorite(ctx, u.ID, l.ID)
	if err != nil || changed {
		t.Fatalf("RemoveFavorite(again) = %v, %v; want false", changed, err)
	}

	if err := repos.users.AddCreatedListing(ctx, u.ID, l.ID); err != nil {
		t.Fatalf("AddCreatedListing: %v", err)
	}
	got, _ = repos.users.FindByID(ctx, u.ID)
	if len(got.CreatedListings) != 1 || got.CreatedListings[0] != l.ID {
		t.Errorf("createdListings = %v", got.CreatedListings)
	}
}

// testListingLapsedBoostOrder はブースト期限を過ぎた募集が、期限切れ処理の実行前でも
// 一覧で優先されないことを検証する。
func testListingLapsedBoostOrder(t *testing.T, repos repoSet) {
	ctx := context.Background()
	now := baseTime()
	owner := mustCreateUser(t, repos, "lapsed@example.com")

	a := mustCreateListing(t, repos, owner.ID, "UBC", 700)
	b := mustCreateListing(t, repos, owner.ID, "UBC", 750)
	if _, err := repos.listings.Publish(ctx, a.ID, now.Add(-72*time.Hour), now.Add(30*24*time.Hour)); err != nil {
		t.Fatalf("Publish(A): %v", err)
	}
	if _, err := repos.listings.Publish(ctx, b.ID, now.Add(-time.Hour), now.Add(30*24*time.Hour)); err != nil {
		t.Fatalf("Publish(B): %v", err)
	}
	// Aのブーストは既に期限切れだが、boost_statusはまだ解除されていない
	if _, err := repos.listings.Boost(ctx, a.ID, now.Add(-time.Minute)); err != nil {
		t.Fatalf("Boost(A): %v", err)
	}

	visible, err := repos.listings.FindVisible(ctx, model.ListingFilter{}, now, BrowseLimit)
	if err != nil {
		t.Fatalf("FindVisible: %v", err)
	}
	if len(visible) != 2 || visible[0].ID != b.ID || visible[1].ID != a.ID {
		t.Errorf("order = %v, want [B A]", listingIDs(visible))
	}

	newest, err := repos.listings.FindVisible(ctx, model.ListingFilter{Order: model.OrderNewest}, now, 1)
	if err != nil || len(newest) != 1 || newest[0].ID != b.ID {
		t.Errorf("FindVisible(newest, limit=1) = %v, %v; want [B]", listingIDs(newest), err)
	}
}

func listingIDs(ls []*model.Listing) []string {
	ids := make([]string, 0, len(ls))
	for _, l := range ls {
		ids = append(ids, l.ID)
	}
	return ids
}

func testListingVisibility(t *testing.T, repos repoSet) {
	ctx := context.Background()
	now := baseTime()
	owner := mustCreateUser(t, repos, "owner@example.com")

	draft := mustCreateListing(t, repos, owner.ID, "UBC", 600)
	older := mustCreateListing(t, repos, owner.ID, "UBC", 800)
	newer := mustCreateListing(t, repos, owner.ID, "SFU", 900)
	boosted := mustCreateListing(t, repos, owner.ID, "UBC", 1000)
	expired := mustCreateListing(t, repos, owner.ID, "UBC", 500)

	mustPublish := func(id string, pub, exp time.Time) {
		t.Helper()
		l, err := repos.listings.Publish(ctx, id, pub, exp)
		if err != nil || l == nil || !l.IsActive {
			t.Fatalf("Publish(%s) = %+v, %v", id, l, err)
		}
	}
	mustPublish(older.ID, now.Add(-48*time.Hour), now.Add(30*24*time.Hour))
	mustPublish(newer.ID, now.Add(-1*time.Hour), now.Add(30*24*time.Hour))
	mustPublish(boosted.ID, now.Add(-72*time.Hour), now.Add(30*24*time.Hour))
	mustPublish(expired.ID, now.Add(-60*24*time.Hour), now.Add(-24*time.Hour))
	if _, err := repos.listings.Boost(ctx, boosted.ID, now.Add(model.BoostDuration)); err != nil {
		t.Fatalf("Boost: %v", err)
	}

	visible, err := repos.listings.FindVisible(ctx, model.ListingFilter{}, now, BrowseLimit)
	if err != nil {
		t.Fatalf("FindVisible: %v", err)
	}
	wantOrder := []string{boosted.ID, newer.ID, older.ID}
	if len(visible) != len(wantOrder) {
		t.Fatalf("FindVisible returned %d listings, want %d", len(visible), len(wantOrder))
	}
	for i, id := range wantOrder {
		if visible[i].ID != id {
			t.Errorf("visible[%d] = %s, want %s", i, visible[i].ID, id)
		}
	}
	for _, l := range visible {
		if l.ID == draft.ID || l.ID == expired.ID {
			t.Errorf("listing %s must not be visible", l.ID)
		}
	}

	filtered, err := repos.listings.FindVisible(ctx, model.ListingFilter{
		University: "UBC", MaxPrice: floatPtr(900),
	}, now, BrowseLimit)
	if err != nil {
		t.Fatalf("FindVisible(filtered): %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != older.ID {
		t.Errorf("filtered = %d listings, want only %s", len(filtered), older.ID)
	}

	limited, err := repos.listings.FindVisible(ctx, model.ListingFilter{}, now, 1)
	if err != nil || len(limited) != 1 || limited[0].ID != boosted.ID {
		t.Errorf("FindVisible(limit=1) = %d, %v", len(limited), err)
	}

	mine, err := repos.listings.FindByOwner(ctx, owner.ID)
	if err != nil || len(mine) != 5 {
		t.Errorf("FindByOwner = %d, %v; want 5", len(mine), err)
	}

	some, err := repos.listings.FindByIDs(ctx, []string{draft.ID, newer.ID, uuid.NewString()})
	if err != nil || len(some) != 2 {
		t.Errorf("FindByIDs = %d, %v; want 2", len(some), err)
	}
}

func testListingPatchAndViews(t *testing.T, repos repoSet) {
	ctx := context.Background()
	owner := mustCreateUser(t, repos, "patch@example.com")
	l := mustCreateListing(t, repos, owner.ID, "UBC", 750)

	for i := 1; i <= 3; i++ {
		got, err := repos.listings.IncrementViews(ctx, l.ID)
		if err != nil {
			t.Fatalf("IncrementViews: %v", err)
		}
		if got.Analytics.Views != int64(i) {
			t.Errorf("views = %d, want %d", got.Analytics.Views, i)
		}
	}

	desc, cur := "updated description", "CAD"
	patched, err := repos.listings.ApplyPatch(ctx, l.ID, model.ListingPatch{
		Description: &desc,
		Currency:    &cur,
		Owner:       &model.OwnerDetails{Gender: "female", Faculty: "Arts"},
	})
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if patched.Room.Description != desc || patched.Room.Currency != cur {
		t.Errorf("room = %+v", patched.Room)
	}
	if patched.Room.Name != "Sunny room" || patched.Room.MonthlyRent != 750 {
		t.Errorf("unpatched room fields changed: %+v", patched.Room)
	}
	if patched.Owner.Gender != "female" || patched.Owner.Faculty != "Arts" {
		t.Errorf("owner details = %+v", patched.Owner)
	}
	if patched.IsActive {
		t.Error("patch without isActive must not publish")
	}

	missing, err := repos.listings.ApplyPatch(ctx, uuid.NewString(), model.ListingPatch{Description: &desc})
	if err != nil || missing != nil {
		t.Errorf("ApplyPatch(missing) = %+v, %v", missing, err)
	}
}

func testListingSweeps(t *testing.T, repos repoSet) {
	ctx := context.Background()
	now := baseTime()
	owner := mustCreateUser(t, repos, "sweep@example.com")

	live := mustCreateListing(t, repos, owner.ID, "UBC", 700)
	lapsed := mustCreateListing(t, repos, owner.ID, "UBC", 700)
	if _, err := repos.listings.Publish(ctx, live.ID, now.Add(-time.Hour), now.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := repos.listings.Publish(ctx, lapsed.ID, now.Add(-48*time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := repos.listings.Boost(ctx, live.ID, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	n, err := repos.listings.DeactivateExpired(ctx, now)
	if err != nil || n != 1 {
		t.Errorf("DeactivateExpired = %d, %v; want 1", n, err)
	}
	got, _ := repos.listings.FindByID(ctx, lapsed.ID)
	if got.IsActive {
		t.Error("expired listing should be deactivated")
	}

	n, err = repos.listings.ClearLapsedBoosts(ctx, now)
	if err != nil || n != 1 {
		t.Errorf("ClearLapsedBoosts = %d, %v; want 1", n, err)
	}
	got, _ = repos.listings.FindByID(ctx, live.ID)
	if got.BoostStatus || !got.IsActive {
		t.Errorf("live listing = boost %v active %v", got.BoostStatus, got.IsActive)
	}
}

func testSubmissionLifecycle(t *testing.T, repos repoSet) {
	ctx := context.Background()
	now := baseTime()
	owner := mustCreateUser(t, repos, "host@example.com")
	applicant := mustCreateUser(t, repos, "applicant@example.com")
	l := mustCreateListing(t, repos, owner.ID, "UBC", 700)

	newSubmission := func(offset time.Duration) *model.Submission {
		return &model.Submission{
			ID:        uuid.NewString(),
			ListingID: l.ID,
			Submitter: model.SubmitterProfile{
				ContactInfo: []model.ContactChannel{{Platform: model.ContactEmail, Username: "a@example.com"}},
				Faculty:     "Science",
			},
			SubmitterUserID: applicant.ID,
			CreatedAt:       now.Add(offset),
			UpdatedAt:       now.Add(offset),
		}
	}
	first, second := newSubmission(0), newSubmission(time.Second)
	for _, s := range []*model.Submission{first, second} {
		if err := repos.submissions.CreateForListing(ctx, s); err != nil {
			t.Fatalf("CreateForListing: %v", err)
		}
	}

	got, _ := repos.listings.FindByID(ctx, l.ID)
	if got.Analytics.ApplicationCount != 2 || len(got.Applications) != 2 {
		t.Fatalf("analytics = %+v, applications = %v", got.Analytics, got.Applications)
	}
	if got.Applications[0].SubmissionID != first.ID || got.Applications[0].Status != model.ApplicationStatusPending {
		t.Errorf("applications[0] = %+v", got.Applications[0])
	}

	byListing, err := repos.submissions.FindByListing(ctx, l.ID)
	if err != nil || len(byListing) != 2 || byListing[0].ID != second.ID {
		t.Errorf("FindByListing = %d, %v", len(byListing), err)
	}
	bySubmitter, err := repos.submissions.FindBySubmitter(ctx, applicant.ID)
	if err != nil || len(bySubmitter) != 2 {
		t.Errorf("FindBySubmitter = %d, %v", len(bySubmitter), err)
	}

	updated, err := repos.listings.UpdateApplicationStatus(ctx, l.ID, first.ID, model.ApplicationStatusRejected)
	if err != nil || updated == nil {
		t.Fatalf("UpdateApplicationStatus = %+v, %v", updated, err)
	}
	if updated.Applications[0].Status != model.ApplicationStatusRejected ||
		updated.Applications[1].Status != model.ApplicationStatusPending {
		t.Errorf("applications = %+v", updated.Applications)
	}

	none, err := repos.listings.UpdateApplicationStatus(ctx, l.ID, uuid.NewString(), model.ApplicationStatusRejected)
	if err != nil || none != nil {
		t.Errorf("UpdateApplicationStatus(unknown) = %+v, %v", none, err)
	}

	if err := repos.listings.SetResponseRate(ctx, l.ID, model.ResponseRate(updated.Applications)); err != nil {
		t.Fatalf("SetResponseRate: %v", err)
	}
	got, _ = repos.listings.FindByID(ctx, l.ID)
	if got.Analytics.ResponseRate != 0.5 {
		t.Errorf("responseRate = %v, want 0.5", got.Analytics.ResponseRate)
	}

	read, err := repos.submissions.MarkRead(ctx, first.ID)
	if err != nil || read == nil || !read.IsRead {
		t.Errorf("MarkRead = %+v, %v", read, err)
	}
}

func testPaymentIdempotency(t *testing.T, repos repoSet) {
	ctx := context.Background()
	now := baseTime()
	owner := mustCreateUser(t, repos, "payer@example.com")
	l := mustCreateListing(t, repos, owner.ID, "UBC", 700)

	p := &model.Payment{
		ID:                    uuid.NewString(),
		UserID:                owner.ID,
		ListingID:             l.ID,
		PackageType:           model.PackageMonthly,
		Amount:                model.PackageMonthly.AmountCents(),
		Currency:              "usd",
		ProviderTransactionID: "pi_123",
		Status:                model.PaymentSucceeded,
		PaymentDate:           now,
		CreatedAt:             now,
	}
	if err := repos.payments.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := *p
	dup.ID = uuid.NewString()
	if err := repos.payments.Create(ctx, &dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create(duplicate tx) = %v, want ErrDuplicate", err)
	}

	got, err := repos.payments.FindByProviderTransactionID(ctx, "pi_123")
	if err != nil || got == nil || got.ID != p.ID || got.PackageType != model.PackageMonthly {
		t.Errorf("FindByProviderTransactionID = %+v, %v", got, err)
	}
	none, err := repos.payments.FindByProviderTransactionID(ctx, "pi_missing")
	if err != nil || none != nil {
		t.Errorf("FindByProviderTransactionID(missing) = %+v, %v", none, err)
	}

	mine, err := repos.payments.FindByUser(ctx, owner.ID)
	if err != nil || len(mine) != 1 {
		t.Errorf("FindByUser = %d, %v", len(mine), err)
	}
}

func testSubmissionMissingListing(t *testing.T, repos repoSet) {
	ctx := context.Background()
	now := baseTime()
	s := &model.Submission{
		ID:        uuid.NewString(),
		ListingID: uuid.NewString(),
		Submitter: model.SubmitterProfile{
			ContactInfo: []model.ContactChannel{{Platform: model.ContactPhone, Username: "555"}},
			Faculty:     "Arts",
			Year:        1,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := repos.submissions.CreateForListing(ctx, s)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("CreateForListing error = %v, want ErrNotFound", err)
	}
	got, err := repos.submissions.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got != nil {
		t.Error("submission must not remain when the listing does not exist")
	}
}

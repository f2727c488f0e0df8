package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/roomie/internal/model"
)

const listingColumns = `id, owner_id, room_details, owner_details, filters, location,
	is_active, boost_status, boosted_until, publish_date, expiration_date,
	views, application_count, response_rate, created_at, updated_at`

// PostgresListingRepo はPostgreSQLを使用した募集リポジトリ。
// 応募参照はlisting_applicationsテーブルに保持する。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

// scanListing は1行分の募集を読み取る。応募参照は含まない。
func scanListing(row rowScanner) (*model.Listing, error) {
	l := &model.Listing{}
	var room, owner, filters, location []byte
	var boostedUntil, publishDate, expirationDate sql.NullTime

	err := row.Scan(
		&l.ID, &l.OwnerID, &room, &owner, &filters, &location,
		&l.IsActive, &l.BoostStatus, &boostedUntil, &publishDate, &expirationDate,
		&l.Analytics.Views, &l.Analytics.ApplicationCount, &l.Analytics.ResponseRate,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{room, &l.Room}, {owner, &l.Owner}, {filters, &l.Filters}, {location, &l.Location},
	} {
		if err := unmarshalJSONB(f.raw, f.dst); err != nil {
			return nil, err
		}
	}

	l.BoostedUntil = nullTimePtr(boostedUntil)
	l.PublishDate = nullTimePtr(publishDate)
	l.ExpirationDate = nullTimePtr(expirationDate)
	l.Applications = []model.ApplicationRef{}
	return l, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// visibleOrderBy は公開中募集の並び順を返す。$1は基準時刻。
// ブーストはboosted_untilが基準時刻より後の間だけ優先される。
func visibleOrderBy(order model.ListingOrder) string {
	if order == model.OrderNewest {
		return "publish_date DESC NULLS LAST, created_at DESC"
	}
	return "COALESCE(boost_status AND boosted_until > $1, FALSE) DESC, publish_date DESC NULLS LAST"
}

// buildVisibleQuery は公開中募集の検索クエリを構築する。
// is_active = TRUE と有効期限の条件は常に含まれる。
func buildVisibleQuery(filter model.ListingFilter, now time.Time, limit int) (string, []any) {
	conds := []string{"is_active = TRUE", "(expiration_date IS NULL OR expiration_date >= $1)"}
	args := []any{now}

	if filter.University != "" {
		args = append(args, filter.University)
		conds = append(conds, fmt.Sprintf("nearby_university = $%d", len(args)))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		conds = append(conds, fmt.Sprintf("monthly_rent >= $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		conds = append(conds, fmt.Sprintf("monthly_rent <= $%d", len(args)))
	}

	args = append(args, limit)
	query := `SELECT ` + listingColumns + ` FROM listings WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY ` + visibleOrderBy(filter.Order) + fmt.Sprintf(` LIMIT $%d`, len(args))
	return query, args
}

// Create は募集を作成する。
func (r *PostgresListingRepo) Create(ctx context.Context, l *model.Listing) error {
	room, err := marshalJSONB(l.Room)
	if err != nil {
		return err
	}
	owner, err := marshalJSONB(l.Owner)
	if err != nil {
		return err
	}
	filters, err := marshalJSONB(l.Filters)
	if err != nil {
		return err
	}
	location, err := marshalJSONB(l.Location)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO listings (id, owner_id, nearby_university, monthly_rent, room_details, owner_details,
			filters, location, is_active, boost_status, boosted_until, publish_date, expiration_date,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.OwnerID, l.Room.NearbyUniversity, l.Room.MonthlyRent, room, owner,
		filters, location, l.IsActive, l.BoostStatus, l.BoostedUntil, l.PublishDate, l.ExpirationDate,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// FindByID は指定IDの募集を応募参照付きで取得する。
func (r *PostgresListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
}

// FindByIDs は指定IDの募集をまとめて取得する。
func (r *PostgresListingRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Listing, error) {
	ids = filterUUIDs(ids)
	if len(ids) == 0 {
		return []*model.Listing{}, nil
	}
	return r.queryMany(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ANY($1::uuid[]) ORDER BY created_at DESC`,
		pq.Array(ids))
}

// FindVisible は公開中の募集をfilter.Orderの順で返す。
func (r *PostgresListingRepo) FindVisible(ctx context.Context, filter model.ListingFilter, now time.Time, limit int) ([]*model.Listing, error) {
	query, args := buildVisibleQuery(filter, now, limit)
	return r.queryMany(ctx, query, args...)
}

// FindByOwner は指定ユーザーが作成した募集を新しい順に返す。
func (r *PostgresListingRepo) FindByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error) {
	if !isUUID(ownerID) {
		return []*model.Listing{}, nil
	}
	return r.queryMany(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID)
}

// IncrementViews は閲覧数をアトミックに1増やす。
func (r *PostgresListingRepo) IncrementViews(ctx context.Context, id string) (*model.Listing, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.queryOne(ctx,
		`UPDATE listings SET views = views + 1 WHERE id = $1 RETURNING `+listingColumns, id)
}

// ApplyPatch は許可された項目のみを更新する。
// 説明と通貨はroom_details内のキーをjsonb_setで個別に書き換える。
func (r *PostgresListingRepo) ApplyPatch(ctx context.Context, id string, patch model.ListingPatch) (*model.Listing, error) {
	if !isUUID(id) {
		return nil, nil
	}

	sets := []string{"updated_at = now()"}
	args := []any{id}

	room := "room_details"
	if patch.Description != nil {
		args = append(args, *patch.Description)
		room = fmt.Sprintf("jsonb_set(%s, '{description}', to_jsonb($%d::text))", room, len(args))
	}
	if patch.Currency != nil {
		args = append(args, *patch.Currency)
		room = fmt.Sprintf("jsonb_set(%s, '{currency}', to_jsonb($%d::text))", room, len(args))
	}
	if room != "room_details" {
		sets = append(sets, "room_details = "+room)
	}
	if patch.IsActive != nil {
		args = append(args, *patch.IsActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if patch.Owner != nil {
		owner, err := marshalJSONB(patch.Owner)
		if err != nil {
			return nil, err
		}
		args = append(args, owner)
		sets = append(sets, fmt.Sprintf("owner_details = $%d", len(args)))
	}

	return r.queryOne(ctx,
		`UPDATE listings SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+listingColumns,
		args...)
}

// Publish は募集を公開状態にする。
func (r *PostgresListingRepo) Publish(ctx context.Context, id string, publishDate, expirationDate time.Time) (*model.Listing, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.queryOne(ctx,
		`UPDATE listings SET is_active = TRUE, publish_date = $2, expiration_date = $3, updated_at = now()
		 WHERE id = $1 RETURNING `+listingColumns,
		id, publishDate, expirationDate)
}

// Boost はブーストを有効にする。
func (r *PostgresListingRepo) Boost(ctx context.Context, id string, until time.Time) (*model.Listing, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.queryOne(ctx,
		`UPDATE listings SET boost_status = TRUE, boosted_until = $2, updated_at = now()
		 WHERE id = $1 RETURNING `+listingColumns,
		id, until)
}

// UpdateApplicationStatus は応募参照の状態を更新し、更新後の募集を返す。
func (r *PostgresListingRepo) UpdateApplicationStatus(ctx context.Context, listingID, submissionID string, status model.ApplicationStatus) (*model.Listing, error) {
	if !isUUID(listingID) || !isUUID(submissionID) {
		return nil, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE listing_applications SET status = $3 WHERE listing_id = $1 AND submission_id = $2`,
		listingID, submissionID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return r.FindByID(ctx, listingID)
}

// SetResponseRate は返信率を保存する。
func (r *PostgresListingRepo) SetResponseRate(ctx context.Context, id string, rate float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE listings SET response_rate = $2, updated_at = now() WHERE id = $1`, id, rate)
	if err != nil {
		return fmt.Errorf("failed to set response rate: %w", err)
	}
	return nil
}

// DeactivateExpired は有効期限を過ぎた公開中の募集を非公開にする。
func (r *PostgresListingRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.execCount(ctx,
		`UPDATE listings SET is_active = FALSE, updated_at = now()
		 WHERE is_active = TRUE AND expiration_date IS NOT NULL AND expiration_date < $1`, now)
}

// ClearLapsedBoosts はブースト期限を過ぎた募集のブーストを解除する。
func (r *PostgresListingRepo) ClearLapsedBoosts(ctx context.Context, now time.Time) (int64, error) {
	return r.execCount(ctx,
		`UPDATE listings SET boost_status = FALSE, updated_at = now()
		 WHERE boost_status = TRUE AND (boosted_until IS NULL OR boosted_until <= $1)`, now)
}

func (r *PostgresListingRepo) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update listings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// queryOne は1件の募集を取得し、応募参照を付与する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) queryOne(ctx context.Context, query string, args ...any) (*model.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query listing: %w", err)
	}
	if err := r.attachApplications(ctx, []*model.Listing{l}); err != nil {
		return nil, err
	}
	return l, nil
}

// queryMany は複数の募集を取得し、応募参照を付与する。
func (r *PostgresListingRepo) queryMany(ctx context.Context, query string, args ...any) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	listings := []*model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}

	if err := r.attachApplications(ctx, listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// attachApplications は募集ごとの応募参照を追加順に読み込む。
func (r *PostgresListingRepo) attachApplications(ctx context.Context, listings []*model.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	index := make(map[string]*model.Listing, len(listings))
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		index[l.ID] = l
		ids = append(ids, l.ID)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT listing_id, submission_id, status FROM listing_applications
		 WHERE listing_id = ANY($1::uuid[]) ORDER BY position`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var listingID string
		var ref model.ApplicationRef
		if err := rows.Scan(&listingID, &ref.SubmissionID, &ref.Status); err != nil {
			return fmt.Errorf("failed to scan application: %w", err)
		}
		if l, ok := index[listingID]; ok {
			l.Applications = append(l.Applications, ref)
		}
	}
	return rows.Err()
}

// compile-time interface check
var _ ListingRepository = (*PostgresListingRepo)(nil)

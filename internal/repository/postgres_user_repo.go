package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/roomie/internal/model"
)

const userColumns = `id, google_id, password_hash, name, email, lifestyle, faculty, year,
	instagram, created_listings, favorites, show_last_name, show_contact, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// scanUser は1行分のユーザーを読み取る。
func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var googleID sql.NullString
	var lifestyle []byte

	err := row.Scan(
		&user.ID, &googleID, &user.PasswordHash, &user.Name, &user.Email, &lifestyle,
		&user.Faculty, &user.Year, &user.ContactInfo.Instagram,
		pq.Array(&user.CreatedListings), pq.Array(&user.Favorites),
		&user.Privacy.ShowLastName, &user.Privacy.ShowContactInfo,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.GoogleID = googleID.String
	if err := unmarshalJSONB(lifestyle, &user.Lifestyle); err != nil {
		return nil, err
	}
	return user, nil
}

// findOneUser は条件に一致するユーザーを1件取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) findOneUser(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOneUser(ctx, `id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを取得する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOneUser(ctx, `email = $1`, email)
}

// FindByGoogleID はGoogleのsubjectでユーザーを取得する。
func (r *PostgresUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.findOneUser(ctx, `google_id = $1`, googleID)
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	lifestyle, err := marshalJSONB(user.Lifestyle)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, google_id, password_hash, name, email, lifestyle, faculty, year,
			instagram, show_last_name, show_contact, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		user.ID, user.GoogleID, user.PasswordHash, user.Name, user.Email, lifestyle,
		user.Faculty, user.Year, user.ContactInfo.Instagram,
		user.Privacy.ShowLastName, user.Privacy.ShowContactInfo,
		user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpsertByGoogleID はGoogleIDで冪等にユーザーを作成し、保存済みのレコードを返す。
// 同時に同じGoogleアカウントでログインしても、ON CONFLICTにより1件に収束する。
func (r *PostgresUserRepo) UpsertByGoogleID(ctx context.Context, user *model.User) (*model.User, error) {
	existing, err := r.FindByGoogleID(ctx, user.GoogleID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	lifestyle, err := marshalJSONB(user.Lifestyle)
	if err != nil {
		return nil, err
	}

	stored, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, google_id, name, email, lifestyle, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (email) DO UPDATE
		   SET google_id = COALESCE(users.google_id, EXCLUDED.google_id),
		       updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		user.ID, user.GoogleID, user.Name, user.Email, lifestyle, user.CreatedAt, user.UpdatedAt,
	))
	if isUniqueViolation(err) {
		// 同一google_idの並行INSERTに負けた場合は勝者のレコードを返す
		return r.FindByGoogleID(ctx, user.GoogleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	if stored.GoogleID != user.GoogleID {
		return nil, ErrDuplicate
	}
	return stored, nil
}

// AddCreatedListing は作成した募集IDをユーザーに追加する。
func (r *PostgresUserRepo) AddCreatedListing(ctx context.Context, userID, listingID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET created_listings = array_append(created_listings, $2), updated_at = now()
		 WHERE id = $1`,
		userID, listingID,
	)
	if err != nil {
		return fmt.Errorf("failed to add created listing: %w", err)
	}
	return nil
}

// AddFavorite はお気に入りに追加する。既に追加済みの場合はfalseを返す。
func (r *PostgresUserRepo) AddFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	return r.execChanged(ctx,
		`UPDATE users SET favorites = array_append(favorites, $2), updated_at = now()
		 WHERE id = $1 AND NOT ($2 = ANY(favorites))`,
		userID, listingID,
	)
}

// RemoveFavorite はお気に入りから削除する。未追加の場合はfalseを返す。
func (r *PostgresUserRepo) RemoveFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	return r.execChanged(ctx,
		`UPDATE users SET favorites = array_remove(favorites, $2), updated_at = now()
		 WHERE id = $1 AND $2 = ANY(favorites)`,
		userID, listingID,
	)
}

// execChanged は更新を実行し、1行以上変更されたかどうかを返す。
func (r *PostgresUserRepo) execChanged(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update favorites: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

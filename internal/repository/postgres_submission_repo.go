package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/roomie/internal/model"
)

const submissionColumns = `id, listing_id, submitter, submitter_user_id, is_read, created_at, updated_at`

// PostgresSubmissionRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresSubmissionRepo struct {
	db *sql.DB
}

// NewPostgresSubmissionRepo はPostgresSubmissionRepoを生成する。
func NewPostgresSubmissionRepo(db *sql.DB) *PostgresSubmissionRepo {
	return &PostgresSubmissionRepo{db: db}
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	s := &model.Submission{}
	var submitter []byte
	var submitterUserID sql.NullString

	if err := row.Scan(&s.ID, &s.ListingID, &submitter, &submitterUserID, &s.IsRead, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.SubmitterUserID = submitterUserID.String
	if err := unmarshalJSONB(submitter, &s.Submitter); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateForListing は応募の保存、応募参照の追加、応募数の加算を同一トランザクションで行う。
func (r *PostgresSubmissionRepo) CreateForListing(ctx context.Context, s *model.Submission) error {
	if !isUUID(s.ListingID) {
		return fmt.Errorf("listing %s: %w", s.ListingID, ErrNotFound)
	}
	submitter, err := marshalJSONB(s.Submitter)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (id, listing_id, submitter, submitter_user_id, is_read, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7)`,
		s.ID, s.ListingID, submitter, s.SubmitterUserID, s.IsRead, s.CreatedAt, s.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("listing %s: %w", s.ListingID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO listing_applications (listing_id, submission_id, status) VALUES ($1, $2, $3)`,
		s.ListingID, s.ID, string(model.ApplicationStatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE listings SET application_count = application_count + 1, updated_at = now() WHERE id = $1`,
		s.ListingID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment application count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
func (r *PostgresSubmissionRepo) FindByID(ctx context.Context, id string) (*model.Submission, error) {
	if !isUUID(id) {
		return nil, nil
	}
	s, err := scanSubmission(r.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	return s, nil
}

// FindByListing は募集への応募を新しい順に返す。
func (r *PostgresSubmissionRepo) FindByListing(ctx context.Context, listingID string) ([]*model.Submission, error) {
	if !isUUID(listingID) {
		return []*model.Submission{}, nil
	}
	return r.queryMany(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE listing_id = $1 ORDER BY created_at DESC`,
		listingID)
}

// FindBySubmitter は指定ユーザーの応募を新しい順に返す。
func (r *PostgresSubmissionRepo) FindBySubmitter(ctx context.Context, userID string) ([]*model.Submission, error) {
	if !isUUID(userID) {
		return []*model.Submission{}, nil
	}
	return r.queryMany(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE submitter_user_id = $1 ORDER BY created_at DESC`,
		userID)
}

// MarkRead は応募を既読にする。既読済みでも成功する。
func (r *PostgresSubmissionRepo) MarkRead(ctx context.Context, id string) (*model.Submission, error) {
	if !isUUID(id) {
		return nil, nil
	}
	s, err := scanSubmission(r.db.QueryRowContext(ctx,
		`UPDATE submissions SET is_read = TRUE, updated_at = now() WHERE id = $1 RETURNING `+submissionColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark submission read: %w", err)
	}
	return s, nil
}

func (r *PostgresSubmissionRepo) queryMany(ctx context.Context, query string, args ...any) ([]*model.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	submissions := []*model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

// compile-time interface check
var _ SubmissionRepository = (*PostgresSubmissionRepo)(nil)

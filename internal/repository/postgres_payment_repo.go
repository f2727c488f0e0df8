package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/roomie/internal/model"
)

const paymentColumns = `id, user_id, listing_id, package_type, amount, currency,
	provider_transaction_id, status, payment_date, created_at`

// PostgresPaymentRepo はPostgreSQLを使用した決済記録リポジトリ。
type PostgresPaymentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db *sql.DB) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	p := &model.Payment{}
	err := row.Scan(&p.ID, &p.UserID, &p.ListingID, &p.PackageType, &p.Amount, &p.Currency,
		&p.ProviderTransactionID, &p.Status, &p.PaymentDate, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create は決済記録を作成する。
func (r *PostgresPaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.UserID, p.ListingID, string(p.PackageType), p.Amount, p.Currency,
		p.ProviderTransactionID, string(p.Status), p.PaymentDate, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// FindByProviderTransactionID は決済事業者のトランザクションIDで検索する。
func (r *PostgresPaymentRepo) FindByProviderTransactionID(ctx context.Context, txID string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_transaction_id = $1`, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return p, nil
}

// FindByUser は指定ユーザーの決済記録を新しい順に返す。
func (r *PostgresPaymentRepo) FindByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	if !isUUID(userID) {
		return []*model.Payment{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY payment_date DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := []*model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// compile-time interface check
var _ PaymentRepository = (*PostgresPaymentRepo)(nil)

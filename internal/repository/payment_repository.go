package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainpay/payment-reconciler/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			unique_id VARCHAR(64) PRIMARY KEY,
			status VARCHAR(20) NOT NULL,
			network VARCHAR(20) NOT NULL,
			currency VARCHAR(20) NOT NULL,
			recipient_address VARCHAR(128) NOT NULL,
			expected_amount NUMERIC(38, 18) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			last_checked_at TIMESTAMPTZ,
			transaction_hash VARCHAR(128),
			received_amount NUMERIC(38, 18),
			confirmed_block BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PaymentRepository) Insert(ctx context.Context, p *models.PaymentRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (unique_id, status, network, currency, recipient_address, expected_amount, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.UniqueID, p.Status, p.Network, p.Currency, p.RecipientAddress, p.ExpectedAmount.String(), p.CreatedAt, p.ExpiresAt)
	return err
}

func (r *PaymentRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*models.PaymentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT unique_id, status, network, currency, recipient_address, expected_amount,
		       created_at, expires_at, last_checked_at, transaction_hash, received_amount, confirmed_block
		FROM payments WHERE unique_id = $1
	`, uniqueID)
	return scanPayment(row)
}

func (r *PaymentRepository) ListPending(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT unique_id, status, network, currency, recipient_address, expected_amount,
		       created_at, expires_at, last_checked_at, transaction_hash, received_amount, confirmed_block
		FROM payments WHERE status = $1
		ORDER BY created_at DESC LIMIT $2
	`, models.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) MarkChecked(ctx context.Context, uniqueID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET last_checked_at = $1 WHERE unique_id = $2 AND status = $3`,
		at, uniqueID, models.StatusPending)
	return err
}

// FinalizeStatus writes a terminal status guarded on the record still being
// pending, so a terminal record is write-once even when two checks race.
func (r *PaymentRepository) FinalizeStatus(ctx context.Context, uniqueID string, status models.PaymentStatus, checkedAt time.Time, txHash *string, receivedAmount *decimal.Decimal, confirmedBlock *int64) (int64, error) {
	var received any
	if receivedAmount != nil {
		received = receivedAmount.String()
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, last_checked_at = $2, transaction_hash = $3, received_amount = $4, confirmed_block = $5
		WHERE unique_id = $6 AND status = $7
	`, status, checkedAt, txHash, received, confirmedBlock, uniqueID, models.StatusPending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.PaymentRecord, error) {
	var (
		p           models.PaymentRecord
		expectedStr string
		lastChecked sql.NullTime
		txHash      sql.NullString
		receivedStr sql.NullString
		block       sql.NullInt64
	)
	err := row.Scan(&p.UniqueID, &p.Status, &p.Network, &p.Currency, &p.RecipientAddress, &expectedStr,
		&p.CreatedAt, &p.ExpiresAt, &lastChecked, &txHash, &receivedStr, &block)
	if err != nil {
		return nil, err
	}

	p.ExpectedAmount, err = decimal.NewFromString(expectedStr)
	if err != nil {
		return nil, err
	}
	if lastChecked.Valid {
		p.LastCheckedAt = &lastChecked.Time
	}
	if txHash.Valid {
		p.TransactionHash = &txHash.String
	}
	if receivedStr.Valid {
		received, err := decimal.NewFromString(receivedStr.String)
		if err != nil {
			return nil, err
		}
		p.ReceivedAmount = &received
	}
	if block.Valid {
		p.ConfirmedBlock = &block.Int64
	}
	return &p, nil
}

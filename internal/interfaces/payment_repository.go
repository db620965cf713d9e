package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainpay/payment-reconciler/internal/models"
)

// PaymentRepository defines the contract for payment record persistence.
type PaymentRepository interface {
	Insert(ctx context.Context, payment *models.PaymentRecord) error
	GetByUniqueID(ctx context.Context, uniqueID string) (*models.PaymentRecord, error)
	// ListPending returns up to limit pending payments, most recent first.
	ListPending(ctx context.Context, limit int) ([]models.PaymentRecord, error)
	MarkChecked(ctx context.Context, uniqueID string, at time.Time) error
	// FinalizeStatus moves a pending payment into a terminal status and
	// returns the number of rows written: zero means another writer got
	// there first and the record is left untouched.
	FinalizeStatus(ctx context.Context, uniqueID string, status models.PaymentStatus, checkedAt time.Time, txHash *string, receivedAmount *decimal.Decimal, confirmedBlock *int64) (int64, error)
}

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainpay/payment-reconciler/internal/chain"
	"github.com/chainpay/payment-reconciler/internal/models"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
)

// epsilon absorbs decimal-formatting noise at the final classification step.
// It never participates in the raw-unit match itself.
var epsilon = decimal.New(1, -8)

// reconciler is what the state machine needs from the engine; narrowed for
// testing.
type reconciler interface {
	Reconcile(ctx context.Context, payment *models.PaymentRecord) (*Match, error)
}

// Outcome describes the transition Advance decided on. Changed is false for
// the terminal no-op case, where nothing should be written.
type Outcome struct {
	Status          models.PaymentStatus
	Changed         bool
	CheckedAt       time.Time
	TransactionHash *string
	ReceivedAmount  *decimal.Decimal
	ConfirmedBlock  *int64
}

// StateMachine computes the next status of a payment. It is safe to call
// concurrently and repeatedly from the background poller and from on-demand
// status checks.
type StateMachine struct {
	reconciler reconciler
}

func NewStateMachine(r reconciler) *StateMachine {
	return &StateMachine{reconciler: r}
}

// Advance applies the transition rules in order; the first applicable rule
// wins. Terminal payments short-circuit before any network I/O, and so do
// expired ones.
func (m *StateMachine) Advance(ctx context.Context, payment *models.PaymentRecord, now time.Time) (Outcome, error) {
	if payment.Status.Terminal() {
		return Outcome{Status: payment.Status}, nil
	}

	if now.After(payment.ExpiresAt) {
		return Outcome{Status: models.StatusExpired, Changed: true, CheckedAt: now}, nil
	}

	match, err := m.reconciler.Reconcile(ctx, payment)
	if err != nil {
		if chain.IsTransient(err) {
			// retried on the next tick; only the check timestamp moves
			telemetry.Logger.Warn("Reconciliation attempt failed",
				zap.String("payment_id", payment.UniqueID),
				zap.Error(err),
			)
			return Outcome{Status: models.StatusPending, Changed: true, CheckedAt: now}, nil
		}
		if errors.Is(err, models.ErrUnsupportedCurrency) || errors.Is(err, chain.ErrUnsupportedNetwork) {
			// permanent configuration problem, surfaced for manual handling
			return Outcome{Status: models.StatusError, Changed: true, CheckedAt: now}, err
		}
		// amount-comparison failures and other internal shape errors are
		// terminal too, to avoid an unboundedly stuck pending record
		return Outcome{Status: models.StatusError, Changed: true, CheckedAt: now}, err
	}

	if match == nil || !match.Confirmed {
		return Outcome{Status: models.StatusPending, Changed: true, CheckedAt: now}, nil
	}

	status := classify(match.ReceivedAmount, payment.ExpectedAmount)
	received := match.ReceivedAmount
	block := match.Candidate.BlockNumber
	hash := match.Candidate.Hash
	return Outcome{
		Status:          status,
		Changed:         true,
		CheckedAt:       now,
		TransactionHash: &hash,
		ReceivedAmount:  &received,
		ConfirmedBlock:  &block,
	}, nil
}

func classify(received, expected decimal.Decimal) models.PaymentStatus {
	diff := received.Sub(expected)
	switch {
	case diff.Abs().LessThanOrEqual(epsilon):
		return models.StatusCompleted
	case diff.IsNegative():
		return models.StatusUnderpaid
	default:
		return models.StatusOverpaid
	}
}

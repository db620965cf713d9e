package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainpay/payment-reconciler/internal/chain"
	"github.com/chainpay/payment-reconciler/internal/metrics"
	"github.com/chainpay/payment-reconciler/internal/models"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
)

// Match is the result of reconciling a payment against observed chain state.
type Match struct {
	Candidate      models.TransactionCandidate
	ReceivedAmount decimal.Decimal
	ExactAmount    bool
	Confirmed      bool
}

// Reconciler matches pending payments against transfers reported by the
// chain adapters.
type Reconciler struct {
	adapters chain.Registry
}

func NewReconciler(adapters chain.Registry) *Reconciler {
	return &Reconciler{adapters: adapters}
}

// Reconcile looks for a transfer satisfying the payment: right recipient,
// right token, inside the validity window. The amount comparison happens in
// raw integer units. A nil Match means nothing usable was found this
// attempt. Exact-amount candidates win; failing that the first confirmed
// in-window candidate is returned so a wrong-amount transfer can be
// classified instead of leaving the payment pending forever.
func (r *Reconciler) Reconcile(ctx context.Context, payment *models.PaymentRecord) (*Match, error) {
	token, err := models.ResolveToken(payment.Network, payment.Currency)
	if err != nil {
		return nil, err
	}

	expectedRaw, err := token.ToRawUnits(payment.ExpectedAmount)
	if err != nil {
		return nil, fmt.Errorf("convert expected amount: %w", err)
	}

	adapter, err := r.adapters.For(payment.Network)
	if err != nil {
		return nil, err
	}

	metrics.ReconcileAttempts.WithLabelValues(string(payment.Network)).Inc()

	candidates, err := adapter.FetchCandidates(ctx, payment.RecipientAddress, token, payment.CreatedAt, payment.ExpiresAt)
	if err != nil {
		metrics.ExplorerErrors.WithLabelValues(string(payment.Network)).Inc()
		return nil, err
	}

	windowEnd := payment.ExpiresAt.Add(chain.Grace)
	var fallback *models.TransactionCandidate
	for i := range candidates {
		c := &candidates[i]
		if !strings.EqualFold(c.ToAddress, payment.RecipientAddress) {
			continue
		}
		if !token.Native() && !strings.EqualFold(c.ContractAddress, token.ContractAddress) {
			continue
		}
		if c.Timestamp.Before(payment.CreatedAt) || c.Timestamp.After(windowEnd) {
			continue
		}
		if c.RawAmount == nil {
			continue
		}

		if c.RawAmount.Cmp(expectedRaw) == 0 {
			// first exact raw-unit match in adapter order wins
			return &Match{
				Candidate:      *c,
				ReceivedAmount: token.FromRawUnits(c.RawAmount),
				ExactAmount:    true,
				Confirmed:      c.Confirmed,
			}, nil
		}
		if fallback == nil && c.Confirmed {
			fallback = c
		}
	}

	if fallback != nil {
		telemetry.Logger.Info("Amount mismatch on in-window transfer",
			zap.String("payment_id", payment.UniqueID),
			zap.String("tx_hash", fallback.Hash),
			zap.String("expected_raw", expectedRaw.String()),
			zap.String("received_raw", fallback.RawAmount.String()),
		)
		return &Match{
			Candidate:      *fallback,
			ReceivedAmount: token.FromRawUnits(fallback.RawAmount),
			Confirmed:      true,
		}, nil
	}
	return nil, nil
}

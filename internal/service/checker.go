package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/chainpay/payment-reconciler/internal/engine"
	"github.com/chainpay/payment-reconciler/internal/interfaces"
	"github.com/chainpay/payment-reconciler/internal/metrics"
	"github.com/chainpay/payment-reconciler/internal/models"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
)

const lockTTL = 30 * time.Second

// statusAdvancer is the state-machine entry point the checker drives.
type statusAdvancer interface {
	Advance(ctx context.Context, payment *models.PaymentRecord, now time.Time) (engine.Outcome, error)
}

// eventWriter is satisfied by *kafka.Writer.
type eventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// paymentLocker guards a payment against overlapping checks.
type paymentLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// RedisLocker implements paymentLocker with a SetNX lock.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) {
	l.client.Del(ctx, key)
}

// Checker is the single entry point that drives one payment through the
// state machine and persists the result. It is shared by the background
// poller and the on-demand status check, so it must be safe to call from
// both at once.
type Checker struct {
	repo    interfaces.PaymentRepository
	machine statusAdvancer
	locks   paymentLocker
	events  eventWriter
	now     func() time.Time
}

func NewChecker(
	repo interfaces.PaymentRepository,
	machine statusAdvancer,
	locks paymentLocker,
	events eventWriter,
	now func() time.Time,
) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{
		repo:    repo,
		machine: machine,
		locks:   locks,
		events:  events,
		now:     now,
	}
}

// Check advances a single payment and persists the outcome when it changed.
// A payment already being processed by another check is skipped quietly; the
// next tick will pick it up.
func (c *Checker) Check(ctx context.Context, payment *models.PaymentRecord) error {
	if c.locks != nil {
		lockKey := fmt.Sprintf("payment_lock:%s", payment.UniqueID)
		acquired, err := c.locks.Acquire(ctx, lockKey, lockTTL)
		switch {
		case err != nil:
			// proceed without the lock: transitions are idempotent to
			// recompute and the store's guarded update keeps terminal writes
			// win-once
			telemetry.Logger.Warn("Payment lock unavailable, checking unlocked",
				zap.String("payment_id", payment.UniqueID),
				zap.Error(err),
			)
		case !acquired:
			telemetry.Logger.Debug("Payment already being checked",
				zap.String("payment_id", payment.UniqueID),
			)
			return nil
		default:
			// release only a lock this check actually holds
			defer c.locks.Release(ctx, lockKey)
		}
	}

	outcome, err := c.machine.Advance(ctx, payment, c.now())
	if err != nil {
		telemetry.Logger.Error("Payment cannot be advanced automatically",
			zap.String("payment_id", payment.UniqueID),
			zap.String("status", string(outcome.Status)),
			zap.Error(err),
		)
	}
	if !outcome.Changed {
		return nil
	}

	if outcome.Status == models.StatusPending {
		return c.repo.MarkChecked(ctx, payment.UniqueID, outcome.CheckedAt)
	}

	rows, err := c.repo.FinalizeStatus(ctx, payment.UniqueID, outcome.Status, outcome.CheckedAt,
		outcome.TransactionHash, outcome.ReceivedAmount, outcome.ConfirmedBlock)
	if err != nil {
		return fmt.Errorf("finalize payment %s: %w", payment.UniqueID, err)
	}
	if rows == 0 {
		// another writer finalized the record first; terminal statuses are
		// write-once
		telemetry.Logger.Info("Payment already finalized",
			zap.String("payment_id", payment.UniqueID),
		)
		return nil
	}

	metrics.StatusTransitions.WithLabelValues(string(outcome.Status)).Inc()
	telemetry.Logger.Info("Payment status transition",
		zap.String("payment_id", payment.UniqueID),
		zap.String("from_status", string(payment.Status)),
		zap.String("to_status", string(outcome.Status)),
	)
	c.publishEvent(ctx, payment, outcome)
	return nil
}

// CheckByUniqueID runs an on-demand check and returns the refreshed record.
func (c *Checker) CheckByUniqueID(ctx context.Context, uniqueID string) (*models.PaymentRecord, error) {
	payment, err := c.repo.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		return nil, err
	}
	if err := c.Check(ctx, payment); err != nil {
		telemetry.Logger.Error("On-demand check failed",
			zap.String("payment_id", uniqueID),
			zap.Error(err),
		)
	}
	return c.repo.GetByUniqueID(ctx, uniqueID)
}

func (c *Checker) publishEvent(ctx context.Context, payment *models.PaymentRecord, outcome engine.Outcome) {
	if c.events == nil {
		return
	}

	event := models.PaymentEvent{
		PaymentID:      payment.UniqueID,
		Status:         outcome.Status,
		Network:        payment.Network,
		Currency:       payment.Currency,
		ExpectedAmount: payment.ExpectedAmount.String(),
		Timestamp:      outcome.CheckedAt,
	}
	if outcome.ReceivedAmount != nil {
		event.ReceivedAmount = outcome.ReceivedAmount.String()
	}
	if outcome.TransactionHash != nil {
		event.TxHash = *outcome.TransactionHash
	}

	payload, err := json.Marshal(event)
	if err != nil {
		telemetry.Logger.Error("Error marshaling payment event", zap.Error(err))
		return
	}
	if err := c.events.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payment.UniqueID),
		Value: payload,
	}); err != nil {
		telemetry.Logger.Error("Error publishing payment event",
			zap.String("payment_id", payment.UniqueID),
			zap.Error(err),
		)
	}
}

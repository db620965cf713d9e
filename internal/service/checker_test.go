package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpay/payment-reconciler/internal/engine"
	"github.com/chainpay/payment-reconciler/internal/models"
)

type fakeRepo struct {
	mu           sync.Mutex
	pending      []models.PaymentRecord
	listCalls    int
	listErr      error
	checked      []string
	finalized    map[string]models.PaymentStatus
	finalizeRows int64
	finalizeErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{finalized: map[string]models.PaymentStatus{}, finalizeRows: 1}
}

func (r *fakeRepo) Insert(ctx context.Context, p *models.PaymentRecord) error { return nil }

func (r *fakeRepo) GetByUniqueID(ctx context.Context, uniqueID string) (*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.pending {
		if r.pending[i].UniqueID == uniqueID {
			p := r.pending[i]
			return &p, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *fakeRepo) ListPending(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeRepo) MarkChecked(ctx context.Context, uniqueID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checked = append(r.checked, uniqueID)
	return nil
}

func (r *fakeRepo) FinalizeStatus(ctx context.Context, uniqueID string, status models.PaymentStatus, checkedAt time.Time, txHash *string, receivedAmount *decimal.Decimal, confirmedBlock *int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalizeErr != nil {
		return 0, r.finalizeErr
	}
	if r.finalizeRows > 0 {
		r.finalized[uniqueID] = status
	}
	return r.finalizeRows, nil
}

type fakeAdvancer struct {
	outcome engine.Outcome
	err     error
	calls   int
}

func (f *fakeAdvancer) Advance(ctx context.Context, payment *models.PaymentRecord, now time.Time) (engine.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

type fakeLocker struct {
	held     bool
	err      error
	acquired []string
	released []string
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.acquired = append(l.acquired, key)
	if l.err != nil {
		return false, l.err
	}
	return !l.held, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) {
	l.released = append(l.released, key)
}

type fakeEvents struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (f *fakeEvents) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgs...)
	return nil
}

func checkerNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testPayment(id string) models.PaymentRecord {
	return models.PaymentRecord{
		UniqueID:       id,
		Status:         models.StatusPending,
		Network:        models.NetworkTRON,
		Currency:       "USDT",
		ExpectedAmount: decimal.RequireFromString("10.00"),
		CreatedAt:      checkerNow().Add(-10 * time.Minute),
		ExpiresAt:      checkerNow().Add(20 * time.Minute),
	}
}

func TestCheckPendingOutcomeOnlyMarksChecked(t *testing.T) {
	repo := newFakeRepo()
	adv := &fakeAdvancer{outcome: engine.Outcome{
		Status:    models.StatusPending,
		Changed:   true,
		CheckedAt: checkerNow(),
	}}
	events := &fakeEvents{}
	c := NewChecker(repo, adv, nil, events, checkerNow)

	payment := testPayment("pay-1")
	require.NoError(t, c.Check(context.Background(), &payment))

	assert.Equal(t, []string{"pay-1"}, repo.checked)
	assert.Empty(t, repo.finalized)
	assert.Empty(t, events.messages)
}

func TestCheckTerminalOutcomePersistsAndPublishes(t *testing.T) {
	repo := newFakeRepo()
	hash := "deadbeef"
	received := decimal.RequireFromString("10.00")
	block := int64(4200)
	adv := &fakeAdvancer{outcome: engine.Outcome{
		Status:          models.StatusCompleted,
		Changed:         true,
		CheckedAt:       checkerNow(),
		TransactionHash: &hash,
		ReceivedAmount:  &received,
		ConfirmedBlock:  &block,
	}}
	events := &fakeEvents{}
	c := NewChecker(repo, adv, nil, events, checkerNow)

	payment := testPayment("pay-1")
	require.NoError(t, c.Check(context.Background(), &payment))

	assert.Equal(t, models.StatusCompleted, repo.finalized["pay-1"])
	require.Len(t, events.messages, 1)
	assert.Equal(t, "pay-1", string(events.messages[0].Key))
	assert.Contains(t, string(events.messages[0].Value), `"status":"completed"`)
	assert.Contains(t, string(events.messages[0].Value), `"tx_hash":"deadbeef"`)
}

func TestCheckUnchangedOutcomeWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	adv := &fakeAdvancer{outcome: engine.Outcome{Status: models.StatusCompleted}}
	events := &fakeEvents{}
	c := NewChecker(repo, adv, nil, events, checkerNow)

	payment := testPayment("pay-1")
	payment.Status = models.StatusCompleted
	require.NoError(t, c.Check(context.Background(), &payment))

	assert.Empty(t, repo.checked)
	assert.Empty(t, repo.finalized)
	assert.Empty(t, events.messages)
}

func TestCheckLostFinalizeRaceSkipsEvent(t *testing.T) {
	repo := newFakeRepo()
	repo.finalizeRows = 0
	adv := &fakeAdvancer{outcome: engine.Outcome{
		Status:    models.StatusExpired,
		Changed:   true,
		CheckedAt: checkerNow(),
	}}
	events := &fakeEvents{}
	c := NewChecker(repo, adv, nil, events, checkerNow)

	payment := testPayment("pay-1")
	require.NoError(t, c.Check(context.Background(), &payment))
	assert.Empty(t, events.messages, "a lost write race must not publish a duplicate event")
}

func TestCheckPermanentErrorStillFinalizes(t *testing.T) {
	repo := newFakeRepo()
	adv := &fakeAdvancer{
		outcome: engine.Outcome{
			Status:    models.StatusError,
			Changed:   true,
			CheckedAt: checkerNow(),
		},
		err: models.ErrUnsupportedCurrency,
	}
	c := NewChecker(repo, adv, nil, nil, checkerNow)

	payment := testPayment("pay-1")
	require.NoError(t, c.Check(context.Background(), &payment))
	assert.Equal(t, models.StatusError, repo.finalized["pay-1"])
}

func TestCheckHeldLockSkipsQuietly(t *testing.T) {
	repo := newFakeRepo()
	adv := &fakeAdvancer{outcome: engine.Outcome{
		Status:    models.StatusPending,
		Changed:   true,
		CheckedAt: checkerNow(),
	}}
	locks := &fakeLocker{held: true}
	c := NewChecker(repo, adv, locks, nil, checkerNow)

	payment := testPayment("pay-1")
	require.NoError(t, c.Check(context.Background(), &payment))

	assert.Zero(t, adv.calls)
	assert.Empty(t, repo.checked)
	assert.Empty(t, locks.released, "a lock held elsewhere must never be released here")
}

func TestCheckLockErrorProceedsWithoutRelease(t *testing.T) {
	repo := newFakeRepo()
	adv := &fakeAdvancer{outcome: engine.Outcome{
		Status:    models.StatusPending,
		Changed:   true,
		CheckedAt: checkerNow(),
	}}
	locks := &fakeLocker{err: errors.New("redis down")}
	c := NewChecker(repo, adv, locks, nil, checkerNow)

	payment := testPayment("pay-1")
	require.NoError(t, c.Check(context.Background(), &payment))

	assert.Equal(t, 1, adv.calls, "lock store being down must not stall checks")
	assert.Empty(t, locks.released, "a lock that was never acquired must not be deleted")
}

func TestCheckAcquiredLockIsReleased(t *testing.T) {
	repo := newFakeRepo()
	adv := &fakeAdvancer{outcome: engine.Outcome{
		Status:    models.StatusPending,
		Changed:   true,
		CheckedAt: checkerNow(),
	}}
	locks := &fakeLocker{}
	c := NewChecker(repo, adv, locks, nil, checkerNow)

	payment := testPayment("pay-1")
	require.NoError(t, c.Check(context.Background(), &payment))

	require.Len(t, locks.acquired, 1)
	assert.Equal(t, locks.acquired, locks.released)
}

func TestCheckPersistFailureIsReturned(t *testing.T) {
	repo := newFakeRepo()
	repo.finalizeErr = errors.New("connection reset")
	adv := &fakeAdvancer{outcome: engine.Outcome{
		Status:    models.StatusCompleted,
		Changed:   true,
		CheckedAt: checkerNow(),
	}}
	c := NewChecker(repo, adv, nil, nil, checkerNow)

	payment := testPayment("pay-1")
	err := c.Check(context.Background(), &payment)
	require.Error(t, err)
}

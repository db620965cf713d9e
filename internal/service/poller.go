package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chainpay/payment-reconciler/internal/interfaces"
	"github.com/chainpay/payment-reconciler/internal/metrics"
	"github.com/chainpay/payment-reconciler/internal/models"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
)

// paymentChecker is what the poller drives per pending payment.
type paymentChecker interface {
	Check(ctx context.Context, payment *models.PaymentRecord) error
}

// Poller periodically discovers pending payments and drives each through the
// state machine. One slow or failing payment never blocks the rest of the
// batch, and a tick that fires while the previous cycle is still running is
// dropped, not queued.
type Poller struct {
	repo         interfaces.PaymentRepository
	checker      paymentChecker
	interval     time.Duration
	initialDelay time.Duration
	batchSize    int
	workers      int

	running atomic.Bool
	stopCh  chan struct{}
	done    sync.WaitGroup
}

func NewPoller(repo interfaces.PaymentRepository, checker paymentChecker, interval, initialDelay time.Duration, batchSize, workers int) *Poller {
	if workers < 1 {
		workers = 1
	}
	return &Poller{
		repo:         repo,
		checker:      checker,
		interval:     interval,
		initialDelay: initialDelay,
		batchSize:    batchSize,
		workers:      workers,
		stopCh:       make(chan struct{}),
	}
}

// Start begins scheduling poll cycles after the initial delay. It returns
// immediately.
func (p *Poller) Start(ctx context.Context) {
	p.done.Add(1)
	go func() {
		defer p.done.Done()

		select {
		case <-time.After(p.initialDelay):
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.tick(ctx)
		for {
			select {
			case <-ticker.C:
				p.tick(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels tick scheduling and waits for the scheduler goroutine. A
// cycle already in flight finishes on its own.
func (p *Poller) Stop() {
	close(p.stopCh)
	p.done.Wait()
}

func (p *Poller) tick(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		metrics.PollSkipped.Inc()
		telemetry.Logger.Debug("Previous poll cycle still running, skipping tick")
		return
	}

	p.done.Add(1)
	go func() {
		defer p.done.Done()
		defer p.running.Store(false)
		p.runCycle(ctx)
	}()
}

func (p *Poller) runCycle(ctx context.Context) {
	payments, err := p.repo.ListPending(ctx, p.batchSize)
	if err != nil {
		telemetry.Logger.Error("Error listing pending payments", zap.Error(err))
		return
	}
	if len(payments) == 0 {
		metrics.PollCycles.Inc()
		return
	}

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for i := range payments {
		payment := payments[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := p.checker.Check(ctx, &payment); err != nil {
				telemetry.Logger.Error("Error checking payment",
					zap.String("payment_id", payment.UniqueID),
					zap.Error(err),
				)
			}
		}()
	}
	wg.Wait()

	metrics.PollCycles.Inc()
	telemetry.Logger.Debug("Poll cycle finished", zap.Int("payments", len(payments)))
}

package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainpay/payment-reconciler/internal/models"
)

// Grace extends the query window past nominal expiry to tolerate clock drift
// and transfers that land just after the payment's deadline.
const Grace = 5 * time.Minute

// Adapter translates an (address, token, time-window) query into explorer-API
// calls for one network and parses results into uniform candidates. Adapters
// are read-only and may fail with a transient error.
type Adapter interface {
	FetchCandidates(ctx context.Context, address string, token models.TokenInfo, windowStart, windowEnd time.Time) ([]models.TransactionCandidate, error)
}

// TransientError marks a failure worth retrying on the next poll: explorer
// timeouts, 5xx, rate limits, malformed responses. The payment stays pending.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient explorer error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

func transient(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err should leave the payment pending for a
// retry rather than surfacing as a permanent failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Registry resolves the adapter for a payment's network.
type Registry map[models.Network]Adapter

var ErrUnsupportedNetwork = errors.New("no adapter for network")

func (r Registry) For(network models.Network) (Adapter, error) {
	a, ok := r[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	return a, nil
}

package txretry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultBackoff = 10 * time.Millisecond

// Policy bounds how often a failed write is re-attempted.
type Policy struct {
	MaxRetries int
	Backoff    time.Duration
}

func (p Policy) backoff() retry.Backoff {
	wait := p.Backoff
	if wait <= 0 {
		wait = defaultBackoff
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.WithMaxRetries(uint64(maxRetries), retry.NewConstant(wait))
}

// Do runs fn and runs it again while it fails with an error accepted by
// retryable. Once the budget is spent the last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	return out, err
}

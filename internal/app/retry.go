package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/victorhugom-zz/rio-review/internal/adapters/observability"
	"github.com/victorhugom-zz/rio-review/internal/domain"
)

const DefaultMaxAttempts = 5

// retrier re-runs read-modify-write closures that lost an optimistic
// concurrency race.
type retrier struct {
	attempts int
	base     time.Duration
}

func newRetrier(attempts int, base time.Duration) retrier {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	return retrier{attempts: attempts, base: base}
}

// retryable covers lost races and transient store failures. A timeout has
// already spent the caller's deadline budget and is returned as is.
func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrVersionMismatch), errors.Is(err, domain.ErrDuplicate):
		return true
	case errors.Is(err, domain.ErrTimeout):
		return false
	default:
		return errors.Is(err, domain.ErrPersistence)
	}
}

// run calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. An exhausted budget is ErrConflict wrapping the
// last failure. fn must re-read the document it mutates.
func (r retrier) run(ctx context.Context, op string, fn func() error) error {
	var last error
	for i := 0; i < r.attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
		observability.ObserveRetry(op, err)
		log.Debug().Str("op", op).Int("attempt", i+1).Err(err).Msg("retrying after concurrent write")

		if i < r.attempts-1 && !sleepCtx(ctx, r.backoff(i)) {
			return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
		}
	}
	log.Warn().Str("op", op).Int("attempts", r.attempts).Err(last).Msg("retry budget exhausted")
	return fmt.Errorf("%s after %d attempts: %w: %w", op, r.attempts, domain.ErrConflict, last)
}

// backoff doubles per attempt with up to +50% jitter.
func (r retrier) backoff(i int) time.Duration {
	base := r.base << i
	return base + time.Duration(rand.Float64()*0.5*float64(base))
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

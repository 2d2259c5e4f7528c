package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/victorhugom-zz/rio-review/internal/domain"
)

// Options tune a document store backend. Zero fields take the defaults; a
// negative Pacing turns pacing off.
type Options struct {
	BatchSize int
	Pacing    time.Duration
	Timeout   time.Duration
}

func (o Options) WithDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Pacing < 0 {
		o.Pacing = 0
	} else if o.Pacing == 0 {
		o.Pacing = DefaultPacing
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Classify maps a backend failure onto the domain error taxonomy. Domain
// errors pass through untouched.
func Classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrVersionMismatch),
		errors.Is(err, domain.ErrPersistence),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrValidation):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrPersistence, err)
	}
}

// ClassifyCtx is Classify, but reports a timeout whenever ctx's deadline has
// passed, whatever error the driver chose to surface for it.
func ClassifyCtx(ctx context.Context, op string, err error) error {
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTimeout, err)
	}
	return Classify(op, err)
}

// Package storage holds pieces shared by the document store backends.
package storage

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize = 100
	DefaultPacing    = time.Second
	DefaultTimeout   = 5 * time.Second
)

// Batches splits items into consecutive chunks of at most size elements.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// Pacer spaces out bulk writes: the first batch goes immediately and every
// following one waits for the pacing interval.
type Pacer struct {
	lim *rate.Limiter
}

func NewPacer(every time.Duration) *Pacer {
	if every <= 0 {
		return &Pacer{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(every), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	return p.lim.Wait(ctx)
}

// Paced runs write for each batch of docs, waiting on a fresh pacer between
// batches. It stops at the first error.
func Paced[T any](ctx context.Context, docs []T, size int, every time.Duration, write func(context.Context, []T) error) error {
	p := NewPacer(every)
	for _, b := range Batches(docs, size) {
		if err := p.Wait(ctx); err != nil {
			return err
		}
		if err := write(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

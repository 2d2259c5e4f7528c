// Package feed pulls review exports from an upstream HTTP source.
package feed

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/victorhugom-zz/rio-review/internal/adapters/observability"
	"github.com/victorhugom-zz/rio-review/internal/domain"
)

const maxAttempts = 4

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

var _ domain.ReviewFeed = (*Client)(nil)

func New(base, key string, rps int, timeout time.Duration) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("feed base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// GetReviews tries the item-scoped endpoint first and falls back to the
// flat export filtered by item.
func (c *Client) GetReviews(ctx context.Context, itemID string) ([]map[string]any, error) {
	candidates := []string{
		fmt.Sprintf("%s/items/%s/reviews", c.base, url.PathEscape(itemID)),
		fmt.Sprintf("%s/reviews?itemId=%s", c.base, url.QueryEscape(itemID)),
	}
	var out envelope
	if err := c.getFirst(ctx, candidates, &out); err != nil {
		return nil, err
	}
	return out.rows, nil
}

// envelope accepts a bare array or an object wrapping it under a common key.
type envelope struct{ rows []map[string]any }

func (e *envelope) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &e.rows); err == nil {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("feed: unexpected payload: %w", err)
	}
	for _, k := range []string{"reviews", "data", "items", "results"} {
		if raw, ok := obj[k]; ok {
			return json.Unmarshal(raw, &e.rows)
		}
	}
	return fmt.Errorf("feed: no review list in payload")
}

var (
	ErrNotFound     = fmt.Errorf("feed: %w", domain.ErrNotFound)
	ErrUnauthorized = errors.New("feed: unauthorized")
	ErrForbidden    = errors.New("feed: forbidden")
)

// getFirst returns the first candidate that exists upstream. Any error
// other than a 404 stops the walk.
func (c *Client) getFirst(ctx context.Context, urls []string, out any) error {
	err := errors.New("feed: no candidate URL")
	for _, u := range urls {
		if err = c.get(ctx, u, out); !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return err
}

// get fetches one URL into out. Throttled and 5xx answers are retried up to
// maxAttempts times; the upstream Retry-After wins over our own backoff.
func (c *Client) get(ctx context.Context, u string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	var err error
	for i := 0; i < maxAttempts; i++ {
		var wait time.Duration
		wait, err = c.attempt(ctx, u, out)
		if wait < 0 {
			return err
		}
		if i == maxAttempts-1 {
			break
		}
		if wait == 0 {
			wait = backoff(i)
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
	return err
}

// attempt performs a single request. A negative wait means the outcome is
// final; otherwise the caller may retry after wait (zero: pick a backoff).
func (c *Client) attempt(ctx context.Context, u string, out any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return -1, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rio-review-ingestor/1.0")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("feed", "reviews", 0, time.Since(start))
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return 0, fmt.Errorf("feed: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("feed", "reviews", resp.StatusCode, time.Since(start))

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		return -1, json.NewDecoder(resp.Body).Decode(out)
	case code == http.StatusNoContent:
		return -1, nil
	case code == http.StatusNotFound:
		return -1, ErrNotFound
	case code == http.StatusUnauthorized:
		return -1, ErrUnauthorized
	case code == http.StatusForbidden:
		return -1, ErrForbidden
	case code == http.StatusTooManyRequests, code >= 500 && code != http.StatusNotImplemented:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return retryAfter(resp), fmt.Errorf("feed: upstream status %d", code)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return -1, fmt.Errorf("feed: unexpected status %d: %s", code, strings.TrimSpace(string(b)))
	}
}

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

// retryAfter reads the header as delta seconds or an HTTP date; 0 if unusable.
func retryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}

// backoff grows 200ms, 400ms, 800ms... with up to half again as jitter.
func backoff(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return d
	}
	return d + d*time.Duration(b[0])/510
}

package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultResolveAttempts bounds how many times a read-back is tried.
	DefaultResolveAttempts = 5
	// DefaultResolveInterval is the fixed wait between attempts. The ledger
	// stabilizes within a few seconds; exponential backoff buys nothing here.
	DefaultResolveInterval = time.Second
)

// LookupExhaustedError reports that a ledger read did not stabilize within
// the retry budget. The condition is transient: the caller may safely retry
// the whole operation.
type LookupExhaustedError struct {
	Attempts int
	Last     error
}

func (e *LookupExhaustedError) Error() string {
	return fmt.Sprintf("ledger lookup not stable after %d attempts: %v", e.Attempts, e.Last)
}

func (e *LookupExhaustedError) Unwrap() error { return e.Last }

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) ReaderOption {
	return func(r *Reader) { r.maxAttempts = n }
}

// WithInterval overrides the fixed wait between attempts.
func WithInterval(d time.Duration) ReaderOption {
	return func(r *Reader) { r.interval = d }
}

// Reader re-reads just-committed ledger state until it becomes visible.
// A committed transaction's created objects are not guaranteed to be
// immediately queryable, so every read-back of fresh state polls with a
// fixed interval and a bounded attempt count. Reads only; no side effects.
type Reader struct {
	client      Client
	maxAttempts int
	interval    time.Duration
	logger      *zap.Logger
}

// NewReader creates a Reader over the given ledger client.
func NewReader(client Client, log *zap.Logger, opts ...ReaderOption) *Reader {
	r := &Reader{
		client:      client,
		maxAttempts: DefaultResolveAttempts,
		interval:    DefaultResolveInterval,
		logger:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveObjects fetches every id and succeeds only when all fetches return
// without error in a single attempt. Partial results are discarded; the next
// attempt refetches everything, keeping the operation idempotent.
func (r *Reader) ResolveObjects(ctx context.Context, ids []ObjectID, opts GetObjectOptions) ([]*Object, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		objects, err := r.fetchAll(ctx, ids, opts)
		if err == nil {
			return objects, nil
		}
		lastErr = err

		r.logger.Debug("ledger objects not yet visible",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.maxAttempts),
			zap.Error(err))

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-time.After(r.interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, &LookupExhaustedError{Attempts: r.maxAttempts, Last: lastErr}
}

func (r *Reader) fetchAll(ctx context.Context, ids []ObjectID, opts GetObjectOptions) ([]*Object, error) {
	objects := make([]*Object, 0, len(ids))
	for _, id := range ids {
		obj, err := r.client.GetObject(ctx, id, opts)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// Package idempotency deduplicates retried mutating operations keyed by a
// caller-supplied operation id.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound     = errors.New("idempotency record not found")
	ErrRecordExists = errors.New("idempotency record already exists")
)

// Record is a cached successful outcome.
type Record struct {
	Key         string
	Fingerprint string
	Result      []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists records. Put must insert only when no live record exists
// for the key (an expired one may be replaced) and return ErrRecordExists
// otherwise. Get returns ErrNotFound for unknown keys.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, record Record) error
}

// Key builds the operation key for one merchant operation.
func Key(merchantID, operation, externalID string) string {
	return merchantID + ":" + operation + ":" + externalID
}

// Guard runs an operation at most once per key within its TTL and replays
// the stored result afterwards. Concurrent calls for the same key share one
// execution. Failures are never cached.
type Guard[T any] struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group
	logger *slog.Logger
}

func NewGuard[T any](store Store, ttl time.Duration, logger *slog.Logger) *Guard[T] {
	return &Guard[T]{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the guard's time source.
func (g *Guard[T]) WithClock(now func() time.Time) *Guard[T] {
	g.now = now
	return g
}

type outcome[T any] struct {
	value       T
	fingerprint string
	cached      bool
}

// GetOrCompute returns the cached result for key, or runs compute and caches
// its result for ttl (the guard default when ttl is zero). fingerprint
// identifies the request payload; reusing key with another payload is a
// DuplicateOperationError and compute is not run.
func (g *Guard[T]) GetOrCompute(
	ctx context.Context,
	key, fingerprint string,
	ttl time.Duration,
	compute func(ctx context.Context) (T, error),
) (T, bool, error) {
	var zero T
	if ttl <= 0 {
		ttl = g.ttl
	}

	if out, ok, err := g.lookup(ctx, key); err != nil {
		return zero, false, err
	} else if ok {
		if out.fingerprint != fingerprint {
			return zero, false, domain.NewDuplicateOperationError(key)
		}
		return out.value, true, nil
	}

	executed := false
	v, err, _ := g.group.Do(key, func() (any, error) {
		executed = true

		// another flight may have finished between lookup and Do
		if out, ok, err := g.lookup(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return out, nil
		}

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		return g.save(ctx, key, fingerprint, ttl, value), nil
	})
	if err != nil {
		return zero, false, err
	}

	out := v.(outcome[T])
	if out.fingerprint != fingerprint {
		return zero, false, domain.NewDuplicateOperationError(key)
	}
	return out.value, out.cached || !executed, nil
}

func (g *Guard[T]) lookup(ctx context.Context, key string) (outcome[T], bool, error) {
	rec, err := g.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return outcome[T]{}, false, nil
	}
	if err != nil {
		return outcome[T]{}, false, fmt.Errorf("load idempotency record: %w", err)
	}
	if rec.Expired(g.now()) {
		return outcome[T]{}, false, nil
	}

	var value T
	if err := json.Unmarshal(rec.Result, &value); err != nil {
		return outcome[T]{}, false, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	return outcome[T]{value: value, fingerprint: rec.Fingerprint, cached: true}, true, nil
}

// save persists a fresh result. The operation already happened, so a failure
// to cache it is logged and the result is still returned.
func (g *Guard[T]) save(ctx context.Context, key, fingerprint string, ttl time.Duration, value T) outcome[T] {
	out := outcome[T]{value: value, fingerprint: fingerprint}

	payload, err := json.Marshal(value)
	if err != nil {
		g.logger.Error("failed to encode idempotent result", "key", key, "error", err)
		return out
	}

	now := g.now()
	err = g.store.Put(ctx, Record{
		Key:         key,
		Fingerprint: fingerprint,
		Result:      payload,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrRecordExists):
		g.logger.Warn("idempotency record written concurrently", "key", key)
	default:
		g.logger.Error("failed to store idempotency record", "key", key, "error", err)
	}
	return out
}

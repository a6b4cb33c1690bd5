// Package locking provides in-process, TTL-bounded leases used to serialize
// transitions on a single transaction.
package locking

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultShards       = 64
	defaultPollInterval = 50 * time.Millisecond
	pruneEvery          = 256
)

// ErrLeaseLost is returned when a lease expired and was taken over, or was
// already released.
var ErrLeaseLost = errors.New("lease lost")

// Clock abstracts time for lease expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Lease is an exclusive, time-bounded hold on a key.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

type entry struct {
	token     string
	expiresAt time.Time
	released  chan struct{}
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
	inserts int
}

// Manager hands out at most one live lease per key. Keys are spread over
// independently locked shards so unrelated keys never contend.
type Manager struct {
	shards       []*shard
	clock        Clock
	pollInterval time.Duration
}

type Option func(*Manager)

func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithPollInterval bounds how long a waiter sleeps before re-checking a lease
// that may have expired without being released.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

func WithShards(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.shards = newShards(n)
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		shards:       newShards(defaultShards),
		clock:        systemClock{},
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return shards
}

func (m *Manager) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Acquire blocks until it holds key, timeout elapses or ctx is done.
// A timeout yields a LockTimeout ConcurrencyError; a zero timeout tries once.
func (m *Manager) Acquire(ctx context.Context, key string, ttl, timeout time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, errors.New("lease ttl must be positive")
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lease, released := m.tryAcquire(key, ttl)
		if lease != nil {
			return lease, nil
		}
		if deadline == nil {
			return nil, domain.NewLockTimeoutError(key)
		}

		poll := time.NewTimer(m.pollInterval)
		select {
		case <-released:
		case <-poll.C:
		case <-deadline:
			poll.Stop()
			return nil, domain.NewLockTimeoutError(key)
		case <-ctx.Done():
			poll.Stop()
			return nil, ctx.Err()
		}
		poll.Stop()
	}
}

func (m *Manager) tryAcquire(key string, ttl time.Duration) (*Lease, <-chan struct{}) {
	s := m.shardFor(key)
	now := m.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		if now.Before(e.expiresAt) {
			return nil, e.released
		}
		// holder never released; wake anyone waiting on it
		close(e.released)
	}

	e := &entry{
		token:     uuid.NewString(),
		expiresAt: now.Add(ttl),
		released:  make(chan struct{}),
	}
	s.entries[key] = e

	s.inserts++
	if s.inserts%pruneEvery == 0 {
		s.pruneLocked(now, key)
	}

	return &Lease{Key: key, Token: e.token, ExpiresAt: e.expiresAt}, nil
}

// Release gives up the lease. Releasing a lease that was taken over returns
// ErrLeaseLost and leaves the new holder alone.
func (m *Manager) Release(lease *Lease) error {
	if lease == nil {
		return ErrLeaseLost
	}
	s := m.shardFor(lease.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[lease.Key]
	if !ok || e.token != lease.Token {
		return ErrLeaseLost
	}
	delete(s.entries, lease.Key)
	close(e.released)
	return nil
}

// Renew extends a still-held lease to ttl from now.
func (m *Manager) Renew(lease *Lease, ttl time.Duration) error {
	if lease == nil {
		return ErrLeaseLost
	}
	s := m.shardFor(lease.Key)
	now := m.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[lease.Key]
	if !ok || e.token != lease.Token || !now.Before(e.expiresAt) {
		return ErrLeaseLost
	}
	e.expiresAt = now.Add(ttl)
	lease.ExpiresAt = e.expiresAt
	return nil
}

// Held returns the number of live leases.
func (m *Manager) Held() int {
	now := m.clock.Now()
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			if now.Before(e.expiresAt) {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

func (s *shard) pruneLocked(now time.Time, keep string) {
	for k, e := range s.entries {
		if k != keep && !now.Before(e.expiresAt) {
			delete(s.entries, k)
			close(e.released)
		}
	}
}

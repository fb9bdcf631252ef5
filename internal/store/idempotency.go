package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// IdemStore marks idempotency keys at most once. MarkOnce returns true when
// the key was newly marked, false when a previous run already claimed it.
// Release drops a mark so a run that claimed the key but failed before doing
// any work can be retried.
type IdemStore interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryIdemStore is the in-process default, suitable for tests and single
// instance deployments. Production should use the durable SQL store.
type MemoryIdemStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryIdemStore() *MemoryIdemStore {
	return &MemoryIdemStore{seen: make(map[string]time.Time), now: time.Now}
}

// NewMemoryIdemStoreWithClock allows tests to control expiry.
func NewMemoryIdemStoreWithClock(now func() time.Time) *MemoryIdemStore {
	return &MemoryIdemStore{seen: make(map[string]time.Time), now: now}
}

func (m *MemoryIdemStore) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, ok := m.seen[key]; ok && expiry.After(now) {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryIdemStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

// SQLIdemStore persists marks in the database so a restarted process never
// re-sends a digest. The insert is atomic: ON CONFLICT DO NOTHING plays the
// role of SETNX.
type SQLIdemStore struct {
	st *Store
}

func NewSQLIdemStore(st *Store) *SQLIdemStore {
	return &SQLIdemStore{st: st}
}

func (s *SQLIdemStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	// Expired marks are reclaimed in place rather than by a background sweep.
	const q = `
		INSERT INTO idempotency_marks (key, expires_at)
		VALUES ($1, NOW() + $2::interval)
		ON CONFLICT (key) DO UPDATE
			SET expires_at = EXCLUDED.expires_at
			WHERE idempotency_marks.expires_at < NOW()
		RETURNING key`
	interval := fmt.Sprintf("%d seconds", int(ttl.Seconds()))

	var got string
	err := s.st.db.GetContext(ctx, &got, q, key, interval)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("mark idempotency key: %w", err)
	}
	return true, nil
}

func (s *SQLIdemStore) Release(ctx context.Context, key string) error {
	const q = `DELETE FROM idempotency_marks WHERE key = $1`
	if _, err := s.st.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Store wraps the relational database. All read paths are org-scoped: every
// query filters by org_id and cross-org reads fail closed by construction.
type Store struct {
	db *sqlx.DB

	probeOnce sync.Once
	hasV56    bool
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection (used by tests).
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// DB exposes the underlying handle for the analytic handlers, which manage
// their own transactions so a failed mart query can be rolled back before
// the base-table fallback runs.
func (s *Store) DB() *sqlx.DB { return s.db }

// HasVelocity56 probes information_schema once for the optional 56-day
// rolling velocity column on the sales_daily mart. Queries that depend on
// it must fall back to the two-velocity form when it is absent.
func (s *Store) HasVelocity56(ctx context.Context) bool {
	s.probeOnce.Do(func() {
		const q = `
			SELECT COUNT(*)
			FROM information_schema.columns
			WHERE table_name = 'sales_daily' AND column_name = 'units_56day_avg'`
		var n int
		if err := s.db.GetContext(ctx, &n, q); err != nil {
			log.Warn().Err(err).Msg("mart: velocity column probe failed, assuming two-velocity form")
			s.hasV56 = false
			return
		}
		s.hasV56 = n > 0
		log.Debug().Bool("units_56day_avg", s.hasV56).Msg("mart: velocity column probe")
	})
	return s.hasV56
}

// Org is the tenant root. Every other entity hangs off an org.
type Org struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// ListOrgs enumerates all organizations, used by the daily alert scheduler.
func (s *Store) ListOrgs(ctx context.Context) ([]Org, error) {
	var orgs []Org
	const q = `SELECT id, name FROM organizations ORDER BY id`
	if err := s.db.SelectContext(ctx, &orgs, q); err != nil {
		return nil, fmt.Errorf("list orgs: %w", err)
	}
	return orgs, nil
}

// Package postgres provides the Postgres-backed posting store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/clock/system"
	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/storage/sqlfilter"
)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// Store implements crawler.PostingStore on Postgres.
type Store struct {
	pool   pool
	table  string
	clock  crawler.Clock
	logger *zap.Logger
}

// New creates a pool from cfg and wraps it in a Store.
func New(ctx context.Context, cfg Config, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, clock, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	table, err := sqlfilter.TableName(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, table: table, clock: clock, logger: logger}, nil
}

// EnsureSchema creates the jobs table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	id BIGSERIAL PRIMARY KEY,
	site TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	posted_at TEXT,
	first_seen_utc BIGINT NOT NULL
)`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertNew inserts the postings in one transaction and returns those whose
// URL was not stored before. A failure rolls the whole batch back, so the
// returned subset is always exactly what was committed.
func (s *Store) InsertNew(ctx context.Context, postings []crawler.Posting) ([]crawler.Posting, error) {
	if len(postings) == 0 {
		return nil, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	query := sqlfilter.Insert(s.table, sqlfilter.Postgres)
	now := system.Epoch(s.clock)

	var inserted []crawler.Posting
	for _, p := range postings {
		tag, err := tx.Exec(ctx, query, p.Site, p.Title, p.URL, nullable(p.PostedAt), now)
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Warn("rollback insert failed", zap.Error(rbErr))
			}
			return nil, fmt.Errorf("insert posting %q: %w", p.URL, err)
		}
		if outcomeOf(tag) == crawler.InsertDuplicate {
			s.logger.Debug("posting already stored", zap.String("url", p.URL))
			continue
		}
		inserted = append(inserted, p)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, nil
}

func outcomeOf(tag pgconn.CommandTag) crawler.InsertOutcome {
	if tag.RowsAffected() == 0 {
		return crawler.InsertDuplicate
	}
	return crawler.InsertInserted
}

// Query returns rows matching the filter. A missing table reads as empty.
func (s *Store) Query(ctx context.Context, filter crawler.Filter) ([]crawler.JobRow, error) {
	query, args := sqlfilter.Select(s.table, filter, sqlfilter.Postgres)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		if isMissingTable(err) {
			return []crawler.JobRow{}, nil
		}
		return nil, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()

	out := []crawler.JobRow{}
	for rows.Next() {
		var (
			row      crawler.JobRow
			postedAt sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.Site, &row.Title, &row.URL, &postedAt, &row.FirstSeenUTC); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		row.PostedAt = postedAt.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		if isMissingTable(err) {
			return []crawler.JobRow{}, nil
		}
		return nil, fmt.Errorf("iterate postings: %w", err)
	}
	return out, nil
}

// Ping reports whether the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// Package sqlite stores postings in a SQLite file through sqlx and the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/jobwatch/internal/clock/system"
	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/storage/sqlfilter"
)

// DefaultBusyTimeout is applied when Config.BusyTimeout is zero.
const DefaultBusyTimeout = 10 * time.Second

// Config controls how the database file is opened.
type Config struct {
	Path        string
	Table       string
	BusyTimeout time.Duration
	// SeedPath, when set, is copied to Path if Path does not exist yet.
	SeedPath string
}

// Store implements crawler.PostingStore on SQLite.
type Store struct {
	db     *sqlx.DB
	table  string
	clock  crawler.Clock
	logger *zap.Logger
}

// Open opens (creating if needed) the database file, applies the connection
// pragmas and pins the pool to one connection so writes are serialized.
func Open(ctx context.Context, cfg Config, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.sqlite.path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		if cfg.SeedPath != "" {
			if err := seed(cfg.Path, cfg.SeedPath); err != nil {
				logger.Warn("seed database failed; starting empty",
					zap.String("seed_path", cfg.SeedPath), zap.Error(err))
			}
		}
	}
	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	store, err := NewWithDB(db, cfg.Table, clock, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("using sqlite database",
		zap.String("path", cfg.Path),
		zap.Int64("size_bytes", fileSize(cfg.Path)),
	)
	return store, nil
}

// seed copies seedPath to path unless path already exists or the seed is
// absent. A partial copy is removed.
func seed(path, seedPath string) (err error) {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	src, err := os.Open(seedPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create db from seed: %w", err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close seeded db: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy seed: %w", err)
	}
	return nil
}

// fileSize returns the size of path in bytes, or -1 when it cannot be read.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

// NewWithDB constructs a store from an existing handle (primarily for testing).
func NewWithDB(db *sqlx.DB, table string, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	table, err := sqlfilter.TableName(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, table: table, clock: clock, logger: logger}, nil
}

// EnsureSchema creates the jobs table and its url index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	id INTEGER PRIMARY KEY,
	site TEXT,
	title TEXT,
	url TEXT UNIQUE,
	posted_at TEXT,
	first_seen_utc INTEGER
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + s.table + `_url_idx ON ` + s.table + ` (url)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertNew inserts the postings in one transaction and returns those whose
// URL was not stored before.
func (s *Store) InsertNew(ctx context.Context, postings []crawler.Posting) ([]crawler.Posting, error) {
	if len(postings) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	query := sqlfilter.Insert(s.table, sqlfilter.SQLite)
	now := system.Epoch(s.clock)

	var inserted []crawler.Posting
	for _, p := range postings {
		outcome, err := insertOne(ctx, tx, query, p, now)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if outcome == crawler.InsertDuplicate {
			s.logger.Debug("posting already stored", zap.String("url", p.URL))
			continue
		}
		inserted = append(inserted, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, nil
}

func insertOne(ctx context.Context, tx *sqlx.Tx, query string, p crawler.Posting, now int64) (crawler.InsertOutcome, error) {
	res, err := tx.ExecContext(ctx, query, p.Site, p.Title, p.URL, nullable(p.PostedAt), now)
	if err != nil {
		return 0, fmt.Errorf("insert posting %q: %w", p.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return crawler.InsertDuplicate, nil
	}
	return crawler.InsertInserted, nil
}

// Query returns rows matching the filter. A missing table reads as empty.
func (s *Store) Query(ctx context.Context, filter crawler.Filter) ([]crawler.JobRow, error) {
	query, args := sqlfilter.Select(s.table, filter, sqlfilter.SQLite)
	var records []record
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		if isMissingTable(err) {
			return []crawler.JobRow{}, nil
		}
		return nil, fmt.Errorf("query postings: %w", err)
	}
	rows := make([]crawler.JobRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.jobRow())
	}
	return rows, nil
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// record mirrors a jobs row; legacy tables may hold NULL text columns.
type record struct {
	ID           int64          `db:"id"`
	Site         sql.NullString `db:"site"`
	Title        sql.NullString `db:"title"`
	URL          sql.NullString `db:"url"`
	PostedAt     sql.NullString `db:"posted_at"`
	FirstSeenUTC sql.NullInt64  `db:"first_seen_utc"`
}

func (r record) jobRow() crawler.JobRow {
	return crawler.JobRow{
		ID:           r.ID,
		Site:         r.Site.String,
		Title:        r.Title.String,
		URL:          r.URL.String,
		PostedAt:     r.PostedAt.String,
		FirstSeenUTC: r.FirstSeenUTC.Int64,
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isMissingTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}

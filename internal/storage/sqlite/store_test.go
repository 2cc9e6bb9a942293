package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobwatch/internal/clock/system"
	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/storage/sqlfilter"
)

var firstSeen = time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")
	store, err := Open(context.Background(), Config{Path: path}, system.Fixed(firstSeen), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Path: " "}, system.New(), nil)
	require.Error(t, err)
}

func TestOpenSeedsMissingDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	seedPath := filepath.Join(t.TempDir(), "seed.db")
	seedStore, err := Open(ctx, Config{Path: seedPath}, system.Fixed(firstSeen), nil)
	require.NoError(t, err)
	require.NoError(t, seedStore.EnsureSchema(ctx))
	_, err = seedStore.InsertNew(ctx, []crawler.Posting{{Site: "a", Title: "Seeded", URL: "https://a.example.com/1"}})
	require.NoError(t, err)
	require.NoError(t, seedStore.Close())

	path := filepath.Join(t.TempDir(), "data", "jobs.db")
	store, err := Open(ctx, Config{Path: path, SeedPath: seedPath}, system.Fixed(firstSeen), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rows, err := store.Query(ctx, crawler.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Seeded", rows[0].Title)
}

func TestSeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing string
		seed     string
		want     string
	}{
		{"copies when missing", "", "seed-bytes", "seed-bytes"},
		{"keeps existing file", "live-bytes", "seed-bytes", "live-bytes"},
		{"no seed leaves path absent", "", "", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			path := filepath.Join(dir, "jobs.db")
			seedPath := filepath.Join(dir, "seed.db")
			if tt.existing != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.existing), 0o600))
			}
			if tt.seed != "" {
				require.NoError(t, os.WriteFile(seedPath, []byte(tt.seed), 0o600))
			}

			require.NoError(t, seed(path, seedPath))

			got, err := os.ReadFile(path)
			if tt.want == "" {
				require.ErrorIs(t, err, os.ErrNotExist)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestSeedUnreadableSourceFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := seed(filepath.Join(dir, "jobs.db"), dir)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "jobs.db"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
}

func TestInsertNewIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	batch := []crawler.Posting{
		{Site: "helijobs", Title: "Pilot A", URL: "https://x/a", PostedAt: "2025-03-01"},
		{Site: "helijobs", Title: "Pilot B", URL: "https://x/b"},
	}
	inserted, err := store.InsertNew(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, batch, inserted)

	again, err := store.InsertNew(ctx, batch)
	require.NoError(t, err)
	require.Empty(t, again)

	rows, err := store.Query(ctx, crawler.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestInsertNewKeepsExistingRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.InsertNew(ctx, []crawler.Posting{
		{Site: "helijobs", Title: "Original", URL: "https://x/a", PostedAt: "2025-01-01"},
	})
	require.NoError(t, err)

	later, err := NewWithDB(store.db, "", system.Fixed(firstSeen.Add(24*time.Hour)), nil)
	require.NoError(t, err)
	inserted, err := later.InsertNew(ctx, []crawler.Posting{
		{Site: "helijobs", Title: "Changed", URL: "https://x/a", PostedAt: "2025-02-01"},
		{Site: "helijobs", Title: "Fresh", URL: "https://x/b"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "https://x/b", inserted[0].URL)

	rows, err := store.Query(ctx, crawler.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Original", rows[0].Title)
	assert.Equal(t, "2025-01-01", rows[0].PostedAt)
	assert.Equal(t, firstSeen.Unix(), rows[0].FirstSeenUTC)
	assert.Equal(t, firstSeen.Add(24*time.Hour).Unix(), rows[1].FirstSeenUTC)
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.InsertNew(ctx, []crawler.Posting{
		{Site: "a", Title: "Undated Pilot Australia", URL: "https://x/0"},
		{Site: "a", Title: "Helicopter Pilot - Australia", URL: "https://x/1", PostedAt: "2025-03-01T00:00:00+00:00"},
		{Site: "a", Title: "Pilot Australia", URL: "https://x/2", PostedAt: "2024-12-01"},
		{Site: "a", Title: "Pilot New Zealand", URL: "https://x/3", PostedAt: "2025-02-01"},
		{Site: "b", Title: "Senior Copilot", URL: "https://x/4", PostedAt: "2025-05-05"},
		{Site: "b", Title: "Co Pilot (Relief)", URL: "https://x/5", PostedAt: "2025-04-04"},
	})
	require.NoError(t, err)

	all, err := store.Query(ctx, crawler.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "https://x/4", all[0].URL)
	assert.Equal(t, "https://x/0", all[5].URL, "undated rows sort last")
	assert.Empty(t, all[5].PostedAt)

	both, err := store.Query(ctx, crawler.Filter{Year: 2025, TitleAll: []string{"pilot", "australia"}})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "Helicopter Pilot - Australia", both[0].Title)

	anyOf, err := store.Query(ctx, crawler.Filter{TitleAny: crawler.SplitTerms("copilot|co pilot")})
	require.NoError(t, err)
	require.Len(t, anyOf, 2)
	assert.Equal(t, "https://x/4", anyOf[0].URL)
	assert.Equal(t, "https://x/5", anyOf[1].URL)

	limited, err := store.Query(ctx, crawler.Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestQueryMissingTableIsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.db")
	store, err := Open(context.Background(), Config{Path: path}, system.New(), nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	rows, err := store.Query(context.Background(), crawler.Filter{Year: 2025})
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	store, err := NewWithDB(sqlx.NewDb(mockDB, "sqlmock"), "jobs", system.Fixed(firstSeen), nil)
	require.NoError(t, err)
	return store, mock
}

func TestInsertNewRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	insert := regexp.QuoteMeta(sqlfilter.Insert("jobs", sqlfilter.SQLite))

	mock.ExpectBegin()
	mock.ExpectExec(insert).
		WithArgs("a", "T1", "https://x/1", sqlmock.AnyArg(), firstSeen.Unix()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).
		WithArgs("a", "T2", "https://x/2", sqlmock.AnyArg(), firstSeen.Unix()).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := store.InsertNew(context.Background(), []crawler.Posting{
		{Site: "a", Title: "T1", URL: "https://x/1"},
		{Site: "a", Title: "T2", URL: "https://x/2"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "https://x/2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNewDuplicateOutcome(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	insert := regexp.QuoteMeta(sqlfilter.Insert("jobs", sqlfilter.SQLite))

	mock.ExpectBegin()
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	inserted, err := store.InsertNew(context.Background(), []crawler.Posting{
		{Site: "a", Title: "Dup", URL: "https://x/dup"},
		{Site: "a", Title: "New", URL: "https://x/new"},
	})
	require.NoError(t, err)
	require.Equal(t, []crawler.Posting{{Site: "a", Title: "New", URL: "https://x/new"}}, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNewEmptyBatch(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	inserted, err := store.InsertNew(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryPropagatesErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, site").WillReturnError(errors.New("database is locked"))

	_, err := store.Query(context.Background(), crawler.Filter{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithDBValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithDB(nil, "", system.New(), nil)
	require.Error(t, err)

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = mockDB.Close() }()
	db := sqlx.NewDb(mockDB, "sqlmock")

	_, err = NewWithDB(db, "", nil, nil)
	require.Error(t, err)
	_, err = NewWithDB(db, "bad-name", system.New(), nil)
	require.Error(t, err)
}

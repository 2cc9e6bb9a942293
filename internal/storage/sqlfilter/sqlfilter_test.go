package sqlfilter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobwatch/internal/crawler"
)

func TestTableName(t *testing.T) {
	t.Parallel()

	name, err := TableName("")
	require.NoError(t, err)
	require.Equal(t, DefaultTable, name)

	name, err = TableName("jobs_v2")
	require.NoError(t, err)
	require.Equal(t, "jobs_v2", name)

	_, err = TableName("jobs; DROP TABLE x")
	require.Error(t, err)
}

func TestSelectSQLite(t *testing.T) {
	t.Parallel()

	query, args := Select("jobs", crawler.Filter{
		Year:     2025,
		TitleAny: []string{"Copilot", " co pilot ", ""},
		TitleAll: []string{"australia"},
		Limit:    10,
	}, SQLite)

	require.Equal(t, "SELECT "+Columns+" FROM jobs WHERE posted_at LIKE ? AND "+
		"(instr(lower(title), ?) > 0 OR instr(lower(title), ?) > 0) AND instr(lower(title), ?) > 0 "+
		"ORDER BY posted_at IS NULL, posted_at DESC, id ASC LIMIT ?", query)
	require.Equal(t, []any{"2025-%", "copilot", "co pilot", "australia", 10}, args)
}

func TestSelectPostgres(t *testing.T) {
	t.Parallel()

	query, args := Select("jobs", crawler.Filter{TitleAll: []string{"Pilot", "NZ"}, Limit: 5}, Postgres)

	require.Equal(t, "SELECT "+Columns+" FROM jobs WHERE position($1 in lower(title)) > 0 AND "+
		"position($2 in lower(title)) > 0 ORDER BY posted_at DESC NULLS LAST, id ASC LIMIT $3", query)
	require.Equal(t, []any{"pilot", "nz", 5}, args)
}

func TestSelectWithoutFilters(t *testing.T) {
	t.Parallel()

	query, args := Select("jobs", crawler.Filter{TitleAny: []string{" "}}, SQLite)
	require.Equal(t, "SELECT "+Columns+" FROM jobs ORDER BY posted_at IS NULL, posted_at DESC, id ASC", query)
	require.Empty(t, args)
}

func TestInsert(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"INSERT INTO jobs (site, title, url, posted_at, first_seen_utc) VALUES (?, ?, ?, ?, ?) ON CONFLICT (url) DO NOTHING",
		Insert("jobs", SQLite))
	require.Contains(t, Insert("jobs", Postgres), "VALUES ($1, $2, $3, $4, $5)")
}

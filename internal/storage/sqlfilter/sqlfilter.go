// Package sqlfilter renders crawler.Filter into SQL shared by the SQL-backed
// posting stores.
package sqlfilter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/jobwatch/internal/crawler"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "jobs"

// Columns is the select list matching the jobs schema.
const Columns = "id, site, title, url, posted_at, first_seen_utc"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Dialect selects placeholder style and ordering syntax.
type Dialect int

// Supported dialects.
const (
	SQLite Dialect = iota
	Postgres
)

// TableName applies the default and rejects names that are not plain
// identifiers, since the table is interpolated into statements.
func TableName(table string) (string, error) {
	if table == "" {
		return DefaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

type builder struct {
	dialect Dialect
	args    []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	if b.dialect == Postgres {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

func (b *builder) titleContains(term string) string {
	if b.dialect == Postgres {
		return "position(" + b.bind(term) + " in lower(title)) > 0"
	}
	return "instr(lower(title), " + b.bind(term) + ") > 0"
}

// Select builds the filtered, ordered query and its arguments. Rows with a
// NULL posted_at sort after dated rows; ties keep insertion order.
func Select(table string, filter crawler.Filter, dialect Dialect) (string, []any) {
	filter = filter.Normalized()
	b := &builder{dialect: dialect}

	var where []string
	if filter.Year != 0 {
		where = append(where, "posted_at LIKE "+b.bind(fmt.Sprintf("%d-%%", filter.Year)))
	}
	if len(filter.TitleAny) > 0 {
		ors := make([]string, 0, len(filter.TitleAny))
		for _, term := range filter.TitleAny {
			ors = append(ors, b.titleContains(term))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	for _, term := range filter.TitleAll {
		where = append(where, b.titleContains(term))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + Columns + " FROM " + table)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if dialect == Postgres {
		sb.WriteString(" ORDER BY posted_at DESC NULLS LAST, id ASC")
	} else {
		sb.WriteString(" ORDER BY posted_at IS NULL, posted_at DESC, id ASC")
	}
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT " + b.bind(filter.Limit))
	}
	return sb.String(), b.args
}

// Insert returns the idempotent insert statement for the dialect.
func Insert(table string, dialect Dialect) string {
	values := "?, ?, ?, ?, ?"
	if dialect == Postgres {
		values = "$1, $2, $3, $4, $5"
	}
	return "INSERT INTO " + table + " (site, title, url, posted_at, first_seen_utc) VALUES (" +
		values + ") ON CONFLICT (url) DO NOTHING"
}

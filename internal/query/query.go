// Package query serves filtered reads over the posting store.
package query

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/crawler"
)

// Limit defaults.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Params are the read filters accepted by Jobs.
type Params struct {
	Year     int
	Limit    int
	TitleAny []string
	TitleAll []string
}

// ParseParams reads year, limit, title_any and title_all from a query string.
// Non-integer numbers are ignored; term lists are pipe-delimited.
func ParseParams(values url.Values) Params {
	return Params{
		Year:     atoi(values.Get("year")),
		Limit:    atoi(values.Get("limit")),
		TitleAny: crawler.SplitTerms(values.Get("title_any")),
		TitleAll: crawler.SplitTerms(values.Get("title_all")),
	}
}

func atoi(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// Item is one posting in a read result. PostedAt is nil when unknown.
type Item struct {
	Site     string  `json:"site"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	PostedAt *string `json:"posted_at"`
}

// Result is the read payload.
type Result struct {
	Count int    `json:"count"`
	Items []Item `json:"items"`
}

// Config bounds result sizes.
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// Service is a stateless read path over a PostingStore.
type Service struct {
	store  crawler.PostingStore
	cfg    Config
	logger *zap.Logger
}

// NewService constructs a Service.
func NewService(store crawler.PostingStore, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cfg: cfg, logger: logger}
}

// Filter converts params into a store filter with the limit clamped.
func (s *Service) Filter(p Params) crawler.Filter {
	limit := p.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	return crawler.Filter{
		Year:     p.Year,
		TitleAny: p.TitleAny,
		TitleAll: p.TitleAll,
		Limit:    limit,
	}.Normalized()
}

// Jobs runs the filtered read. Storage failures are logged and produce an
// empty result instead of an error.
func (s *Service) Jobs(ctx context.Context, p Params) Result {
	empty := Result{Count: 0, Items: []Item{}}
	if s.store == nil {
		s.logger.Warn("jobs query without a store")
		return empty
	}
	rows, err := s.store.Query(ctx, s.Filter(p))
	if err != nil {
		s.logger.Warn("jobs query failed", zap.Error(err))
		return empty
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(row))
	}
	return Result{Count: len(items), Items: items}
}

func toItem(row crawler.JobRow) Item {
	item := Item{Site: row.Site, Title: row.Title, URL: row.URL}
	if row.PostedAt != "" {
		posted := row.PostedAt
		item.PostedAt = &posted
	}
	return item
}

// Package memory provides an in-memory posting store for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/jobwatch/internal/clock/system"
	"github.com/JakeFAU/jobwatch/internal/crawler"
)

// Store implements crawler.PostingStore with a map keyed by URL.
type Store struct {
	mu     sync.RWMutex
	clock  crawler.Clock
	byURL  map[string]int
	rows   []crawler.JobRow
	closed bool
}

// New constructs a Store. A nil clock uses the system clock.
func New(clock crawler.Clock) *Store {
	if clock == nil {
		clock = system.New()
	}
	return &Store{clock: clock, byURL: make(map[string]int)}
}

var errClosed = errors.New("memory store closed")

// EnsureSchema is a no-op.
func (s *Store) EnsureSchema(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// InsertNew stores postings whose URL is unseen and returns them.
func (s *Store) InsertNew(_ context.Context, postings []crawler.Posting) ([]crawler.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	firstSeen := system.Epoch(s.clock)
	var inserted []crawler.Posting
	for _, p := range postings {
		if _, ok := s.byURL[p.URL]; ok {
			continue
		}
		row := crawler.JobRow{
			ID:           int64(len(s.rows) + 1),
			Site:         p.Site,
			Title:        p.Title,
			URL:          p.URL,
			PostedAt:     p.PostedAt,
			FirstSeenUTC: firstSeen,
		}
		s.byURL[p.URL] = len(s.rows)
		s.rows = append(s.rows, row)
		inserted = append(inserted, p)
	}
	return inserted, nil
}

// Query returns copies of the matching rows, newest posted_at first with
// undated rows last.
func (s *Store) Query(_ context.Context, filter crawler.Filter) ([]crawler.JobRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	filter = filter.Normalized()
	out := []crawler.JobRow{}
	for _, row := range s.rows {
		if filter.Matches(row) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PostedAt, out[j].PostedAt
		if (a == "") != (b == "") {
			return b == ""
		}
		return a > b
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len reports the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Close marks the store closed; later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

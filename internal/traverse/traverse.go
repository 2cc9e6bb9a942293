// Package traverse walks the listing pages of one site and collects the
// postings extracted from each page.
package traverse

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/extract"
	"github.com/JakeFAU/jobwatch/internal/metrics"
)

// PageResult is the outcome of one listing page. Err is set when the page
// could not be fetched or parsed; Postings is nil in that case.
type PageResult struct {
	URL      string
	Postings []crawler.Posting
	Err      error
}

// Result aggregates the page results of one site in page order.
type Result struct {
	Site  string
	Pages []PageResult
}

// Postings concatenates the postings of successful pages in page order.
func (r Result) Postings() []crawler.Posting {
	var out []crawler.Posting
	for _, page := range r.Pages {
		if page.Err != nil {
			continue
		}
		out = append(out, page.Postings...)
	}
	return out
}

// FailedPages counts pages that produced an error.
func (r Result) FailedPages() int {
	n := 0
	for _, page := range r.Pages {
		if page.Err != nil {
			n++
		}
	}
	return n
}

// PageURLs lists the seed URL followed by pages 2..pageCount of the site's
// page pattern. Without a pattern only the seed is returned.
func PageURLs(site crawler.SiteConfig, pageCount int) []string {
	urls := []string{site.URL}
	if site.PagePattern == "" {
		return urls
	}
	for n := 2; n <= pageCount; n++ {
		urls = append(urls, site.PageURL(n))
	}
	return urls
}

// Traverser drives a Fetcher over a site's pages.
type Traverser struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// New constructs a Traverser.
func New(fetcher crawler.Fetcher, logger *zap.Logger) *Traverser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Traverser{fetcher: fetcher, logger: logger}
}

// Traverse fetches and extracts every page of the site. Page failures are
// logged and recorded, never returned. Empty pages do not stop the walk;
// a canceled context does.
func (t *Traverser) Traverse(ctx context.Context, site crawler.SiteConfig, pageCount int) Result {
	result := Result{Site: site.Name}
	for _, pageURL := range PageURLs(site, pageCount) {
		if err := ctx.Err(); err != nil {
			t.logger.Warn("traversal canceled",
				zap.String("site", site.Name),
				zap.Int("pages_done", len(result.Pages)),
				zap.Error(err),
			)
			break
		}
		page := t.visit(ctx, site, pageURL)
		if page.Err != nil {
			metrics.ObservePage(site.Name, metrics.PageFailed)
			t.logger.Warn("page fetch failed",
				zap.String("site", site.Name),
				zap.String("url", pageURL),
				zap.Error(page.Err),
			)
		} else {
			metrics.ObservePage(site.Name, metrics.PageOK)
			t.logger.Debug("page extracted",
				zap.String("site", site.Name),
				zap.String("url", pageURL),
				zap.Int("count", len(page.Postings)),
			)
		}
		result.Pages = append(result.Pages, page)
	}
	return result
}

func (t *Traverser) visit(ctx context.Context, site crawler.SiteConfig, pageURL string) PageResult {
	if t.fetcher == nil {
		return PageResult{URL: pageURL, Err: errors.New("no fetcher configured")}
	}
	resp, err := t.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return PageResult{URL: pageURL, Err: fmt.Errorf("fetch: %w", err)}
	}
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = pageURL
	}
	postings, err := extract.Extract(resp.Body, finalURL, site)
	if err != nil {
		return PageResult{URL: pageURL, Err: fmt.Errorf("extract: %w", err)}
	}
	return PageResult{URL: pageURL, Postings: postings}
}

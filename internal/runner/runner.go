// Package runner executes one watcher run: traverse every configured site,
// store new postings, then format and deliver the report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/clock/system"
	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/metrics"
	"github.com/JakeFAU/jobwatch/internal/report"
	"github.com/JakeFAU/jobwatch/internal/traverse"
)

// Options select the run mode.
type Options struct {
	// Backfill uses each site's backfill_pages instead of daily_pages.
	Backfill bool
	// ReportAll reports every matched posting, not only new ones.
	ReportAll bool
	// DryRun skips storage and reports every matched posting.
	DryRun bool
}

// Mode names the page-depth mode for logs and metrics.
func (o Options) Mode() string {
	if o.Backfill {
		return "backfill"
	}
	return "daily"
}

// SiteSummary counts what one site produced.
type SiteSummary struct {
	Site        string `json:"site"`
	Pages       int    `json:"pages"`
	FailedPages int    `json:"failed_pages"`
	Matched     int    `json:"matched"`
	Inserted    int    `json:"inserted"`
	StoreError  string `json:"store_error,omitempty"`
}

// Summary describes a finished run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Sites     []SiteSummary `json:"sites"`
	Reported  int           `json:"reported"`
	Report    string        `json:"report"`
	Delivered bool          `json:"delivered"`
}

// Config tunes the runner.
type Config struct {
	// Concurrency bounds how many sites are traversed at once.
	Concurrency int
}

// Traverser walks a site's listing pages.
type Traverser interface {
	Traverse(ctx context.Context, site crawler.SiteConfig, pageCount int) traverse.Result
}

// Runner drives the per-site pipeline.
type Runner struct {
	sites     []crawler.SiteConfig
	traverser Traverser
	store     crawler.PostingStore
	formatter *report.Formatter
	deliverer crawler.Deliverer
	ids       crawler.IDGenerator
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner. store may be nil only for dry runs.
func New(
	sites []crawler.SiteConfig,
	traverser Traverser,
	store crawler.PostingStore,
	formatter *report.Formatter,
	deliverer crawler.Deliverer,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if formatter == nil {
		formatter = report.New(0)
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sites:     sites,
		traverser: traverser,
		store:     store,
		formatter: formatter,
		deliverer: deliverer,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

type siteOutcome struct {
	summary  SiteSummary
	reported []crawler.Posting
}

// Run processes every site and delivers the report. Page, site storage and
// delivery failures are logged and never returned; the error is reserved for
// a missing store or a canceled context.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	if r.store == nil && !opts.DryRun {
		return Summary{}, errors.New("runner: posting store is required unless dry-run")
	}
	if r.traverser == nil {
		return Summary{}, errors.New("runner: traverser is required")
	}
	summary := Summary{RunID: r.newRunID()}
	logger := r.logger.With(zap.String("run_id", summary.RunID), zap.String("mode", opts.Mode()))
	start := r.clock.Now()
	logger.Info("run started",
		zap.Int("sites", len(r.sites)),
		zap.Bool("report_all", opts.ReportAll),
		zap.Bool("dry_run", opts.DryRun),
	)

	outcomes := make([]siteOutcome, len(r.sites))
	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, site := range r.sites {
		wg.Add(1)
		go func(i int, site crawler.SiteConfig) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = siteOutcome{summary: SiteSummary{Site: site.Name}}
				return
			}
			defer func() { <-sem }()
			outcomes[i] = r.processSite(ctx, logger, site, opts)
		}(i, site)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		for _, o := range outcomes {
			summary.Sites = append(summary.Sites, o.summary)
		}
		return summary, fmt.Errorf("run canceled: %w", err)
	}

	var reported []crawler.Posting
	for _, o := range outcomes {
		summary.Sites = append(summary.Sites, o.summary)
		reported = append(reported, o.reported...)
	}
	summary.Reported = len(reported)
	summary.Report = r.formatter.Format(reported)
	summary.Delivered = r.deliver(ctx, logger, summary.Report)

	metrics.ObserveRun(opts.Mode(), r.clock.Now().Sub(start))
	logger.Info("run finished",
		zap.Int("count", summary.Reported),
		zap.Bool("delivered", summary.Delivered),
	)
	return summary, nil
}

func (r *Runner) processSite(ctx context.Context, logger *zap.Logger, site crawler.SiteConfig, opts Options) siteOutcome {
	pages := site.PageCount(opts.Backfill)
	result := r.traverser.Traverse(ctx, site, pages)
	rows := result.Postings()

	out := siteOutcome{summary: SiteSummary{
		Site:        site.Name,
		Pages:       len(result.Pages),
		FailedPages: result.FailedPages(),
		Matched:     len(rows),
	}}
	metrics.ObservePostings(site.Name, metrics.OutcomeMatched, len(rows))
	logger.Info("site scraped",
		zap.String("site", site.Name),
		zap.Int("count", len(rows)),
		zap.Int("pages", pages),
		zap.Int("failed_pages", out.summary.FailedPages),
	)

	if opts.DryRun {
		out.reported = rows
		return out
	}

	// On error the store still returns what it committed; those postings will
	// read as duplicates next run, so they are reported now.
	inserted, err := r.store.InsertNew(ctx, rows)
	metrics.ObservePostings(site.Name, metrics.OutcomeInserted, len(inserted))
	if err != nil {
		logger.Error("store new postings failed",
			zap.String("site", site.Name),
			zap.Int("committed", len(inserted)),
			zap.Error(err),
		)
		out.summary.StoreError = err.Error()
	} else {
		metrics.ObservePostings(site.Name, metrics.OutcomeDuplicate, len(rows)-len(inserted))
	}
	out.summary.Inserted = len(inserted)

	if opts.ReportAll {
		out.reported = rows
	} else {
		out.reported = inserted
	}
	return out
}

func (r *Runner) deliver(ctx context.Context, logger *zap.Logger, body string) bool {
	if r.deliverer == nil {
		logger.Error("no deliverer configured; report not sent", zap.String("body", body))
		return false
	}
	if err := r.deliverer.Deliver(ctx, body); err != nil {
		logger.Error("report delivery failed", zap.Error(err), zap.String("body", body))
		return false
	}
	return true
}

func (r *Runner) newRunID() string {
	if r.ids == nil {
		return ""
	}
	id, err := r.ids.NewID()
	if err != nil {
		r.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

// ReportStored formats and delivers postings already in the store that match
// filter. Unlike Run, a storage failure is returned.
func (r *Runner) ReportStored(ctx context.Context, filter crawler.Filter) (Summary, error) {
	if r.store == nil {
		return Summary{}, errors.New("runner: posting store is required for stored reports")
	}
	summary := Summary{RunID: r.newRunID()}
	logger := r.logger.With(zap.String("run_id", summary.RunID), zap.String("mode", "stored"))

	rows, err := r.store.Query(ctx, filter.Normalized())
	if err != nil {
		return summary, fmt.Errorf("query stored postings: %w", err)
	}
	postings := make([]crawler.Posting, 0, len(rows))
	for _, row := range rows {
		postings = append(postings, row.Posting())
	}
	summary.Reported = len(postings)
	summary.Report = r.formatter.Format(postings)
	summary.Delivered = r.deliver(ctx, logger, summary.Report)
	logger.Info("stored report finished",
		zap.Int("count", summary.Reported),
		zap.Int("year", filter.Year),
		zap.Bool("delivered", summary.Delivered),
	)
	return summary, nil
}

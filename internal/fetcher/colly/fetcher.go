// Package collyfetcher fetches listing pages with gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/jobwatch/internal/crawler"
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultUserAgent   = "Mozilla/5.0 (compatible; JobWatcher/1.0)"
	DefaultTimeout     = 20 * time.Second
	DefaultMaxBodySize = 10 << 20
)

const (
	acceptHeader         = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
	acceptLanguageHeader = "en;q=0.9"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize truncates larger listing pages.
	MaxBodySize int
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	return c
}

// Fetcher implements crawler.Fetcher. Every Fetch clones a template
// collector, so concurrent sites never share callbacks.
type Fetcher struct {
	cfg      Config
	template *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	template := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodySize),
		// Listing pages are re-fetched on every scheduled run.
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	// Clones share the template's HTTP backend, so the timeout and pooled
	// transport are set once here.
	template.WithTransport(newTransport(cfg.Timeout))
	template.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{cfg: cfg, template: template}
}

type outcome struct {
	resp crawler.FetchResponse
	err  error
}

// Fetch GETs url and returns the final URL after redirects with the body.
// Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	c := f.template.Clone()
	c.Context = ctx
	c.OnRequest(setListingHeaders)

	done := make(chan outcome, 1)
	go func() { done <- visit(c, url) }()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s canceled: %w", url, ctx.Err())
	case o := <-done:
		return o.resp, o.err
	}
}

func visit(c *colly.Collector, url string) outcome {
	var (
		o       outcome
		respErr error
	)
	c.OnResponse(func(r *colly.Response) {
		o.resp = toFetchResponse(r)
	})
	c.OnError(func(r *colly.Response, err error) {
		respErr = describeError(r, err)
	})

	err := c.Visit(url)
	switch {
	case respErr != nil:
		o = outcome{err: fmt.Errorf("fetch %s: %w", url, respErr)}
	case err != nil:
		o = outcome{err: fmt.Errorf("fetch %s: %w", url, err)}
	}
	return o
}

func setListingHeaders(r *colly.Request) {
	r.Headers.Set("Accept", acceptHeader)
	r.Headers.Set("Accept-Language", acceptLanguageHeader)
}

func toFetchResponse(r *colly.Response) crawler.FetchResponse {
	return crawler.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
	}
}

func describeError(r *colly.Response, err error) error {
	if r != nil && r.StatusCode != 0 {
		return fmt.Errorf("status %d: %w", r.StatusCode, err)
	}
	return err
}

func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}

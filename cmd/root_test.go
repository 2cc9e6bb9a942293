package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/config"
	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/report"
	"github.com/JakeFAU/jobwatch/internal/runner"
	"github.com/JakeFAU/jobwatch/internal/storage/memory"
	"github.com/JakeFAU/jobwatch/internal/traverse"
)

type stubTraverser struct {
	postings  []crawler.Posting
	pageCount int
}

func (s *stubTraverser) Traverse(_ context.Context, site crawler.SiteConfig, pageCount int) traverse.Result {
	s.pageCount = pageCount
	return traverse.Result{Site: site.Name, Pages: []traverse.PageResult{{URL: site.URL, Postings: s.postings}}}
}

type captureDeliverer struct {
	bodies []string
}

func (c *captureDeliverer) Deliver(_ context.Context, text string) error {
	c.bodies = append(c.bodies, text)
	return nil
}

type mockApp struct {
	runner *runner.Runner
	served bool
	closed bool
}

func (m *mockApp) Logger() *zap.Logger { return zap.NewNop() }

func (m *mockApp) Runner() *runner.Runner { return m.runner }

func (m *mockApp) Serve(context.Context) error {
	m.served = true
	return nil
}

func (m *mockApp) Close() error {
	m.closed = true
	return nil
}

type harness struct {
	app       *mockApp
	trav      *stubTraverser
	store     *memory.Store
	deliverer *captureDeliverer
	built     int
}

var testSite = crawler.SiteConfig{
	Name: "helijobs", URL: "https://jobs.example.com/", ItemSelector: "li", TitleSelector: "h2", LinkSelector: "a",
	BackfillPages: 7,
}

// install swaps the package factories; tests using it must not run in parallel.
func install(t *testing.T, cfg config.Config, cfgErr error) *harness {
	t.Helper()
	h := &harness{
		trav:      &stubTraverser{},
		store:     memory.New(nil),
		deliverer: &captureDeliverer{},
	}
	h.app = &mockApp{runner: runner.New(
		cfg.Sites, h.trav, h.store, report.New(0), h.deliverer, nil, nil, runner.Config{}, nil,
	)}

	origApp, origLoad := newApp, loadConfig
	t.Cleanup(func() { newApp, loadConfig = origApp, origLoad })
	loadConfig = func(string) (config.Config, error) { return cfg, cfgErr }
	newApp = func(context.Context, *config.Config) (App, error) {
		h.built++
		return h.app, nil
	}
	return h
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionSkipsAppBuild(t *testing.T) {
	h := install(t, config.Config{}, errors.New("must not load"))

	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "jobwatch version dev")
	assert.Zero(t, h.built)
}

func TestRunCommandFlags(t *testing.T) {
	h := install(t, config.Config{Sites: []crawler.SiteConfig{testSite}}, nil)
	h.trav.postings = []crawler.Posting{{Site: "helijobs", Title: "Pilot", URL: "https://jobs.example.com/1"}}
	_, err := h.store.InsertNew(context.Background(), h.trav.postings)
	require.NoError(t, err)

	_, err = execute("run", "--backfill", "--report-all")
	require.NoError(t, err)

	assert.Equal(t, 7, h.trav.pageCount)
	require.Len(t, h.deliverer.bodies, 1)
	assert.Equal(t, "Jobs found (1):\n\n- [Pilot](https://jobs.example.com/1)", h.deliverer.bodies[0])
	assert.True(t, h.app.closed)
}

func TestRunCommandDryRun(t *testing.T) {
	h := install(t, config.Config{Sites: []crawler.SiteConfig{testSite}}, nil)
	h.trav.postings = []crawler.Posting{{Site: "helijobs", Title: "Pilot", URL: "https://jobs.example.com/1"}}

	_, err := execute("run", "--dry-run")
	require.NoError(t, err)

	assert.Equal(t, crawler.DefaultDailyPages, h.trav.pageCount)
	assert.Zero(t, h.store.Len())
	require.Len(t, h.deliverer.bodies, 1)
}

func TestRunCommandRequiresSites(t *testing.T) {
	h := install(t, config.Config{}, nil)

	_, err := execute("run")
	require.ErrorIs(t, err, config.ErrNoSites)
	assert.Zero(t, h.built)
}

func TestConfigErrorIsReturned(t *testing.T) {
	install(t, config.Config{}, errors.New("bad yaml"))

	_, err := execute("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad yaml")
}

func TestServeCommand(t *testing.T) {
	h := install(t, config.Config{}, nil)

	_, err := execute("serve")
	require.NoError(t, err)
	assert.True(t, h.app.served)
	assert.True(t, h.app.closed)
}

func TestReportCommandFilters(t *testing.T) {
	h := install(t, config.Config{}, nil)
	_, err := h.store.InsertNew(context.Background(), []crawler.Posting{
		{Site: "a", Title: "Copilot", URL: "https://a.example.com/1", PostedAt: "2025-01-02"},
		{Site: "a", Title: "Co Pilot", URL: "https://a.example.com/2", PostedAt: "2024-01-02"},
		{Site: "a", Title: "Engineer", URL: "https://a.example.com/3", PostedAt: "2025-03-02"},
	})
	require.NoError(t, err)

	_, err = execute("report", "--year", "2025", "--title-any", "copilot|co pilot")
	require.NoError(t, err)

	require.Len(t, h.deliverer.bodies, 1)
	assert.Equal(t, "Jobs found (1):\n\n- [Copilot](https://a.example.com/1) (2025-01-02)", h.deliverer.bodies[0])
}

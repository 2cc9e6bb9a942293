package query

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobwatch/internal/clock/system"
	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/storage/memory"
)

type failingStore struct {
	crawler.PostingStore
	lastFilter crawler.Filter
}

func (f *failingStore) Query(_ context.Context, filter crawler.Filter) ([]crawler.JobRow, error) {
	f.lastFilter = filter
	return nil, errors.New("database is locked")
}

func TestParseParams(t *testing.T) {
	t.Parallel()

	values, err := url.ParseQuery("year=2025&limit=abc&title_any=Copilot|co%20pilot|&title_all=")
	require.NoError(t, err)

	p := ParseParams(values)
	assert.Equal(t, 2025, p.Year)
	assert.Equal(t, 0, p.Limit)
	assert.Equal(t, []string{"copilot", "co pilot"}, p.TitleAny)
	assert.Nil(t, p.TitleAll)

	assert.Equal(t, Params{}, ParseParams(url.Values{"year": {"twenty"}}))
}

func TestFilterClampsLimit(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, Config{}, nil)
	assert.Equal(t, DefaultLimit, svc.Filter(Params{}).Limit)
	assert.Equal(t, DefaultLimit, svc.Filter(Params{Limit: -3}).Limit)
	assert.Equal(t, 25, svc.Filter(Params{Limit: 25}).Limit)
	assert.Equal(t, MaxLimit, svc.Filter(Params{Limit: 50000}).Limit)

	custom := NewService(nil, Config{DefaultLimit: 10, MaxLimit: 20}, nil)
	assert.Equal(t, 10, custom.Filter(Params{}).Limit)
	assert.Equal(t, 20, custom.Filter(Params{Limit: 21}).Limit)
}

func TestJobsCopilotScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New(system.New())
	_, err := store.InsertNew(ctx, []crawler.Posting{
		{Site: "a", Title: "Senior Copilot", URL: "https://x/1", PostedAt: "2025-02-01"},
		{Site: "a", Title: "Co Pilot Relief", URL: "https://x/2"},
		{Site: "a", Title: "Captain", URL: "https://x/3", PostedAt: "2025-03-01"},
	})
	require.NoError(t, err)

	values, err := url.ParseQuery("title_any=copilot|co%20pilot")
	require.NoError(t, err)
	result := NewService(store, Config{}, nil).Jobs(ctx, ParseParams(values))

	require.Equal(t, 2, result.Count)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "https://x/1", result.Items[0].URL)
	require.NotNil(t, result.Items[0].PostedAt)
	assert.Equal(t, "2025-02-01", *result.Items[0].PostedAt)
	assert.Nil(t, result.Items[1].PostedAt)

	body, err := json.Marshal(result.Items[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"site":"a","title":"Co Pilot Relief","url":"https://x/2","posted_at":null}`, string(body))
}

func TestJobsStorageFailureIsEmpty(t *testing.T) {
	t.Parallel()

	store := &failingStore{}
	result := NewService(store, Config{}, nil).Jobs(context.Background(), Params{Year: 2025, Limit: 5})

	assert.Equal(t, 0, result.Count)
	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)
	assert.Equal(t, crawler.Filter{Year: 2025, Limit: 5}, store.lastFilter)

	body, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0,"items":[]}`, string(body))
}

func TestJobsWithoutStore(t *testing.T) {
	t.Parallel()

	result := NewService(nil, Config{}, nil).Jobs(context.Background(), Params{})
	assert.Equal(t, Result{Count: 0, Items: []Item{}}, result)
}

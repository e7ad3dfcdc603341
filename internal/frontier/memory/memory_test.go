package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawlkit/frontier/internal/frontier"
)

func TestBackendLIFOOrdering(t *testing.T) {
	t.Parallel()

	b := New()
	require.NoError(t, b.Init(frontier.Job{Spider: "news", CrawlID: "run-1"}))

	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	for _, u := range urls {
		require.NoError(t, b.Store(&frontier.Request{URL: u}))
	}

	count, err := b.Stats()
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// Most recently stored pops first.
	for i := len(urls) - 1; i >= 0; i-- {
		req, err := b.Pop()
		require.NoError(t, err)
		require.NotNil(t, req)
		require.Equal(t, urls[i], req.URL)
	}
}

func TestBackendPopEmpty(t *testing.T) {
	t.Parallel()

	b := New()
	require.NoError(t, b.Init(frontier.Job{Spider: "news"}))

	for i := 0; i < 5; i++ {
		req, err := b.Pop()
		require.NoError(t, err)
		require.Nil(t, req)

		count, err := b.Stats()
		require.NoError(t, err)
		require.Zero(t, count)
	}
}

func TestBackendPopLastElementResetsToEmpty(t *testing.T) {
	t.Parallel()

	b := New()
	require.NoError(t, b.Init(frontier.Job{Spider: "news"}))
	require.NoError(t, b.Store(&frontier.Request{URL: "https://only.example"}))

	req, err := b.Pop()
	require.NoError(t, err)
	require.Equal(t, "https://only.example", req.URL)

	count, err := b.Stats()
	require.NoError(t, err)
	require.Zero(t, count)

	req, err = b.Pop()
	require.NoError(t, err)
	require.Nil(t, req)
}

func TestBackendInitClearsPreviousState(t *testing.T) {
	t.Parallel()

	b := New()
	require.NoError(t, b.Init(frontier.Job{Spider: "news", CrawlID: "run-1"}))
	require.NoError(t, b.Store(&frontier.Request{URL: "https://stale.example"}))

	require.NoError(t, b.Init(frontier.Job{Spider: "news", CrawlID: "run-2"}))

	count, err := b.Stats()
	require.NoError(t, err)
	require.Zero(t, count)
}

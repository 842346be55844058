package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seoresearcher/ranktrack/internal/tracker"
)

func TestMatchDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		link   string
		target string
		want   bool
	}{
		{"https://www.example.com/page", "example.com", true},
		{"https://example.com/", "https://www.example.com", true},
		{"https://EXAMPLE.com", "example.com", true},
		{"https://unrelated.org/page", "example.com", false},
		{"", "example.com", false},
		{"https://example.com", "", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, MatchDomain(tc.link, tc.target), "%s vs %s", tc.link, tc.target)
	}
}

func TestLookupRank_FindsFirstMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "google", q.Get("engine"))
		require.Equal(t, "seo tool", q.Get("q"))
		require.Equal(t, "Japan", q.Get("location"))
		require.Equal(t, "desktop", q.Get("device"))
		require.Equal(t, "100", q.Get("num"))
		require.Equal(t, "jp", q.Get("gl"))
		require.Equal(t, "ja", q.Get("hl"))
		require.Equal(t, "test-key", q.Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic_results":[
			{"position":1,"link":"https://other.example.org/"},
			{"position":2,"link":"https://www.example.com/page"},
			{"position":3,"link":"https://example.com/deeper"}
		]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	res, err := c.LookupRank(context.Background(), tracker.RankRequest{
		Keyword:      "seo tool",
		TargetDomain: "example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Rank)
	require.Equal(t, 2, *res.Rank)
	require.Equal(t, "https://www.example.com/page", res.URL)
	require.NotEmpty(t, res.Raw)
}

func TestLookupRank_NotRankedIsNilNotError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"organic_results":[{"position":1,"link":"https://unrelated.org/"}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	res, err := c.LookupRank(context.Background(), tracker.RankRequest{Keyword: "x", TargetDomain: "example.com"})
	require.NoError(t, err)
	require.Nil(t, res.Rank)
	require.Empty(t, res.URL)
}

func TestLookupRank_MissingKeyIsProviderError(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil)
	_, err := c.LookupRank(context.Background(), tracker.RankRequest{Keyword: "x", TargetDomain: "example.com"})
	require.Error(t, err)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
}

func TestLookupRank_ProviderErrorField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Your searches for the month are exhausted"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.LookupRank(context.Background(), tracker.RankRequest{Keyword: "x", TargetDomain: "example.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exhausted")
}

func TestLookupRank_Non200IsProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.LookupRank(context.Background(), tracker.RankRequest{Keyword: "x", TargetDomain: "example.com"})
	require.Error(t, err)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
}

package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seoresearcher/ranktrack/internal/metrics"
	"github.com/seoresearcher/ranktrack/internal/tracker"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func intPtr(v int) *int { return &v }

type fakeKeywordStore struct {
	keywords []tracker.Keyword
	err      error
}

func (f *fakeKeywordStore) ListKeywords(_ context.Context, _ string) ([]tracker.Keyword, error) {
	return f.keywords, f.err
}

type fakeRankingStore struct {
	mu        sync.Mutex
	inserted  []tracker.Ranking
	insertErr error
}

func (f *fakeRankingStore) InsertRanking(_ context.Context, r tracker.Ranking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, r)
	return nil
}

func (f *fakeRankingStore) LatestRanking(_ context.Context, _ string) (tracker.Ranking, bool, error) {
	return tracker.Ranking{}, false, nil
}

func (f *fakeRankingStore) LatestRankingAtOrBefore(_ context.Context, _ string, _ time.Time) (tracker.Ranking, bool, error) {
	return tracker.Ranking{}, false, nil
}

func (f *fakeRankingStore) rows() []tracker.Ranking {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tracker.Ranking, len(f.inserted))
	copy(out, f.inserted)
	return out
}

type fakeRankClient struct {
	mu      sync.Mutex
	results map[string]tracker.RankResult
	errs    map[string]error
	calls   int
}

func (f *fakeRankClient) LookupRank(_ context.Context, req tracker.RankRequest) (tracker.RankResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errs[req.Keyword]; ok {
		return tracker.RankResult{}, err
	}
	return f.results[req.Keyword], nil
}

type fakeBlobStore struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeBlobStore) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return "memory://" + path, nil
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func testSite() tracker.Site {
	return tracker.Site{ID: "site-1", Name: "Example", URL: "https://example.com"}
}

func TestCollect_PartialFailureIsolation(t *testing.T) {
	t.Parallel()

	const n = 5
	keywords := make([]tracker.Keyword, 0, n)
	client := &fakeRankClient{
		results: map[string]tracker.RankResult{},
		errs:    map[string]error{},
	}
	for i := 0; i < n; i++ {
		phrase := fmt.Sprintf("kw-%d", i)
		keywords = append(keywords, tracker.Keyword{ID: fmt.Sprintf("id-%d", i), SiteID: "site-1", Phrase: phrase})
		if i < 2 {
			client.errs[phrase] = errors.New("transient provider failure")
			continue
		}
		rank := i + 1
		client.results[phrase] = tracker.RankResult{Rank: &rank, URL: "https://example.com/p", Raw: []byte("{}")}
	}

	store := &fakeRankingStore{}
	c := New(&fakeKeywordStore{keywords: keywords}, store, client, nil, &fakeClock{now: time.Unix(1700000000, 0)}, Config{}, zap.NewNop())

	res := c.Collect(context.Background(), testSite())

	require.Equal(t, n-2, res.Processed)
	require.Len(t, res.Errors, 2)
	require.Len(t, store.rows(), n-2)
	// Failed keywords still appear in the buffer with a nil rank.
	require.Len(t, res.Rankings, n)
	nilRanks := 0
	for _, r := range res.Rankings {
		if r.Rank == nil {
			nilRanks++
		}
	}
	require.Equal(t, 2, nilRanks)
}

func TestCollect_NoKeywordsReturnsImmediately(t *testing.T) {
	t.Parallel()

	client := &fakeRankClient{}
	c := New(&fakeKeywordStore{}, &fakeRankingStore{}, client, nil, &fakeClock{now: time.Unix(0, 0)}, Config{}, zap.NewNop())

	res := c.Collect(context.Background(), testSite())
	require.Zero(t, res.Processed)
	require.Empty(t, res.Rankings)
	require.Empty(t, res.Errors)
	require.Zero(t, client.calls)
}

func TestCollect_KeywordLoadFailure(t *testing.T) {
	t.Parallel()

	c := New(&fakeKeywordStore{err: errors.New("db down")}, &fakeRankingStore{}, &fakeRankClient{}, nil, &fakeClock{now: time.Unix(0, 0)}, Config{}, zap.NewNop())

	res := c.Collect(context.Background(), testSite())
	require.Zero(t, res.Processed)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "db down")
}

func TestCollect_InsertFailureBecomesError(t *testing.T) {
	t.Parallel()

	rank := 7
	client := &fakeRankClient{results: map[string]tracker.RankResult{
		"kw": {Rank: &rank},
	}}
	store := &fakeRankingStore{insertErr: errors.New("insert failed")}
	c := New(
		&fakeKeywordStore{keywords: []tracker.Keyword{{ID: "k1", Phrase: "kw"}}},
		store, client, nil, &fakeClock{now: time.Unix(0, 0)}, Config{}, zap.NewNop(),
	)

	res := c.Collect(context.Background(), testSite())
	require.Zero(t, res.Processed)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "insert failed")
}

func TestCollect_ArchivesRawResponses(t *testing.T) {
	t.Parallel()

	rank := 1
	client := &fakeRankClient{results: map[string]tracker.RankResult{
		"kw": {Rank: &rank, Raw: []byte(`{"organic_results":[]}`)},
	}}
	blob := &fakeBlobStore{}
	c := New(
		&fakeKeywordStore{keywords: []tracker.Keyword{{ID: "k1", Phrase: "kw"}}},
		&fakeRankingStore{}, client, blob,
		&fakeClock{now: time.Unix(1700000000, 0)}, Config{ArchivePrefix: "serp"}, zap.NewNop(),
	)

	res := c.Collect(context.Background(), testSite())
	require.Equal(t, 1, res.Processed)
	require.Len(t, blob.paths, 1)
	require.Contains(t, blob.paths[0], "serp/site-1/k1/")
}

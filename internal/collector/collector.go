// Package collector runs the per-site ranking collection fan-out.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seoresearcher/ranktrack/internal/metrics"
	"github.com/seoresearcher/ranktrack/internal/tracker"
)

// Config controls Collector behavior.
type Config struct {
	// ArchivePrefix is the blob path prefix for raw provider responses.
	ArchivePrefix string
}

// Collector fans out one rank lookup per keyword and persists one
// ranking row per successful lookup. One keyword's failure never
// aborts its siblings.
type Collector struct {
	keywords tracker.KeywordStore
	rankings tracker.RankingStore
	client   tracker.RankClient
	archive  tracker.BlobStore // optional raw-response sink
	clock    tracker.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Collector. archive may be nil to disable raw
// response archiving.
func New(
	keywords tracker.KeywordStore,
	rankings tracker.RankingStore,
	client tracker.RankClient,
	archive tracker.BlobStore,
	clock tracker.Clock,
	cfg Config,
	logger *zap.Logger,
) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "serp"
	}
	return &Collector{
		keywords: keywords,
		rankings: rankings,
		client:   client,
		archive:  archive,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Collect checks every keyword of the site concurrently and returns
// the in-memory buffer of results so the same run can report on them
// without a read-back. Rows are inserted one at a time as lookups
// complete; completion order is unordered.
func (c *Collector) Collect(ctx context.Context, site tracker.Site) tracker.CollectResult {
	result := tracker.CollectResult{Errors: []string{}}

	kws, err := c.keywords.ListKeywords(ctx, site.ID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to load keywords for site %s: %v", site.Name, err))
		return result
	}
	if len(kws) == 0 {
		c.logger.Info("no keywords for site", zap.String("site", site.Name))
		return result
	}

	c.logger.Info("collecting rankings",
		zap.String("site", site.Name),
		zap.Int("keywords", len(kws)),
	)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, kw := range kws {
		wg.Add(1)
		go func(kw tracker.Keyword) {
			defer wg.Done()
			entry, procErr := c.processKeyword(ctx, site, kw)
			mu.Lock()
			defer mu.Unlock()
			result.Rankings = append(result.Rankings, entry)
			if procErr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to process keyword %q: %v", kw.Phrase, procErr))
				return
			}
			result.Processed++
		}(kw)
	}
	wg.Wait()

	return result
}

// processKeyword performs one lookup and, on success, persists the row
// immediately. The returned entry is present even on failure, with a
// nil rank, so reports can still mention the keyword.
func (c *Collector) processKeyword(ctx context.Context, site tracker.Site, kw tracker.Keyword) (tracker.KeywordRank, error) {
	start := c.clock.Now()
	entry := tracker.KeywordRank{Keyword: kw, CheckedAt: start}

	res, err := c.client.LookupRank(ctx, tracker.RankRequest{
		Keyword:      kw.Phrase,
		Location:     kw.Location,
		Device:       kw.Device,
		TargetDomain: site.URL,
	})
	if err != nil {
		metrics.ObserveRankCheck(site.URL, "lookup_error", c.clock.Now().Sub(start))
		c.logger.Error("rank lookup failed",
			zap.String("site", site.Name),
			zap.String("keyword", kw.Phrase),
			zap.Error(err),
		)
		return entry, err
	}

	now := c.clock.Now()
	entry.Rank = res.Rank
	entry.URL = res.URL
	entry.CheckedAt = now

	ranking := tracker.Ranking{
		KeywordID: kw.ID,
		Rank:      res.Rank,
		URL:       res.URL,
		CheckedAt: now,
	}
	if err := c.rankings.InsertRanking(ctx, ranking); err != nil {
		metrics.ObserveRankCheck(site.URL, "store_error", now.Sub(start))
		return entry, fmt.Errorf("save ranking: %w", err)
	}

	c.archiveRaw(ctx, site, kw, now, res.Raw)

	metrics.ObserveRankCheck(site.URL, "ok", now.Sub(start))
	c.logger.Info("ranking saved",
		zap.String("site", site.Name),
		zap.String("keyword", kw.Phrase),
		zap.Any("rank", res.Rank),
	)
	return entry, nil
}

// archiveRaw stores the raw provider payload for later inspection.
// Best effort: a failed archive write is logged, not reported.
func (c *Collector) archiveRaw(ctx context.Context, site tracker.Site, kw tracker.Keyword, at time.Time, raw []byte) {
	if c.archive == nil || len(raw) == 0 {
		return
	}
	path := fmt.Sprintf("%s/%s/%s/%s.json", c.cfg.ArchivePrefix, site.ID, kw.ID, at.UTC().Format("20060102T150405Z"))
	uri, err := c.archive.PutObject(ctx, path, "application/json", raw)
	if err != nil {
		c.logger.Warn("raw response archive failed",
			zap.String("keyword", kw.Phrase),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("raw response archived", zap.String("uri", uri))
}

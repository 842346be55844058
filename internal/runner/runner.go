// Package runner implements the scheduler entry point: one pass over
// all sites flagged for automatic checking.
package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/seoresearcher/ranktrack/internal/chatwork"
	"github.com/seoresearcher/ranktrack/internal/metrics"
	"github.com/seoresearcher/ranktrack/internal/notifier"
	"github.com/seoresearcher/ranktrack/internal/schedule"
	"github.com/seoresearcher/ranktrack/internal/tracker"
)

// SiteCollector is the collection side of the pipeline.
type SiteCollector interface {
	Collect(ctx context.Context, site tracker.Site) tracker.CollectResult
}

// ReportDispatcher is the notification side of the pipeline.
type ReportDispatcher interface {
	MaybeReport(ctx context.Context, site tracker.Site, current []tracker.KeywordRank, token string, force bool) notifier.Result
}

// Config controls the Runner.
type Config struct {
	// Topic, when set together with a publisher, receives the run
	// summary after each pass.
	Topic string
}

// Runner drives evaluate -> collect -> report for every eligible site.
// The check cadence and the report cadence are independent: the report
// is attempted even when the check did not fire.
type Runner struct {
	store     tracker.Store
	collector SiteCollector
	notifier  ReportDispatcher
	publisher tracker.Publisher // optional
	clock     tracker.Clock
	ids       tracker.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	store tracker.Store,
	collector SiteCollector,
	dispatcher ReportDispatcher,
	publisher tracker.Publisher,
	clock tracker.Clock,
	ids tracker.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:     store,
		collector: collector,
		notifier:  dispatcher,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one scheduler pass. Per-site and per-keyword failures
// are accumulated into the summary; the returned error is non-nil only
// for a total failure (the site list itself could not be loaded).
func (r *Runner) Run(ctx context.Context, force bool) (tracker.RunSummary, error) {
	summary := tracker.RunSummary{
		StartTime: r.clock.Now(),
		Errors:    []string{},
	}
	if id, err := r.ids.NewID(); err == nil {
		summary.RunID = id
	}

	logger := r.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("scheduler run started", zap.Bool("force", force))

	sites, err := r.store.ListAutoCheckSites(ctx)
	if err != nil {
		summary.EndTime = r.clock.Now()
		metrics.ObserveRun("failed")
		return summary, fmt.Errorf("load auto-check sites: %w", err)
	}
	if len(sites) == 0 {
		logger.Info("no sites configured for automatic checks")
		summary.Success = true
		summary.EndTime = r.clock.Now()
		metrics.ObserveRun("success")
		return summary, nil
	}

	// The messaging token is read once per run and threaded through,
	// accepting slight staleness within a single pass.
	token, ok, err := r.store.GetAppSetting(ctx, chatwork.TokenSettingKey)
	if err != nil {
		logger.Warn("chatwork token load failed, reports disabled for this run", zap.Error(err))
		token = ""
	} else if !ok {
		logger.Debug("chatwork token not configured")
	}

	for _, site := range sites {
		var current []tracker.KeywordRank

		dec := schedule.Evaluate(site.CheckSchedule, r.clock.Now(), force)
		if dec.Due {
			if dec.Forced {
				logger.Info("check schedule bypassed",
					zap.String("site", site.Name),
					zap.String("reason", dec.Reason),
				)
			}
			res := r.collector.Collect(ctx, site)
			// A site counts as processed only when the fan-out ran over
			// its keywords; a keyword-load failure or an empty keyword
			// list leaves the counter alone.
			if len(res.Rankings) > 0 {
				summary.SitesProcessed++
			}
			summary.KeywordsProcessed += res.Processed
			summary.Errors = append(summary.Errors, res.Errors...)
			current = res.Rankings
		} else {
			logger.Debug("skipping site check",
				zap.String("site", site.Name),
				zap.String("reason", dec.Reason),
			)
		}

		out := r.notifier.MaybeReport(ctx, site, current, token, force)
		if out.Sent {
			summary.ReportsSent++
		}
		if out.Err != nil {
			summary.Errors = append(summary.Errors, out.Err.Error())
		}
	}

	summary.Success = len(summary.Errors) == 0
	summary.EndTime = r.clock.Now()

	status := "success"
	if !summary.Success {
		status = "partial"
	}
	metrics.ObserveRun(status)
	logger.Info("scheduler run finished",
		zap.Bool("success", summary.Success),
		zap.Int("sites_processed", summary.SitesProcessed),
		zap.Int("keywords_processed", summary.KeywordsProcessed),
		zap.Int("reports_sent", summary.ReportsSent),
		zap.Int("errors", len(summary.Errors)),
	)

	r.publishSummary(ctx, summary)
	return summary, nil
}

// publishSummary pushes the run summary to the configured topic.
// Best effort: failures are logged, never added to the run errors.
func (r *Runner) publishSummary(ctx context.Context, summary tracker.RunSummary) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.Topic, summary); err != nil {
		r.logger.Warn("run summary publish failed",
			zap.String("run_id", summary.RunID),
			zap.Error(err),
		)
	}
}

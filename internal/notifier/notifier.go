// Package notifier evaluates per-site report schedules and delivers
// ranking summaries to Chatwork.
package notifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seoresearcher/ranktrack/internal/metrics"
	"github.com/seoresearcher/ranktrack/internal/report"
	"github.com/seoresearcher/ranktrack/internal/schedule"
	"github.com/seoresearcher/ranktrack/internal/tracker"
)

// Result is the outcome of one report attempt. Err is non-fatal to the
// surrounding run; the caller records it and moves on.
type Result struct {
	Sent bool
	Err  error
}

// Notifier composes and sends scheduled reports. Its cadence is the
// settings' own schedule, independent from the site's ranking-check
// cadence.
type Notifier struct {
	store  tracker.Store
	sender tracker.MessageSender
	clock  tracker.Clock
	logger *zap.Logger
}

// New constructs a Notifier.
func New(store tracker.Store, sender tracker.MessageSender, clock tracker.Clock, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		store:  store,
		sender: sender,
		clock:  clock,
		logger: logger,
	}
}

// MaybeReport sends the site's report if one is due. current holds the
// buffer from a collection pass in the same run; when nil (the check
// cadence did not fire this hour) the latest stored ranking per
// keyword is used instead. token is the provider API token loaded once
// per run.
func (n *Notifier) MaybeReport(ctx context.Context, site tracker.Site, current []tracker.KeywordRank, token string, force bool) Result {
	settings, ok, err := n.store.GetChatworkSettings(ctx, site.ID)
	if err != nil {
		return Result{Err: fmt.Errorf("load chatwork settings for site %s: %w", site.Name, err)}
	}
	if !ok || settings.RoomID == "" {
		return Result{}
	}
	if token == "" {
		n.logger.Debug("chatwork token unavailable, skipping report", zap.String("site", site.Name))
		return Result{}
	}

	now := n.clock.Now()
	dec := schedule.Evaluate(settings.Schedule, now, force)
	if !dec.Due {
		n.logger.Debug("report not due",
			zap.String("site", site.Name),
			zap.String("reason", dec.Reason),
		)
		return Result{}
	}
	if dec.Forced {
		n.logger.Info("report schedule bypassed",
			zap.String("site", site.Name),
			zap.String("reason", dec.Reason),
		)
	}

	entries := current
	if entries == nil {
		entries, err = n.latestRankings(ctx, site)
		if err != nil {
			return Result{Err: fmt.Errorf("load rankings for site %s: %w", site.Name, err)}
		}
	}

	period := settings.PeriodDays
	if period <= 0 {
		period = 7
	}
	lookback := now.AddDate(0, 0, -period)
	entries = n.withComparisons(ctx, entries, lookback)

	msg := report.Compose(
		settings.Template,
		site.Name,
		report.PeriodLabel(lookback, now),
		entries,
		settings.MentionID,
	)

	if err := n.sender.SendMessage(ctx, token, settings.RoomID, msg); err != nil {
		metrics.ObserveReport("error")
		return Result{Err: fmt.Errorf("chatwork delivery for site %s: %w", site.Name, err)}
	}
	metrics.ObserveReport("sent")
	n.logger.Info("report sent",
		zap.String("site", site.Name),
		zap.String("room_id", settings.RoomID),
		zap.Int("keywords", len(entries)),
	)

	if err := n.store.UpdateLastReportAt(ctx, site.ID, now); err != nil {
		// The message is out; surface the bookkeeping failure without
		// undoing the send.
		return Result{Sent: true, Err: fmt.Errorf("update last report time for site %s: %w", site.Name, err)}
	}
	return Result{Sent: true}
}

// latestRankings builds report entries from the most recent stored row
// per keyword.
func (n *Notifier) latestRankings(ctx context.Context, site tracker.Site) ([]tracker.KeywordRank, error) {
	kws, err := n.store.ListKeywords(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	entries := make([]tracker.KeywordRank, 0, len(kws))
	for _, kw := range kws {
		entry := tracker.KeywordRank{Keyword: kw}
		r, ok, err := n.store.LatestRanking(ctx, kw.ID)
		if err != nil {
			return nil, fmt.Errorf("latest ranking for %q: %w", kw.Phrase, err)
		}
		if ok {
			entry.Rank = r.Rank
			entry.URL = r.URL
			entry.CheckedAt = r.CheckedAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// withComparisons fills PrevRank from the latest row at or before the
// lookback date plus one day. A keyword without history simply has no
// comparison.
func (n *Notifier) withComparisons(ctx context.Context, entries []tracker.KeywordRank, lookback time.Time) []tracker.KeywordRank {
	cutoff := lookback.AddDate(0, 0, 1)
	out := make([]tracker.KeywordRank, len(entries))
	for i, entry := range entries {
		prev, ok, err := n.store.LatestRankingAtOrBefore(ctx, entry.Keyword.ID, cutoff)
		if err != nil {
			n.logger.Warn("comparison rank lookup failed",
				zap.String("keyword", entry.Keyword.Phrase),
				zap.Error(err),
			)
		} else if ok {
			entry.PrevRank = prev.Rank
		}
		out[i] = entry
	}
	return out
}

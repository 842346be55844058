package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/seoresearcher/ranktrack/internal/report"
	"github.com/seoresearcher/ranktrack/internal/tracker"
)

// cronUpdateRankings is the scheduler entry point, invoked by an
// external cron service. The shared secret travels as a bearer token;
// an unset secret disables the check, which only makes sense in
// development.
func (s *Server) cronUpdateRankings(w http.ResponseWriter, r *http.Request) {
	secret := s.cfg.Auth.CronSecret
	if secret == "" {
		s.logger.Warn("cron secret is not configured, accepting unauthenticated request")
	} else if r.Header.Get("Authorization") != "Bearer "+secret {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	force := r.URL.Query().Get("force") == "true"

	summary, err := s.runner.Run(r.Context(), force)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		writeJSON(w, http.StatusInternalServerError, summary)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type quickCheckRequest struct {
	Keyword   string `json:"keyword"`
	TargetURL string `json:"target_url"`
	Location  string `json:"location"`
	Device    string `json:"device"`
}

type quickCheckResponse struct {
	Keyword string `json:"keyword"`
	Rank    *int   `json:"rank"`
	URL     string `json:"url,omitempty"`
}

// quickCheck runs one ad-hoc rank lookup without touching the store.
func (s *Server) quickCheck(w http.ResponseWriter, r *http.Request) {
	var req quickCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Keyword == "" || req.TargetURL == "" {
		writeError(w, http.StatusBadRequest, "keyword and target_url are required")
		return
	}

	result, err := s.ranks.LookupRank(r.Context(), tracker.RankRequest{
		Keyword:      req.Keyword,
		Location:     req.Location,
		Device:       tracker.Device(req.Device),
		TargetDomain: req.TargetURL,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quickCheckResponse{
		Keyword: req.Keyword,
		Rank:    result.Rank,
		URL:     result.URL,
	})
}

// collectSite runs the collection pipeline for one site immediately,
// regardless of its schedule.
func (s *Server) collectSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "site_id")
	site, err := s.store.GetSite(r.Context(), siteID)
	if err != nil {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}

	res := s.collector.Collect(r.Context(), site)
	s.logger.Info("manual collection finished",
		zap.String("site", site.Name),
		zap.Int("processed", res.Processed),
		zap.Int("errors", len(res.Errors)),
	)
	writeJSON(w, http.StatusOK, res)
}

type chatworkTestRequest struct {
	Token      string `json:"token"`
	RoomID     string `json:"room_id"`
	SiteID     string `json:"site_id"`
	Template   string `json:"template"`
	PeriodDays int    `json:"report_period"`
	MentionID  string `json:"mention_id"`
}

// Placeholder values when the test is sent without a site context.
const (
	testSiteName    = "テストサイト"
	testPeriodLabel = "テスト期間"
	sampleKeyword   = "サンプルキーワード"
)

// chatworkTest composes a report from the site's latest stored ranks
// and delivers it as a marked test message, so operators can verify
// the token, room and template before enabling scheduled reports. The
// token travels in the request; the caller is trying out credentials
// that may not be saved yet.
func (s *Server) chatworkTest(w http.ResponseWriter, r *http.Request) {
	var req chatworkTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Token == "" || req.RoomID == "" {
		writeError(w, http.StatusBadRequest, "token and room_id are required")
		return
	}

	siteName := testSiteName
	period := testPeriodLabel
	var entries []tracker.KeywordRank

	if req.SiteID != "" {
		if site, err := s.store.GetSite(r.Context(), req.SiteID); err == nil {
			siteName = site.Name
		}
		days := req.PeriodDays
		if days <= 0 {
			days = 7
		}
		now := time.Now()
		period = report.PeriodLabel(now.AddDate(0, 0, -days), now)
		entries = s.testEntries(r.Context(), req.SiteID)
	} else {
		rank := 1
		entries = []tracker.KeywordRank{{Keyword: tracker.Keyword{Phrase: sampleKeyword}, Rank: &rank}}
	}

	// The mention tag goes in front of the [info] block, so it is
	// stripped from the template before composing.
	tmpl := req.Template
	if tmpl == "" {
		tmpl = report.DefaultTemplate
	}
	tmpl = strings.Replace(tmpl, "{mention}", "", 1)
	composed := report.Compose(tmpl, siteName, period, entries, "")

	message := fmt.Sprintf(
		"%s\n[info][title]テスト送信[/title]※これはSEO Researcherからのテスト配信です。\n\n%s[/info]",
		report.MentionTag(req.MentionID),
		strings.TrimSpace(composed),
	)

	if err := s.sender.SendMessage(r.Context(), req.Token, req.RoomID, message); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// testEntries builds report entries from the site's latest stored
// rank per keyword. A site with no keywords gets a sample entry so the
// message still demonstrates the format.
func (s *Server) testEntries(ctx context.Context, siteID string) []tracker.KeywordRank {
	kws, err := s.store.ListKeywords(ctx, siteID)
	if err != nil {
		s.logger.Warn("keyword load for test report failed", zap.Error(err))
	}
	if len(kws) == 0 {
		rank := 5
		return []tracker.KeywordRank{{Keyword: tracker.Keyword{Phrase: sampleKeyword}, Rank: &rank}}
	}
	entries := make([]tracker.KeywordRank, 0, len(kws))
	for _, kw := range kws {
		entry := tracker.KeywordRank{Keyword: kw}
		if latest, ok, err := s.store.LatestRanking(ctx, kw.ID); err == nil && ok {
			entry.Rank = latest.Rank
			entry.URL = latest.URL
			entry.CheckedAt = latest.CheckedAt
		}
		entries = append(entries, entry)
	}
	return entries
}

type searchAnalyticsRequest struct {
	AccessToken string `json:"access_token"`
	SiteURL     string `json:"site_url"`
	Days        int    `json:"days"`
}

// searchAnalytics proxies a search-analytics query on behalf of a
// caller-held OAuth token.
func (s *Server) searchAnalytics(w http.ResponseWriter, r *http.Request) {
	var req searchAnalyticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AccessToken == "" || req.SiteURL == "" {
		writeError(w, http.StatusBadRequest, "access_token and site_url are required")
		return
	}

	rows, err := s.analytics.QueryAnalytics(r.Context(), req.AccessToken, req.SiteURL, req.Days)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

// Package tracker defines core types shared across subsystems.
package tracker

import "time"

// Frequency is the cadence of a recurring schedule.
type Frequency string

// Cadence values stored on sites and report settings.
const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Device is the search device class a keyword is tracked on.
type Device string

// Device values persisted on keywords.
const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// Schedule captures a recurring cadence: which hour of the day, and for
// weekly/monthly frequencies which day. Unset fields fall back to
// defaults at evaluation time (hour 9, Monday, the 1st).
type Schedule struct {
	Frequency  Frequency `json:"frequency"`
	Hour       *int      `json:"hour,omitempty"`
	DayOfWeek  *int      `json:"day_of_week,omitempty"`
	DayOfMonth *int      `json:"day_of_month,omitempty"`
}

// Site is a tracked website with its ranking-check cadence.
type Site struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	URL              string   `json:"url"`
	AutoCheckEnabled bool     `json:"auto_check_enabled"`
	CheckSchedule    Schedule `json:"check_schedule"`
}

// Keyword is one tracked search phrase belonging to a site.
type Keyword struct {
	ID       string `json:"id"`
	SiteID   string `json:"site_id"`
	Phrase   string `json:"phrase"`
	Location string `json:"location"`
	Device   Device `json:"device"`
}

// Ranking is one append-only time-series point for a keyword. A nil
// Rank means the site was not found in the top 100 organic results.
type Ranking struct {
	ID        string    `json:"id,omitempty"`
	KeywordID string    `json:"keyword_id"`
	Rank      *int      `json:"rank"`
	URL       string    `json:"url,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ChatworkSettings is the per-site report configuration. At most one
// row exists per site; its cadence is independent from the site's
// ranking-check cadence.
type ChatworkSettings struct {
	SiteID       string     `json:"site_id"`
	RoomID       string     `json:"room_id"`
	Schedule     Schedule   `json:"schedule"`
	PeriodDays   int        `json:"period_days"`
	MentionID    string     `json:"mention_id,omitempty"`
	MentionName  string     `json:"mention_name,omitempty"`
	Template     string     `json:"template,omitempty"`
	LastReportAt *time.Time `json:"last_report_at,omitempty"`
}

// KeywordRank pairs a keyword with its current rank and, when known,
// the comparison-point rank used by report messages.
type KeywordRank struct {
	Keyword   Keyword   `json:"keyword"`
	Rank      *int      `json:"rank"`
	URL       string    `json:"url,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	PrevRank  *int      `json:"prev_rank,omitempty"`
}

// CollectResult summarizes one ranking-collection pass over a site.
type CollectResult struct {
	Processed int           `json:"processed"`
	Rankings  []KeywordRank `json:"rankings"`
	Errors    []string      `json:"errors"`
}

// RunSummary is returned by the scheduler entry point. Errors are flat
// human-readable strings so monitoring can alert on a non-empty list
// without treating the run as down.
type RunSummary struct {
	RunID             string    `json:"run_id"`
	Success           bool      `json:"success"`
	SitesProcessed    int       `json:"sites_processed"`
	KeywordsProcessed int       `json:"keywords_processed"`
	ReportsSent       int       `json:"reports_sent"`
	Errors            []string  `json:"errors"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

// RankRequest identifies one lookup against the ranking provider.
type RankRequest struct {
	Keyword      string
	Location     string
	Device       Device
	TargetDomain string
}

// RankResult is the parsed outcome of one provider lookup. Raw holds
// the provider response body for optional archiving.
type RankResult struct {
	Rank *int
	URL  string
	Raw  []byte
}

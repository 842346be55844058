// Package report renders chat report messages from ranking data.
//
// Placeholder substitution is total: unknown placeholders pass through
// untouched and each supported placeholder is replaced at its first
// occurrence only. Templates by convention use each placeholder once.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/seoresearcher/ranktrack/internal/schedule"
	"github.com/seoresearcher/ranktrack/internal/tracker"
)

// DefaultTemplate is used when a site has no template configured.
const DefaultTemplate = "{mention}\n【SEO順位報告】\nサイト: {site_name}\n期間: {period}\n\n{rankings}"

// Supported placeholders.
const (
	placeholderSiteName = "{site_name}"
	placeholderPeriod   = "{period}"
	placeholderRankings = "{rankings}"
	placeholderMention  = "{mention}"
)

// Compose substitutes the placeholders into the template and returns
// the message text. It never fails; a malformed template simply keeps
// its unknown placeholders.
func Compose(template, siteName, period string, rankings []tracker.KeywordRank, mentionID string) string {
	msg := template
	if msg == "" {
		msg = DefaultTemplate
	}
	msg = strings.Replace(msg, placeholderSiteName, siteName, 1)
	msg = strings.Replace(msg, placeholderPeriod, period, 1)
	msg = strings.Replace(msg, placeholderRankings, FormatRankingLines(rankings), 1)
	msg = strings.Replace(msg, placeholderMention, MentionTag(mentionID), 1)
	return msg
}

// MentionTag returns a Chatwork mention addressed to the account, or a
// broadcast tag when no account is configured.
func MentionTag(mentionID string) string {
	if mentionID == "" {
		return "[toall]"
	}
	return fmt.Sprintf("[to:%s]", mentionID)
}

// FormatRankingLines renders one line per entry:
//
//	[06/02]💻 "キーワード": 3位 (前: 5位)
func FormatRankingLines(rankings []tracker.KeywordRank) string {
	lines := make([]string, 0, len(rankings))
	for _, r := range rankings {
		lines = append(lines, formatLine(r))
	}
	return strings.Join(lines, "\n")
}

func formatLine(r tracker.KeywordRank) string {
	var b strings.Builder
	if !r.CheckedAt.IsZero() {
		b.WriteString(r.CheckedAt.In(schedule.JST).Format("[01/02]"))
	}
	b.WriteString(deviceIcon(r.Keyword.Device))
	b.WriteString(fmt.Sprintf(" %q: ", r.Keyword.Phrase))
	b.WriteString(rankText(r.Rank))
	if r.PrevRank != nil {
		b.WriteString(fmt.Sprintf(" (前: %d位)", *r.PrevRank))
	}
	return b.String()
}

func rankText(rank *int) string {
	if rank == nil {
		return "圏外"
	}
	return fmt.Sprintf("%d位", *rank)
}

func deviceIcon(d tracker.Device) string {
	if d == tracker.DeviceMobile {
		return "📱"
	}
	return "💻"
}

// PeriodLabel formats the reporting window the way the report shows it.
func PeriodLabel(from, to time.Time) string {
	return fmt.Sprintf("%s - %s", from.In(schedule.JST).Format("2006/1/2"), to.In(schedule.JST).Format("2006/1/2"))
}

// Package schedule decides whether a configured cadence is due at a
// reference time. Evaluation is pure; callers log the returned reason.
package schedule

import (
	"fmt"
	"time"

	"github.com/seoresearcher/ranktrack/internal/tracker"
)

// JST is the fixed-offset zone all cadence matching is evaluated in,
// regardless of the host timezone. The target audience lives in a
// single zone without daylight saving, so a fixed offset is exact here.
var JST = time.FixedZone("JST", 9*60*60)

// Defaults applied when a schedule field is unset.
const (
	DefaultHour       = 9
	DefaultDayOfWeek  = 1 // Monday
	DefaultDayOfMonth = 1
)

// Decision is the outcome of one cadence evaluation. Reason describes
// why the schedule is or is not due, including what force bypassed.
type Decision struct {
	Due    bool
	Forced bool
	Reason string
}

// Evaluate reports whether the schedule is due at now. The hour gate is
// checked first, then the day gate for weekly/monthly frequencies.
// force short-circuits both gates to due.
//
// Known limitation, kept deliberately: a DayOfMonth of 29-31 never
// fires in months without that date.
func Evaluate(s tracker.Schedule, now time.Time, force bool) Decision {
	local := now.In(JST)

	hour := DefaultHour
	if s.Hour != nil {
		hour = *s.Hour
	}
	if local.Hour() != hour {
		if force {
			return Decision{Due: true, Forced: true, Reason: fmt.Sprintf("forced (hour %02d:00 != current %02d:00)", hour, local.Hour())}
		}
		return Decision{Reason: fmt.Sprintf("hour mismatch: configured %02d:00, current %02d:00", hour, local.Hour())}
	}

	freq := s.Frequency
	if freq == "" {
		freq = tracker.FrequencyWeekly
	}

	switch freq {
	case tracker.FrequencyDaily:
		return Decision{Due: true, Reason: "daily"}
	case tracker.FrequencyWeekly:
		day := DefaultDayOfWeek
		if s.DayOfWeek != nil {
			day = *s.DayOfWeek
		}
		if int(local.Weekday()) == day {
			return Decision{Due: true, Reason: fmt.Sprintf("weekly: day %d", day)}
		}
		if force {
			return Decision{Due: true, Forced: true, Reason: fmt.Sprintf("forced (weekly day %d != current %d)", day, int(local.Weekday()))}
		}
		return Decision{Reason: fmt.Sprintf("weekly: configured day %d, current %d", day, int(local.Weekday()))}
	case tracker.FrequencyMonthly:
		day := DefaultDayOfMonth
		if s.DayOfMonth != nil {
			day = *s.DayOfMonth
		}
		if local.Day() == day {
			return Decision{Due: true, Reason: fmt.Sprintf("monthly: day %d", day)}
		}
		if force {
			return Decision{Due: true, Forced: true, Reason: fmt.Sprintf("forced (monthly day %d != current %d)", day, local.Day())}
		}
		return Decision{Reason: fmt.Sprintf("monthly: configured day %d, current %d", day, local.Day())}
	default:
		if force {
			return Decision{Due: true, Forced: true, Reason: fmt.Sprintf("forced (unknown frequency %q)", freq)}
		}
		return Decision{Reason: fmt.Sprintf("unknown frequency %q", freq)}
	}
}

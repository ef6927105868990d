package trigger

import (
	"strconv"
	"strings"
	"time"
)

// Allowed decides whether a trigger may fire at now given its settings and
// the number of fires already recorded today. Three independent gates:
// quiet hours, enabled days, daily cap. All must allow.
func Allowed(settings Settings, now time.Time, firesToday int) bool {
	if inQuietHours(settings.QuietHours, now) {
		return false
	}
	if !dayEnabled(settings.EnabledDays, now) {
		return false
	}
	if settings.MaxTriggersPerDay > 0 && firesToday >= settings.MaxTriggersPerDay {
		return false
	}
	return true
}

// inQuietHours reports whether now falls inside the quiet window, both
// bounds inclusive. A window with start > end wraps midnight. Unparseable
// bounds disable the gate.
func inQuietHours(qh *QuietHours, now time.Time) bool {
	if qh == nil {
		return false
	}

	start, okStart := parseClock(qh.Start)
	end, okEnd := parseClock(qh.End)
	if !okStart || !okEnd {
		return false
	}

	current := now.Hour()*60 + now.Minute()

	if start <= end {
		return current >= start && current <= end
	}
	// Overnight window, e.g. 22:00-08:00
	return current >= start || current <= end
}

// parseClock parses "HH:MM" into minutes since midnight
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

// dayEnabled reports whether now's weekday is in the enabled set.
// An empty set enables every day.
func dayEnabled(enabledDays []string, now time.Time) bool {
	if len(enabledDays) == 0 {
		return true
	}
	weekday := strings.ToLower(now.Weekday().String())
	for _, day := range enabledDays {
		if strings.ToLower(day) == weekday {
			return true
		}
	}
	return false
}

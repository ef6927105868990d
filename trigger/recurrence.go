package trigger

import "time"

// IsDue decides whether a date condition is due at now given the trigger's
// fire history. Malformed or unknown patterns are never due.
//
// Matching is calendar-day granular: the condition's TimeOfDay and
// Timezone and the pattern's DaysOfWeek, DayOfMonth, and MonthOfYear
// refinements are carried in the data model but intentionally not
// consulted here. Time-of-day gating belongs to the rate limiter's
// quiet hours.
func IsDue(cond DateCondition, state FireState, now time.Time) bool {
	if !cond.IsRecurring {
		return oneTimeDue(cond, state, now)
	}

	rec := cond.Recurrence
	if rec == nil || rec.Interval < 1 {
		return false
	}
	if rec.EndDate != nil && now.After(*rec.EndDate) {
		return false
	}
	if rec.MaxOccurrences > 0 && state.TriggerCount >= rec.MaxOccurrences {
		return false
	}

	switch rec.Type {
	case RecurrenceDaily:
		return elapsedDays(state.LastTriggered, now) >= rec.Interval
	case RecurrenceWeekly:
		return elapsedDays(state.LastTriggered, now) >= rec.Interval*7
	case RecurrenceMonthly:
		return state.LastTriggered == nil ||
			monthsBetween(*state.LastTriggered, now) >= rec.Interval
	case RecurrenceYearly:
		return yearlyDue(cond.TriggerDate, state.LastTriggered, now)
	default:
		return false
	}
}

// oneTimeDue: due iff now is the same calendar day as the trigger date and
// the condition has never fired. A fired one-time condition is permanently
// exhausted; the FiredOnce marker holds even if LastTriggered is cleared.
func oneTimeDue(cond DateCondition, state FireState, now time.Time) bool {
	if state.FiredOnce || state.LastTriggered != nil {
		return false
	}
	return sameCalendarDay(cond.TriggerDate, now)
}

// yearlyDue: now shares month and day with the trigger date, and the last
// fire (if any) was in a strictly earlier year. At most one fire per
// calendar year regardless of tick count.
func yearlyDue(triggerDate time.Time, lastTriggered *time.Time, now time.Time) bool {
	if now.Month() != triggerDate.Month() || now.Day() != triggerDate.Day() {
		return false
	}
	return lastTriggered == nil || lastTriggered.Year() < now.Year()
}

// elapsedDays returns the number of whole days since the last fire, or a
// large value when the condition has never fired
func elapsedDays(lastTriggered *time.Time, now time.Time) int {
	if lastTriggered == nil {
		return int(^uint(0) >> 1) // never fired, any interval satisfied
	}
	elapsed := now.Sub(*lastTriggered)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed.Hours() / 24)
}

// monthsBetween returns the calendar-month difference between a and b
func monthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if months < 0 {
		return 0
	}
	return months
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

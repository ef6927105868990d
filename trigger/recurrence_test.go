package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time { return &t }

func TestIsDue_OneTime(t *testing.T) {
	cond := DateCondition{TriggerDate: date(2026, time.March, 15)}

	tests := []struct {
		name  string
		state FireState
		now   time.Time
		want  bool
	}{
		{
			name: "due on the trigger day when never fired",
			now:  date(2026, time.March, 15),
			want: true,
		},
		{
			name: "not due the day before",
			now:  date(2026, time.March, 14),
			want: false,
		},
		{
			name: "not due the day after",
			now:  date(2026, time.March, 16),
			want: false,
		},
		{
			name:  "never due again after firing",
			state: FireState{LastTriggered: timePtr(date(2026, time.March, 15)), FiredOnce: true},
			now:   date(2026, time.March, 15),
			want:  false,
		},
		{
			name:  "exhaustion survives cleared lastTriggered",
			state: FireState{FiredOnce: true},
			now:   date(2026, time.March, 15),
			want:  false,
		},
		{
			name:  "not due in a future year after firing",
			state: FireState{FiredOnce: true},
			now:   date(2027, time.March, 15),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDue(cond, tt.state, tt.now))
		})
	}
}

func TestIsDue_RefinementFieldsIgnored(t *testing.T) {
	// Day-granular matching: time-of-day, timezone, and day-selection
	// refinements ride along in the model without affecting dueness.
	cond := DateCondition{
		TriggerDate: date(2026, time.January, 1),
		IsRecurring: true,
		TimeOfDay:   "09:30",
		Timezone:    "America/New_York",
		Recurrence: &RecurrencePattern{
			Type:        RecurrenceDaily,
			Interval:    1,
			DaysOfWeek:  []string{"saturday"},
			DayOfMonth:  31,
			MonthOfYear: 12,
		},
	}

	// 2026-06-02 is a Tuesday
	assert.True(t, IsDue(cond, FireState{}, date(2026, time.June, 2)))
}

func TestIsDue_Daily(t *testing.T) {
	cond := DateCondition{
		TriggerDate: date(2026, time.January, 1),
		IsRecurring: true,
		Recurrence:  &RecurrencePattern{Type: RecurrenceDaily, Interval: 3},
	}

	lastFire := date(2026, time.June, 1)

	tests := []struct {
		name  string
		state FireState
		now   time.Time
		want  bool
	}{
		{
			name: "due when never fired",
			now:  date(2026, time.June, 1),
			want: true,
		},
		{
			name:  "not due on day 2 after last fire",
			state: FireState{LastTriggered: &lastFire},
			now:   date(2026, time.June, 3),
			want:  false,
		},
		{
			name:  "due on day 3",
			state: FireState{LastTriggered: &lastFire},
			now:   date(2026, time.June, 4),
			want:  true,
		},
		{
			name:  "due on day 5",
			state: FireState{LastTriggered: &lastFire},
			now:   date(2026, time.June, 6),
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDue(cond, tt.state, tt.now))
		})
	}
}

func TestIsDue_Weekly(t *testing.T) {
	cond := DateCondition{
		TriggerDate: date(2026, time.January, 1),
		IsRecurring: true,
		Recurrence:  &RecurrencePattern{Type: RecurrenceWeekly, Interval: 2},
	}

	lastFire := date(2026, time.June, 1)

	assert.True(t, IsDue(cond, FireState{}, date(2026, time.June, 1)))
	assert.False(t, IsDue(cond, FireState{LastTriggered: &lastFire}, date(2026, time.June, 8)))
	assert.True(t, IsDue(cond, FireState{LastTriggered: &lastFire}, date(2026, time.June, 15)))
}

func TestIsDue_Monthly(t *testing.T) {
	cond := DateCondition{
		TriggerDate: date(2026, time.January, 10),
		IsRecurring: true,
		Recurrence:  &RecurrencePattern{Type: RecurrenceMonthly, Interval: 1},
	}

	lastFire := date(2026, time.March, 10)

	assert.True(t, IsDue(cond, FireState{}, date(2026, time.March, 10)))
	assert.False(t, IsDue(cond, FireState{LastTriggered: &lastFire}, date(2026, time.March, 25)))
	assert.True(t, IsDue(cond, FireState{LastTriggered: &lastFire}, date(2026, time.April, 10)))
}

func TestIsDue_Yearly(t *testing.T) {
	cond := DateCondition{
		TriggerDate: date(2024, time.February, 14),
		IsRecurring: true,
		Recurrence:  &RecurrencePattern{Type: RecurrenceYearly, Interval: 1},
	}

	// Due on the anniversary when never fired
	assert.True(t, IsDue(cond, FireState{}, date(2025, time.February, 14)))

	// Not due on other days
	assert.False(t, IsDue(cond, FireState{}, date(2025, time.February, 15)))

	// Once fired on 2025-02-14, later ticks the same day are not due
	fired := date(2025, time.February, 14)
	laterSameDay := time.Date(2025, time.February, 14, 23, 50, 0, 0, time.UTC)
	assert.False(t, IsDue(cond, FireState{LastTriggered: &fired}, laterSameDay))

	// Due again on 2026-02-14
	assert.True(t, IsDue(cond, FireState{LastTriggered: &fired}, date(2026, time.February, 14)))
}

func TestIsDue_FailClosed(t *testing.T) {
	tests := []struct {
		name string
		cond DateCondition
	}{
		{
			name: "recurring without pattern",
			cond: DateCondition{TriggerDate: date(2026, time.January, 1), IsRecurring: true},
		},
		{
			name: "unknown pattern type",
			cond: DateCondition{
				TriggerDate: date(2026, time.January, 1),
				IsRecurring: true,
				Recurrence:  &RecurrencePattern{Type: "fortnightly", Interval: 1},
			},
		},
		{
			name: "zero interval",
			cond: DateCondition{
				TriggerDate: date(2026, time.January, 1),
				IsRecurring: true,
				Recurrence:  &RecurrencePattern{Type: RecurrenceDaily, Interval: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, IsDue(tt.cond, FireState{}, date(2026, time.January, 1)))
		})
	}
}

func TestIsDue_EndDateAndMaxOccurrences(t *testing.T) {
	end := date(2026, time.June, 1)
	cond := DateCondition{
		TriggerDate: date(2026, time.January, 1),
		IsRecurring: true,
		Recurrence: &RecurrencePattern{
			Type:     RecurrenceDaily,
			Interval: 1,
			EndDate:  &end,
		},
	}

	assert.True(t, IsDue(cond, FireState{}, date(2026, time.May, 1)))
	assert.False(t, IsDue(cond, FireState{}, date(2026, time.June, 2)))

	capped := DateCondition{
		TriggerDate: date(2026, time.January, 1),
		IsRecurring: true,
		Recurrence: &RecurrencePattern{
			Type:           RecurrenceDaily,
			Interval:       1,
			MaxOccurrences: 3,
		},
	}

	assert.True(t, IsDue(capped, FireState{TriggerCount: 2}, date(2026, time.May, 1)))
	assert.False(t, IsDue(capped, FireState{TriggerCount: 3}, date(2026, time.May, 1)))
}

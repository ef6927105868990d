package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/pkg/geo"
)

func TestMemoryTrigger_Validate(t *testing.T) {
	valid := locationTrigger("t1")

	tests := []struct {
		name    string
		mutate  func(*MemoryTrigger)
		wantErr error
	}{
		{
			name:   "valid trigger",
			mutate: func(*MemoryTrigger) {},
		},
		{
			name:    "missing id",
			mutate:  func(m *MemoryTrigger) { m.ID = "" },
			wantErr: errors.ErrInvalidTrigger,
		},
		{
			name:    "missing name",
			mutate:  func(m *MemoryTrigger) { m.Name = "" },
			wantErr: errors.ErrInvalidTrigger,
		},
		{
			name:    "empty conditions",
			mutate:  func(m *MemoryTrigger) { m.Conditions = nil },
			wantErr: errors.ErrInvalidTrigger,
		},
		{
			name: "mixed condition types",
			mutate: func(m *MemoryTrigger) {
				m.Conditions = append(m.Conditions, Condition{
					Type: ConditionDate,
					Date: &DateCondition{TriggerDate: time.Now()},
				})
			},
			wantErr: errors.ErrInvalidCondition,
		},
		{
			name: "location condition without geofence",
			mutate: func(m *MemoryTrigger) {
				m.Conditions = []Condition{{Type: ConditionLocation}}
			},
			wantErr: errors.ErrInvalidCondition,
		},
		{
			name: "non-positive radius",
			mutate: func(m *MemoryTrigger) {
				m.Conditions[0].Location.RadiusMeters = 0
			},
			wantErr: errors.ErrInvalidCondition,
		},
		{
			name: "recurring date without pattern",
			mutate: func(m *MemoryTrigger) {
				m.Conditions = []Condition{{
					Type: ConditionDate,
					Date: &DateCondition{TriggerDate: time.Now(), IsRecurring: true},
				}}
			},
			wantErr: errors.ErrInvalidCondition,
		},
		{
			name: "unknown action type",
			mutate: func(m *MemoryTrigger) {
				m.Actions = []Action{{ID: "a", Type: "teleport"}}
			},
			wantErr: errors.ErrInvalidAction,
		},
		{
			name: "negative action delay",
			mutate: func(m *MemoryTrigger) {
				m.Actions = []Action{{ID: "a", Type: ActionNotify, DelaySeconds: -1}}
			},
			wantErr: errors.ErrInvalidAction,
		},
		{
			name:    "zero daily cap",
			mutate:  func(m *MemoryTrigger) { m.Settings.MaxTriggersPerDay = 0 },
			wantErr: errors.ErrInvalidTrigger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig := valid.Clone()
			tt.mutate(&trig)

			err := trig.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestMemoryTrigger_CloneIsDeep(t *testing.T) {
	now := time.Now()
	original := MemoryTrigger{
		ID:   "t1",
		Name: "anniversary",
		Conditions: []Condition{{
			Type: ConditionDate,
			Date: &DateCondition{
				TriggerDate: now,
				IsRecurring: true,
				Recurrence: &RecurrencePattern{
					Type:       RecurrenceWeekly,
					Interval:   1,
					DaysOfWeek: []string{"monday"},
				},
			},
		}},
		Actions: []Action{{
			ID:     "a1",
			Type:   ActionPlayAudio,
			Config: map[string]any{"audioUrl": "https://example.com/a.mp3"},
		}},
		LastTriggered: &now,
		Settings: Settings{
			MaxTriggersPerDay: 2,
			QuietHours:        &QuietHours{Start: "22:00", End: "08:00"},
			EnabledDays:       []string{"monday"},
		},
		Metadata: Metadata{Tags: []string{"love"}},
	}

	clone := original.Clone()
	clone.Conditions[0].Date.Recurrence.DaysOfWeek[0] = "friday"
	clone.Actions[0].Config["audioUrl"] = "changed"
	clone.Settings.QuietHours.Start = "00:00"
	clone.Settings.EnabledDays[0] = "sunday"
	clone.Metadata.Tags[0] = "changed"
	*clone.LastTriggered = now.Add(time.Hour)

	assert.Equal(t, "monday", original.Conditions[0].Date.Recurrence.DaysOfWeek[0])
	assert.Equal(t, "https://example.com/a.mp3", original.Actions[0].Config["audioUrl"])
	assert.Equal(t, "22:00", original.Settings.QuietHours.Start)
	assert.Equal(t, "monday", original.Settings.EnabledDays[0])
	assert.Equal(t, "love", original.Metadata.Tags[0])
	assert.True(t, original.LastTriggered.Equal(now))
}

func TestMemoryTrigger_ConditionKind(t *testing.T) {
	trig := locationTrigger("t1")
	assert.Equal(t, ConditionLocation, trig.ConditionKind())

	trig.Conditions = nil
	assert.Equal(t, ConditionType(""), trig.ConditionKind())
}

func TestPosition_Coordinate(t *testing.T) {
	pos := Position{Latitude: 40.7128, Longitude: -74.0060}
	assert.Equal(t, geo.Coordinate{Latitude: 40.7128, Longitude: -74.0060}, pos.Coordinate())
}

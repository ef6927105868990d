// Package trigger defines the memory trigger domain model: rules binding
// location or date conditions to ordered action lists, the registry that
// owns them, and the pure recurrence and rate-limiting policy functions.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/pkg/geo"
)

// ConditionType discriminates the condition union
type ConditionType string

// Condition type constants
const (
	ConditionLocation ConditionType = "location"
	ConditionDate     ConditionType = "date"
)

// Condition is a tagged union: exactly one of Location or Date is set,
// matching Type. Conditions are immutable once created and replaced
// wholesale on edit.
type Condition struct {
	Type     ConditionType      `json:"type"`
	Location *LocationCondition `json:"location,omitempty"`
	Date     *DateCondition     `json:"date,omitempty"`
}

// LocationCondition defines a circular geofence
type LocationCondition struct {
	Anchor       geo.Coordinate `json:"anchor"`
	RadiusMeters float64        `json:"radius_meters"`
}

// DateCondition defines a calendar-based condition
type DateCondition struct {
	TriggerDate time.Time          `json:"trigger_date"`
	IsRecurring bool               `json:"is_recurring"`
	Recurrence  *RecurrencePattern `json:"recurrence,omitempty"`
	TimeOfDay   string             `json:"time_of_day,omitempty"` // "HH:MM"
	Timezone    string             `json:"timezone,omitempty"`
}

// RecurrenceType identifies how often a date condition repeats
type RecurrenceType string

// Recurrence type constants
const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
)

// RecurrencePattern describes repetition of a recurring date condition
type RecurrencePattern struct {
	Type           RecurrenceType `json:"type"`
	Interval       int            `json:"interval"` // >= 1
	DaysOfWeek     []string       `json:"days_of_week,omitempty"`
	DayOfMonth     int            `json:"day_of_month,omitempty"`
	MonthOfYear    int            `json:"month_of_year,omitempty"`
	EndDate        *time.Time     `json:"end_date,omitempty"`
	MaxOccurrences int            `json:"max_occurrences,omitempty"`
}

// ActionType identifies what an action does when its trigger fires
type ActionType string

// Action type constants
const (
	ActionNotify         ActionType = "notify"
	ActionCreateMemory   ActionType = "create_memory"
	ActionUnlockCapsule  ActionType = "unlock_capsule"
	ActionRemind         ActionType = "remind"
	ActionSuggestContent ActionType = "suggest_content"
	ActionPlayAudio      ActionType = "play_audio"
)

// Priority of an action
type Priority string

// Priority constants
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Action is one step of a trigger's ordered action list
type Action struct {
	ID           string         `json:"id"`
	Type         ActionType     `json:"type"`
	Config       map[string]any `json:"config,omitempty"`
	Priority     Priority       `json:"priority,omitempty"`
	DelaySeconds int            `json:"delay_seconds,omitempty"` // >= 0
}

// QuietHours is a time-of-day window during which firing is suppressed.
// When Start > End the window wraps midnight (22:00-08:00 suppresses from
// 22:00 through 08:00 inclusive).
type QuietHours struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`   // "HH:MM"
}

// Settings holds per-trigger rate-limiting and behavior policy
type Settings struct {
	MaxTriggersPerDay   int         `json:"max_triggers_per_day"` // >= 1
	QuietHours          *QuietHours `json:"quiet_hours,omitempty"`
	EnabledDays         []string    `json:"enabled_days,omitempty"` // weekday names, empty = all days
	RequireConfirmation bool        `json:"require_confirmation,omitempty"`
	AutoCreateMemories  bool        `json:"auto_create_memories,omitempty"`
	NotificationStyle   string      `json:"notification_style,omitempty"`
}

// DefaultSettings returns settings that allow firing at any time of day
func DefaultSettings() Settings {
	return Settings{MaxTriggersPerDay: 5}
}

// Metadata carries associated record references and bookkeeping
type Metadata struct {
	MemoryIDs   []string `json:"memory_ids,omitempty"`
	SuccessRate float64  `json:"success_rate,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// MemoryTrigger is a user-defined rule binding conditions to actions.
// A trigger is Armed when IsActive is true and skipped entirely otherwise.
type MemoryTrigger struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	Conditions    []Condition `json:"conditions"`
	Actions       []Action    `json:"actions"`
	IsActive      bool        `json:"is_active"`
	LastTriggered *time.Time  `json:"last_triggered,omitempty"`
	TriggerCount  int         `json:"trigger_count"`
	CreatedAt     time.Time   `json:"created_at"`
	Settings      Settings    `json:"settings"`
	Metadata      Metadata    `json:"metadata,omitempty"`

	// FiredOnce marks a one-time date condition as permanently exhausted.
	// It survives a later clearing of LastTriggered.
	FiredOnce bool `json:"fired_once,omitempty"`
}

// Validate checks structural invariants: non-empty homogeneous conditions,
// each condition carrying the variant matching its type, and well-formed
// actions and settings.
func (t *MemoryTrigger) Validate() error {
	if t.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidTrigger, "MemoryTrigger", "Validate", "missing id")
	}
	if t.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidTrigger, "MemoryTrigger", "Validate", "missing name")
	}
	if len(t.Conditions) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidTrigger, "MemoryTrigger", "Validate", "conditions empty")
	}

	condType := t.Conditions[0].Type
	for i, cond := range t.Conditions {
		if err := cond.Validate(); err != nil {
			return errors.WrapInvalid(err, "MemoryTrigger", "Validate", fmt.Sprintf("condition %d", i))
		}
		if cond.Type != condType {
			return errors.WrapInvalid(errors.ErrInvalidCondition, "MemoryTrigger", "Validate",
				"mixed condition types")
		}
	}

	for i, action := range t.Actions {
		if err := action.Validate(); err != nil {
			return errors.WrapInvalid(err, "MemoryTrigger", "Validate", fmt.Sprintf("action %d", i))
		}
	}

	if t.Settings.MaxTriggersPerDay < 1 {
		return errors.WrapInvalid(errors.ErrInvalidTrigger, "MemoryTrigger", "Validate",
			"max triggers per day must be at least 1")
	}

	return nil
}

// ConditionKind returns the homogeneous condition type of the trigger.
// Callers must only use this after Validate has passed.
func (t *MemoryTrigger) ConditionKind() ConditionType {
	if len(t.Conditions) == 0 {
		return ""
	}
	return t.Conditions[0].Type
}

// Clone returns a deep copy of the trigger so registry internals never
// leak through returned values
func (t *MemoryTrigger) Clone() MemoryTrigger {
	clone := *t

	if t.LastTriggered != nil {
		lt := *t.LastTriggered
		clone.LastTriggered = &lt
	}

	clone.Conditions = make([]Condition, len(t.Conditions))
	for i, cond := range t.Conditions {
		clone.Conditions[i] = cond.clone()
	}

	clone.Actions = make([]Action, len(t.Actions))
	for i, action := range t.Actions {
		clone.Actions[i] = action.clone()
	}

	clone.Settings = t.Settings.clone()

	if t.Metadata.MemoryIDs != nil {
		clone.Metadata.MemoryIDs = append([]string(nil), t.Metadata.MemoryIDs...)
	}
	if t.Metadata.Tags != nil {
		clone.Metadata.Tags = append([]string(nil), t.Metadata.Tags...)
	}

	return clone
}

// Validate checks the condition carries exactly the variant matching its type
func (c *Condition) Validate() error {
	switch c.Type {
	case ConditionLocation:
		if c.Location == nil {
			return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "Validate",
				"location condition missing geofence")
		}
		if c.Location.RadiusMeters <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "Validate",
				"radius must be positive")
		}
	case ConditionDate:
		if c.Date == nil {
			return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "Validate",
				"date condition missing date fields")
		}
		if c.Date.IsRecurring && c.Date.Recurrence == nil {
			return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "Validate",
				"recurring condition missing recurrence pattern")
		}
		if c.Date.Recurrence != nil && c.Date.Recurrence.Interval < 1 {
			return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "Validate",
				"recurrence interval must be at least 1")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "Validate",
			fmt.Sprintf("unknown condition type %q", c.Type))
	}
	return nil
}

func (c Condition) clone() Condition {
	clone := c
	if c.Location != nil {
		loc := *c.Location
		clone.Location = &loc
	}
	if c.Date != nil {
		date := *c.Date
		if c.Date.Recurrence != nil {
			rec := *c.Date.Recurrence
			if c.Date.Recurrence.DaysOfWeek != nil {
				rec.DaysOfWeek = append([]string(nil), c.Date.Recurrence.DaysOfWeek...)
			}
			if c.Date.Recurrence.EndDate != nil {
				end := *c.Date.Recurrence.EndDate
				rec.EndDate = &end
			}
			date.Recurrence = &rec
		}
		clone.Date = &date
	}
	return clone
}

// Validate checks the action type and delay
func (a *Action) Validate() error {
	switch a.Type {
	case ActionNotify, ActionCreateMemory, ActionUnlockCapsule,
		ActionRemind, ActionSuggestContent, ActionPlayAudio:
	default:
		return errors.WrapInvalid(errors.ErrInvalidAction, "Action", "Validate",
			fmt.Sprintf("unknown action type %q", a.Type))
	}
	if a.DelaySeconds < 0 {
		return errors.WrapInvalid(errors.ErrInvalidAction, "Action", "Validate",
			"delay must not be negative")
	}
	return nil
}

func (a Action) clone() Action {
	clone := a
	if a.Config != nil {
		clone.Config = make(map[string]any, len(a.Config))
		for k, v := range a.Config {
			clone.Config[k] = v
		}
	}
	return clone
}

func (s Settings) clone() Settings {
	clone := s
	if s.QuietHours != nil {
		qh := *s.QuietHours
		clone.QuietHours = &qh
	}
	if s.EnabledDays != nil {
		clone.EnabledDays = append([]string(nil), s.EnabledDays...)
	}
	return clone
}

// Position is a location signal sample
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"` // meters
	Timestamp time.Time `json:"timestamp"`
}

// Coordinate converts the position to a geo coordinate
func (p Position) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Tick is a clock signal sample
type Tick struct {
	Time time.Time `json:"time"`
}

// FireType identifies what kind of signal satisfied a trigger
type FireType string

// Fire type constants
const (
	FireLocationEntered FireType = "location_entered"
	FireDateAnniversary FireType = "date_anniversary"
)

// FireContext describes why a trigger is firing; handed to the dispatcher
type FireContext struct {
	Type        FireType  `json:"type"`
	Position    *Position `json:"position,omitempty"`
	Distance    float64   `json:"distance,omitempty"` // meters from anchor
	Date        time.Time `json:"date,omitempty"`
	TriggerDate time.Time `json:"trigger_date,omitempty"`
}

// FireState is the per-trigger history consulted by the recurrence matcher
type FireState struct {
	LastTriggered *time.Time
	FiredOnce     bool
	TriggerCount  int
}

// NotificationAction is a user-facing action button on a notification
type NotificationAction struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Notification is created by the dispatcher and handed to the event bus;
// immutable thereafter except the IsRead flip, which belongs to whichever
// external sink persists it.
type Notification struct {
	ID        string               `json:"id"`
	TriggerID string               `json:"trigger_id"`
	UserID    string               `json:"user_id"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Type      string               `json:"type"`
	Data      map[string]any       `json:"data,omitempty"`
	IsRead    bool                 `json:"is_read"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
	Actions   []NotificationAction `json:"actions,omitempty"`
}

// Event is a domain event emitted when trigger actions execute
type Event struct {
	Type      string         `json:"type"`
	TriggerID string         `json:"trigger_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Store is the durable persistence boundary for triggers. The registry
// operates purely in memory; implementations load on start and save on
// mutate.
type Store interface {
	Load(ctx context.Context) ([]MemoryTrigger, error)
	Save(ctx context.Context, t MemoryTrigger) error
	Delete(ctx context.Context, id string) error
}

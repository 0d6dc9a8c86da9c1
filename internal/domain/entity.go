// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// DefaultResetHour is the local hour the day rolls over (4 AM).
const DefaultResetHour = 4

// SessionState is the enforcement state derived from a Session.
type SessionState string

const (
	StateLocked           SessionState = "locked"
	StateUnlockedFocusOff SessionState = "unlocked_focus_off"
	StateUnlockedFocusOn  SessionState = "unlocked_focus_on"
)

// Pattern is a user-authored glob denoting permitted URLs.
type Pattern struct {
	ID        string    `json:"id"`
	Raw       string    `json:"pattern"`
	Enabled   bool      `json:"enabled"`
	Temporary bool      `json:"temporary,omitempty"` // purged on every reset
	CreatedAt time.Time `json:"added_at"`
}

// Session is the daily focus session. An empty GoalText means no goal.
type Session struct {
	GoalText      string    `json:"goal_text,omitempty"`
	GoalSetAt     time.Time `json:"goal_set_at,omitempty"`
	GoalCompleted bool      `json:"goal_completed"`
	Locked        bool      `json:"locked"`
	FocusEnabled  bool      `json:"focus_enabled"`
	LastResetAt   time.Time `json:"last_reset_at,omitempty"`
}

// HasGoal reports whether a goal is recorded for the current day.
// A completed goal still counts until the next reset.
func (s Session) HasGoal() bool {
	return s.GoalText != ""
}

// State derives the enforcement state. A session without a goal is
// treated as locked even if the flag was lost.
func (s Session) State() SessionState {
	switch {
	case s.Locked || !s.HasGoal():
		return StateLocked
	case s.FocusEnabled:
		return StateUnlockedFocusOn
	default:
		return StateUnlockedFocusOff
	}
}

// Settings are the user preferences that drive scheduling.
type Settings struct {
	ResetHour  int  `json:"reset_hour"` // 0-23, local time
	StrictMode bool `json:"strict_mode"`
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		ResetHour:  DefaultResetHour,
		StrictMode: true,
	}
}

// State is the whole persisted document: the unit of a store transaction.
type State struct {
	Patterns []Pattern `json:"patterns"`
	Session  Session   `json:"session"`
	Settings Settings  `json:"settings"`
}

// InitialState returns the state of a fresh install: locked, no patterns.
func InitialState() State {
	return State{
		Patterns: []Pattern{},
		Session:  Session{Locked: true},
		Settings: DefaultSettings(),
	}
}

// FindPattern returns the index of the pattern with the given ID, or -1.
func (s *State) FindPattern(id string) int {
	for i, p := range s.Patterns {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// HasRaw reports whether a pattern with exactly this text exists.
func (s *State) HasRaw(raw string) bool {
	for _, p := range s.Patterns {
		if p.Raw == raw {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate freely.
func (s State) Clone() State {
	out := s
	out.Patterns = make([]Pattern, len(s.Patterns))
	copy(out.Patterns, s.Patterns)
	return out
}

// Decision is the answer to an evaluate-access request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Locked  bool   `json:"is_locked"`
	Goal    string `json:"goal,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Status summarizes the session for display layers.
type Status struct {
	State         SessionState `json:"state"`
	Locked        bool         `json:"is_locked"`
	HasGoal       bool         `json:"has_goal"`
	GoalCompleted bool         `json:"goal_completed"`
	Goal          string       `json:"goal,omitempty"`
	FocusEnabled  bool         `json:"focus_enabled"`
	ResetHour     int          `json:"reset_hour"`
	StrictMode    bool         `json:"strict_mode"`
	NextResetAt   time.Time    `json:"next_reset_at"`
}

// EventKind identifies a state-change notification.
type EventKind string

const (
	EventGoalSet         EventKind = "GOAL_SET"
	EventGoalCompleted   EventKind = "GOAL_COMPLETED"
	EventFocusToggled    EventKind = "FOCUS_TOGGLED"
	EventDailyReset      EventKind = "DAILY_RESET"
	EventPatternsChanged EventKind = "PATTERNS_CHANGED"
	EventSettingsChanged EventKind = "SETTINGS_CHANGED"
)

// Event is emitted after a committed change to enforcement-relevant state,
// so observers showing a blocking view can re-evaluate.
type Event struct {
	Kind         EventKind `json:"type"`
	Goal         string    `json:"goal,omitempty"`
	FocusEnabled bool      `json:"focus_enabled"`
	Locked       bool      `json:"is_locked"`
	ResetHour    int       `json:"reset_hour"`
	At           time.Time `json:"at"`
}

// DaemonRole identifies the type of daemon process.
type DaemonRole string

const (
	RoleScheduler DaemonRole = "scheduler"
)

// Daemon represents a running daemon process.
type Daemon struct {
	PID           int        `json:"pid"`
	Role          DaemonRole `json:"role"`
	StartedAt     time.Time  `json:"started_at"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	AppVersion    string     `json:"app_version,omitempty"`
}

// BundleVersion is the export format version.
const BundleVersion = "1.0.0"

// Bundle is the export/import document. A nil Settings or Patterns means
// the section is absent and left untouched on import.
type Bundle struct {
	Version    string    `json:"version"`
	Settings   *Settings `json:"settings,omitempty"`
	Patterns   []Pattern `json:"patterns"`
	ExportedAt time.Time `json:"exported_at"`
}

// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/policy"
	"github.com/eliteGoblin/focusd/focusgate/internal/scheduler"
	"github.com/eliteGoblin/focusd/focusgate/internal/session"
)

// Decision reasons.
const (
	ReasonLocked     = "No focus goal set for today"
	ReasonFocusOff   = "Focus mode is disabled"
	ReasonAllowed    = "URL matches whitelist"
	ReasonNotAllowed = "URL not in whitelist"
)

// EngineOptions tunes an Engine. Zero values select defaults.
type EngineOptions struct {
	MinGoalLength int
	Clock         clockwork.Clock
	NewID         func() string
}

// Engine is the policy engine. Every mutation runs inside a single store
// transaction and emits events only after it commits.
type Engine struct {
	store   domain.StateStore
	cache   *policy.Cache
	machine session.Machine
	clock   clockwork.Clock
	newID   func() string
	events  *Broadcaster
	logger  *zap.Logger

	// seen is the last state this engine committed or synced.
	seenMu sync.Mutex
	seen   *domain.State
}

// NewEngine creates an engine over store.
func NewEngine(store domain.StateStore, logger *zap.Logger, opts EngineOptions) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{
		store:   store,
		cache:   policy.NewCache(logger),
		machine: session.NewMachine(opts.MinGoalLength),
		clock:   opts.Clock,
		newID:   opts.NewID,
		events:  NewBroadcaster(),
		logger:  logger,
	}
}

// Subscribe registers an observer for state-change events.
func (e *Engine) Subscribe(n domain.Notifier) func() {
	return e.events.Subscribe(n)
}

// Cache exposes the compiled-pattern cache.
func (e *Engine) Cache() *policy.Cache {
	return e.cache
}

// Handle dispatches a command to the matching operation.
func (e *Engine) Handle(ctx context.Context, cmd Command) (any, error) {
	switch c := cmd.(type) {
	case Evaluate:
		return e.Evaluate(ctx, c.URL)
	case GetStatus:
		return e.Status(ctx)
	case ListPatterns:
		return e.Patterns(ctx)
	case AddPattern:
		return e.AddPattern(ctx, c.Raw, c.Temporary)
	case AddFromURL:
		return e.AddFromURL(ctx, c.URL, c.Option, c.Custom)
	case RemovePattern:
		return nil, e.RemovePattern(ctx, c.ID)
	case SetPatternEnabled:
		return nil, e.SetPatternEnabled(ctx, c.ID, c.Enabled)
	case TestURL:
		return e.TestURL(c.URL, c.Raw)
	case SuggestPatterns:
		return policy.Suggest(c.URL), nil
	case SetGoal:
		return nil, e.SetGoal(ctx, c.Text)
	case CompleteGoal:
		return nil, e.CompleteGoal(ctx)
	case ToggleFocus:
		return e.ToggleFocus(ctx)
	case UpdateSettings:
		return nil, e.UpdateSettings(ctx, c)
	case ResetDay:
		return nil, e.DailyReset(ctx)
	case CatchUp:
		return e.CatchUp(ctx)
	case Export:
		return e.Export(ctx)
	case Import:
		return nil, e.Import(ctx, c.Bundle)
	case ClearAll:
		return nil, e.ClearAll(ctx)
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

// Evaluate decides whether rawURL may be visited.
func (e *Engine) Evaluate(ctx context.Context, rawURL string) (domain.Decision, error) {
	s, err := e.store.Load(ctx)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("evaluate: %w", err)
	}

	switch s.Session.State() {
	case domain.StateLocked:
		return domain.Decision{Allowed: false, Locked: true, Reason: ReasonLocked}, nil
	case domain.StateUnlockedFocusOff:
		return domain.Decision{Allowed: true, Goal: s.Session.GoalText, Reason: ReasonFocusOff}, nil
	}

	d := domain.Decision{Goal: s.Session.GoalText, Reason: ReasonNotAllowed}
	if m := policy.MatchingPattern(e.cache, rawURL, s.Patterns); m != nil {
		d.Allowed = true
		d.Reason = ReasonAllowed
		e.logger.Debug("url allowed", zap.String("url", rawURL), zap.String("pattern", m.Raw))
	}
	return d, nil
}

// Status summarizes the session.
func (e *Engine) Status(ctx context.Context) (domain.Status, error) {
	s, err := e.store.Load(ctx)
	if err != nil {
		return domain.Status{}, fmt.Errorf("get status: %w", err)
	}
	state := s.Session.State()
	return domain.Status{
		State:         state,
		Locked:        state == domain.StateLocked,
		HasGoal:       s.Session.HasGoal(),
		GoalCompleted: s.Session.GoalCompleted,
		Goal:          s.Session.GoalText,
		FocusEnabled:  s.Session.FocusEnabled,
		ResetHour:     s.Settings.ResetHour,
		StrictMode:    s.Settings.StrictMode,
		NextResetAt:   scheduler.NextReset(e.clock.Now(), s.Settings.ResetHour),
	}, nil
}

// Settings returns the current settings.
func (e *Engine) Settings(ctx context.Context) (domain.Settings, error) {
	s, err := e.store.Load(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s.Settings, nil
}

// Patterns returns the allow-list in insertion order.
func (e *Engine) Patterns(ctx context.Context) ([]domain.Pattern, error) {
	s, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	return s.Patterns, nil
}

// AddPattern validates and appends a pattern, returning its ID.
func (e *Engine) AddPattern(ctx context.Context, raw string, temporary bool) (string, error) {
	if err := policy.ValidatePattern(raw); err != nil {
		return "", err
	}

	p := domain.Pattern{
		ID:        e.newID(),
		Raw:       raw,
		Enabled:   true,
		Temporary: temporary,
		CreatedAt: e.clock.Now(),
	}
	var after domain.State
	err := e.store.Update(ctx, func(s *domain.State) error {
		if s.HasRaw(raw) {
			return &domain.ValidationError{Field: "pattern", Reason: "pattern already exists"}
		}
		s.Patterns = append(s.Patterns, p)
		after = *s
		return nil
	})
	if err != nil {
		return "", wrap("add pattern", err)
	}

	e.logger.Info("pattern added",
		zap.String("id", p.ID),
		zap.String("pattern", raw),
		zap.Bool("temporary", temporary))
	e.emit(domain.EventPatternsChanged, after)
	return p.ID, nil
}

// AddFromURL adds the pattern a whitelist shortcut derives from rawURL.
func (e *Engine) AddFromURL(ctx context.Context, rawURL string, option policy.WhitelistOption, custom string) (string, error) {
	raw, err := policy.PatternForURL(rawURL, option, custom)
	if err != nil {
		return "", err
	}
	return e.AddPattern(ctx, raw, false)
}

// RemovePattern deletes the pattern with the given ID.
func (e *Engine) RemovePattern(ctx context.Context, id string) error {
	var after domain.State
	var removed string
	err := e.store.Update(ctx, func(s *domain.State) error {
		i := s.FindPattern(id)
		if i < 0 {
			return &domain.NotFoundError{Kind: "pattern", ID: id}
		}
		removed = s.Patterns[i].Raw
		s.Patterns = append(s.Patterns[:i], s.Patterns[i+1:]...)
		after = *s
		return nil
	})
	if err != nil {
		return wrap("remove pattern", err)
	}

	e.logger.Info("pattern removed", zap.String("id", id), zap.String("pattern", removed))
	e.emit(domain.EventPatternsChanged, after)
	return nil
}

// SetPatternEnabled toggles whether a pattern participates in matching.
func (e *Engine) SetPatternEnabled(ctx context.Context, id string, enabled bool) error {
	var after domain.State
	changed := false
	err := e.store.Update(ctx, func(s *domain.State) error {
		i := s.FindPattern(id)
		if i < 0 {
			return &domain.NotFoundError{Kind: "pattern", ID: id}
		}
		changed = s.Patterns[i].Enabled != enabled
		s.Patterns[i].Enabled = enabled
		after = *s
		return nil
	})
	if err != nil {
		return wrap("set pattern enabled", err)
	}

	if changed {
		e.logger.Info("pattern updated", zap.String("id", id), zap.Bool("enabled", enabled))
		e.emit(domain.EventPatternsChanged, after)
	}
	return nil
}

// TestURL reports whether a candidate pattern would admit rawURL. The
// candidate is not cached.
func (e *Engine) TestURL(rawURL, raw string) (bool, error) {
	if err := policy.ValidatePattern(raw); err != nil {
		return false, err
	}
	return policy.MatchesURL(raw, rawURL), nil
}

// SetGoal records today's goal and unlocks with focus on.
func (e *Engine) SetGoal(ctx context.Context, text string) error {
	if err := e.machine.ValidateGoal(text); err != nil {
		return err
	}

	now := e.clock.Now()
	var after domain.State
	err := e.store.Update(ctx, func(s *domain.State) error {
		if err := e.machine.SetGoal(s, text, now); err != nil {
			return err
		}
		after = *s
		return nil
	})
	if err != nil {
		return wrap("set goal", err)
	}

	e.logger.Info("goal set", zap.String("goal", after.Session.GoalText))
	e.emit(domain.EventGoalSet, after)
	return nil
}

// CompleteGoal marks the goal done and suspends enforcement. It is a
// no-op while locked.
func (e *Engine) CompleteGoal(ctx context.Context) error {
	var after domain.State
	changed := false
	err := e.store.Update(ctx, func(s *domain.State) error {
		changed = e.machine.CompleteGoal(s)
		after = *s
		return nil
	})
	if err != nil {
		return wrap("complete goal", err)
	}

	if changed {
		e.logger.Info("goal completed", zap.String("goal", after.Session.GoalText))
		e.emit(domain.EventGoalCompleted, after)
	}
	return nil
}

// ToggleFocus flips enforcement while unlocked and returns the new value.
func (e *Engine) ToggleFocus(ctx context.Context) (bool, error) {
	var after domain.State
	enabled, changed := false, false
	err := e.store.Update(ctx, func(s *domain.State) error {
		enabled, changed = e.machine.ToggleFocus(s)
		after = *s
		return nil
	})
	if err != nil {
		return false, wrap("toggle focus", err)
	}

	if changed {
		e.logger.Info("focus toggled", zap.Bool("focus_enabled", enabled))
		e.emit(domain.EventFocusToggled, after)
	}
	return enabled, nil
}

// UpdateSettings applies the non-nil fields of u.
func (e *Engine) UpdateSettings(ctx context.Context, u UpdateSettings) error {
	if u.ResetHour != nil {
		if err := validateResetHour(*u.ResetHour); err != nil {
			return err
		}
	}

	now := e.clock.Now()
	var after domain.State
	changed := false
	err := e.store.Update(ctx, func(s *domain.State) error {
		if u.ResetHour != nil && s.Settings.ResetHour != *u.ResetHour {
			rebaseReset(s, now, *u.ResetHour)
			s.Settings.ResetHour = *u.ResetHour
			changed = true
		}
		if u.StrictMode != nil && s.Settings.StrictMode != *u.StrictMode {
			s.Settings.StrictMode = *u.StrictMode
			changed = true
		}
		after = *s
		return nil
	})
	if err != nil {
		return wrap("update settings", err)
	}

	if changed {
		e.logger.Info("settings updated",
			zap.Int("reset_hour", after.Settings.ResetHour),
			zap.Bool("strict_mode", after.Settings.StrictMode))
		e.emit(domain.EventSettingsChanged, after)
	}
	return nil
}

// DailyReset clears the goal, purges temporary patterns and re-locks.
func (e *Engine) DailyReset(ctx context.Context) error {
	now := e.clock.Now()
	var after domain.State
	purged := 0
	err := e.store.Update(ctx, func(s *domain.State) error {
		purged = e.machine.Reset(s, now)
		after = *s
		return nil
	})
	if err != nil {
		return wrap("daily reset", err)
	}

	e.logger.Info("daily reset performed", zap.Int("temporary_purged", purged))
	e.emit(domain.EventDailyReset, after)
	return nil
}

// CatchUp performs the reset if the most recent scheduled instant passed
// without one, for example while the machine was asleep. It reports
// whether a reset happened.
func (e *Engine) CatchUp(ctx context.Context) (bool, error) {
	now := e.clock.Now()
	var after domain.State
	did := false
	err := e.store.Update(ctx, func(s *domain.State) error {
		due := scheduler.PreviousReset(now, s.Settings.ResetHour)
		if !s.Session.LastResetAt.Before(due) {
			return nil
		}
		e.machine.Reset(s, now)
		after = *s
		did = true
		return nil
	})
	if err != nil {
		return false, wrap("catch up", err)
	}

	if did {
		e.logger.Info("missed daily reset performed")
		e.emit(domain.EventDailyReset, after)
	}
	return did, nil
}

// Export returns settings and patterns as a bundle.
func (e *Engine) Export(ctx context.Context) (domain.Bundle, error) {
	s, err := e.store.Load(ctx)
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("export: %w", err)
	}
	settings := s.Settings
	patterns := s.Patterns
	if patterns == nil {
		patterns = []domain.Pattern{}
	}
	return domain.Bundle{
		Version:    domain.BundleVersion,
		Settings:   &settings,
		Patterns:   patterns,
		ExportedAt: e.clock.Now(),
	}, nil
}

// Import replaces the sections present in b. The bundle is validated as a
// whole before anything is written.
func (e *Engine) Import(ctx context.Context, b domain.Bundle) error {
	patterns, err := e.importPatterns(b.Patterns)
	if err != nil {
		return err
	}
	if b.Settings != nil {
		if err := validateResetHour(b.Settings.ResetHour); err != nil {
			return err
		}
	}

	now := e.clock.Now()
	var after domain.State
	err = e.store.Update(ctx, func(s *domain.State) error {
		if patterns != nil {
			s.Patterns = patterns
		}
		if b.Settings != nil {
			rebaseReset(s, now, b.Settings.ResetHour)
			s.Settings = *b.Settings
		}
		after = *s
		return nil
	})
	if err != nil {
		return wrap("import", err)
	}

	e.cache.Clear()
	e.logger.Info("data imported",
		zap.String("version", b.Version),
		zap.Int("patterns", len(patterns)),
		zap.Bool("settings", b.Settings != nil))
	if patterns != nil {
		e.emit(domain.EventPatternsChanged, after)
	}
	if b.Settings != nil {
		e.emit(domain.EventSettingsChanged, after)
	}
	return nil
}

func (e *Engine) importPatterns(in []domain.Pattern) ([]domain.Pattern, error) {
	if in == nil {
		return nil, nil
	}
	now := e.clock.Now()
	out := make([]domain.Pattern, 0, len(in))
	seenRaw := make(map[string]bool, len(in))
	seenID := make(map[string]bool, len(in))
	for _, p := range in {
		if err := policy.ValidatePattern(p.Raw); err != nil {
			return nil, err
		}
		if seenRaw[p.Raw] {
			return nil, &domain.ValidationError{Field: "pattern", Reason: fmt.Sprintf("duplicate pattern %q", p.Raw)}
		}
		seenRaw[p.Raw] = true
		if strings.TrimSpace(p.ID) == "" || seenID[p.ID] {
			p.ID = e.newID()
		}
		seenID[p.ID] = true
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		out = append(out, p)
	}
	return out, nil
}

// ClearAll restores the state of a fresh install.
func (e *Engine) ClearAll(ctx context.Context) error {
	now := e.clock.Now()
	var after domain.State
	err := e.store.Update(ctx, func(s *domain.State) error {
		*s = domain.InitialState()
		s.Session.LastResetAt = now
		after = *s
		return nil
	})
	if err != nil {
		return wrap("clear all", err)
	}

	e.cache.Clear()
	e.logger.Warn("all data cleared")
	e.emit(domain.EventDailyReset, after)
	e.emit(domain.EventPatternsChanged, after)
	e.emit(domain.EventSettingsChanged, after)
	return nil
}

func (e *Engine) emit(kind domain.EventKind, s domain.State) {
	e.markSeen(s)
	e.events.Notify(domain.Event{
		Kind:         kind,
		Goal:         s.Session.GoalText,
		FocusEnabled: s.Session.FocusEnabled,
		Locked:       s.Session.State() == domain.StateLocked,
		ResetHour:    s.Settings.ResetHour,
		At:           e.clock.Now(),
	})
}

// rebaseReset moves LastResetAt forward so that changing the reset hour
// only re-arms the schedule. A session current under the old hour stays
// current under the new one; a reset already missed under the old hour is
// left for CatchUp.
func rebaseReset(s *domain.State, now time.Time, hour int) {
	if hour == s.Settings.ResetHour {
		return
	}
	if s.Session.LastResetAt.Before(scheduler.PreviousReset(now, s.Settings.ResetHour)) {
		return
	}
	if due := scheduler.PreviousReset(now, hour); s.Session.LastResetAt.Before(due) {
		s.Session.LastResetAt = due
	}
}

func validateResetHour(hour int) error {
	if hour < 0 || hour > 23 {
		return &domain.ValidationError{Field: "reset_hour", Reason: fmt.Sprintf("must be between 0 and 23, got %d", hour)}
	}
	return nil
}

// wrap adds operation context to store failures. Validation and lookup
// errors are returned as-is so their message stays user-facing.
func wrap(op string, err error) error {
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

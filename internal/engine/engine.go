package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/autoduck/internal/audio"
	"github.com/jmylchreest/autoduck/internal/fade"
	"github.com/jmylchreest/autoduck/internal/model"
	"github.com/jmylchreest/autoduck/internal/observe"
)

// Fader starts volume ramps. *fade.Controller satisfies it.
type Fader interface {
	BeginFade(identity string, volume float64, duration time.Duration) *fade.Job
}

// Transition describes one phase change.
type Transition struct {
	From    model.Phase `json:"from"`
	To      model.Phase `json:"to"`
	At      time.Time   `json:"at"`
	Trigger string      `json:"trigger,omitempty"`
	Music   []string    `json:"music,omitempty"`
}

// SessionStatus is a session snapshot with its resolved role.
type SessionStatus struct {
	model.Session
	Role model.Role `json:"role"`
}

// Status is the published view of the engine after its latest cycle.
type Status struct {
	Phase                model.Phase     `json:"phase"`
	LastPriorityActiveAt time.Time       `json:"last_priority_active_at,omitzero"`
	UpdatedAt            time.Time       `json:"updated_at,omitzero"`
	AudioAvailable       bool            `json:"audio_available"`
	AudioError           string          `json:"audio_error,omitempty"`
	ActivePriority       []string        `json:"active_priority,omitempty"`
	Sessions             []SessionStatus `json:"sessions"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records poll and transition metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTransitionHook registers fn to run on the poll goroutine after every
// phase change. fn should return quickly.
func WithTransitionHook(fn func(Transition)) Option {
	return func(e *Engine) {
		e.onTransition = fn
	}
}

// WithAudioHook registers fn to run on the poll goroutine when session
// enumeration starts failing (non-nil error) and when it recovers (nil).
func WithAudioHook(fn func(error)) Option {
	return func(e *Engine) {
		e.onAudio = fn
	}
}

// Engine decides when Music sessions are ducked.
type Engine struct {
	dir          audio.Directory
	fader        Fader
	logger       *slog.Logger
	metrics      *observe.Metrics
	onTransition func(Transition)
	onAudio      func(error)

	settings atomic.Pointer[Settings]
	classes  atomic.Pointer[model.Classification]
	status   atomic.Pointer[Status]

	// Owned by the poll task. ducked maps each session ducked in this phase
	// to the volume it was faded to; normal is the volume_normal last applied.
	state    model.DuckState
	ducked   map[string]float64
	normal   float64
	audioErr error
}

// New creates an engine over dir. Settings are used as given; callers
// validate them first.
func New(dir audio.Directory, fader Fader, settings Settings, classes *model.Classification, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if classes == nil {
		classes = model.NewClassification(nil, nil, nil)
	}
	e := &Engine{
		dir:     dir,
		fader:   fader,
		logger:  logger,
		metrics: observe.Noop(),
		ducked:  make(map[string]float64),
		normal:  settings.VolumeNormal,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.settings.Store(&settings)
	e.classes.Store(classes)
	e.status.Store(&Status{AudioAvailable: true})
	return e
}

// ApplySettings replaces the settings used from the next cycle on. A changed
// volume_ducked (while ducked) or volume_normal (while normal) is faded to on
// that cycle, superseding any fade still heading for the old value.
func (e *Engine) ApplySettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.settings.Store(&s)
	return nil
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	return *e.settings.Load()
}

// SetClassification replaces the role table used from the next cycle on.
func (e *Engine) SetClassification(c *model.Classification) {
	if c == nil {
		c = model.NewClassification(nil, nil, nil)
	}
	e.classes.Store(c)
}

// Classification returns the current role table.
func (e *Engine) Classification() *model.Classification {
	return e.classes.Load()
}

// Status returns the status published by the latest cycle.
func (e *Engine) Status() Status {
	s := *e.status.Load()
	return s
}

// State returns the current duck state.
func (e *Engine) State() model.DuckState {
	s := e.status.Load()
	return model.DuckState{Phase: s.Phase, LastPriorityActiveAt: s.LastPriorityActiveAt}
}

// Run polls until ctx is cancelled. The first cycle runs immediately.
// Changes to poll_interval take effect after the next tick.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.Settings().pollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("engine started", "poll_interval", interval)
	e.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped", "phase", e.state.Phase)
			return nil
		case <-ticker.C:
			e.Tick(ctx, time.Now())
			if next := e.Settings().pollInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				e.logger.Debug("poll interval changed", "poll_interval", interval)
			}
		}
	}
}

// Tick runs one poll cycle as of now. It must only be called from the
// goroutine that owns the engine.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	started := time.Now()
	settings := e.Settings()
	classes := e.Classification()

	sessions, err := e.dir.Sessions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.setAudioError(err)
		e.publish(now, nil, nil, classes)
		e.metrics.RecordPoll(ctx, time.Since(started).Seconds(), true)
		return
	}
	e.setAudioError(nil)

	var (
		loudest   float64
		trigger   string
		active    []string
		music     []string
		seen      = make(map[string]struct{}, len(sessions))
		threshold = settings.PeakThreshold
	)
	for _, s := range sessions {
		id := s.Identity
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		switch classes.Role(id) {
		case model.RolePriority:
			peak := e.readPeak(ctx, id)
			if peak > 0 && peak >= threshold {
				active = append(active, id)
			}
			if peak > loudest {
				loudest, trigger = peak, id
			}
		case model.RoleMusic:
			music = append(music, id)
		}
	}
	priorityActive := loudest > 0 && loudest >= threshold

	switch {
	case priorityActive:
		e.state.LastPriorityActiveAt = now
		if e.state.Phase == model.PhaseNormal {
			e.transition(ctx, model.PhaseDucked, now, trigger, music)
			e.duck(settings, music, true)
		} else {
			e.duck(settings, music, false)
		}
	case e.state.Phase == model.PhaseDucked:
		if now.Sub(e.state.LastPriorityActiveAt) >= settings.RestoreDelay {
			targets := e.restoreTargets(music, seen)
			e.transition(ctx, model.PhaseNormal, now, "", targets)
			e.restore(settings, targets)
		} else {
			e.duck(settings, music, false)
		}
	default:
		e.renormalize(settings, music)
	}

	e.publish(now, sessions, active, classes)
	e.metrics.RecordPoll(ctx, time.Since(started).Seconds(), false)
}

// Release restores ducked Music sessions when restore_on_stop is set. Call
// it from the owning goroutine after Run has returned.
func (e *Engine) Release(ctx context.Context) {
	settings := e.Settings()
	if e.state.Phase != model.PhaseDucked || !settings.RestoreOnStop {
		return
	}

	var music []string
	present := make(map[string]struct{})
	if sessions, err := e.dir.Sessions(ctx); err == nil {
		classes := e.Classification()
		for _, s := range sessions {
			if _, dup := present[s.Identity]; dup {
				continue
			}
			present[s.Identity] = struct{}{}
			if classes.Role(s.Identity) == model.RoleMusic {
				music = append(music, s.Identity)
			}
		}
	} else {
		// Best effort: fall back to what was ducked.
		for id := range e.ducked {
			present[id] = struct{}{}
		}
	}

	targets := e.restoreTargets(music, present)
	now := time.Now()
	e.transition(ctx, model.PhaseNormal, now, "", targets)
	e.restore(settings, targets)

	s := *e.status.Load()
	s.Phase = model.PhaseNormal
	s.UpdatedAt = now
	s.ActivePriority = nil
	e.status.Store(&s)
}

func (e *Engine) readPeak(ctx context.Context, identity string) float64 {
	peak, err := e.dir.Peak(ctx, identity)
	if err != nil {
		if !errors.Is(err, audio.ErrSessionGone) {
			e.logger.Debug("peak read failed", "identity", identity, "error", err)
		}
		return 0
	}
	return peak
}

// duck fades Music sessions down. With all set every session is faded;
// otherwise only those not yet ducked in this phase or ducked to a volume
// other than the configured one.
func (e *Engine) duck(s Settings, music []string, all bool) {
	if all {
		clear(e.ducked)
	}
	for _, id := range music {
		target, done := e.ducked[id]
		if done && target == s.VolumeDucked {
			continue
		}
		e.ducked[id] = s.VolumeDucked
		switch {
		case done:
			e.logger.Debug("ducked volume changed", "identity", id, "from", target, "to", s.VolumeDucked)
		case !all:
			e.logger.Debug("ducking late session", "identity", id)
		}
		e.fader.BeginFade(id, s.VolumeDucked, s.FadeOut)
	}
}

func (e *Engine) restore(s Settings, targets []string) {
	for _, id := range targets {
		e.fader.BeginFade(id, s.VolumeNormal, s.FadeIn)
	}
	clear(e.ducked)
	e.normal = s.VolumeNormal
}

// renormalize fades Music sessions to volume_normal after it changed while
// the engine was not ducked.
func (e *Engine) renormalize(s Settings, music []string) {
	if s.VolumeNormal == e.normal {
		return
	}
	e.logger.Debug("normal volume changed", "from", e.normal, "to", s.VolumeNormal, "music", len(music))
	e.normal = s.VolumeNormal
	for _, id := range music {
		e.fader.BeginFade(id, s.VolumeNormal, s.FadeIn)
	}
}

// restoreTargets is every current Music session plus any still-present
// session ducked earlier in this phase whose role has since changed.
func (e *Engine) restoreTargets(music []string, present map[string]struct{}) []string {
	targets := append([]string(nil), music...)
	inMusic := make(map[string]struct{}, len(music))
	for _, id := range music {
		inMusic[id] = struct{}{}
	}
	for id := range e.ducked {
		if _, ok := inMusic[id]; ok {
			continue
		}
		if _, ok := present[id]; ok {
			targets = append(targets, id)
		}
	}
	return targets
}

func (e *Engine) transition(ctx context.Context, to model.Phase, now time.Time, trigger string, music []string) {
	t := Transition{From: e.state.Phase, To: to, At: now, Trigger: trigger, Music: music}
	e.state.Phase = to

	if to == model.PhaseDucked {
		e.logger.Info("priority audio detected, ducking", "trigger", trigger, "music", len(music))
	} else {
		e.logger.Info("restoring music", "music", len(music))
	}
	e.metrics.RecordTransition(ctx, to.String(), to == model.PhaseDucked)
	if e.onTransition != nil {
		e.onTransition(t)
	}
}

func (e *Engine) setAudioError(err error) {
	changed := (err == nil) != (e.audioErr == nil)
	e.audioErr = err
	if !changed {
		return
	}
	if err != nil {
		e.logger.Warn("audio system unavailable", "error", err)
	} else {
		e.logger.Info("audio system available again")
	}
	if e.onAudio != nil {
		e.onAudio(err)
	}
}

func (e *Engine) publish(now time.Time, sessions []model.Session, active []string, classes *model.Classification) {
	s := &Status{
		Phase:                e.state.Phase,
		LastPriorityActiveAt: e.state.LastPriorityActiveAt,
		UpdatedAt:            now,
		AudioAvailable:       e.audioErr == nil,
		ActivePriority:       active,
	}
	if e.audioErr != nil {
		s.AudioError = e.audioErr.Error()
		// Keep the last known sessions while the backend is down.
		s.Sessions = e.status.Load().Sessions
	} else {
		s.Sessions = make([]SessionStatus, 0, len(sessions))
		for _, sess := range sessions {
			s.Sessions = append(s.Sessions, SessionStatus{Session: sess, Role: classes.Role(sess.Identity)})
		}
	}
	e.status.Store(s)
}

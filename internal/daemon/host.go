package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/autoduck/internal/audio"
	"github.com/jmylchreest/autoduck/internal/config"
	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/fade"
	"github.com/jmylchreest/autoduck/internal/observe"
	"github.com/jmylchreest/autoduck/internal/store"
)

// Lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)

// Apps lists the configured identities per role.
type Apps struct {
	Priority []string `json:"priority"`
	Music    []string `json:"music"`
	Ignored  []string `json:"ignored"`
}

// State is the host's current_state view.
type State struct {
	Running   bool            `json:"running"`
	StartedAt time.Time       `json:"started_at,omitzero"`
	Settings  engine.Settings `json:"settings"`
	Apps      Apps            `json:"apps"`
	Status    engine.Status   `json:"status"`
	Fading    []string        `json:"fading,omitempty"`
}

// Host owns the engine lifecycle. A fresh engine, and so a fresh
// DuckState, is created on every Start.
type Host struct {
	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	dir       audio.Directory
	fader     *fade.Controller
	logger    *slog.Logger
	metrics   *observe.Metrics
	settings  engine.Settings
	apps      config.AppsConfig
	eng       *engine.Engine
	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	doneCh    chan struct{}

	statePath    string
	configPath   string
	onTransition func(engine.Transition)
	onAudio      func(error)
	onEngine     func(running bool)
}

// NewHost creates a Host over dir with the given initial configuration.
func NewHost(dir audio.Directory, fader *fade.Controller, cfg *config.Config, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		dir:      dir,
		fader:    fader,
		logger:   logger,
		metrics:  observe.Noop(),
		settings: cfg.Settings(),
		apps:     cfg.Apps,
	}
}

// SetMetrics sets the metrics passed to every engine.
func (h *Host) SetMetrics(m *observe.Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m != nil {
		h.metrics = m
	}
}

// SetStatePath enables persistence of the engine flag and transitions.
func (h *Host) SetStatePath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statePath = path
}

// SetConfigPath sets the file re-read by Reload.
func (h *Host) SetConfigPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configPath = path
}

// SetTransitionCallback sets the callback invoked on every phase change.
func (h *Host) SetTransitionCallback(callback func(engine.Transition)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTransition = callback
}

// SetAudioCallback sets the callback invoked when the audio system is lost
// (non-nil error) or recovers (nil).
func (h *Host) SetAudioCallback(callback func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudio = callback
}

// SetEngineCallback sets the callback invoked after Start and Stop.
func (h *Host) SetEngineCallback(callback func(running bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEngine = callback
}

// Start creates and runs a new engine. source is recorded in the state file.
func (h *Host) Start(source string) error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrAlreadyRunning
	}

	eng := engine.New(h.dir, h.fader, h.settings, h.apps.Classification(), h.logger,
		engine.WithMetrics(h.metrics),
		engine.WithTransitionHook(h.handleTransition),
		engine.WithAudioHook(h.handleAudio),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	h.eng = eng
	h.running = true
	h.startedAt = time.Now()
	h.cancel = cancel
	h.doneCh = done
	callback := h.onEngine
	h.mu.Unlock()

	go func() {
		defer close(done)
		_ = eng.Run(ctx)
		// Restore uses a fresh context; the run context is already cancelled.
		eng.Release(context.Background())
	}()

	h.persist(func(s *store.SharedState) { s.SetEngine(true, source) })
	h.logger.Info("engine enabled", "source", source)
	if callback != nil {
		callback(true)
	}
	return nil
}

// Stop cancels the poll loop and waits for it to exit. In-flight fades,
// including the restore issued on stop, are left to finish.
func (h *Host) Stop(source string) error {
	if err := h.halt(); err != nil {
		return err
	}

	h.persist(func(s *store.SharedState) { s.SetEngine(false, source) })
	h.logger.Info("engine disabled", "source", source)

	h.mu.RLock()
	callback := h.onEngine
	h.mu.RUnlock()
	if callback != nil {
		callback(false)
	}
	return nil
}

func (h *Host) halt() error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrNotRunning
	}
	h.running = false
	cancel, done := h.cancel, h.doneCh
	h.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Shutdown stops the engine without touching the persisted enable flag,
// then waits for fades to finish or ctx to expire.
func (h *Host) Shutdown(ctx context.Context) error {
	if err := h.halt(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return h.fader.Wait(ctx)
}

// Running reports whether the engine is running.
func (h *Host) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// ApplySettings validates s and hot-swaps it into the running engine.
func (h *Host) ApplySettings(s engine.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = s
	if h.eng != nil {
		return h.eng.ApplySettings(s)
	}
	return nil
}

// SetApps replaces the role lists. Names are normalized and priority wins
// over music.
func (h *Host) SetApps(priority, music, ignored []string) {
	apps := config.AppsConfig{Priority: priority, Music: music, Ignored: ignored}
	for _, id := range apps.Normalize() {
		h.logger.Warn("app listed as both priority and music, keeping priority", "identity", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.apps = apps
	if h.eng != nil {
		h.eng.SetClassification(apps.Classification())
	}
}

// ApplyConfig applies the engine and apps sections of cfg.
func (h *Host) ApplyConfig(cfg *config.Config) error {
	if err := h.ApplySettings(cfg.Settings()); err != nil {
		return err
	}
	h.SetApps(cfg.Apps.Priority, cfg.Apps.Music, cfg.Apps.Ignored)
	return nil
}

// Reload re-reads the config file and applies it.
func (h *Host) Reload() error {
	h.mu.RLock()
	path := h.configPath
	h.mu.RUnlock()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := h.ApplyConfig(cfg); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}
	h.logger.Info("config reloaded", "path", path)
	return nil
}

// State returns a snapshot for display.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := State{
		Running:   h.running,
		StartedAt: h.startedAt,
		Settings:  h.settings,
		Apps: Apps{
			Priority: append([]string{}, h.apps.Priority...),
			Music:    append([]string{}, h.apps.Music...),
			Ignored:  append([]string{}, h.apps.Ignored...),
		},
		Fading: h.fader.Active(),
	}
	if !h.running {
		st.StartedAt = time.Time{}
	}
	if h.eng != nil {
		st.Status = h.eng.Status()
	}
	return st
}

// Ready reports an error unless the engine is running and the last session
// enumeration succeeded.
func (h *Host) Ready(context.Context) error {
	st := h.State()
	if !st.Running {
		return ErrNotRunning
	}
	if !st.Status.AudioAvailable {
		return fmt.Errorf("audio unavailable: %s", st.Status.AudioError)
	}
	return nil
}

func (h *Host) handleTransition(t engine.Transition) {
	h.persist(func(s *store.SharedState) { s.RecordTransition(t.To.String(), t.Trigger, t.At) })

	h.mu.RLock()
	callback := h.onTransition
	h.mu.RUnlock()
	if callback != nil {
		callback(t)
	}
}

func (h *Host) handleAudio(err error) {
	h.mu.RLock()
	callback := h.onAudio
	h.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (h *Host) persist(fn func(*store.SharedState)) {
	h.mu.RLock()
	path := h.statePath
	h.mu.RUnlock()
	if path == "" {
		return
	}
	if err := store.Update(path, fn); err != nil {
		h.logger.Warn("failed to save state", "path", path, "error", err)
	}
}

// Package fade ramps session volumes over time in fixed linear steps.
//
// Every identity has at most one active job. Requesting a new fade for an
// identity supersedes the running job: the old job stops before its next
// write and the new job starts from whatever volume the session has now.
package fade

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/autoduck/internal/audio"
	"github.com/jmylchreest/autoduck/internal/model"
	"github.com/jmylchreest/autoduck/internal/observe"
)

// DefaultSteps is the number of volume writes in one fade.
const DefaultSteps = 20

// Target is the part of an audio directory a fade writes to.
type Target interface {
	Volume(ctx context.Context, identity string) (float64, error)
	SetVolume(ctx context.Context, identity string, volume float64) error
}

// Job is one in-flight transition for one identity.
type Job struct {
	ID        string
	Identity  string
	Target    float64
	Duration  time.Duration
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the job has stopped writing, for any reason.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// slot owns the write path of one identity. mu is held across the
// "still current?" check and the volume write, so a superseded job can
// never land a write after its successor has read the start volume.
type slot struct {
	mu      sync.Mutex
	current atomic.Pointer[Job]
}

// Controller runs fade jobs against a Target.
type Controller struct {
	mu      sync.Mutex
	target  Target
	logger  *slog.Logger
	metrics *observe.Metrics
	steps   int
	slots   map[string]*slot
	wg      sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithSteps overrides the number of steps per fade.
func WithSteps(steps int) Option {
	return func(c *Controller) {
		if steps > 0 {
			c.steps = steps
		}
	}
}

// WithMetrics records fade lifecycle events.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewController creates a Controller writing to target.
func NewController(target Target, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		target:     target,
		logger:     logger,
		metrics:    observe.Noop(),
		steps:      DefaultSteps,
		slots:      make(map[string]*slot),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeginFade starts a fade of identity toward volume over duration and
// returns immediately. Any job already running for identity is superseded.
// The first step is written at once and the rest one interval apart, so the
// target lands (steps-1)/steps of duration after the fade starts.
func (c *Controller) BeginFade(identity string, volume float64, duration time.Duration) *Job {
	id := model.NormalizeIdentity(identity)

	ctx, cancel := context.WithCancel(c.baseCtx)
	j := &Job{
		ID:        newJobID(),
		Identity:  id,
		Target:    model.Clamp01(volume),
		Duration:  max(duration, 0),
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	s, ok := c.slots[id]
	if !ok {
		s = &slot{}
		c.slots[id] = s
	}
	prev := s.current.Swap(j)
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		c.metrics.RecordFade(context.Background(), observe.FadeSuperseded)
		c.logger.Debug("fade superseded", "identity", id, "job", prev.ID, "by", j.ID)
	}
	c.metrics.RecordFade(context.Background(), observe.FadeStarted)

	c.wg.Add(1)
	go c.run(s, j)
	return j
}

func newJobID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}

func (c *Controller) run(s *slot, j *Job) {
	defer c.wg.Done()
	defer close(j.done)
	defer j.cancel()
	defer c.release(s, j)

	start, ok := c.readStart(s, j)
	if !ok {
		return
	}

	steps := c.steps
	if j.Duration == 0 {
		steps = 1
	}
	interval := j.Duration / time.Duration(steps)

	c.logger.Debug("fade started",
		"identity", j.Identity,
		"job", j.ID,
		"from", start,
		"to", j.Target,
		"duration", j.Duration,
	)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for i := 1; i <= steps; i++ {
		v := start + (j.Target-start)*float64(i)/float64(steps)
		if i == steps {
			v = j.Target
		}
		if !c.apply(s, j, v) {
			return
		}
		if i == steps {
			break
		}
		timer.Reset(interval)
		select {
		case <-j.ctx.Done():
			return
		case <-timer.C:
		}
	}

	c.metrics.RecordFade(context.Background(), observe.FadeCompleted)
	c.logger.Debug("fade completed", "identity", j.Identity, "job", j.ID, "volume", j.Target)
}

// release clears j from its slot and drops the slot once no job owns it.
// Swaps happen under c.mu, so a dropped slot never receives a new job.
func (c *Controller) release(s *slot, j *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.current.CompareAndSwap(j, nil) && c.slots[j.Identity] == s {
		delete(c.slots, j.Identity)
	}
}

// readStart reads the session's current volume once no older job can write.
func (c *Controller) readStart(s *slot, j *Job) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Load() != j || j.ctx.Err() != nil {
		return 0, false
	}
	v, err := c.target.Volume(j.ctx, j.Identity)
	if err != nil {
		c.abandon(j, err)
		return 0, false
	}
	return v, true
}

// apply writes one step if j is still the identity's current job.
func (c *Controller) apply(s *slot, j *Job, volume float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Load() != j || j.ctx.Err() != nil {
		return false
	}
	if err := c.target.SetVolume(j.ctx, j.Identity, volume); err != nil {
		c.abandon(j, err)
		return false
	}
	return true
}

func (c *Controller) abandon(j *Job, err error) {
	c.metrics.RecordFade(context.Background(), observe.FadeAbandoned)
	if errors.Is(err, audio.ErrSessionGone) {
		c.logger.Debug("fade abandoned, session gone", "identity", j.Identity, "job", j.ID)
		return
	}
	if j.ctx.Err() != nil {
		return
	}
	c.logger.Warn("fade abandoned", "identity", j.Identity, "job", j.ID, "error", err)
}

// Active returns the identities that currently have a fade running.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, s := range c.slots {
		if s.current.Load() != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsFading reports whether identity has a fade running.
func (c *Controller) IsFading(identity string) bool {
	c.mu.Lock()
	s, ok := c.slots[model.NormalizeIdentity(identity)]
	c.mu.Unlock()
	return ok && s.current.Load() != nil
}

// Wait blocks until every running job has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels every running job and waits for them to stop.
func (c *Controller) Close() {
	c.baseCancel()
	c.wg.Wait()
}

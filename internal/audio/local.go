package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/jmylchreest/autoduck/internal/model"
)

// peakWindow is how long a measured peak is held by the meter.
const peakWindow = 500 * time.Millisecond

// LocalSession describes a sound file played as its own session.
type LocalSession struct {
	Identity string `toml:"identity"`
	File     string `toml:"file"`
	Loop     bool   `toml:"loop"`
}

// LocalDirectory plays sound files through the speaker, one session per
// identity, and meters each session's signal before its gain is applied.
// It is a beep.Streamer: the speaker pulls mixed samples from Stream.
type LocalDirectory struct {
	mu         sync.Mutex
	logger     *slog.Logger
	sampleRate beep.SampleRate
	streams    map[string]*localStream
	scratch    [][2]float64
	playing    bool
	now        func() time.Time
}

type localStream struct {
	identity string
	buffer   *beep.Buffer
	loop     bool
	src      beep.Streamer
	gain     *effects.Gain
	tap      *meterTap
	volume   float64
	muted    bool
}

// meterTap records the peak of the samples passing through it.
type meterTap struct {
	streamer beep.Streamer
	now      func() time.Time
	peak     float64
	peakAt   time.Time
}

func (m *meterTap) Stream(samples [][2]float64) (int, bool) {
	n, ok := m.streamer.Stream(samples)
	chunk := 0.0
	for _, s := range samples[:n] {
		chunk = max(chunk, math.Abs(s[0]), math.Abs(s[1]))
	}
	now := m.now()
	if chunk >= m.peak || now.Sub(m.peakAt) > peakWindow {
		m.peak = min(chunk, 1)
		m.peakAt = now
	}
	return n, ok
}

func (m *meterTap) Err() error { return m.streamer.Err() }

func (m *meterTap) level(now time.Time) float64 {
	if now.Sub(m.peakAt) > peakWindow {
		return 0
	}
	return m.peak
}

// NewLocalDirectory creates a LocalDirectory mixing at the given sample rate.
func NewLocalDirectory(sampleRate beep.SampleRate, logger *slog.Logger) *LocalDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalDirectory{
		logger:     logger,
		sampleRate: sampleRate,
		streams:    make(map[string]*localStream),
		now:        time.Now,
	}
}

// Load decodes each configured file and adds it as a session.
// Files that fail to load are skipped with a warning.
func (d *LocalDirectory) Load(sessions []LocalSession) int {
	loaded := 0
	for _, s := range sessions {
		buffer, err := LoadSound(s.File)
		if err != nil {
			d.logger.Warn("failed to load local session", "identity", s.Identity, "file", s.File, "error", err)
			continue
		}
		d.AddBuffer(s.Identity, buffer, s.Loop)
		loaded++
	}
	return loaded
}

// AddBuffer adds a decoded sound as a session at full volume.
func (d *LocalDirectory) AddBuffer(identity string, buffer *beep.Buffer, loop bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := model.NormalizeIdentity(identity)
	s := &localStream{
		identity: id,
		buffer:   buffer,
		loop:     loop,
		volume:   1,
	}
	s.rewind(d.sampleRate, d.now)
	d.streams[id] = s
	d.logger.Debug("local session added", "identity", id, "loop", loop)
}

func (s *localStream) rewind(rate beep.SampleRate, now func() time.Time) {
	var src beep.Streamer = s.buffer.Streamer(0, s.buffer.Len())
	if s.buffer.Format().SampleRate != rate {
		src = beep.Resample(4, s.buffer.Format().SampleRate, rate, src)
	}
	if s.tap == nil {
		s.tap = &meterTap{now: now}
	}
	s.tap.streamer = src
	s.gain = &effects.Gain{Streamer: s.tap, Gain: s.volume - 1}
	s.src = s.gain
}

// Start opens the speaker and begins playback of the mix.
func (d *LocalDirectory) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing {
		return nil
	}
	if err := speaker.Init(d.sampleRate, d.sampleRate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	speaker.Play(d)
	d.playing = true
	d.logger.Info("local playback started", "sessions", len(d.streams), "sample_rate", d.sampleRate)
	return nil
}

// Close stops playback and releases the speaker.
func (d *LocalDirectory) Close() {
	d.mu.Lock()
	playing := d.playing
	d.playing = false
	d.mu.Unlock()

	if playing {
		speaker.Close()
	}
	d.logger.Debug("local playback closed")
}

// Stream mixes every live session into samples. Sessions that end without
// looping are removed; the mix itself never ends.
func (d *LocalDirectory) Stream(samples [][2]float64) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range samples {
		samples[i] = [2]float64{}
	}
	if cap(d.scratch) < len(samples) {
		d.scratch = make([][2]float64, len(samples))
	}
	tmp := d.scratch[:len(samples)]

	for id, s := range d.streams {
		filled := 0
		for filled < len(tmp) {
			n, ok := s.src.Stream(tmp[filled:])
			filled += n
			if ok && n > 0 {
				continue
			}
			if !s.loop {
				break
			}
			s.rewind(d.sampleRate, d.now)
			if s.buffer.Len() == 0 {
				break
			}
		}
		if !s.muted {
			for i := range filled {
				samples[i][0] += tmp[i][0]
				samples[i][1] += tmp[i][1]
			}
		}
		if filled < len(tmp) && !s.loop {
			delete(d.streams, id)
			d.logger.Debug("local session ended", "identity", id)
		}
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (d *LocalDirectory) Err() error { return nil }

// Sessions implements Directory.
func (d *LocalDirectory) Sessions(ctx context.Context) ([]model.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	out := make([]model.Session, 0, len(d.streams))
	for _, s := range d.streams {
		out = append(out, model.Session{
			Identity: s.identity,
			Peak:     s.tap.level(now),
			Volume:   s.volume,
			Muted:    s.muted,
		})
	}
	slices.SortFunc(out, func(a, b model.Session) int {
		switch {
		case a.Identity < b.Identity:
			return -1
		case a.Identity > b.Identity:
			return 1
		}
		return 0
	})
	return out, nil
}

// Peak implements Directory.
func (d *LocalDirectory) Peak(ctx context.Context, identity string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[model.NormalizeIdentity(identity)]
	if !ok {
		return 0, ErrSessionGone
	}
	return s.tap.level(d.now()), nil
}

// Volume implements Directory.
func (d *LocalDirectory) Volume(ctx context.Context, identity string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[model.NormalizeIdentity(identity)]
	if !ok {
		return 0, ErrSessionGone
	}
	return s.volume, nil
}

// SetVolume implements Directory. The gain is linear: output = input * volume.
func (d *LocalDirectory) SetVolume(ctx context.Context, identity string, volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[model.NormalizeIdentity(identity)]
	if !ok {
		return ErrSessionGone
	}
	s.volume = model.Clamp01(volume)
	s.gain.Gain = s.volume - 1
	return nil
}

// SetMuted mutes or unmutes a session's contribution to the mix.
func (d *LocalDirectory) SetMuted(identity string, muted bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[model.NormalizeIdentity(identity)]
	if !ok {
		return ErrSessionGone
	}
	s.muted = muted
	return nil
}

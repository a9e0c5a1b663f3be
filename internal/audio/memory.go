package audio

import (
	"context"
	"slices"
	"sync"

	"github.com/jmylchreest/autoduck/internal/model"
)

// MemoryDirectory is a Directory backed by an in-process table. It records
// every volume write, which makes it the directory used in tests and in the
// daemon's dry-run backend.
type MemoryDirectory struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	writes   map[string][]float64
	failure  error
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		sessions: make(map[string]*model.Session),
		writes:   make(map[string][]float64),
	}
}

// Add creates or replaces a session.
func (d *MemoryDirectory) Add(identity string, volume, peak float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := model.NormalizeIdentity(identity)
	d.sessions[id] = &model.Session{
		Identity: id,
		Volume:   model.Clamp01(volume),
		Peak:     model.Clamp01(peak),
	}
}

// Remove deletes a session, as if the application exited.
func (d *MemoryDirectory) Remove(identity string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, model.NormalizeIdentity(identity))
}

// SetPeak updates the peak meter of an existing session.
func (d *MemoryDirectory) SetPeak(identity string, peak float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[model.NormalizeIdentity(identity)]; ok {
		s.Peak = model.Clamp01(peak)
	}
}

// SetMuted updates the mute flag of an existing session.
func (d *MemoryDirectory) SetMuted(identity string, muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[model.NormalizeIdentity(identity)]; ok {
		s.Muted = muted
	}
}

// SetFailure makes Sessions fail with err until cleared with nil.
func (d *MemoryDirectory) SetFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failure = err
}

// Writes returns every volume written to an identity, oldest first.
func (d *MemoryDirectory) Writes(identity string) []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.writes[model.NormalizeIdentity(identity)])
}

// WriteCount returns the total number of volume writes across identities.
func (d *MemoryDirectory) WriteCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, w := range d.writes {
		n += len(w)
	}
	return n
}

// Sessions implements Directory.
func (d *MemoryDirectory) Sessions(ctx context.Context) ([]model.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != nil {
		return nil, d.failure
	}
	out := make([]model.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b model.Session) int {
		if a.Identity < b.Identity {
			return -1
		}
		if a.Identity > b.Identity {
			return 1
		}
		return 0
	})
	return out, nil
}

// Peak implements Directory.
func (d *MemoryDirectory) Peak(ctx context.Context, identity string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[model.NormalizeIdentity(identity)]
	if !ok {
		return 0, ErrSessionGone
	}
	return s.Peak, nil
}

// Volume implements Directory.
func (d *MemoryDirectory) Volume(ctx context.Context, identity string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[model.NormalizeIdentity(identity)]
	if !ok {
		return 0, ErrSessionGone
	}
	return s.Volume, nil
}

// SetVolume implements Directory.
func (d *MemoryDirectory) SetVolume(ctx context.Context, identity string, volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := model.NormalizeIdentity(identity)
	s, ok := d.sessions[id]
	if !ok {
		return ErrSessionGone
	}
	s.Volume = model.Clamp01(volume)
	d.writes[id] = append(d.writes[id], s.Volume)
	return nil
}

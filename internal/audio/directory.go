package audio

import (
	"context"
	"errors"

	"github.com/jmylchreest/autoduck/internal/model"
)

var (
	// ErrSessionGone is returned when the application behind an identity has
	// no audio session any more. Callers treat it as terminal for the single
	// operation and never retry.
	ErrSessionGone = errors.New("audio session gone")

	// ErrUnavailable is returned when the host audio subsystem cannot be
	// reached at all.
	ErrUnavailable = errors.New("audio subsystem unavailable")
)

// Directory is the host audio subsystem as seen by the engine.
// Implementations must be safe for concurrent use: the poll loop enumerates
// while fade jobs write volumes.
type Directory interface {
	// Sessions returns a fresh snapshot of every live session.
	Sessions(ctx context.Context) ([]model.Session, error)

	// Peak returns the current peak meter level for an identity in [0,1].
	Peak(ctx context.Context, identity string) (float64, error)

	// Volume returns the current volume scalar for an identity in [0,1].
	Volume(ctx context.Context, identity string) (float64, error)

	// SetVolume sets the volume scalar for every session of an identity.
	SetVolume(ctx context.Context, identity string, volume float64) error
}

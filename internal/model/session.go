// Package model defines the core data structures for autoduck.
package model

import (
	"math"
	"strings"
	"time"
)

// Session is a point-in-time snapshot of one application's audio session.
// Snapshots are values; holders never keep them across poll cycles.
type Session struct {
	Identity string  `json:"identity"`
	Peak     float64 `json:"peak"`
	Volume   float64 `json:"volume"`
	Muted    bool    `json:"muted"`
}

// NormalizeIdentity returns the canonical form of an application identity.
// Process names are compared case-insensitively.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Clamp01 limits v to the closed interval [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Phase is the ducking state of the engine.
type Phase int

const (
	PhaseNormal Phase = iota
	PhaseDucked
)

// PhaseNames maps phases to their display names.
var PhaseNames = map[Phase]string{
	PhaseNormal: "normal",
	PhaseDucked: "ducked",
}

// String returns the display name of the phase.
func (p Phase) String() string {
	if name, ok := PhaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ducked":
		*p = PhaseDucked
	default:
		*p = PhaseNormal
	}
	return nil
}

// DuckState is the engine's state machine position.
type DuckState struct {
	Phase                Phase     `json:"phase"`
	LastPriorityActiveAt time.Time `json:"last_priority_active_at,omitzero"`
}

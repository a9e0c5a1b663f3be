package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Poll interval bounds.
const (
	MinPollInterval     = 50 * time.Millisecond
	MaxPollInterval     = 2 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Settings are the tunables of one running engine. A Settings value is
// replaced wholesale; the engine reads it once per poll cycle.
type Settings struct {
	VolumeNormal  float64
	VolumeDucked  float64
	PeakThreshold float64
	RestoreDelay  time.Duration
	FadeOut       time.Duration
	FadeIn        time.Duration
	PollInterval  time.Duration
	RestoreOnStop bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		VolumeNormal:  1.0,
		VolumeDucked:  0.15,
		PeakThreshold: 0.01,
		RestoreDelay:  time.Second,
		FadeOut:       200 * time.Millisecond,
		FadeIn:        400 * time.Millisecond,
		PollInterval:  DefaultPollInterval,
		RestoreOnStop: true,
	}
}

// Validation errors.
var (
	ErrInvalidVolume    = errors.New("volume must be between 0 and 1")
	ErrInvalidThreshold = errors.New("peak_threshold must be between 0 and 1")
	ErrNegativeDuration = errors.New("durations must not be negative")
	ErrPollInterval     = errors.New("poll_interval out of range")
)

// Validate checks ranges. volume_ducked above volume_normal is allowed.
func (s Settings) Validate() error {
	if !unit(s.VolumeNormal) {
		return fmt.Errorf("volume_normal %v: %w", s.VolumeNormal, ErrInvalidVolume)
	}
	if !unit(s.VolumeDucked) {
		return fmt.Errorf("volume_ducked %v: %w", s.VolumeDucked, ErrInvalidVolume)
	}
	if !unit(s.PeakThreshold) {
		return fmt.Errorf("%v: %w", s.PeakThreshold, ErrInvalidThreshold)
	}
	if s.RestoreDelay < 0 || s.FadeOut < 0 || s.FadeIn < 0 {
		return ErrNegativeDuration
	}
	if s.PollInterval < MinPollInterval || s.PollInterval > MaxPollInterval {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrPollInterval, s.PollInterval, MinPollInterval, MaxPollInterval)
	}
	if s.RestoreDelay > 0 && s.PollInterval > s.RestoreDelay {
		return fmt.Errorf("%w: %s exceeds restore_delay %s", ErrPollInterval, s.PollInterval, s.RestoreDelay)
	}
	return nil
}

// unit reports whether v is a finite number in [0,1].
func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// pollInterval returns the cadence the loop actually uses. Settings that
// bypassed Validate are still bounded so the ticker never gets a zero period.
func (s Settings) pollInterval() time.Duration {
	d := s.PollInterval
	if s.RestoreDelay > 0 && d > s.RestoreDelay {
		d = s.RestoreDelay
	}
	return min(max(d, MinPollInterval), MaxPollInterval)
}

type settingsJSON struct {
	VolumeNormal  float64 `json:"volume_normal"`
	VolumeDucked  float64 `json:"volume_ducked"`
	PeakThreshold float64 `json:"peak_threshold"`
	RestoreDelay  string  `json:"restore_delay"`
	FadeOut       string  `json:"fade_out"`
	FadeIn        string  `json:"fade_in"`
	PollInterval  string  `json:"poll_interval"`
	RestoreOnStop bool    `json:"restore_on_stop"`
}

// MarshalJSON encodes durations as Go duration strings.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(settingsJSON{
		VolumeNormal:  s.VolumeNormal,
		VolumeDucked:  s.VolumeDucked,
		PeakThreshold: s.PeakThreshold,
		RestoreDelay:  s.RestoreDelay.String(),
		FadeOut:       s.FadeOut.String(),
		FadeIn:        s.FadeIn.String(),
		PollInterval:  s.PollInterval.String(),
		RestoreOnStop: s.RestoreOnStop,
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw settingsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Settings{
		VolumeNormal:  raw.VolumeNormal,
		VolumeDucked:  raw.VolumeDucked,
		PeakThreshold: raw.PeakThreshold,
		RestoreOnStop: raw.RestoreOnStop,
	}
	for _, f := range []struct {
		name string
		text string
		dst  *time.Duration
	}{
		{"restore_delay", raw.RestoreDelay, &out.RestoreDelay},
		{"fade_out", raw.FadeOut, &out.FadeOut},
		{"fade_in", raw.FadeIn, &out.FadeIn},
		{"poll_interval", raw.PollInterval, &out.PollInterval},
	} {
		if f.text == "" {
			continue
		}
		d, err := time.ParseDuration(f.text)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.name, f.text, err)
		}
		*f.dst = d
	}
	*s = out
	return nil
}

// Package output provides formatters for engine status reports.
package output

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jmylchreest/autoduck/internal/daemon"
	"github.com/jmylchreest/autoduck/internal/model"
	"github.com/jmylchreest/autoduck/internal/store"
)

// Formatter formats a status report for output.
type Formatter interface {
	// Format writes the formatted report to the writer.
	Format(w io.Writer, r *Report) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatWaybar FormatType = "waybar"
	FormatJSON   FormatType = "json"
	FormatYAML   FormatType = "yaml"
	FormatPlain  FormatType = "plain"
	FormatIDs    FormatType = "ids"
)

// Formats lists the accepted format names.
var Formats = []FormatType{FormatWaybar, FormatJSON, FormatYAML, FormatPlain, FormatIDs}

// ParseFormat validates a format name.
func ParseFormat(s string) (FormatType, error) {
	f := FormatType(s)
	if slices.Contains(Formats, f) {
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want one of %v)", s, Formats)
}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) Formatter {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(opts)
	case FormatYAML:
		return NewYAMLFormatter(opts)
	case FormatWaybar:
		return NewWaybarFormatter(opts)
	case FormatIDs:
		return NewIDsFormatter().WithRole(opts.Role)
	case FormatPlain:
		fallthrough
	default:
		return NewPlainFormatter(opts)
	}
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template    string // Custom template for plain format
	ShowSession bool   // List sessions in plain and waybar tooltip output
	Role        string // Restrict sessions to one role (empty = all)
}

// DefaultFormatterOptions returns sensible defaults.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{ShowSession: true}
}

// Source names where a report's data came from.
const (
	SourceDaemon    = "daemon"
	SourceStateFile = "state-file"
)

// Report is the serializable status view shared by every formatter.
// Durations are strings so JSON and YAML render them the same way.
type Report struct {
	Source           string        `json:"source" yaml:"source"`
	Running          bool          `json:"running" yaml:"running"`
	Phase            string        `json:"phase" yaml:"phase"`
	Ducked           bool          `json:"ducked" yaml:"ducked"`
	AudioAvailable   bool          `json:"audio_available" yaml:"audio_available"`
	AudioError       string        `json:"audio_error,omitempty" yaml:"audio_error,omitempty"`
	ActivePriority   []string      `json:"active_priority,omitempty" yaml:"active_priority,omitempty"`
	LastPriorityTime string        `json:"last_priority_time,omitempty" yaml:"last_priority_time,omitempty"`
	TimeSince        string        `json:"time_since_priority,omitempty" yaml:"time_since_priority,omitempty"`
	LastTransition   string        `json:"last_transition,omitempty" yaml:"last_transition,omitempty"`
	Settings         *SettingsView `json:"settings,omitempty" yaml:"settings,omitempty"`
	Apps             *daemon.Apps  `json:"apps,omitempty" yaml:"apps,omitempty"`
	Sessions         []SessionView `json:"sessions,omitempty" yaml:"sessions,omitempty"`
}

// SettingsView is the report form of engine.Settings.
type SettingsView struct {
	VolumeNormal  float64 `json:"volume_normal" yaml:"volume_normal"`
	VolumeDucked  float64 `json:"volume_ducked" yaml:"volume_ducked"`
	PeakThreshold float64 `json:"peak_threshold" yaml:"peak_threshold"`
	RestoreDelay  string  `json:"restore_delay" yaml:"restore_delay"`
	FadeOut       string  `json:"fade_out" yaml:"fade_out"`
	FadeIn        string  `json:"fade_in" yaml:"fade_in"`
	PollInterval  string  `json:"poll_interval" yaml:"poll_interval"`
	RestoreOnStop bool    `json:"restore_on_stop" yaml:"restore_on_stop"`
}

// SessionView is one audio session in a report.
type SessionView struct {
	Identity string  `json:"identity" yaml:"identity"`
	Role     string  `json:"role" yaml:"role"`
	Volume   float64 `json:"volume" yaml:"volume"`
	Peak     float64 `json:"peak" yaml:"peak"`
	Muted    bool    `json:"muted,omitempty" yaml:"muted,omitempty"`
	Fading   bool    `json:"fading,omitempty" yaml:"fading,omitempty"`
}

// NewReport builds a report from a live daemon state.
func NewReport(state daemon.State, now time.Time) *Report {
	st := state.Status
	s := state.Settings
	apps := state.Apps

	r := &Report{
		Source:         SourceDaemon,
		Running:        state.Running,
		Phase:          st.Phase.String(),
		Ducked:         state.Running && st.Phase == model.PhaseDucked,
		AudioAvailable: st.AudioAvailable,
		AudioError:     st.AudioError,
		ActivePriority: st.ActivePriority,
		Settings: &SettingsView{
			VolumeNormal:  s.VolumeNormal,
			VolumeDucked:  s.VolumeDucked,
			PeakThreshold: s.PeakThreshold,
			RestoreDelay:  s.RestoreDelay.String(),
			FadeOut:       s.FadeOut.String(),
			FadeIn:        s.FadeIn.String(),
			PollInterval:  s.PollInterval.String(),
			RestoreOnStop: s.RestoreOnStop,
		},
		Apps: &apps,
	}
	if !state.Running {
		r.Phase = "stopped"
	}
	r.setPriorityTime(st.LastPriorityActiveAt, now)

	for _, ss := range st.Sessions {
		r.Sessions = append(r.Sessions, SessionView{
			Identity: ss.Identity,
			Role:     ss.Role.String(),
			Volume:   ss.Volume,
			Peak:     ss.Peak,
			Muted:    ss.Muted,
			Fading:   slices.Contains(state.Fading, ss.Identity),
		})
	}
	return r
}

// NewStateFileReport builds a report from the shared state file, used when
// the daemon is not reachable.
func NewStateFileReport(shared store.SharedState, now time.Time) *Report {
	r := &Report{
		Source:  SourceStateFile,
		Running: false,
		Phase:   "stopped",
	}
	if t := shared.LastTransition; t != nil && t.Timestamp > 0 {
		at := time.Unix(t.Timestamp, 0)
		r.LastTransition = fmt.Sprintf("%s at %s", t.Phase, at.Format(time.RFC3339))
		if t.Phase == model.PhaseDucked.String() {
			r.setPriorityTime(at, now)
		}
	}
	return r
}

func (r *Report) setPriorityTime(at, now time.Time) {
	if at.IsZero() {
		return
	}
	r.LastPriorityTime = at.Format(time.RFC3339)
	r.TimeSince = relativeTime(at, now)
}

// FilterSessions returns the sessions matching role, or all when role is empty.
func (r *Report) FilterSessions(role string) []SessionView {
	if role == "" {
		return r.Sessions
	}
	var out []SessionView
	for _, s := range r.Sessions {
		if s.Role == role {
			out = append(out, s)
		}
	}
	return out
}

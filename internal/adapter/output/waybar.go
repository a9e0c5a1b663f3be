package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text       string `json:"text"`
	Alt        string `json:"alt,omitempty"`
	Tooltip    string `json:"tooltip,omitempty"`
	Class      string `json:"class,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}

// Waybar classes.
const (
	ClassNormal  = "normal"
	ClassDucked  = "ducked"
	ClassStopped = "stopped"
	ClassError   = "error"
)

// WaybarFormatter writes a single-line Waybar status object.
type WaybarFormatter struct {
	opts FormatterOptions
}

// NewWaybarFormatter creates a new Waybar formatter.
func NewWaybarFormatter(opts FormatterOptions) *WaybarFormatter {
	return &WaybarFormatter{opts: opts}
}

// Format writes the report as Waybar JSON.
func (f *WaybarFormatter) Format(w io.Writer, r *Report) error {
	return json.NewEncoder(w).Encode(f.Status(r))
}

// Status converts a report to the Waybar object.
func (f *WaybarFormatter) Status(r *Report) WaybarStatus {
	if !r.Running {
		return WaybarStatus{
			Text:    "",
			Alt:     ClassStopped,
			Tooltip: "Ducking engine stopped",
			Class:   ClassStopped,
		}
	}

	if !r.AudioAvailable && r.AudioError != "" {
		return WaybarStatus{
			Text:    "!",
			Alt:     ClassError,
			Tooltip: "Audio unavailable: " + r.AudioError,
			Class:   ClassError,
		}
	}

	status := WaybarStatus{
		Text:  r.Phase,
		Alt:   ClassNormal,
		Class: ClassNormal,
	}
	if r.Settings != nil {
		status.Percentage = int(r.Settings.VolumeNormal*100 + 0.5)
	}
	if r.Ducked {
		status.Alt = ClassDucked
		status.Class = ClassDucked
		if r.Settings != nil {
			status.Percentage = int(r.Settings.VolumeDucked*100 + 0.5)
		}
	}
	status.Tooltip = f.tooltip(r)
	return status
}

// tooltip creates a tooltip showing why music is (or is not) ducked.
func (f *WaybarFormatter) tooltip(r *Report) string {
	var lines []string

	if len(r.ActivePriority) > 0 {
		lines = append(lines, "Priority: "+strings.Join(r.ActivePriority, ", "))
	} else if r.Ducked {
		lines = append(lines, "Waiting to restore")
	} else {
		lines = append(lines, "No priority audio")
	}
	if r.TimeSince != "" {
		lines = append(lines, "Last priority audio "+r.TimeSince)
	}

	if f.opts.ShowSession {
		for _, s := range r.FilterSessions("music") {
			lines = append(lines, fmt.Sprintf("Music: %s (%s)", s.Identity, percent(s.Volume)))
		}
	}

	return strings.Join(lines, "\n")
}

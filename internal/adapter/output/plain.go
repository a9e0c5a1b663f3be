package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// PlainFormatter formats reports as plain text.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter(opts FormatterOptions) *PlainFormatter {
	f := &PlainFormatter{opts: opts}

	// Parse custom template if provided
	if opts.Template != "" {
		tmpl, err := template.New("plain").Funcs(templateFuncs()).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}

	return f
}

// Format writes the report as plain text.
func (f *PlainFormatter) Format(w io.Writer, r *Report) error {
	if f.template != nil {
		return f.template.Execute(w, filtered(r, f.opts.Role))
	}

	var sb strings.Builder

	switch {
	case r.Running:
		sb.WriteString(fmt.Sprintf("engine:   running (%s)\n", r.Phase))
	case r.Source == SourceStateFile:
		sb.WriteString("engine:   daemon not running\n")
	default:
		sb.WriteString("engine:   stopped\n")
	}

	if r.AudioError != "" {
		sb.WriteString(fmt.Sprintf("audio:    unavailable (%s)\n", r.AudioError))
	}
	if len(r.ActivePriority) > 0 {
		sb.WriteString(fmt.Sprintf("priority: %s\n", strings.Join(r.ActivePriority, ", ")))
	}
	if r.TimeSince != "" {
		sb.WriteString(fmt.Sprintf("last priority audio: %s\n", r.TimeSince))
	}
	if r.Source == SourceStateFile && r.LastTransition != "" {
		sb.WriteString(fmt.Sprintf("last transition: %s\n", r.LastTransition))
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}

	sessions := r.FilterSessions(f.opts.Role)
	if !f.opts.ShowSession || len(sessions) == 0 {
		return nil
	}

	if _, err := io.WriteString(w, "sessions:\n"); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range sessions {
		flags := ""
		switch {
		case s.Muted:
			flags = "muted"
		case s.Fading:
			flags = "fading"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\tpeak %.2f\t%s\n",
			s.Identity, s.Role, percent(s.Volume), s.Peak, flags)
	}
	return tw.Flush()
}

// templateFuncs returns template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"percent": percent,
		"join":    strings.Join,
		"upper":   strings.ToUpper,
	}
}

// percent renders a [0,1] level as a whole percentage.
func percent(v float64) string {
	return fmt.Sprintf("%d%%", int(v*100+0.5))
}

// relativeTime returns a human-readable time relative to now.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if now.Sub(t) < time.Second {
		return "now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

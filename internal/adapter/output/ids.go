package output

import (
	"fmt"
	"io"
)

// IDsFormatter outputs just the session identities, one per line.
// Useful for piping to other commands (e.g., autoduck apps add --role music).
type IDsFormatter struct {
	role string
}

// NewIDsFormatter creates a new IDs formatter.
func NewIDsFormatter() *IDsFormatter {
	return &IDsFormatter{}
}

// WithRole restricts output to one role.
func (f *IDsFormatter) WithRole(role string) *IDsFormatter {
	f.role = role
	return f
}

// Format writes the session identities to the writer, one per line.
func (f *IDsFormatter) Format(w io.Writer, r *Report) error {
	for _, s := range r.FilterSessions(f.role) {
		if _, err := fmt.Fprintln(w, s.Identity); err != nil {
			return err
		}
	}
	return nil
}

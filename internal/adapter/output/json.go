package output

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// JSONFormatter formats reports as JSON.
type JSONFormatter struct {
	opts FormatterOptions
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(opts FormatterOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Format writes the report as indented JSON.
func (f *JSONFormatter) Format(w io.Writer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(filtered(r, f.opts.Role))
}

// YAMLFormatter formats reports as YAML.
type YAMLFormatter struct {
	opts FormatterOptions
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(opts FormatterOptions) *YAMLFormatter {
	return &YAMLFormatter{opts: opts}
}

// Format writes the report as YAML.
func (f *YAMLFormatter) Format(w io.Writer, r *Report) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(filtered(r, f.opts.Role)); err != nil {
		return err
	}
	return encoder.Close()
}

// filtered returns a shallow copy of r with sessions restricted to role.
func filtered(r *Report, role string) *Report {
	if role == "" {
		return r
	}
	cp := *r
	cp.Sessions = r.FilterSessions(role)
	return &cp
}

// Package output renders CLI results as tables, markdown, JSON or YAML.
package output

import (
	"fmt"
	"strings"

	"github.com/flightontime/flightontime/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formatter renders admission statistics and reset summaries.
type Formatter interface {
	FormatAdmissions(stats []core.AdmissionStats) (string, error)
	FormatReset(summary ResetSummary) (string, error)
}

// ResetSummary reports the outcome of `admission reset`.
type ResetSummary struct {
	Matched int   `json:"matched" yaml:"matched"`
	Deleted int64 `json:"deleted" yaml:"deleted"`
	DryRun  bool  `json:"dry_run" yaml:"dry_run"`

	// BucketReset is set when the live redis bucket was dropped as well.
	BucketReset bool `json:"bucket_reset,omitempty" yaml:"bucket_reset,omitempty"`
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	switch normalized := Format(strings.ToLower(strings.TrimSpace(value))); normalized {
	case "":
		return FormatTable, nil
	case FormatTable, FormatMarkdown, FormatJSON, FormatYAML:
		return normalized, nil
	case "md":
		return FormatMarkdown, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension returns the file extension used when writing format to a file.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &TableFormatter{Markdown: true}
	default:
		return &TableFormatter{}
	}
}

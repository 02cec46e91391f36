package output

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flightontime/flightontime/internal/core"
)

// YAMLFormatter renders results as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatAdmissions(stats []core.AdmissionStats) (string, error) {
	if stats == nil {
		stats = []core.AdmissionStats{}
	}
	return MarshalYAML(stats)
}

func (f *YAMLFormatter) FormatReset(summary ResetSummary) (string, error) {
	return MarshalYAML(summary)
}

// MarshalYAML encodes v with two-space indentation and no trailing newline.
func MarshalYAML(v any) (string, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

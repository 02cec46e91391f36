package output

import (
	"encoding/json"

	"github.com/flightontime/flightontime/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatAdmissions renders stats as a JSON array (never null).
func (f *JSONFormatter) FormatAdmissions(stats []core.AdmissionStats) (string, error) {
	if stats == nil {
		stats = []core.AdmissionStats{}
	}
	return f.marshal(stats)
}

func (f *JSONFormatter) FormatReset(summary ResetSummary) (string, error) {
	return f.marshal(summary)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flightontime/flightontime/internal/core"
)

func sampleStats() []core.AdmissionStats {
	first := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	rejected := first.Add(90 * time.Second)
	return []core.AdmissionStats{
		{Key: "198.51.100.7", Allowed: 10, Rejected: 2, FirstSeen: first, LastSeen: rejected, LastRejectedAt: &rejected},
		{Key: "203.0.113.9", Allowed: 3, FirstSeen: first, LastSeen: first.Add(time.Minute)},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatTable},
		{"table", FormatTable},
		{"JSON", FormatJSON},
		{"yml", FormatYAML},
		{"md", FormatMarkdown},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseFormat("csv")
	require.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "json", FormatJSON.Extension())
	assert.Equal(t, "yaml", FormatYAML.Extension())
	assert.Equal(t, "md", FormatMarkdown.Extension())
	assert.Equal(t, "txt", FormatTable.Extension())
}

func TestTableFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatTable).FormatAdmissions(sampleStats())
	require.NoError(t, err)
	assert.Contains(t, rendered, "198.51.100.7")
	assert.Contains(t, rendered, "2026-10-19T08:01:30Z")
	assert.Contains(t, strings.ToLower(rendered), "2 clients")

	rendered, err = NewFormatter(FormatTable).FormatAdmissions(nil)
	require.NoError(t, err)
	assert.Contains(t, rendered, "no admission statistics")
}

func TestMarkdownFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatAdmissions(sampleStats())
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(rendered), "| client |")
	assert.Contains(t, rendered, "203.0.113.9")
}

func TestJSONFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatAdmissions(sampleStats())
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "198.51.100.7", decoded[0]["client_key"])
	assert.NotContains(t, decoded[1], "last_rejected_at")

	rendered, err = NewFormatter(FormatJSON).FormatAdmissions(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", rendered)
}

func TestYAMLFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatYAML).FormatReset(ResetSummary{Matched: 4, Deleted: 4})
	require.NoError(t, err)

	var decoded ResetSummary
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &decoded))
	assert.Equal(t, ResetSummary{Matched: 4, Deleted: 4}, decoded)

	rendered, err = NewFormatter(FormatYAML).FormatAdmissions(sampleStats())
	require.NoError(t, err)
	assert.Contains(t, rendered, "client_key: 198.51.100.7")
}

func TestFormatReset(t *testing.T) {
	f := NewFormatter(FormatTable)

	dry, err := f.FormatReset(ResetSummary{Matched: 3, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "Would delete 3 admission entr(ies)", dry)

	done, err := f.FormatReset(ResetSummary{Matched: 3, Deleted: 3})
	require.NoError(t, err)
	assert.Equal(t, "Deleted 3/3 admission entr(ies)", done)

	cleared, err := f.FormatReset(ResetSummary{Matched: 1, Deleted: 1, BucketReset: true})
	require.NoError(t, err)
	assert.Equal(t, "Deleted 1/1 admission entr(ies); live bucket cleared", cleared)
}

package record

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNormalizeNotes(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", " \n\t\n ", ""},
		{"trims edges and lines", "\n\n  ## Changes  \n  - fix  \n\n", "## Changes\n- fix"},
		{"collapses three blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"collapses whitespace-only lines", "a\n \n\t\n  \nb", "a\n\nb"},
		{"keeps single blank line", "a\n\nb", "a\n\nb"},
		{"crlf", "a\r\n\r\n\r\nb\r\n", "a\n\nb"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeNotes(tc.input))
		})
	}
}

func TestProperty_NormalizeNotes(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		pieces := rapid.SliceOf(rapid.SampledFrom([]string{"", " ", "\t", "- item", "## Heading", "text  ", "\r"})).Draw(rt, "lines")
		input := strings.Join(pieces, "\n")

		once := NormalizeNotes(input)
		assert.Equal(rt, once, NormalizeNotes(once), "normalization must be idempotent")
		assert.NotContains(rt, once, "\n\n\n")
		assert.Equal(rt, strings.TrimSpace(once), once)
	})
}

func TestRecordJSON_FixedReleaseNeverOmitsFields(t *testing.T) {
	rec := NewFixedRelease("openclaw/openclaw")

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))

	expected := map[string]interface{}{
		"target": "openclaw/openclaw",
		"latest_release": map[string]interface{}{
			"version":      "",
			"tag":          "",
			"author":       "",
			"published_at": "",
			"notes":        "",
			"assets":       []interface{}{},
		},
		"diagnostics": map[string]interface{}{
			"strategy":      "none",
			"fallback_used": false,
			"reasons":       []interface{}{},
		},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordJSON_FlexibleResult(t *testing.T) {
	rec := NewFlexibleResult("openclaw/openclaw")
	rec.Result = map[string]interface{}{"files": []string{"README.md"}}
	rec.Diagnostics = Diagnostics{Strategy: StrategyPrompt}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"target": "openclaw/openclaw",
		"result": {"files": ["README.md"]},
		"diagnostics": {"strategy": "prompt", "fallback_used": false, "reasons": []}
	}`, string(raw))

	rec.Result = nil
	raw, err = json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"result":""`)
}

func TestReleaseNormalized(t *testing.T) {
	r := Release{
		Version: " v1.0 ",
		Notes:   "a\n\n\n\nb",
		Assets:  []Asset{{Name: " app.zip ", URL: "https://x/app.zip"}, {}},
	}.Normalized()

	assert.Equal(t, "v1.0", r.Version)
	assert.Equal(t, "a\n\nb", r.Notes)
	assert.Equal(t, []Asset{{Name: "app.zip", URL: "https://x/app.zip"}}, r.Assets)
	assert.False(t, r.IsEmpty())
	assert.True(t, Release{Author: "someone"}.IsEmpty())
}

func TestDiagnosticsAddReason(t *testing.T) {
	var d Diagnostics
	d.AddReason("REGION_LOCATE_FAILURE", "confidence 0.20 below 0.50")
	d.AddReason("CANCELLED", "")
	assert.Equal(t, []string{"REGION_LOCATE_FAILURE: confidence 0.20 below 0.50", "CANCELLED"}, d.Reasons)
}

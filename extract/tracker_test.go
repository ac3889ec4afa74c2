//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-ai/artifactstream-go/artifact"
	"github.com/flowstack-ai/artifactstream-go/stream"
)

const chartBlock = "```json:chart\n{\"chartType\":\"pie\",\"title\":\"Share\",\"data\":[{\"k\":\"a\",\"v\":1}]}\n```"

func nineLineJS() string {
	lines := make([]string, 9)
	for i := range lines {
		lines[i] = "console.log(" + strings.Repeat("x", 3) + ");"
	}
	return "```javascript\n" + strings.Join(lines, "\n") + "\n```"
}

func TestTrackerScenarioCodeThenChart(t *testing.T) {
	// A 9-line fenced javascript block followed by a typed chart block must
	// yield exactly one code artifact and one chart artifact, both completed.
	buffer := nineLineJS() + "\n" + chartBlock

	tr := NewTracker()
	arts := tr.Observe(buffer)
	arts = tr.Complete()

	require.Len(t, arts, 2)

	code := arts[0]
	assert.Equal(t, artifact.KindCode, code.Kind)
	assert.Equal(t, "Javascript Code", code.Title)
	assert.Equal(t, artifact.StatusCompleted, code.Status)

	chart := arts[1]
	assert.Equal(t, artifact.KindChart, chart.Kind)
	assert.Equal(t, "pie", chart.Subtype)
	assert.Equal(t, artifact.StatusCompleted, chart.Status)
	require.Len(t, chart.Data, 1)
}

func TestTrackerScenarioChartWithoutData(t *testing.T) {
	// Same chart block with the data field removed: the artifact must carry
	// the synthesized fallback series with the type inferred from the title.
	buffer := "```json:chart\n{\"title\":\"Share\"}\n```"

	tr := NewTracker()
	arts := tr.Observe(buffer)

	require.Len(t, arts, 1)
	chart := arts[0]
	assert.Equal(t, ChartTypePie, chart.Subtype)
	records, ok := chart.Data.([]map[string]any)
	require.True(t, ok)
	assert.Len(t, records, 3)
	assert.Equal(t, artifact.StatusCompleted, chart.Status)
}

func TestTrackerSubstantialityFilter(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "three_lines_forty_chars_not_surfaced", body: "a = 1\nb = 2\nc = a + b", want: 0},
		{name: "seven_lines_surfaced", body: strings.Repeat("x = 1\n", 6) + "y = 2", want: 1},
		{name: "two_lines_but_long_surfaced", body: strings.Repeat("a", 201) + "\nb", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			arts := tr.Observe("```python\n" + tt.body + "\n```")
			assert.Len(t, arts, tt.want)
		})
	}
}

func TestTrackerSubstantialityExemptions(t *testing.T) {
	// Diagram and typed blocks are surfaced regardless of size.
	tr := NewTracker()
	arts := tr.Observe("```mermaid\nA-->B\n```\n```json:table\n{\"data\":[{\"a\":1}]}\n```")

	require.Len(t, arts, 2)
	assert.Equal(t, artifact.KindDiagram, arts[0].Kind)
	assert.Equal(t, artifact.KindTable, arts[1].Kind)
}

func TestTrackerConfigurableThresholds(t *testing.T) {
	tr := NewTracker(WithSubstantialityThresholds(1, 10))
	arts := tr.Observe("```python\na = 1\nb = 2\n```")
	assert.Len(t, arts, 1)
}

func TestTrackerIdempotentRescan(t *testing.T) {
	buffer := nineLineJS() + "\n" + chartBlock

	tr := NewTracker()
	first := tr.Observe(buffer)
	second := tr.Observe(buffer)

	assert.Equal(t, first, second, "re-scanning the same buffer must not change state")
	require.Len(t, second, 2)

	// No duplicate ordinals.
	seen := map[artifact.Identity]bool{}
	for _, a := range second {
		assert.False(t, seen[a.Identity()], "duplicate identity %v", a.Identity())
		seen[a.Identity()] = true
	}
}

func TestTrackerChunkingDeterminism(t *testing.T) {
	// The final artifact set must be independent of how the buffer was
	// chunked into deltas: observing every prefix one rune at a time must
	// end in the same completed artifacts as one single observation.
	full := "intro\n" + chartBlock + "\nmiddle\n" + nineLineJS() + "\n"

	single := NewTracker()
	single.Observe(full)
	want := single.Complete()

	charByChar := NewTracker()
	for i := 1; i <= len(full); i++ {
		charByChar.Observe(full[:i])
	}
	got := charByChar.Complete()

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Kind, got[i].Kind)
		assert.Equal(t, want[i].Ordinal, got[i].Ordinal)
		assert.Equal(t, want[i].Title, got[i].Title)
		assert.Equal(t, want[i].Subtype, got[i].Subtype)
		assert.Equal(t, want[i].Data, got[i].Data)
		assert.Equal(t, want[i].RawContent, got[i].RawContent)
		assert.Equal(t, artifact.StatusCompleted, got[i].Status)
	}
}

func TestTrackerUnknownTagSplitMidToken(t *testing.T) {
	// While the buffer ends inside the tag line it reads "```json:chart",
	// a prefix of the unknown tag "json:chartx". No artifact may be created
	// from that tentative state: the chunked observation must end exactly
	// like the single one, with the block ignored.
	full := "```json:chartx\n{\"data\":[{\"a\":1}]}\n```\n"

	single := NewTracker()
	single.Observe(full)
	assert.Empty(t, single.Complete())

	charByChar := NewTracker()
	for i := 1; i <= len(full); i++ {
		charByChar.Observe(full[:i])
	}
	assert.Empty(t, charByChar.Complete())
}

func TestTrackerUpdatesInPlaceWhileStreaming(t *testing.T) {
	open := "```json:chart\n{\"chartType\":\"bar\",\"title\":\"T\",\"data\":[{\"x\":1}"

	tr := NewTracker()
	arts := tr.Observe(open)
	require.Len(t, arts, 1)
	assert.Equal(t, artifact.StatusStreaming, arts[0].Status)
	firstID := arts[0].ID

	// The body grows and now parses with two points.
	arts = tr.Observe(open + ",{\"x\":2}]}")
	require.Len(t, arts, 1, "update must replace, never append a duplicate")
	assert.Equal(t, firstID, arts[0].ID)
	require.Len(t, arts[0].Data, 2)

	// Closing fence arrives.
	arts = tr.Observe(open + ",{\"x\":2}]}\n```")
	require.Len(t, arts, 1)
	assert.Equal(t, artifact.StatusCompleted, arts[0].Status)
}

func TestTrackerNeverRegressesToPlaceholder(t *testing.T) {
	good := "```json:chart\n{\"chartType\":\"bar\",\"title\":\"T\",\"data\":[{\"x\":1}]}"

	tr := NewTracker()
	arts := tr.Observe(good)
	require.Len(t, arts, 1)
	require.Len(t, arts[0].Data, 1)

	// More bytes arrive and the body stops parsing. The previous good data
	// must be kept instead of regressing to the fallback series.
	arts = tr.Observe(good + " {{{ broken")
	require.Len(t, arts, 1)
	assert.Equal(t, "bar", arts[0].Subtype)
	require.Len(t, arts[0].Data, 1)
	assert.Equal(t, float64(1), arts[0].Data.([]map[string]any)[0]["x"])
}

func TestTrackerUnknownKindIgnored(t *testing.T) {
	tr := NewTracker()
	arts := tr.Observe("```json:hologram\n{\"data\":[{\"a\":1}]}\n```")
	assert.Empty(t, arts, "unknown kind tags are not surfaced and not an error")
}

func TestTrackerAbort(t *testing.T) {
	tr := NewTracker()
	tr.Observe(chartBlock + "\n```json:table\n{\"data\":[{\"a\":1}")

	arts := tr.Abort("producer canceled")
	require.Len(t, arts, 2)

	assert.Equal(t, artifact.StatusCompleted, arts[0].Status, "completed artifacts stay valid")
	assert.Equal(t, artifact.StatusError, arts[1].Status)
	assert.Equal(t, "producer canceled", arts[1].Error)
}

func TestTrackerCompletedNotReprocessed(t *testing.T) {
	tr := NewTracker()
	arts := tr.Observe(chartBlock)
	require.Len(t, arts, 1)
	id := arts[0].ID

	// Subsequent scans of the grown buffer keep the completed artifact as-is.
	arts = tr.Observe(chartBlock + "\nmore prose")
	require.Len(t, arts, 1)
	assert.Equal(t, id, arts[0].ID)
	assert.Equal(t, artifact.StatusCompleted, arts[0].Status)
}

func TestTrackerUpsertStream(t *testing.T) {
	tr := NewTracker()

	tr.UpsertStream(artifact.KindCode, -1, "python", "print(1)", false)
	arts := tr.Artifacts()
	require.Len(t, arts, 1, "explicit streams bypass the substantiality filter")
	assert.Equal(t, artifact.StatusStreaming, arts[0].Status)

	tr.UpsertStream(artifact.KindCode, -1, "python", "print(1)\nprint(2)", false)
	arts = tr.Artifacts()
	require.Len(t, arts, 1)
	assert.Equal(t, "print(1)\nprint(2)", arts[0].RawContent)

	arts = tr.Complete()
	assert.Equal(t, artifact.StatusCompleted, arts[0].Status)
}

func TestTrackerUpsertChart(t *testing.T) {
	tr := NewTracker()

	tr.UpsertChart(-1, &stream.ChartPayload{Title: "Share", Data: []map[string]any{{"k": "a"}}}, false)
	tr.UpsertChart(-1, &stream.ChartPayload{Title: "Share", Data: []map[string]any{{"k": "a"}, {"k": "b"}}}, true)

	arts := tr.Artifacts()
	require.Len(t, arts, 1)
	assert.Equal(t, artifact.StatusCompleted, arts[0].Status)
	assert.Equal(t, ChartTypePie, arts[0].Subtype)
	require.Len(t, arts[0].Data, 2)
}

func TestTrackerSnapshotIsDefensiveCopy(t *testing.T) {
	tr := NewTracker()
	arts := tr.Observe(chartBlock)
	require.Len(t, arts, 1)

	arts[0].Title = "mutated"
	again := tr.Artifacts()
	assert.Equal(t, "Share", again[0].Title)
}

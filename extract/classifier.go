//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package extract

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/flowstack-ai/artifactstream-go/artifact"
	"github.com/flowstack-ai/artifactstream-go/log"
	"github.com/flowstack-ai/artifactstream-go/stream"
)

// Chart type constants.
const (
	ChartTypeBar  = "bar"
	ChartTypeLine = "line"
	ChartTypePie  = "pie"
	ChartTypeArea = "area"
)

// defaultFallbackSeries is the minimal series synthesized when chart data is
// absent, empty, or unparsable, so downstream consumers always receive a
// renderable chart.
var defaultFallbackSeries = []map[string]any{
	{"label": "A", "value": 30},
	{"label": "B", "value": 45},
	{"label": "C", "value": 25},
}

const (
	defaultFallbackXKey = "label"
	defaultFallbackYKey = "value"
)

var defaultTitles = map[artifact.Kind]string{
	artifact.KindChart:         "Chart",
	artifact.KindTable:         "Data Table",
	artifact.KindVisualization: "Visualization",
	artifact.KindHeatmap:       "Heatmap",
	artifact.KindTreemap:       "Treemap",
	artifact.KindGeospatial:    "Map",
	artifact.KindDiagram:       "Diagram",
	artifact.KindDocument:      "Document",
	artifact.KindImage:         "Image",
	artifact.KindSheet:         "Spreadsheet",
}

var titleCaser = cases.Title(language.Und)

// Classifier turns raw blocks into typed, normalized artifacts. It never
// fails on malformed payloads: parse failures fall back to synthesized
// placeholder data and are recorded for observability only.
type Classifier struct {
	fallbackSeries []map[string]any
	fallbackXKey   string
	fallbackYKey   string
	logger         log.Logger
}

// ClassifierOpt configures a Classifier.
type ClassifierOpt func(*Classifier)

// WithFallbackSeries overrides the synthesized chart fallback series.
// The series must be non-empty to honor the chart fallback guarantee.
func WithFallbackSeries(series []map[string]any, xKey, yKey string) ClassifierOpt {
	return func(c *Classifier) {
		if len(series) == 0 {
			return
		}
		c.fallbackSeries = series
		c.fallbackXKey = xKey
		c.fallbackYKey = yKey
	}
}

// WithClassifierLogger overrides the logger used to record parse fallbacks.
func WithClassifierLogger(logger log.Logger) ClassifierOpt {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// NewClassifier creates a classifier with the default fallback series.
func NewClassifier(opts ...ClassifierOpt) *Classifier {
	c := &Classifier{
		fallbackSeries: defaultFallbackSeries,
		fallbackXKey:   defaultFallbackXKey,
		fallbackYKey:   defaultFallbackYKey,
		logger:         log.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify produces a typed, validated artifact from a raw block. The second
// return reports whether placeholder data was substituted for an unparsable
// payload; it never surfaces as an error to the caller.
func (c *Classifier) Classify(b RawBlock) (*artifact.Artifact, bool) {
	art := &artifact.Artifact{
		Kind:       b.Kind,
		Subtype:    b.Subtype,
		RawContent: b.Body,
		Ordinal:    b.Ordinal,
	}

	var fellBack bool
	switch b.Kind {
	case artifact.KindChart:
		fellBack = c.normalizeChart(art, b.Body)
	case artifact.KindTreemap:
		fellBack = c.normalizeTreemap(art, b.Body)
	case artifact.KindTable, artifact.KindVisualization, artifact.KindHeatmap, artifact.KindGeospatial:
		fellBack = c.normalizeRecords(art, b.Body)
	case artifact.KindCode:
		art.Title = codeTitle(b.Language)
	case artifact.KindDocument:
		art.Title = defaultTitles[b.Kind]
		art.Meta.WordCount = markdownWordCount(b.Body)
	case artifact.KindSheet:
		art.Title = defaultTitles[b.Kind]
		art.Meta.Rows, art.Meta.Columns = csvShape(b.Body)
	case artifact.KindImage:
		art.Title = defaultTitles[b.Kind]
		art.Meta.MimeType, art.Meta.SizeBytes = imageInfo(b.Body)
	default:
		art.Title = defaultTitles[b.Kind]
	}

	if fellBack {
		c.logger.Debugf("artifact payload unparsable, using placeholder data: kind=%s ordinal=%d",
			b.Kind, b.Ordinal)
	}
	return art, fellBack
}

// NormalizeStructuredChart builds a chart artifact from a pre-parsed
// chart-delta payload, applying the same inference and fallback rules as the
// textual path.
func (c *Classifier) NormalizeStructuredChart(p *stream.ChartPayload, ordinal int) (*artifact.Artifact, bool) {
	art := &artifact.Artifact{
		Kind:    artifact.KindChart,
		Ordinal: ordinal,
		Title:   p.Title,
		XKey:    p.XKey,
		YKey:    p.YKey,
	}
	if art.Title == "" {
		art.Title = defaultTitles[artifact.KindChart]
	}

	art.Subtype = p.ChartType
	if art.Subtype == "" {
		art.Subtype = InferChartType(art.Title)
	}

	fellBack := len(p.Data) == 0
	if fellBack {
		c.applyFallbackSeries(art)
	} else {
		art.Data = p.Data
	}
	return art, fellBack
}

// chartPayload is the expected JSON shape of a typed chart block.
type chartPayload struct {
	ChartType string           `json:"chartType,omitempty"`
	Title     string           `json:"title,omitempty"`
	XKey      string           `json:"xKey,omitempty"`
	YKey      string           `json:"yKey,omitempty"`
	Data      []map[string]any `json:"data,omitempty"`
}

func (c *Classifier) normalizeChart(art *artifact.Artifact, body string) bool {
	var payload chartPayload
	parsed := parseJSON(body, &payload)

	art.Title = payload.Title
	if art.Title == "" {
		art.Title = defaultTitles[artifact.KindChart]
	}
	art.XKey = payload.XKey
	art.YKey = payload.YKey

	if payload.ChartType != "" {
		art.Subtype = payload.ChartType
	} else if art.Subtype == "" {
		art.Subtype = InferChartType(art.Title)
	}

	if !parsed || len(payload.Data) == 0 {
		c.applyFallbackSeries(art)
		return true
	}
	art.Data = payload.Data
	return false
}

func (c *Classifier) applyFallbackSeries(art *artifact.Artifact) {
	art.Data = c.fallbackSeries
	if art.XKey == "" {
		art.XKey = c.fallbackXKey
	}
	if art.YKey == "" {
		art.YKey = c.fallbackYKey
	}
}

// recordsPayload is the expected JSON shape of table-like typed blocks.
type recordsPayload struct {
	Title string           `json:"title,omitempty"`
	Data  []map[string]any `json:"data,omitempty"`
}

func (c *Classifier) normalizeRecords(art *artifact.Artifact, body string) bool {
	var payload recordsPayload
	parsed := parseJSON(body, &payload)

	art.Title = payload.Title
	if art.Title == "" {
		art.Title = defaultTitles[art.Kind]
	}
	if !parsed || len(payload.Data) == 0 {
		return !parsed
	}
	art.Data = payload.Data
	return false
}

// treePayload is the expected JSON shape of a typed treemap block: either a
// flat record list or a nested {name, children} tree.
type treePayload struct {
	Title    string           `json:"title,omitempty"`
	Name     string           `json:"name,omitempty"`
	Data     []map[string]any `json:"data,omitempty"`
	Children any              `json:"children,omitempty"`
}

func (c *Classifier) normalizeTreemap(art *artifact.Artifact, body string) bool {
	var payload treePayload
	parsed := parseJSON(body, &payload)

	art.Title = payload.Title
	if art.Title == "" {
		art.Title = defaultTitles[artifact.KindTreemap]
	}
	switch {
	case !parsed:
		return true
	case payload.Children != nil:
		art.Data = map[string]any{"name": payload.Name, "children": payload.Children}
	case len(payload.Data) > 0:
		art.Data = payload.Data
	}
	return false
}

// parseJSON parses body into v, salvaging once from a body that is not
// strictly valid JSON before giving up.
func parseJSON(body string, v any) bool {
	if json.Unmarshal([]byte(body), v) == nil {
		return true
	}
	salvaged, ok := salvageJSON(body)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(salvaged), v) == nil
}

// InferChartType infers a chart type from title keywords when the payload
// does not name one.
func InferChartType(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "pie"), strings.Contains(t, "distribution"), strings.Contains(t, "share"):
		return ChartTypePie
	case strings.Contains(t, "line"), strings.Contains(t, "trend"), strings.Contains(t, "over time"):
		return ChartTypeLine
	case strings.Contains(t, "area"):
		return ChartTypeArea
	default:
		return ChartTypeBar
	}
}

func codeTitle(lang string) string {
	if lang == "" {
		return "Code"
	}
	return titleCaser.String(lang) + " Code"
}

// markdownWordCount counts words in the rendered text of a markdown document,
// ignoring markup.
func markdownWordCount(src string) int {
	if strings.TrimSpace(src) == "" {
		return 0
	}
	source := []byte(src)
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return len(strings.Fields(sb.String()))
}

// csvShape reports the row and column counts of a CSV body. It counts the
// rows that parse cleanly and stops at the first malformed one, so a partial
// stream still yields usable metadata.
func csvShape(body string) (rows, cols int) {
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1
	for {
		record, err := r.Read()
		if err != nil {
			return rows, cols
		}
		rows++
		if len(record) > cols {
			cols = len(record)
		}
	}
}

// imageInfo derives MIME type and decoded size from an image payload when it
// is a data URL or raw base64. Other payload shapes yield no metadata.
func imageInfo(body string) (mime string, size int) {
	payload := strings.TrimSpace(body)
	if strings.HasPrefix(payload, "data:") {
		meta, rest, ok := strings.Cut(payload[len("data:"):], ",")
		if !ok {
			return "", 0
		}
		mime, _, _ = strings.Cut(meta, ";")
		payload = rest
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return mime, 0
	}
	if mime == "" {
		mime = http.DetectContentType(decoded)
	}
	return mime, len(decoded)
}

//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package artifact defines the typed artifact records extracted from
// streaming model output.
package artifact

// Kind is the primary classification of an artifact.
type Kind string

// Artifact kind constants.
const (
	KindCode          Kind = "code"
	KindDiagram       Kind = "diagram"
	KindChart         Kind = "chart"
	KindTable         Kind = "table"
	KindVisualization Kind = "visualization"
	KindHeatmap       Kind = "heatmap"
	KindTreemap       Kind = "treemap"
	KindGeospatial    Kind = "geospatial"
	KindDocument      Kind = "document"
	KindImage         Kind = "image"
	KindSheet         Kind = "sheet"
)

var knownKinds = map[Kind]struct{}{
	KindCode:          {},
	KindDiagram:       {},
	KindChart:         {},
	KindTable:         {},
	KindVisualization: {},
	KindHeatmap:       {},
	KindTreemap:       {},
	KindGeospatial:    {},
	KindDocument:      {},
	KindImage:         {},
	KindSheet:         {},
}

// ParseKind resolves a raw kind token to a known Kind.
// The boolean reports whether the token names a kind this engine understands;
// unknown kinds are skipped by the caller for forward compatibility.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	_, ok := knownKinds[k]
	return k, ok
}

// Status is the lifecycle state of an artifact.
type Status string

// Artifact status constants.
const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Identity is the stable identity of an artifact across repeated scans of a
// growing buffer. Two blocks with the same identity are the same logical
// artifact and updates replace prior state in place.
type Identity struct {
	Kind    Kind `json:"kind"`
	Ordinal int  `json:"ordinal"`
}

// Meta carries kind-specific metadata derived from artifact content.
// Fields are populated only when derivable; a zero Meta is omitted.
type Meta struct {
	// WordCount is the number of words for document kinds.
	WordCount int `json:"wordCount,omitempty"`
	// Rows is the number of data rows for sheet kinds.
	Rows int `json:"rows,omitempty"`
	// Columns is the number of columns for sheet kinds.
	Columns int `json:"columns,omitempty"`
	// MimeType is the detected MIME type for image kinds.
	MimeType string `json:"mimeType,omitempty"`
	// SizeBytes is the decoded payload size for image kinds.
	SizeBytes int `json:"sizeBytes,omitempty"`
}

// IsZero reports whether no metadata was derived.
func (m Meta) IsZero() bool {
	return m == Meta{}
}

// Artifact is a structured unit of generated content extracted from
// free-form model output.
type Artifact struct {
	// ID is the stable identifier, unique within one generation session.
	ID string `json:"id"`
	// Kind is the primary classification.
	Kind Kind `json:"kind"`
	// Subtype is an optional refinement, e.g. a chart's "pie" or a map's "dark".
	Subtype string `json:"subtype,omitempty"`
	// Title is the human label, defaulted from kind/title heuristics if absent.
	Title string `json:"title"`
	// RawContent is the exact textual payload as extracted, preserved verbatim.
	RawContent string `json:"rawContent,omitempty"`
	// Data is the structured payload for data-bearing kinds: a slice of
	// key/value records, or a nested tree for treemap. Nil for pure-text kinds.
	Data any `json:"data,omitempty"`
	// XKey and YKey name the axes for chart kinds.
	XKey string `json:"xKey,omitempty"`
	YKey string `json:"yKey,omitempty"`
	// Meta holds kind-specific derived metadata.
	Meta Meta `json:"meta,omitempty"`
	// Status is the lifecycle state.
	Status Status `json:"status"`
	// Ordinal is the position of first detection within the buffer,
	// used for stable display ordering and identity matching.
	Ordinal int `json:"ordinal"`
	// Error is the synthetic reason when Status is StatusError.
	Error string `json:"error,omitempty"`
}

// Identity returns the (kind, ordinal) identity of the artifact.
func (a *Artifact) Identity() Identity {
	return Identity{Kind: a.Kind, Ordinal: a.Ordinal}
}

// Clone returns a deep copy of the artifact.
// Data is copied structurally when it holds the canonical record slice shape;
// other payload shapes are shared since the engine never mutates them in place.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	clone := *a
	if records, ok := a.Data.([]map[string]any); ok {
		copied := make([]map[string]any, len(records))
		for i, rec := range records {
			m := make(map[string]any, len(rec))
			for k, v := range rec {
				m[k] = v
			}
			copied[i] = m
		}
		clone.Data = copied
	}
	return &clone
}

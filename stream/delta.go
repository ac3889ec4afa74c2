//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package stream defines the delta protocol consumed from a generation
// producer and the per-session accumulator that orders raw fragments.
package stream

// PayloadKind tags the payload carried by a single delta.
type PayloadKind string

// Stream part payload kinds.
const (
	PayloadText     PayloadKind = "text-delta"
	PayloadCode     PayloadKind = "code-delta"
	PayloadChart    PayloadKind = "chart-delta"
	PayloadSheet    PayloadKind = "sheet-delta"
	PayloadDocument PayloadKind = "document-delta"
	PayloadImage    PayloadKind = "image-delta"
	PayloadMetadata PayloadKind = "metadata-update"
	PayloadStatus   PayloadKind = "status-update"
	PayloadError    PayloadKind = "error"
)

// ChartPayload is the fully-structured form of a chart-delta, emitted when
// the producer can send a parsed chart directly instead of raw text.
type ChartPayload struct {
	ChartType string           `json:"chartType,omitempty"`
	Title     string           `json:"title,omitempty"`
	XKey      string           `json:"xKey,omitempty"`
	YKey      string           `json:"yKey,omitempty"`
	Data      []map[string]any `json:"data,omitempty"`
}

// Delta is one incremental fragment of a streaming generation response.
type Delta struct {
	// Sequence is the monotonically increasing fragment index.
	Sequence int64 `json:"sequence"`
	// PayloadKind tags the fragment payload.
	PayloadKind PayloadKind `json:"payloadKind"`
	// Content is the fragment text. For PayloadError it carries the
	// producer's error message.
	Content string `json:"content,omitempty"`
	// Chart is the structured alternative payload for PayloadChart.
	// When set, Content is ignored for this delta.
	Chart *ChartPayload `json:"chart,omitempty"`
}

// IsContent reports whether the delta carries prose text that belongs in the
// session's main buffer. Typed artifact deltas (code-delta, chart-delta,
// sheet-delta, document-delta, image-delta) accumulate in their own artifact
// streams, and metadata/status/error parts carry no buffer text. All deltas
// participate in sequence ordering regardless.
func (d Delta) IsContent() bool {
	return d.PayloadKind == PayloadText
}

// IsArtifactStream reports whether the delta belongs to a typed artifact
// stream rather than the prose buffer.
func (d Delta) IsArtifactStream() bool {
	switch d.PayloadKind {
	case PayloadCode, PayloadChart, PayloadSheet, PayloadDocument, PayloadImage:
		return true
	default:
		return false
	}
}

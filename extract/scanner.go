//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package extract implements the streaming artifact extraction pipeline:
// a stateless block scanner over buffer snapshots, a per-kind classifier
// and normalizer, and the tracker that carries artifact lifecycle state
// across repeated scans of a growing buffer.
package extract

import (
	"strings"

	"github.com/flowstack-ai/artifactstream-go/artifact"
)

const (
	fence          = "```"
	typedTagPrefix = "json:"
	diagramTag     = "mermaid"
)

// typedKinds is the set of kinds the typed fence grammar
// ("```json:<kind>[:<subtype>]") can carry.
var typedKinds = map[artifact.Kind]struct{}{
	artifact.KindChart:         {},
	artifact.KindTable:         {},
	artifact.KindVisualization: {},
	artifact.KindHeatmap:       {},
	artifact.KindTreemap:       {},
	artifact.KindGeospatial:    {},
}

// RawBlock is one delimited block found in a buffer snapshot: boundaries
// plus the raw tag and payload. The scanner reports blocks; it never decides
// whether they become artifacts.
type RawBlock struct {
	// Tag is the raw fence tag line, e.g. "json:chart:pie", "python", "mermaid".
	Tag string
	// Kind is the resolved artifact kind.
	Kind artifact.Kind
	// KindKnown reports whether the tag names a kind this engine understands.
	// Blocks with unknown typed kinds are ignored downstream.
	KindKnown bool
	// Subtype is the optional refinement from a typed tag.
	Subtype string
	// Language is the language token of a generic code block.
	Language string
	// Body is the block payload between the fences, verbatim.
	Body string
	// Ordinal is the byte offset of the opening fence in the buffer.
	// The buffer is append-only, so the ordinal is stable across scans.
	Ordinal int
	// Closed reports whether the closing fence has arrived.
	Closed bool
	// TagComplete reports whether the tag line has terminated. While the tag
	// is still arriving its kind is tentative: a prefix of an unknown tag can
	// look like a known one, so such blocks must not become artifacts yet.
	TagComplete bool
	// Typed reports whether the block used the json: tag grammar.
	Typed bool
	// Diagram reports whether the block is a mermaid diagram.
	Diagram bool
	// Explicit marks blocks synthesized from typed delta streams rather than
	// found in the buffer. Explicit blocks bypass the substantiality filter.
	Explicit bool
}

// Scan reports all delimited blocks in the buffer snapshot. It is a pure
// function of its input: it retains no cursor state between calls, so
// re-scanning the same buffer is idempotent and deterministic, and two
// sessions can never corrupt each other's scan position.
//
// Typed tags take precedence over generic ones by construction: the tag line
// is inspected once per fenced region, so a region is never double-counted.
func Scan(buffer string) []RawBlock {
	var blocks []RawBlock
	pos := 0
	for {
		start := nextFence(buffer, pos)
		if start < 0 {
			return blocks
		}
		rest := buffer[start+len(fence):]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			// The tag line itself is still arriving.
			b := makeBlock(strings.TrimSpace(rest), "", start, false)
			b.TagComplete = false
			blocks = append(blocks, b)
			return blocks
		}
		tag := strings.TrimSpace(rest[:nl])
		bodyStart := start + len(fence) + nl + 1
		end := closingFence(buffer, bodyStart)
		if end < 0 {
			blocks = append(blocks, makeBlock(tag, buffer[bodyStart:], start, false))
			return blocks
		}
		body := strings.TrimSuffix(buffer[bodyStart:end], "\n")
		blocks = append(blocks, makeBlock(tag, body, start, true))
		pos = end + len(fence)
	}
}

// nextFence finds the next fence at the start of a line at or after from.
func nextFence(s string, from int) int {
	for i := from; ; {
		j := strings.Index(s[i:], fence)
		if j < 0 {
			return -1
		}
		idx := i + j
		if idx == 0 || s[idx-1] == '\n' {
			return idx
		}
		i = idx + len(fence)
	}
}

// closingFence finds the next fence that terminates a block: a fence at the
// start of a line with nothing but whitespace after it on that line. A fence
// followed by a tag opens a new block and never closes the current one.
func closingFence(s string, from int) int {
	for i := from; ; {
		j := strings.Index(s[i:], fence)
		if j < 0 {
			return -1
		}
		idx := i + j
		if idx > 0 && s[idx-1] != '\n' {
			i = idx + len(fence)
			continue
		}
		line := s[idx+len(fence):]
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		if strings.TrimSpace(line) == "" {
			return idx
		}
		i = idx + len(fence)
	}
}

func makeBlock(tag, body string, ordinal int, closed bool) RawBlock {
	b := RawBlock{Tag: tag, Body: body, Ordinal: ordinal, Closed: closed, TagComplete: true}
	switch {
	case strings.HasPrefix(tag, typedTagPrefix):
		b.Typed = true
		kindToken, subtype, _ := strings.Cut(tag[len(typedTagPrefix):], ":")
		kind, known := artifact.ParseKind(kindToken)
		if known {
			_, known = typedKinds[kind]
		}
		b.Kind = kind
		b.KindKnown = known
		b.Subtype = subtype
	case tag == diagramTag:
		b.Diagram = true
		b.Kind = artifact.KindDiagram
		b.KindKnown = true
	default:
		b.Kind = artifact.KindCode
		b.KindKnown = true
		if fields := strings.Fields(tag); len(fields) > 0 {
			b.Language = fields[0]
		}
	}
	return b
}

//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package extract

import (
	"strings"

	"github.com/google/uuid"

	"github.com/flowstack-ai/artifactstream-go/artifact"
	"github.com/flowstack-ai/artifactstream-go/stream"
)

// Substantiality defaults for generic code blocks. These are tuning choices,
// not load-bearing invariants, and can be overridden per tracker.
const (
	defaultMinCodeLines = 5
	defaultMinCodeChars = 200
)

// Tracker carries each artifact's lifecycle across repeated scans of a
// growing buffer. At most one logical artifact exists per (kind, ordinal)
// identity; subsequent scans update it in place, never append a duplicate.
// A Tracker is owned by a single session and is not safe for concurrent use.
type Tracker struct {
	classifier *Classifier

	minCodeLines int
	minCodeChars int

	artifacts map[artifact.Identity]*artifact.Artifact
	order     []artifact.Identity
	// fellBack remembers identities whose current data is placeholder, so a
	// later parse that succeeds replaces it while a later failure never
	// regresses previously good data.
	fellBack map[artifact.Identity]bool
	// fallbacks counts the parse failures recovered with placeholder data.
	fallbacks int
}

// TrackerOpt configures a Tracker.
type TrackerOpt func(*Tracker)

// WithSubstantialityThresholds overrides the line/char thresholds above
// which a generic code block is surfaced as an artifact.
func WithSubstantialityThresholds(lines, chars int) TrackerOpt {
	return func(t *Tracker) {
		t.minCodeLines = lines
		t.minCodeChars = chars
	}
}

// WithClassifier overrides the classifier used to normalize blocks.
func WithClassifier(c *Classifier) TrackerOpt {
	return func(t *Tracker) {
		t.classifier = c
	}
}

// NewTracker creates a tracker with default thresholds and classifier.
func NewTracker(opts ...TrackerOpt) *Tracker {
	t := &Tracker{
		classifier:   NewClassifier(),
		minCodeLines: defaultMinCodeLines,
		minCodeChars: defaultMinCodeChars,
		artifacts:    make(map[artifact.Identity]*artifact.Artifact),
		fellBack:     make(map[artifact.Identity]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe scans a buffer snapshot and reconciles every reported block into
// the tracked artifact set, then returns the current snapshot. Calling it
// again with the same buffer yields the identical artifact list.
func (t *Tracker) Observe(buffer string) []*artifact.Artifact {
	for _, b := range Scan(buffer) {
		t.reconcile(b)
	}
	return t.Artifacts()
}

// UpsertStream reconciles content arriving on a typed delta stream
// (code-delta, sheet-delta, ...) as an explicit block, exempt from the
// substantiality filter.
func (t *Tracker) UpsertStream(kind artifact.Kind, ordinal int, language, content string, closed bool) {
	t.reconcile(RawBlock{
		Kind:        kind,
		KindKnown:   true,
		Language:    language,
		Body:        content,
		Ordinal:     ordinal,
		Closed:      closed,
		TagComplete: true,
		Explicit:    true,
	})
}

// UpsertChart reconciles a fully-structured chart-delta payload under the
// same identity rules as the textual path.
func (t *Tracker) UpsertChart(ordinal int, p *stream.ChartPayload, closed bool) {
	art, fellBack := t.classifier.NormalizeStructuredChart(p, ordinal)
	t.apply(art, fellBack, closed)
}

func (t *Tracker) reconcile(b RawBlock) {
	if !b.TagComplete {
		// The tag could still grow into an unknown kind; the next scan
		// re-reads the region once the tag line terminates, so nothing is
		// lost by waiting.
		return
	}
	if !b.KindKnown {
		// Unknown kind tags are ignored entirely, keeping the scanner
		// forward-compatible with producer changes.
		return
	}
	if b.Kind == artifact.KindCode && !b.Explicit && !t.substantial(b.Body) {
		return
	}

	id := artifact.Identity{Kind: b.Kind, Ordinal: b.Ordinal}
	if existing, ok := t.artifacts[id]; ok && existing.Status == artifact.StatusCompleted {
		// Completed artifacts are never reprocessed.
		return
	}

	art, fellBack := t.classifier.Classify(b)
	t.apply(art, fellBack, b.Closed)
}

// apply installs a freshly classified artifact under its identity, keeping
// the previous good data when the new parse fell back.
func (t *Tracker) apply(art *artifact.Artifact, fellBack, closed bool) {
	id := art.Identity()
	existing, ok := t.artifacts[id]
	if ok && existing.Status == artifact.StatusCompleted {
		return
	}

	if ok {
		art.ID = existing.ID
		if fellBack && !t.fellBack[id] {
			// The growing body stopped parsing; keep the last good state
			// rather than regressing to placeholder data.
			art.Data = existing.Data
			art.Subtype = existing.Subtype
			art.Title = existing.Title
			art.XKey = existing.XKey
			art.YKey = existing.YKey
			fellBack = false
		}
	} else {
		art.ID = uuid.New().String()
		t.order = append(t.order, id)
	}

	if closed {
		art.Status = artifact.StatusCompleted
	} else {
		art.Status = artifact.StatusStreaming
	}
	if fellBack && (!ok || !t.fellBack[id]) {
		t.fallbacks++
	}
	t.artifacts[id] = art
	t.fellBack[id] = fellBack
}

// Complete marks every artifact still streaming as completed with its best
// available state. Called when the producer finishes normally; a persistent
// parse failure after closure still completes with fallback data, since a
// rendered placeholder is preferable to a hard failure mid-stream.
func (t *Tracker) Complete() []*artifact.Artifact {
	for _, id := range t.order {
		if art := t.artifacts[id]; art.Status == artifact.StatusStreaming {
			art.Status = artifact.StatusCompleted
		}
	}
	return t.Artifacts()
}

// Abort transitions every artifact still streaming to the error state with
// the given synthetic reason, rather than silently dropping it. Completed
// artifacts are untouched and remain valid.
func (t *Tracker) Abort(reason string) []*artifact.Artifact {
	for _, id := range t.order {
		if art := t.artifacts[id]; art.Status == artifact.StatusStreaming {
			art.Status = artifact.StatusError
			art.Error = reason
		}
	}
	return t.Artifacts()
}

// Artifacts returns the tracked artifacts in first-detection order, as
// defensive copies.
func (t *Tracker) Artifacts() []*artifact.Artifact {
	out := make([]*artifact.Artifact, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.artifacts[id].Clone())
	}
	return out
}

// Fallbacks reports how many parses fell back to placeholder data over the
// tracker's lifetime. A later parse that recovers replaces the data but does
// not decrement the count.
func (t *Tracker) Fallbacks() int {
	return t.fallbacks
}

// substantial reports whether a generic code body is large enough to surface
// as an artifact: more than minCodeLines lines or more than minCodeChars
// characters. Diagram and typed blocks are exempt, they are inherently
// meaningful even when short.
func (t *Tracker) substantial(body string) bool {
	if len(body) > t.minCodeChars {
		return true
	}
	if body == "" {
		return false
	}
	return strings.Count(body, "\n")+1 > t.minCodeLines
}

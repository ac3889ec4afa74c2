//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package engine folds streaming deltas into accumulated prose and a live
// artifact set. A Session owns the state of one producer stream; a Manager
// owns many sessions and dispatches their persistence work to background
// workers.
package engine

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/flowstack-ai/artifactstream-go/artifact"
	"github.com/flowstack-ai/artifactstream-go/extract"
	"github.com/flowstack-ai/artifactstream-go/log"
	"github.com/flowstack-ai/artifactstream-go/stream"
	"github.com/flowstack-ai/artifactstream-go/telemetry/metric"
)

// ErrSessionClosed is returned when a delta is applied to a session that
// has already been completed or aborted.
var ErrSessionClosed = errors.New("engine: session closed")

// payloadArtifactKinds maps typed delta payloads to the artifact kind their
// side stream produces.
var payloadArtifactKinds = map[stream.PayloadKind]artifact.Kind{
	stream.PayloadCode:     artifact.KindCode,
	stream.PayloadChart:    artifact.KindChart,
	stream.PayloadSheet:    artifact.KindSheet,
	stream.PayloadDocument: artifact.KindDocument,
	stream.PayloadImage:    artifact.KindImage,
}

// sideStream accumulates the body of one typed delta stream. Side streams
// are keyed by payload kind and carry negative ordinals so they can never
// collide with fenced blocks discovered in the prose buffer.
type sideStream struct {
	ordinal int
	buf     []byte
}

// Options configure a Session.
type Options struct {
	trackerOpts []extract.TrackerOpt
	logger      log.Logger
}

// Option is the functional option for NewSession.
type Option func(*Options)

// WithTrackerOptions forwards options to the session's artifact tracker.
func WithTrackerOptions(opts ...extract.TrackerOpt) Option {
	return func(o *Options) {
		o.trackerOpts = append(o.trackerOpts, opts...)
	}
}

// WithLogger sets the logger used by the session.
func WithLogger(l log.Logger) Option {
	return func(o *Options) {
		o.logger = l
	}
}

// Session folds one producer stream into prose content and artifacts.
// All methods are safe for concurrent use.
type Session struct {
	id string

	mu          sync.Mutex
	acc         *stream.Accumulator
	tracker     *extract.Tracker
	sideStreams map[stream.PayloadKind]*sideStream
	nextSideOrd int
	closed      bool
	errReason   string

	logger log.Logger
}

// NewSession creates a session for the given stream identifier.
func NewSession(id string, opt ...Option) *Session {
	opts := &Options{logger: log.Default}
	for _, o := range opt {
		o(opts)
	}
	return &Session{
		id:          id,
		acc:         stream.NewAccumulator(),
		tracker:     extract.NewTracker(opts.trackerOpts...),
		sideStreams: make(map[stream.PayloadKind]*sideStream),
		nextSideOrd: -1,
		logger:      opts.logger,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Apply folds one delta into the session. Prose deltas grow the content
// buffer and trigger a re-scan for fenced artifacts; typed deltas grow
// their side stream. A chart delta updates its chart artifact from either
// form: the structured payload directly, or the accumulated raw body
// parsed like a fenced chart block. An error payload aborts every
// in-flight artifact.
//
// Sequence violations poison the session permanently, matching the
// accumulator's contract.
func (s *Session) Apply(d stream.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if err := s.acc.Append(d); err != nil {
		if errors.Is(err, stream.ErrOutOfOrderDelta) {
			metric.StreamFailures.Add(context.Background(), 1)
		}
		return err
	}

	switch {
	case d.IsContent():
		s.tracker.Observe(s.acc.Snapshot())
	case d.PayloadKind == stream.PayloadChart && d.Chart != nil:
		s.tracker.UpsertChart(s.sideOrdinal(stream.PayloadChart), d.Chart, false)
	case d.IsArtifactStream():
		ss := s.sideStream(d.PayloadKind)
		ss.buf = append(ss.buf, d.Content...)
		if len(ss.buf) > 0 {
			s.tracker.UpsertStream(payloadArtifactKinds[d.PayloadKind], ss.ordinal, "", string(ss.buf), false)
		}
	case d.PayloadKind == stream.PayloadError:
		reason := d.Content
		if reason == "" {
			reason = "producer reported an error"
		}
		s.errReason = reason
		s.logger.Warnf("session %s: producer error at seq=%d: %s", s.id, d.Sequence, reason)
		s.tracker.Abort(reason)
	}
	return nil
}

// sideStream returns the side stream for a payload kind, allocating an
// ordinal on first use.
func (s *Session) sideStream(k stream.PayloadKind) *sideStream {
	ss, ok := s.sideStreams[k]
	if !ok {
		ss = &sideStream{ordinal: s.nextSideOrd}
		s.nextSideOrd--
		s.sideStreams[k] = ss
	}
	return ss
}

func (s *Session) sideOrdinal(k stream.PayloadKind) int {
	return s.sideStream(k).ordinal
}

// Complete marks the stream as finished: every artifact still streaming is
// promoted to completed. The session no longer accepts deltas afterwards.
func (s *Session) Complete() []*artifact.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	arts := s.tracker.Complete()
	for _, a := range arts {
		if a.Status == artifact.StatusCompleted {
			metric.ArtifactsCompleted.Add(context.Background(), 1,
				otelmetric.WithAttributes(attribute.String("artifact.kind", string(a.Kind))))
		}
	}
	if n := s.tracker.Fallbacks(); n > 0 {
		metric.ParseFallbacks.Add(context.Background(), int64(n))
	}
	return arts
}

// Abort marks the stream as failed: every artifact still streaming moves
// to the error status carrying the given reason. Completed artifacts are
// left untouched.
func (s *Session) Abort(reason string) []*artifact.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.errReason = reason
	return s.tracker.Abort(reason)
}

// Artifacts returns a snapshot of the current artifact set in detection
// order.
func (s *Session) Artifacts() []*artifact.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Artifacts()
}

// Content returns the accumulated prose buffer.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Snapshot()
}

// LastSequence returns the highest sequence number applied so far, or -1.
func (s *Session) LastSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.LastSequence()
}

// Failed reports whether the session was poisoned by a sequence violation.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Failed()
}

// ErrorReason returns the reason recorded by Abort or an error delta.
func (s *Session) ErrorReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errReason
}

// Closed reports whether Complete or Abort has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

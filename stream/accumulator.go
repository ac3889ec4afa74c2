//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package stream

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOutOfOrderDelta is returned when a delta arrives with a sequence
	// number at or below the last applied one. This is a protocol violation
	// and fails the session it occurred in.
	ErrOutOfOrderDelta = errors.New("delta sequence out of order")
	// ErrSessionFailed is returned for any append after the session has
	// been failed by a protocol violation.
	ErrSessionFailed = errors.New("session already failed")
)

// Accumulator appends ordered text fragments into a per-session buffer.
// It is the only component that touches raw fragment order and performs no
// parsing. An Accumulator is owned by a single session and is not safe for
// concurrent use.
type Accumulator struct {
	buf     strings.Builder
	lastSeq int64
	failed  bool
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{lastSeq: -1}
}

// Append applies one delta to the buffer. Deltas must arrive in strictly
// increasing sequence order; a violation fails the session permanently and
// leaves the buffer contents as they were, so artifacts already extracted
// from it remain valid.
func (a *Accumulator) Append(d Delta) error {
	if a.failed {
		return ErrSessionFailed
	}
	if d.Sequence <= a.lastSeq {
		a.failed = true
		return fmt.Errorf("%w: sequence %d after %d", ErrOutOfOrderDelta, d.Sequence, a.lastSeq)
	}
	a.lastSeq = d.Sequence
	if d.IsContent() {
		a.buf.WriteString(d.Content)
	}
	return nil
}

// Snapshot returns the current buffer contents.
func (a *Accumulator) Snapshot() string {
	return a.buf.String()
}

// Len returns the current buffer length in bytes.
func (a *Accumulator) Len() int {
	return a.buf.Len()
}

// LastSequence returns the last applied sequence number, or -1 when no delta
// has been applied yet.
func (a *Accumulator) LastSequence() int64 {
	return a.lastSeq
}

// Failed reports whether the session was failed by a protocol violation.
func (a *Accumulator) Failed() bool {
	return a.failed
}

//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flowstack-ai/artifactstream-go/artifact"
	"github.com/flowstack-ai/artifactstream-go/stream"
)

// leakOpts excludes the goroutines of the ants package-level default
// pool, which is spawned at import time and is not owned by the manager.
var leakOpts = []goleak.Option{
	goleak.IgnoreTopFunction("github.com/panjf2000/ants/v2.(*Pool).purgeStaleWorkers"),
	goleak.IgnoreTopFunction("github.com/panjf2000/ants/v2.(*Pool).ticktock"),
}

// recordingCommitter captures every commit it receives.
type recordingCommitter struct {
	mu      sync.Mutex
	commits []commitRecord
}

type commitRecord struct {
	sessionID string
	content   string
	artifacts []*artifact.Artifact
}

func (r *recordingCommitter) Commit(_ context.Context, sessionID, content string, artifacts []*artifact.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, commitRecord{sessionID: sessionID, content: content, artifacts: artifacts})
	return nil
}

func (r *recordingCommitter) records() []commitRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]commitRecord, len(r.commits))
	copy(out, r.commits)
	return out
}

func TestManagerSessionLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	m, err := NewManager(nil)
	require.NoError(t, err)
	defer m.Close()

	s1 := m.Session("a")
	s2 := m.Session("a")
	assert.Same(t, s1, s2, "same identifier returns the same session")

	_, ok := m.Lookup("missing")
	assert.False(t, ok)

	m.Remove("a")
	_, ok = m.Lookup("a")
	assert.False(t, ok)
}

func TestManagerEnqueueCommit(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	committer := &recordingCommitter{}
	m, err := NewManager(committer, WithCommitWorkers(2))
	require.NoError(t, err)

	s := m.Session("chat-1")
	require.NoError(t, s.Apply(stream.Delta{Sequence: 0, PayloadKind: stream.PayloadText, Content: "hello"}))

	require.NoError(t, m.EnqueueCommit(context.Background(), "chat-1"))
	m.Close()

	records := committer.records()
	require.Len(t, records, 1)
	assert.Equal(t, "chat-1", records[0].sessionID)
	assert.Equal(t, "hello", records[0].content)
}

func TestManagerEnqueueCommitUnknownSession(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	m, err := NewManager(nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Error(t, m.EnqueueCommit(context.Background(), "nope"))
}

func TestManagerQueueFullFallsBackToSync(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	blocked := make(chan struct{})
	var calls atomic.Int32
	committer := &recordingCommitter{}
	slow := CommitterFunc(func(ctx context.Context, id, content string, arts []*artifact.Artifact) error {
		if calls.Add(1) == 1 {
			<-blocked
		}
		return committer.Commit(ctx, id, content, arts)
	})

	m, err := NewManager(slow, WithCommitWorkers(1), WithCommitQueueSize(1))
	require.NoError(t, err)

	m.Session("s")
	ctx := context.Background()
	// First job occupies the worker, second fills the queue, third must run
	// synchronously on the caller instead of being dropped.
	require.NoError(t, m.EnqueueCommit(ctx, "s"))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.EnqueueCommit(ctx, "s"))
	require.NoError(t, m.EnqueueCommit(ctx, "s"))

	close(blocked)
	m.Close()

	assert.Len(t, committer.records(), 3, "no commit was dropped")
}

func TestManagerCommitAll(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	committer := &recordingCommitter{}
	m, err := NewManager(committer, WithCommitWorkers(4))
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		s := m.Session(id)
		require.NoError(t, s.Apply(stream.Delta{Sequence: 0, PayloadKind: stream.PayloadText, Content: id}))
	}

	require.NoError(t, m.CommitAll(context.Background()))
	m.Close()

	records := committer.records()
	require.Len(t, records, 3)
	seen := map[string]string{}
	for _, r := range records {
		seen[r.sessionID] = r.content
	}
	assert.Equal(t, map[string]string{"a": "a", "b": "b", "c": "c"}, seen)
}

func TestManagerClosedRejectsWork(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	m, err := NewManager(nil)
	require.NoError(t, err)
	m.Session("s")
	m.Close()
	m.Close() // Close is idempotent.

	assert.ErrorIs(t, m.EnqueueCommit(context.Background(), "s"), ErrManagerClosed)
	assert.ErrorIs(t, m.CommitAll(context.Background()), ErrManagerClosed)
}

func TestManagerCommitterPanicIsContained(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	m, err := NewManager(CommitterFunc(func(context.Context, string, string, []*artifact.Artifact) error {
		panic("boom")
	}))
	require.NoError(t, err)

	m.Session("s")
	require.NoError(t, m.EnqueueCommit(context.Background(), "s"))
	m.Close()
}

//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/spaolacci/murmur3"

	"github.com/flowstack-ai/artifactstream-go/artifact"
	"github.com/flowstack-ai/artifactstream-go/log"
)

const (
	defaultCommitWorkers   = 4
	defaultCommitQueueSize = 64
)

// ErrManagerClosed is returned when work is submitted after Close.
var ErrManagerClosed = errors.New("engine: manager closed")

// Committer persists the state of one session. Implementations must be
// safe for concurrent use; the manager guarantees at most one in-flight
// commit per session when commits go through EnqueueCommit.
type Committer interface {
	Commit(ctx context.Context, sessionID, content string, artifacts []*artifact.Artifact) error
}

// CommitterFunc adapts a function to the Committer interface.
type CommitterFunc func(ctx context.Context, sessionID, content string, artifacts []*artifact.Artifact) error

// Commit implements Committer.
func (f CommitterFunc) Commit(ctx context.Context, sessionID, content string, artifacts []*artifact.Artifact) error {
	return f(ctx, sessionID, content, artifacts)
}

type commitJob struct {
	ctx       context.Context
	sessionID string
}

type commitAllParam struct {
	ctx  context.Context
	sess *Session
	mgr  *Manager
	wg   *sync.WaitGroup
}

func (p *commitAllParam) reset() {
	p.ctx = nil
	p.sess = nil
	p.mgr = nil
	p.wg = nil
}

var commitAllParamPool = &sync.Pool{
	New: func() any { return new(commitAllParam) },
}

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	workers     int
	queueSize   int
	sessionOpts []Option
	logger      log.Logger
}

// ManagerOption is the functional option for NewManager.
type ManagerOption func(*ManagerOptions)

// WithCommitWorkers sets the number of background commit workers. Each
// worker owns one job queue; sessions are pinned to a queue by hash so
// commits for the same session never race each other.
func WithCommitWorkers(n int) ManagerOption {
	return func(o *ManagerOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithCommitQueueSize sets the per-worker queue capacity.
func WithCommitQueueSize(n int) ManagerOption {
	return func(o *ManagerOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithSessionOptions sets the options applied to every session the manager
// creates.
func WithSessionOptions(opts ...Option) ManagerOption {
	return func(o *ManagerOptions) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

// WithManagerLogger sets the logger used by the manager.
func WithManagerLogger(l log.Logger) ManagerOption {
	return func(o *ManagerOptions) {
		o.logger = l
	}
}

// Manager owns the live sessions of many concurrent producer streams and
// dispatches their persistence to background workers.
type Manager struct {
	opts      ManagerOptions
	committer Committer

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	jobChans []chan *commitJob
	workerWG sync.WaitGroup

	pool *ants.PoolWithFunc
}

// NewManager creates a manager that persists sessions through the given
// committer. A nil committer makes every commit a no-op.
func NewManager(committer Committer, opt ...ManagerOption) (*Manager, error) {
	opts := ManagerOptions{
		workers:   defaultCommitWorkers,
		queueSize: defaultCommitQueueSize,
		logger:    log.Default,
	}
	for _, o := range opt {
		o(&opts)
	}
	if committer == nil {
		committer = CommitterFunc(func(context.Context, string, string, []*artifact.Artifact) error { return nil })
	}

	m := &Manager{
		opts:      opts,
		committer: committer,
		sessions:  make(map[string]*Session),
		jobChans:  make([]chan *commitJob, opts.workers),
	}

	pool, err := ants.NewPoolWithFunc(opts.workers, func(args any) {
		param, ok := args.(*commitAllParam)
		if !ok {
			panic("commit pool args type error")
		}
		wg := param.wg
		defer func() {
			wg.Done()
			param.reset()
			commitAllParamPool.Put(param)
		}()
		param.mgr.commitSession(param.ctx, param.sess)
	})
	if err != nil {
		return nil, fmt.Errorf("create commit pool: %w", err)
	}
	m.pool = pool

	for i := range m.jobChans {
		m.jobChans[i] = make(chan *commitJob, opts.queueSize)
		m.workerWG.Add(1)
		go m.commitWorker(m.jobChans[i])
	}
	return m, nil
}

// Session returns the session for the given identifier, creating it when
// it does not exist yet.
func (m *Manager) Session(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[id]; ok {
		return s
	}
	s = NewSession(id, m.opts.sessionOpts...)
	m.sessions[id] = s
	return s
}

// Lookup returns the session for the given identifier without creating it.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session from the manager. In-flight commits for the
// session still run with the state they captured.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// EnqueueCommit schedules an asynchronous commit of the session's current
// state. Commits for the same session always land on the same worker, so
// they are applied in order. When the worker's queue is full the commit
// runs synchronously instead of being dropped.
func (m *Manager) EnqueueCommit(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	closed := m.closed
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	index := int(murmur3.Sum32([]byte(sessionID))) % len(m.jobChans)
	select {
	case m.jobChans[index] <- &commitJob{ctx: ctx, sessionID: sessionID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		m.opts.logger.Warnf("commit queue %d is full, committing session %s synchronously", index, sessionID)
		m.commitSession(ctx, s)
		return nil
	}
}

// CommitAll commits every live session in parallel and waits for all of
// them to finish.
func (m *Manager) CommitAll(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		param := commitAllParamPool.Get().(*commitAllParam)
		param.ctx = ctx
		param.sess = s
		param.mgr = m
		param.wg = &wg
		wg.Add(1)
		if err := m.pool.Invoke(param); err != nil {
			wg.Done()
			param.reset()
			commitAllParamPool.Put(param)
			return fmt.Errorf("invoke commit pool: %w", err)
		}
	}
	wg.Wait()
	return nil
}

func (m *Manager) commitWorker(jobs <-chan *commitJob) {
	defer m.workerWG.Done()
	for job := range jobs {
		s, ok := m.Lookup(job.sessionID)
		if !ok {
			m.opts.logger.Debugf("commit job for removed session %s dropped", job.sessionID)
			continue
		}
		m.commitSession(job.ctx, s)
	}
}

func (m *Manager) commitSession(ctx context.Context, s *Session) {
	defer func() {
		if r := recover(); r != nil {
			m.opts.logger.Errorf("panic in commit for session %s: %v", s.ID(), r)
		}
	}()
	if err := m.committer.Commit(ctx, s.ID(), s.Content(), s.Artifacts()); err != nil {
		m.opts.logger.Errorf("commit session %s: %v", s.ID(), err)
	}
}

// Close stops the background workers after draining their queues and
// releases the commit pool. The manager accepts no work afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	for _, ch := range m.jobChans {
		close(ch)
	}
	m.workerWG.Wait()
	m.pool.Release()
}

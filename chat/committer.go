//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package chat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flowstack-ai/artifactstream-go/artifact"
	"github.com/flowstack-ai/artifactstream-go/log"
	"github.com/flowstack-ai/artifactstream-go/telemetry/metric"
)

// titleMessageThreshold is the stored-message count up to which a commit
// still derives the chat title from the first user message.
const titleMessageThreshold = 2

// CommitterOption configures a Committer.
type CommitterOption func(*Committer)

// WithCommitterLogger sets the logger used for non-fatal commit problems.
func WithCommitterLogger(l log.Logger) CommitterOption {
	return func(c *Committer) {
		c.logger = l
	}
}

// WithClock overrides the time source. Tests use it for deterministic
// metadata timestamps.
func WithClock(now func() time.Time) CommitterOption {
	return func(c *Committer) {
		c.now = now
	}
}

// Committer persists a finished generation exactly once. It is safe to
// invoke the same commit repeatedly: messages are filtered against the
// stored ID set before writing, and aggregate metadata is recomputed from
// the store rather than from memory.
type Committer struct {
	svc    Service
	logger log.Logger
	now    func() time.Time
}

// NewCommitter creates a committer over the given storage backend.
func NewCommitter(svc Service, opt ...CommitterOption) *Committer {
	c := &Committer{svc: svc, logger: log.Default, now: time.Now}
	for _, o := range opt {
		o(c)
	}
	return c
}

// Commit writes the message batch for a chat. Messages whose ID is already
// stored are silently skipped; writing zero new messages is a valid
// outcome. Metadata update and title derivation failures are logged, never
// propagated, so they cannot fail the message write.
func (c *Committer) Commit(ctx context.Context, chatID, userID string, messages []Message) error {
	if chatID == "" {
		return ErrInvalidChatID
	}
	start := c.now()
	defer func() {
		metric.CommitDuration.Record(ctx, c.now().Sub(start).Seconds())
	}()

	if _, err := c.svc.EnsureChat(ctx, chatID, userID); err != nil {
		return fmt.Errorf("ensure chat %s: %w", chatID, err)
	}

	stored, err := c.svc.StoredMessageIDs(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load stored message ids for chat %s: %w", chatID, err)
	}

	fresh := make([]Message, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	var skipped int64
	for _, m := range messages {
		if _, ok := stored[m.ID]; ok {
			skipped++
			continue
		}
		if _, ok := seen[m.ID]; ok {
			skipped++
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if skipped > 0 {
		metric.DedupSkips.Add(ctx, skipped)
	}

	if len(fresh) > 0 {
		if err := c.svc.SaveMessages(ctx, chatID, fresh); err != nil {
			return fmt.Errorf("save messages for chat %s: %w", chatID, err)
		}
		metric.MessagesStored.Add(ctx, int64(len(fresh)))
	}

	// Aggregate metadata always comes from the authoritative stored count.
	count, err := c.svc.MessageCount(ctx, chatID)
	if err != nil {
		c.logger.Errorf("recount messages for chat %s: %v", chatID, err)
		return nil
	}
	if err := c.svc.UpdateChatMetadata(ctx, chatID, count, c.lastMessageAt(fresh)); err != nil {
		c.logger.Errorf("update metadata for chat %s: %v", chatID, err)
		return nil
	}

	if count <= titleMessageThreshold {
		c.deriveAndStoreTitle(ctx, chatID)
	}
	return nil
}

// lastMessageAt picks the newest creation time of the batch, falling back
// to the commit time when the batch was fully deduplicated.
func (c *Committer) lastMessageAt(fresh []Message) time.Time {
	last := time.Time{}
	for _, m := range fresh {
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	if last.IsZero() {
		last = c.now()
	}
	return last
}

// deriveAndStoreTitle derives a title from the first stored user message.
// Failures are logged only; title generation never blocks a commit.
func (c *Committer) deriveAndStoreTitle(ctx context.Context, chatID string) {
	msgs, err := c.svc.Messages(ctx, chatID)
	if err != nil {
		c.logger.Warnf("load messages for title of chat %s: %v", chatID, err)
		return
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		if err := c.svc.UpdateChatTitle(ctx, chatID, DeriveTitle(m.Content)); err != nil {
			c.logger.Warnf("update title for chat %s: %v", chatID, err)
		}
		return
	}
}

// SessionCommitter adapts the committer to the extraction engine: the
// session's accumulated prose becomes one assistant message referencing
// the session's artifacts. The message ID is derived deterministically
// from the session ID so replayed completion events stay idempotent.
//
// resolveChat maps a stream session ID to its chat and user; a nil
// resolver uses the session ID as the chat ID.
func (c *Committer) SessionCommitter(resolveChat func(sessionID string) (chatID, userID string)) func(ctx context.Context, sessionID, content string, artifacts []*artifact.Artifact) error {
	return func(ctx context.Context, sessionID, content string, artifacts []*artifact.Artifact) error {
		chatID, userID := sessionID, ""
		if resolveChat != nil {
			chatID, userID = resolveChat(sessionID)
		}
		msg := Message{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("message:"+sessionID)).String(),
			Role:      RoleAssistant,
			Content:   content,
			CreatedAt: c.now(),
		}
		for _, a := range artifacts {
			if a.Status == artifact.StatusCompleted {
				msg.ArtifactIDs = append(msg.ArtifactIDs, a.ID)
			}
		}
		return c.Commit(ctx, chatID, userID, []Message{msg})
	}
}

//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package chat defines the durable conversation model and the persistence
// contract its storage backends implement. Writes are idempotent by message
// identifier so replayed commits never duplicate data.
package chat

import (
	"context"
	"errors"
	"time"
)

// ErrChatNotFound is returned when an operation references a chat that has
// not been created.
var ErrChatNotFound = errors.New("chat: chat not found")

// ErrInvalidChatID is returned when a chat identifier is empty.
var ErrInvalidChatID = errors.New("chat: invalid chat id")

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one durable conversation entry. Messages reference artifacts
// by identifier only; artifact ownership stays with the extraction engine.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	ArtifactIDs []string  `json:"artifactIds,omitempty"`
}

// Chat is the aggregate metadata of one conversation. MessageCount is
// always recomputed from the stored messages, never trusted from memory.
type Chat struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Title         string    `json:"title"`
	MessageCount  int       `json:"messageCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Service is the storage contract for chats and messages. SaveMessages
// must use insert-or-ignore semantics keyed by message ID: saving a batch
// twice stores each message exactly once, and saving zero messages is a
// valid no-op.
type Service interface {
	// EnsureChat returns the chat with the given ID, creating it for the
	// user when it does not exist yet.
	EnsureChat(ctx context.Context, chatID, userID string) (*Chat, error)
	// SaveMessages appends messages to a chat, silently skipping IDs that
	// are already stored.
	SaveMessages(ctx context.Context, chatID string, messages []Message) error
	// StoredMessageIDs returns the set of message IDs persisted for a chat.
	StoredMessageIDs(ctx context.Context, chatID string) (map[string]struct{}, error)
	// MessageCount returns the authoritative number of stored messages.
	MessageCount(ctx context.Context, chatID string) (int, error)
	// Messages returns the stored messages in creation order.
	Messages(ctx context.Context, chatID string) ([]Message, error)
	// UpdateChatMetadata persists the recomputed aggregate fields.
	UpdateChatMetadata(ctx context.Context, chatID string, messageCount int, lastMessageAt time.Time) error
	// UpdateChatTitle persists a derived title.
	UpdateChatTitle(ctx context.Context, chatID, title string) error
	// Close releases the backend's resources.
	Close() error
}

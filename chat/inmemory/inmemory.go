//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides the in-memory chat storage backend. It is the
// reference implementation of the chat.Service contract and the default
// for tests and single-process deployments.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowstack-ai/artifactstream-go/chat"
)

// Service stores chats and messages in process memory.
type Service struct {
	mu       sync.RWMutex
	chats    map[string]*chat.Chat
	messages map[string]map[string]chat.Message // chatID -> messageID -> message
}

var _ chat.Service = (*Service)(nil)

// NewService creates an empty in-memory backend.
func NewService() *Service {
	return &Service{
		chats:    make(map[string]*chat.Chat),
		messages: make(map[string]map[string]chat.Message),
	}
}

// EnsureChat returns the chat, creating it when missing.
func (s *Service) EnsureChat(_ context.Context, chatID, userID string) (*chat.Chat, error) {
	if chatID == "" {
		return nil, chat.ErrInvalidChatID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chats[chatID]; ok {
		clone := *c
		return &clone, nil
	}
	c := &chat.Chat{
		ID:        chatID,
		UserID:    userID,
		Title:     chat.DefaultTitle,
		UpdatedAt: time.Now(),
	}
	s.chats[chatID] = c
	s.messages[chatID] = make(map[string]chat.Message)
	clone := *c
	return &clone, nil
}

// SaveMessages inserts messages, ignoring IDs that already exist.
func (s *Service) SaveMessages(_ context.Context, chatID string, messages []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.messages[chatID]
	if !ok {
		return chat.ErrChatNotFound
	}
	for _, m := range messages {
		if _, exists := store[m.ID]; exists {
			continue
		}
		store[m.ID] = m
	}
	return nil
}

// StoredMessageIDs returns the set of persisted message IDs.
func (s *Service) StoredMessageIDs(_ context.Context, chatID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	store, ok := s.messages[chatID]
	if !ok {
		return map[string]struct{}{}, nil
	}
	ids := make(map[string]struct{}, len(store))
	for id := range store {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// MessageCount returns the number of stored messages.
func (s *Service) MessageCount(_ context.Context, chatID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[chatID]), nil
}

// Messages returns the stored messages in creation order.
func (s *Service) Messages(_ context.Context, chatID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	store, ok := s.messages[chatID]
	if !ok {
		return nil, chat.ErrChatNotFound
	}
	out := make([]chat.Message, 0, len(store))
	for _, m := range store {
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateChatMetadata persists recomputed aggregate fields.
func (s *Service) UpdateChatMetadata(_ context.Context, chatID string, messageCount int, lastMessageAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return chat.ErrChatNotFound
	}
	c.MessageCount = messageCount
	c.LastMessageAt = lastMessageAt
	c.UpdatedAt = time.Now()
	return nil
}

// UpdateChatTitle persists a derived title.
func (s *Service) UpdateChatTitle(_ context.Context, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return chat.ErrChatNotFound
	}
	c.Title = title
	c.UpdatedAt = time.Now()
	return nil
}

// Chat returns a snapshot of the chat's metadata.
func (s *Service) Chat(_ context.Context, chatID string) (*chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return nil, chat.ErrChatNotFound
	}
	clone := *c
	return &clone, nil
}

// Close implements chat.Service. The in-memory backend holds no external
// resources.
func (s *Service) Close() error { return nil }

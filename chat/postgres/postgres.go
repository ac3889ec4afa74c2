//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package postgres provides the postgres chat storage backend. Message
// writes rely on INSERT ... ON CONFLICT DO NOTHING so replayed commits are
// idempotent at the database rather than in application code.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	// Registers the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/flowstack-ai/artifactstream-go/chat"
)

var _ chat.Service = (*Service)(nil)

const (
	defaultHost     = "localhost"
	defaultPort     = 5432
	defaultDatabase = "artifactstream"
	defaultSSLMode  = "disable"

	tableNameChats    = "chats"
	tableNameMessages = "chat_messages"
)

const (
	sqlCreateChatsTable = `
		CREATE TABLE IF NOT EXISTS {{TABLE_NAME}} (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			last_message_at TIMESTAMP DEFAULT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	sqlCreateMessagesTable = `
		CREATE TABLE IF NOT EXISTS {{TABLE_NAME}} (
			id VARCHAR(255) NOT NULL,
			chat_id VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			artifact_ids JSONB DEFAULT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (chat_id, id)
		)`

	sqlCreateMessagesLookupIndex = `
		CREATE INDEX IF NOT EXISTS {{INDEX_NAME}}
		ON {{TABLE_NAME}}(chat_id, created_at)`
)

var tablePrefixPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ServiceOpts is the options for the postgres chat service.
type ServiceOpts struct {
	host        string
	port        int
	user        string
	password    string
	database    string
	sslMode     string
	tablePrefix string
	db          *sql.DB
}

// ServiceOpt is the option func for the postgres chat service.
type ServiceOpt func(*ServiceOpts)

// WithHost sets the PostgreSQL host.
func WithHost(host string) ServiceOpt {
	return func(o *ServiceOpts) {
		o.host = host
	}
}

// WithPort sets the PostgreSQL port.
func WithPort(port int) ServiceOpt {
	return func(o *ServiceOpts) {
		o.port = port
	}
}

// WithUser sets the database user.
func WithUser(user string) ServiceOpt {
	return func(o *ServiceOpts) {
		o.user = user
	}
}

// WithPassword sets the database password.
func WithPassword(password string) ServiceOpt {
	return func(o *ServiceOpts) {
		o.password = password
	}
}

// WithDatabase sets the database name.
func WithDatabase(database string) ServiceOpt {
	return func(o *ServiceOpts) {
		o.database = database
	}
}

// WithSSLMode sets the SSL mode.
func WithSSLMode(sslMode string) ServiceOpt {
	return func(o *ServiceOpts) {
		o.sslMode = sslMode
	}
}

// WithTablePrefix sets the table name prefix. An underscore is appended
// when missing; only alphanumeric characters and underscore are allowed.
func WithTablePrefix(prefix string) ServiceOpt {
	return func(o *ServiceOpts) {
		if prefix == "" {
			o.tablePrefix = ""
			return
		}
		if !tablePrefixPattern.MatchString(prefix) {
			panic(fmt.Sprintf("invalid table prefix: %s", prefix))
		}
		if !strings.HasSuffix(prefix, "_") {
			prefix += "_"
		}
		o.tablePrefix = prefix
	}
}

// WithDB uses an existing database handle instead of opening one. The
// caller keeps ownership of schema initialization when injecting a handle.
func WithDB(db *sql.DB) ServiceOpt {
	return func(o *ServiceOpts) {
		o.db = db
	}
}

// Service is the postgres chat service.
type Service struct {
	opts ServiceOpts
	db   *sql.DB
}

// buildConnString builds a PostgreSQL connection string from options.
func buildConnString(opts ServiceOpts) string {
	host := opts.host
	if host == "" {
		host = defaultHost
	}
	port := opts.port
	if port == 0 {
		port = defaultPort
	}
	database := opts.database
	if database == "" {
		database = defaultDatabase
	}
	sslMode := opts.sslMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	connString := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, database, sslMode)
	if opts.user != "" {
		connString += fmt.Sprintf(" user=%s", opts.user)
	}
	if opts.password != "" {
		connString += fmt.Sprintf(" password=%s", opts.password)
	}
	return connString
}

// NewService creates a new postgres chat service and initializes the
// schema unless a database handle was injected.
func NewService(ctx context.Context, options ...ServiceOpt) (*Service, error) {
	opts := ServiceOpts{}
	for _, option := range options {
		option(&opts)
	}

	s := &Service{opts: opts, db: opts.db}
	if s.db == nil {
		db, err := sql.Open("pgx", buildConnString(opts))
		if err != nil {
			return nil, fmt.Errorf("open postgres connection failed: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres failed: %w", err)
		}
		s.db = db
		if err := s.initDB(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) chatsTable() string    { return s.opts.tablePrefix + tableNameChats }
func (s *Service) messagesTable() string { return s.opts.tablePrefix + tableNameMessages }

// initDB creates the tables and indexes.
func (s *Service) initDB(ctx context.Context) error {
	stmts := []string{
		strings.ReplaceAll(sqlCreateChatsTable, "{{TABLE_NAME}}", s.chatsTable()),
		strings.ReplaceAll(sqlCreateMessagesTable, "{{TABLE_NAME}}", s.messagesTable()),
		strings.ReplaceAll(
			strings.ReplaceAll(sqlCreateMessagesLookupIndex, "{{TABLE_NAME}}", s.messagesTable()),
			"{{INDEX_NAME}}", fmt.Sprintf("idx_%s_lookup", s.messagesTable()),
		),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize schema failed: %w", err)
		}
	}
	return nil
}

// EnsureChat returns the chat, creating it when missing.
func (s *Service) EnsureChat(ctx context.Context, chatID, userID string) (*chat.Chat, error) {
	if chatID == "" {
		return nil, chat.ErrInvalidChatID
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, user_id, title) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`, s.chatsTable()),
		chatID, userID, chat.DefaultTitle)
	if err != nil {
		return nil, fmt.Errorf("ensure chat failed: %w", err)
	}
	return s.Chat(ctx, chatID)
}

// SaveMessages inserts messages, silently skipping stored IDs.
func (s *Service) SaveMessages(ctx context.Context, chatID string, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save messages failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := fmt.Sprintf(`INSERT INTO %s (id, chat_id, role, content, artifact_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (chat_id, id) DO NOTHING`, s.messagesTable())
	for _, m := range messages {
		var artifactIDs any
		if len(m.ArtifactIDs) > 0 {
			data, err := json.Marshal(m.ArtifactIDs)
			if err != nil {
				return fmt.Errorf("marshal artifact ids for message %s failed: %w", m.ID, err)
			}
			artifactIDs = data
		}
		if _, err := tx.ExecContext(ctx, stmt, m.ID, chatID, string(m.Role), m.Content, artifactIDs, m.CreatedAt); err != nil {
			return fmt.Errorf("save message %s failed: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save messages failed: %w", err)
	}
	return nil
}

// StoredMessageIDs returns the set of persisted message IDs.
func (s *Service) StoredMessageIDs(ctx context.Context, chatID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE chat_id = $1`, s.messagesTable()), chatID)
	if err != nil {
		return nil, fmt.Errorf("load message ids failed: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id failed: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message ids failed: %w", err)
	}
	return ids, nil
}

// MessageCount returns the authoritative number of stored messages.
func (s *Service) MessageCount(ctx context.Context, chatID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE chat_id = $1`, s.messagesTable()), chatID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return count, nil
}

// Messages returns the stored messages in creation order.
func (s *Service) Messages(ctx context.Context, chatID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, role, content, artifact_ids, created_at FROM %s
		 WHERE chat_id = $1 ORDER BY created_at, id`, s.messagesTable()), chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages failed: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var role string
		var artifactIDs []byte
		if err := rows.Scan(&m.ID, &role, &m.Content, &artifactIDs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message failed: %w", err)
		}
		m.Role = chat.Role(role)
		if len(artifactIDs) > 0 {
			if err := json.Unmarshal(artifactIDs, &m.ArtifactIDs); err != nil {
				return nil, fmt.Errorf("unmarshal artifact ids failed: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages failed: %w", err)
	}
	return out, nil
}

// UpdateChatMetadata persists recomputed aggregate fields.
func (s *Service) UpdateChatMetadata(ctx context.Context, chatID string, messageCount int, lastMessageAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET message_count = $2, last_message_at = $3, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1`, s.chatsTable()),
		chatID, messageCount, lastMessageAt)
	if err != nil {
		return fmt.Errorf("update chat metadata failed: %w", err)
	}
	return requireRow(res)
}

// UpdateChatTitle persists a derived title.
func (s *Service) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET title = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`, s.chatsTable()),
		chatID, title)
	if err != nil {
		return fmt.Errorf("update chat title failed: %w", err)
	}
	return requireRow(res)
}

// Chat returns a snapshot of the chat's metadata.
func (s *Service) Chat(ctx context.Context, chatID string) (*chat.Chat, error) {
	var c chat.Chat
	var lastMessageAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, user_id, title, message_count, last_message_at, updated_at
		 FROM %s WHERE id = $1`, s.chatsTable()), chatID).
		Scan(&c.ID, &c.UserID, &c.Title, &c.MessageCount, &lastMessageAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chat failed: %w", err)
	}
	if lastMessageAt.Valid {
		c.LastMessageAt = lastMessageAt.Time
	}
	return &c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected failed: %w", err)
	}
	if n == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Service) Close() error {
	return s.db.Close()
}

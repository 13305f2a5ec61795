package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/legalai/legal-assistant/internal/domain"
	"github.com/legalai/legal-assistant/internal/shared"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	sqliteWriteAttempts  = 3
	sqliteWriteBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLite opens (creating if needed) the database at dbPath and applies the schema.
func NewSQLite(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys are per-connection in SQLite.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) write(ctx context.Context, fn func() error) error {
	return shared.RetryOnConflict(ctx, sqliteWriteAttempts, sqliteWriteBaseDelay, fn)
}

// GetUser retrieves a user by their ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, last_seen_at FROM users WHERE id = ?`, userID)

	var user domain.User
	var createdAt, lastSeen int64
	err := row.Scan(&user.ID, &createdAt, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = fromNanos(createdAt)
	user.LastSeenAt = fromNanos(lastSeen)
	return &user, nil
}

// CreateUser inserts a user unless one with the same ID already exists.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, created_at, last_seen_at)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

	err := s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.ID, user.CreatedAt.UnixNano(), user.LastSeenAt.UnixNano())
		return err
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	var rows int64
	err := s.write(ctx, func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE users SET last_seen_at = ? WHERE id = ?`, lastSeen.UnixNano(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if rows == 0 {
		s.logger.Warn("UpdateLastSeen affected 0 rows", zap.String("user_id", userID))
	}
	return nil
}

// CreateConversation inserts a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	query := `
	INSERT INTO conversations (id, user_id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	err := s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			conv.ID, conv.UserID, nullableString(conv.Title),
			conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano())
		return err
	})
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// GetOwnedConversation returns the conversation if userID owns it.
func (s *SQLiteStore) GetOwnedConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE id = ? AND user_id = ?`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, conversationID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return conv, nil
}

// UpdateConversationTitle sets the title of an owned conversation.
func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, conversationID, userID, title string, updatedAt time.Time) error {
	query := `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?`

	var rows int64
	err := s.write(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query, title, updatedAt.UnixNano(), conversationID, userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversationsByUser returns the user's conversations, newest activity first.
func (s *SQLiteStore) ListConversationsByUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE user_id = ?
		ORDER BY updated_at DESC, created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close conversation rows", zap.Error(closeErr))
		}
	}()

	convs := make([]domain.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

// AppendMessage inserts the message and advances the conversation's updated_at
// in a single transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	err := s.write(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		result, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt.UnixNano())
		if err != nil {
			return err
		}
		seq, err := result.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
			msg.CreatedAt.UnixNano(), msg.ConversationID); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		msg.Seq = seq
		return nil
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns the conversation's messages in order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	query := `
		SELECT seq, id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close message rows", zap.Error(closeErr))
		}
	}()

	msgs := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = fromNanos(createdAt)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var title sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&conv.ID, &conv.UserID, &title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if title.Valid {
		t := title.String
		conv.Title = &t
	}
	conv.CreatedAt = fromNanos(createdAt)
	conv.UpdatedAt = fromNanos(updatedAt)
	return &conv, nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

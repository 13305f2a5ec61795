package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/legalai/legal-assistant/internal/domain"
	"go.uber.org/zap"
)

// Compile-time check to ensure PostgresStore implements Repository.
var _ Repository = (*PostgresStore)(nil)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, seq)`,
}

// PostgresStore implements Repository on a pgx connection pool.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects to databaseURL and applies the schema.
func NewPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: pool, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRow(ctx,
		`SELECT id, created_at, last_seen_at FROM users WHERE id = $1`, userID,
	).Scan(&user.ID, &user.CreatedAt, &user.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.LastSeenAt = user.LastSeenAt.UTC()
	return &user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, created_at, last_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		user.ID, user.CreatedAt, user.LastSeenAt)
	if err != nil {
		s.logPgError("CreateUser", err)
		return fmt.Errorf("database error creating user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET last_seen_at = $1 WHERE id = $2`, lastSeen, userID)
	if err != nil {
		return fmt.Errorf("database error updating last_seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("UpdateLastSeen affected 0 rows", zap.String("user_id", userID))
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		s.logPgError("CreateConversation", err)
		return fmt.Errorf("database error creating conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOwnedConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE id = $1 AND user_id = $2`,
		conversationID, userID)

	conv, err := scanPgConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database error fetching conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) UpdateConversationTitle(ctx context.Context, conversationID, userID, title string, updatedAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE conversations SET title = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4`,
		title, updatedAt, conversationID, userID)
	if err != nil {
		return fmt.Errorf("database error updating conversation title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListConversationsByUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE user_id = $1
		ORDER BY updated_at DESC, created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("database error listing conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]domain.Conversation, 0)
	for rows.Next() {
		conv, err := scanPgConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("database error scanning conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating conversations: %w", err)
	}
	return convs, nil
}

// AppendMessage inserts the message and touches the parent conversation in one transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	var seq int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING seq`,
			msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt,
		).Scan(&seq); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE conversations SET updated_at = GREATEST(updated_at, $1)
			WHERE id = $2`,
			msg.CreatedAt, msg.ConversationID)
		return err
	})
	if err != nil {
		s.logPgError("AppendMessage", err)
		return fmt.Errorf("database error appending message: %w", err)
	}
	msg.Seq = seq
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT seq, id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("database error listing messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		var role string
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("database error scanning message: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = msg.CreatedAt.UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating messages: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) logPgError(op string, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		s.logger.Error("postgres error",
			zap.String("op", op),
			zap.String("code", pgErr.Code),
			zap.String("message", pgErr.Message),
			zap.String("detail", pgErr.Detail))
	}
}

func scanPgConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return &conv, nil
}

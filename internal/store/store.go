// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/legalai/legal-assistant/internal/domain"
)

// ErrNotFound is returned by mutations whose target row does not exist
// (or is not owned by the supplied user).
var ErrNotFound = errors.New("record not found")

// Repository persists users, conversations and their append-only message log.
//
// Lookups report "absent" as a nil result with a nil error. Implementations must be
// safe for concurrent use.
type Repository interface {
	// GetUser retrieves a user by identifier.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// CreateUser inserts the user if no row with the same ID exists.
	// An existing row is left untouched.
	CreateUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateConversation inserts a new conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetOwnedConversation returns the conversation only if it exists and is owned
	// by userID.
	GetOwnedConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)

	// UpdateConversationTitle sets the title and updated_at of an owned conversation.
	UpdateConversationTitle(ctx context.Context, conversationID, userID, title string, updatedAt time.Time) error

	// ListConversationsByUser returns the user's conversations, most recently
	// updated first. It never returns a nil slice on success.
	ListConversationsByUser(ctx context.Context, userID string) ([]domain.Conversation, error)

	// AppendMessage inserts a message, assigns msg.Seq, and advances the parent
	// conversation's updated_at to msg.CreatedAt.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns a conversation's messages ordered by created_at, then
	// insertion order. It never returns a nil slice on success.
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}

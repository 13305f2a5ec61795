package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/legalai/legal-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base is millisecond-aligned so every backend round-trips it exactly.
var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// runRepositoryContract exercises behaviour every Repository must share.
// IDs are random so the suite can run against a shared database.
func runRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	seedUser := func(t *testing.T) string {
		t.Helper()
		id := "user-" + uuid.NewString()
		require.NoError(t, repo.CreateUser(ctx, &domain.User{ID: id, CreatedAt: base, LastSeenAt: base}))
		return id
	}
	seedConversation := func(t *testing.T, userID string, at time.Time, title *string) *domain.Conversation {
		t.Helper()
		conv := &domain.Conversation{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: at, UpdatedAt: at}
		require.NoError(t, repo.CreateConversation(ctx, conv))
		return conv
	}

	t.Run("GetUserMissing", func(t *testing.T) {
		user, err := repo.GetUser(ctx, "missing-"+uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("CreateUserIsIdempotent", func(t *testing.T) {
		id := seedUser(t)
		later := base.Add(time.Hour)
		require.NoError(t, repo.CreateUser(ctx, &domain.User{ID: id, CreatedAt: later, LastSeenAt: later}))

		user, err := repo.GetUser(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, id, user.ID)
		assert.True(t, user.CreatedAt.Equal(base), "second insert must not overwrite, got %v", user.CreatedAt)
	})

	t.Run("UpdateLastSeen", func(t *testing.T) {
		id := seedUser(t)
		seen := base.Add(2 * time.Hour)
		require.NoError(t, repo.UpdateLastSeen(ctx, id, seen))

		user, err := repo.GetUser(ctx, id)
		require.NoError(t, err)
		assert.True(t, user.LastSeenAt.Equal(seen))
	})

	t.Run("OwnershipIsolation", func(t *testing.T) {
		owner := seedUser(t)
		other := seedUser(t)
		conv := seedConversation(t, owner, base, strPtr("Tenancy"))

		got, err := repo.GetOwnedConversation(ctx, conv.ID, owner)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, conv.ID, got.ID)
		require.NotNil(t, got.Title)
		assert.Equal(t, "Tenancy", *got.Title)

		foreign, err := repo.GetOwnedConversation(ctx, conv.ID, other)
		require.NoError(t, err)
		assert.Nil(t, foreign)

		absent, err := repo.GetOwnedConversation(ctx, uuid.NewString(), owner)
		require.NoError(t, err)
		assert.Nil(t, absent)

		err = repo.UpdateConversationTitle(ctx, conv.ID, other, "Hijacked", base.Add(time.Minute))
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("NilTitleRoundTrips", func(t *testing.T) {
		owner := seedUser(t)
		conv := seedConversation(t, owner, base, nil)

		got, err := repo.GetOwnedConversation(ctx, conv.ID, owner)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Nil(t, got.Title)
	})

	t.Run("UpdateConversationTitle", func(t *testing.T) {
		owner := seedUser(t)
		conv := seedConversation(t, owner, base, nil)
		at := base.Add(time.Minute)

		require.NoError(t, repo.UpdateConversationTitle(ctx, conv.ID, owner, "Employment", at))

		got, err := repo.GetOwnedConversation(ctx, conv.ID, owner)
		require.NoError(t, err)
		require.NotNil(t, got.Title)
		assert.Equal(t, "Employment", *got.Title)
		assert.True(t, got.UpdatedAt.Equal(at))
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("ListConversationsByUserOrder", func(t *testing.T) {
		owner := seedUser(t)
		older := seedConversation(t, owner, base.Add(-time.Hour), nil)
		newer := seedConversation(t, owner, base, nil)
		seedConversation(t, seedUser(t), base.Add(time.Hour), nil)

		convs, err := repo.ListConversationsByUser(ctx, owner)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, newer.ID, convs[0].ID)
		assert.Equal(t, older.ID, convs[1].ID)

		// A new message moves the older conversation to the front.
		msg := &domain.Message{
			ID: uuid.NewString(), ConversationID: older.ID, Role: domain.RoleUser,
			Content: "bump", CreatedAt: base.Add(time.Minute),
		}
		require.NoError(t, repo.AppendMessage(ctx, msg))

		convs, err = repo.ListConversationsByUser(ctx, owner)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, older.ID, convs[0].ID)
		assert.True(t, convs[0].UpdatedAt.Equal(msg.CreatedAt))
	})

	t.Run("ListConversationsUnknownUser", func(t *testing.T) {
		convs, err := repo.ListConversationsByUser(ctx, "nobody-"+uuid.NewString())
		require.NoError(t, err)
		assert.NotNil(t, convs)
		assert.Empty(t, convs)
	})

	t.Run("AppendMessageOrdering", func(t *testing.T) {
		owner := seedUser(t)
		conv := seedConversation(t, owner, base, nil)

		// Same timestamp for all three: insertion order must win.
		contents := []string{"first", "second", "third"}
		roles := []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleUser}
		var lastSeq int64
		for i, content := range contents {
			msg := &domain.Message{
				ID: uuid.NewString(), ConversationID: conv.ID, Role: roles[i],
				Content: content, CreatedAt: base.Add(time.Second),
			}
			require.NoError(t, repo.AppendMessage(ctx, msg))
			assert.Greater(t, msg.Seq, lastSeq)
			lastSeq = msg.Seq
		}

		msgs, err := repo.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		for i, msg := range msgs {
			assert.Equal(t, contents[i], msg.Content)
			assert.Equal(t, roles[i], msg.Role)
			assert.Equal(t, conv.ID, msg.ConversationID)
		}

		got, err := repo.GetOwnedConversation(ctx, conv.ID, owner)
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.Equal(base.Add(time.Second)))
	})

	t.Run("AppendMessageNeverMovesUpdatedAtBackwards", func(t *testing.T) {
		owner := seedUser(t)
		conv := seedConversation(t, owner, base, nil)
		require.NoError(t, repo.UpdateConversationTitle(ctx, conv.ID, owner, "Later", base.Add(time.Hour)))

		require.NoError(t, repo.AppendMessage(ctx, &domain.Message{
			ID: uuid.NewString(), ConversationID: conv.ID, Role: domain.RoleUser,
			Content: "late arrival", CreatedAt: base.Add(time.Minute),
		}))

		got, err := repo.GetOwnedConversation(ctx, conv.ID, owner)
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))
	})

	t.Run("ListMessagesEmpty", func(t *testing.T) {
		msgs, err := repo.ListMessages(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/legalai/legal-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRepositoryContract(t *testing.T) {
	runRepositoryContract(t, newTestSQLite(t))
}

func TestSQLiteCreatesDatabaseDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s, err := NewSQLite(filepath.Join(dir, "legal.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestSQLiteSchemaIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legal.db")

	first, err := NewSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.CreateUser(context.Background(), &domain.User{ID: "u1", CreatedAt: base, LastSeenAt: base}))
	require.NoError(t, first.Close())

	second, err := NewSQLite(path, nil)
	require.NoError(t, err)
	defer second.Close()

	user, err := second.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, user)
}

func TestSQLiteRejectsOrphanMessage(t *testing.T) {
	s := newTestSQLite(t)
	err := s.AppendMessage(context.Background(), &domain.Message{
		ID: uuid.NewString(), ConversationID: "missing", Role: domain.RoleUser,
		Content: "hello", CreatedAt: base,
	})
	assert.Error(t, err)
}

func TestSQLiteConcurrentAppends(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &domain.User{ID: "u1", CreatedAt: base, LastSeenAt: base}))
	conv := &domain.Conversation{ID: uuid.NewString(), UserID: "u1", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.CreateConversation(ctx, conv))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.AppendMessage(ctx, &domain.Message{
				ID: uuid.NewString(), ConversationID: conv.ID, Role: domain.RoleUser,
				Content: "concurrent", CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, writers)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

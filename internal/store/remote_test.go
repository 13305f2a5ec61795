package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepositoryContract(t *testing.T) {
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	s, err := NewPostgres(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runRepositoryContract(t, s)
}

func TestMongoRepositoryContract(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	dbName := "legal_assistant_test_" + uuid.NewString()[:8]
	s, err := NewMongo(context.Background(), uri, dbName, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})

	runRepositoryContract(t, s)
}

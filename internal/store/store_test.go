package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hliang-dev/splitbill/internal/db"
	"github.com/hliang-dev/splitbill/internal/domain"
	"github.com/hliang-dev/splitbill/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, database.Close())
	})
	return database
}

func createTestCommunity(t *testing.T, database *sql.DB, ownerID string) *domain.Community {
	t.Helper()
	community, err := store.NewCommunityStore(database).Create(context.Background(), "Test House", ownerID, "ABC123")
	require.NoError(t, err)
	return community
}

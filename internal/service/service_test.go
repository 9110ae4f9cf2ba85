package service_test

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hliang-dev/splitbill/internal/db"
	"github.com/hliang-dev/splitbill/internal/docintel"
	"github.com/hliang-dev/splitbill/internal/domain"
	"github.com/hliang-dev/splitbill/internal/store"
)

type testEnv struct {
	db          *sql.DB
	communities *store.CommunityStore
	bills       *store.BillStore
	items       *store.ItemStore
	community   *domain.Community
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, database.Close())
	})

	communities := store.NewCommunityStore(database)
	community, err := communities.Create(context.Background(), "Test House", "alice", "ABC123")
	require.NoError(t, err)

	return &testEnv{
		db:          database,
		communities: communities,
		bills:       store.NewBillStore(database),
		items:       store.NewItemStore(database),
		community:   community,
	}
}

// stubAnalyzer returns a canned result or error.
type stubAnalyzer struct {
	result *docintel.AnalyzeResult
	err    error
}

func (a *stubAnalyzer) AnalyzeReceipt(ctx context.Context, imageData []byte, mimeType string) (*docintel.AnalyzeResult, error) {
	return a.result, a.err
}

// memObjectStore holds objects in a map.
type memObjectStore struct {
	objects map[string][]byte
	mime    string
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}, mime: "image/jpeg"}
}

func (s *memObjectStore) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	path := prefix + "/object"
	s.objects[path] = data
	return path, nil
}

func (s *memObjectStore) Get(ctx context.Context, storagePath string) (io.ReadCloser, string, error) {
	data, ok := s.objects[storagePath]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), s.mime, nil
}

func (s *memObjectStore) Delete(ctx context.Context, storagePath string) error {
	delete(s.objects, storagePath)
	return nil
}

func strPtr(s string) *string { return &s }

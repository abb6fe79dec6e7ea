package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gepi-backend/lib/testutil"
	"gepi-backend/services/gepi/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var snapshot = []store.Record{
	{
		User:     "dupont.j",
		Password: "hunter2",
		Token:    "5b3f9a",
		Cookie:   "abcdef123456",
	},
	{
		User:     "martin.c",
		Password: "correcthorse",
		Token:    "9911aa",
		Cookie:   "",
	},
}

func roundtrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	records, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, records)

	err = s.Save(ctx, snapshot)
	require.NoError(t, err)

	records, err = s.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(snapshot, records); diff != "" {
		t.Fatalf("loaded snapshot mismatch (-want +got):\n%s", diff)
	}

	// a second save replaces rather than appends
	err = s.Save(ctx, snapshot[:1])
	require.NoError(t, err)

	records, err = s.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(snapshot[:1], records); diff != "" {
		t.Fatalf("replaced snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSqliteStore(t *testing.T) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "gepi-store-sqlite",
		DbSchema: store.Schema,
	})
	defer cleanup()

	roundtrip(t, store.NewSqlite(result.DB))
}

func TestFileStore(t *testing.T) {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name: "gepi-store-file",
	})
	defer cleanup()

	path := filepath.Join(t.TempDir(), "sessions.json")
	roundtrip(t, store.NewFile(path))
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	err := os.WriteFile(path, []byte("{not json"), 0600)
	require.NoError(t, err)

	_, err = store.NewFile(path).Load(context.Background())
	require.Error(t, err)
}

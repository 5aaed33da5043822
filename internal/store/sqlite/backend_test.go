package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/store"
	"carelink/backend/internal/store/sqlite"
)

type note struct {
	domain.Record
	Body string `json:"body"`
}

func openBackend(t *testing.T) *sqlite.Backend {
	t.Helper()
	b, err := sqlite.Open(filepath.Join(t.TempDir(), "nested", "carelink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackendLoadMissingCollection(t *testing.T) {
	b := openBackend(t)

	data, err := b.Load(context.Background(), "nothing")
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestBackendMutateNilResultSkipsWrite(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	require.NoError(t, b.Mutate(ctx, "notes", func(current []byte) ([]byte, error) {
		require.Nil(t, current)
		return nil, nil
	}))

	data, err := b.Load(ctx, "notes")
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestBackendCollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)
	notes := store.NewCollection[note, *note](b, "notes")

	created, err := notes.Create(ctx, note{Body: "bring gloves"})
	require.NoError(t, err)

	updated, ok, err := notes.Update(ctx, created.ID, store.Patch{"body": "bring spare gloves"})
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, updated.Version)

	reopened := store.NewCollection[note, *note](b, "notes")
	got, ok, err := reopened.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bring spare gloves", got.Body)

	require.NoError(t, b.Clear(ctx))
	n, err := notes.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBackendPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "carelink.db")

	b, err := sqlite.Open(path)
	require.NoError(t, err)
	notes := store.NewCollection[note, *note](b, "notes")
	created, err := notes.Create(ctx, note{Body: "keys under the mat"})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = sqlite.Open(path)
	require.NoError(t, err)
	defer b.Close()

	got, ok, err := store.NewCollection[note, *note](b, "notes").GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.Body, got.Body)
}

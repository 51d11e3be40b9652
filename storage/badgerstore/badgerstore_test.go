package badgerstore_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
	"github.com/wyrmfield/cypherdb/storage/badgerstore"
)

func open(t *testing.T) *badgerstore.Store {
	t.Helper()
	store, err := badgerstore.OpenInMemory(logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetNode(t *testing.T) {
	store := open(t)
	ctx := context.Background()

	n, err := store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	require.NotEmpty(t, n.ID)

	got, err := store.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alice", got.Properties["name"])
	assert.True(t, got.HasLabel("Person"))
}

func TestScanNodesByLabel(t *testing.T) {
	store := open(t)
	ctx := context.Background()

	_, err := store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	_, err = store.CreateNode(ctx, []string{"Movie"}, map[string]any{"title": "The Matrix"})
	require.NoError(t, err)

	it, err := store.ScanNodes(ctx, storage.ScanSpec{Labels: []string{"Person"}})
	require.NoError(t, err)

	var got []*graph.NodeRecord
	for {
		n, more, err := it.Next()
		require.NoError(t, err)
		if !more {
			break
		}
		got = append(got, n)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Properties["name"])
}

func TestDeleteNodeCascadesRelationships(t *testing.T) {
	store := open(t)
	ctx := context.Background()

	alice, err := store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	matrix, err := store.CreateNode(ctx, []string{"Movie"}, map[string]any{"title": "The Matrix"})
	require.NoError(t, err)
	rel, err := store.CreateRelationship(ctx, "ACTED_IN", alice.ID, matrix.ID, nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteNode(ctx, matrix.ID))

	gone, err := store.GetRelByID(ctx, rel.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestIndexLookup(t *testing.T) {
	store := open(t)
	ctx := context.Background()
	store.CreateIndex("Person", "name")

	_, err := store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	_, err = store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Bob"})
	require.NoError(t, err)

	it, err := store.IndexLookup(ctx, "Person", "name", "Alice")
	require.NoError(t, err)

	n, more, err := it.Next()
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, "Alice", n.Properties["name"])

	_, more, err = it.Next()
	require.NoError(t, err)
	assert.False(t, more)
}

func TestTransactionCommitIsVisible(t *testing.T) {
	store := open(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	creator := tx.(storage.NodeCreator)
	n, err := creator.CreateNode(ctx, []string{"Tag"}, map[string]any{"name": "x"})
	require.NoError(t, err)

	// The write is visible within the same transaction before commit.
	got, err := tx.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, tx.Commit(ctx))

	got, err = store.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	store := open(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	creator := tx.(storage.NodeCreator)
	n, err := creator.CreateNode(ctx, []string{"Tag"}, map[string]any{"name": "x"})
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(ctx))

	got, err := store.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

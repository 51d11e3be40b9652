package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
	"github.com/wyrmfield/cypherdb/storage/memstore"
)

func TestCreateAndGetNode(t *testing.T) {
	store := memstore.New()
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

func TestGetNodeByIDMissingReturnsNilNotError(t *testing.T) {
	store := memstore.New()
	got, err := store.GetNodeByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClonedRecordsAreIndependent(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	n, err := store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)

	n.Properties["name"] = "Mutated"
	n.Labels[0] = "Mutated"

	got, err := store.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Properties["name"])
	assert.Equal(t, "Person", got.Labels[0])
}

func TestScanNodesByLabel(t *testing.T) {
	store := memstore.New()
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
	store := memstore.New()
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

func TestDeleteNodeMissingReturnsErrNotFound(t *testing.T) {
	store := memstore.New()
	err := store.DeleteNode(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateNodePropertiesNullDeletes(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	n, err := store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice", "age": int64(30)})
	require.NoError(t, err)

	updated, err := store.UpdateNodeProperties(ctx, n.ID, map[string]any{"age": graph.Null})
	require.NoError(t, err)
	_, hasAge := updated.Properties["age"]
	assert.False(t, hasAge)
	assert.Equal(t, "Alice", updated.Properties["name"])
}

func TestUpdateNodeLabelsAddAndRemove(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	n, err := store.CreateNode(ctx, []string{"Person"}, nil)
	require.NoError(t, err)

	updated, err := store.UpdateNodeLabels(ctx, n.ID, []string{"Actor"}, []string{"Person"})
	require.NoError(t, err)
	assert.True(t, updated.HasLabel("Actor"))
	assert.False(t, updated.HasLabel("Person"))
}

func TestCreateRelationshipRequiresExistingEndpoints(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	n, err := store.CreateNode(ctx, []string{"Person"}, nil)
	require.NoError(t, err)

	_, err = store.CreateRelationship(ctx, "KNOWS", n.ID, "missing", nil)
	assert.ErrorIs(t, err, storage.ErrInvalidEdge)
}

func TestIndexLookup(t *testing.T) {
	store := memstore.New()
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

func TestListIndexesReflectsCreateIndex(t *testing.T) {
	store := memstore.New()
	store.CreateIndex("Person", "name")
	store.CreateIndex("Movie", "title")

	got, err := store.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestOutgoingAndIncomingRelationships(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	alice, err := store.CreateNode(ctx, []string{"Person"}, nil)
	require.NoError(t, err)
	bob, err := store.CreateNode(ctx, []string{"Person"}, nil)
	require.NoError(t, err)
	_, err = store.CreateRelationship(ctx, "KNOWS", alice.ID, bob.ID, nil)
	require.NoError(t, err)

	out, err := store.OutgoingRelationships(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "KNOWS", out[0].Type)

	in, err := store.IncomingRelationships(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, alice.ID, in[0].StartNode)
}

func TestTransactionOverlayIsVisibleBeforeCommit(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	creator := tx.(storage.NodeCreator)
	n, err := creator.CreateNode(ctx, []string{"Tag"}, map[string]any{"name": "x"})
	require.NoError(t, err)

	got, err := tx.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	fromParent, err := store.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Nil(t, fromParent, "writes inside an open tx must not leak to the parent store")

	require.NoError(t, tx.Commit(ctx))

	fromParent, err = store.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	assert.NotNil(t, fromParent)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	store := memstore.New()
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

func TestTransactionDeleteOverlayHidesParentNode(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	n, err := store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	deleter := tx.(storage.NodeDeleter)
	require.NoError(t, deleter.DeleteNode(ctx, n.ID))

	got, err := tx.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "a delete buffered in the tx overlay must hide the parent's record")

	require.NoError(t, tx.Commit(ctx))

	got, err = store.GetNodeByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

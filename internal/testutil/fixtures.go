// Package testutil provides the shared seed graph used by the engine
// package's tests.
package testutil

import (
	"context"
	"testing"

	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage/memstore"
)

// Seed is the populated store plus handles to every seeded record, so
// tests can assert against a record's store-assigned id without
// re-deriving it.
type Seed struct {
	Store *memstore.Store

	Alice, Bob, Carol    *graph.NodeRecord
	Matrix, JohnWick     *graph.NodeRecord
	Action               *graph.NodeRecord
	AliceActedInMatrix   *graph.RelRecord
	AliceActedInJohnWick *graph.RelRecord
	BobActedInJohnWick   *graph.RelRecord
	MatrixInGenreAction  *graph.RelRecord
}

// NewSeed populates a fresh in-memory store with the graph from spec.md
// §8: Alice/Bob/Carol (Person, Carol also Actor), The Matrix/John Wick
// (Movie), Action (Genre), three ACTED_IN edges and one IN_GENRE edge.
func NewSeed(t *testing.T) *Seed {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	must := func(n *graph.NodeRecord, err error) *graph.NodeRecord {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		return n
	}
	mustRel := func(r *graph.RelRecord, err error) *graph.RelRecord {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		return r
	}

	alice := must(store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"}))
	bob := must(store.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Bob"}))
	matrix := must(store.CreateNode(ctx, []string{"Movie"}, map[string]any{"title": "The Matrix", "released": int64(1999)}))
	johnWick := must(store.CreateNode(ctx, []string{"Movie"}, map[string]any{"title": "John Wick", "released": int64(2014)}))
	carol := must(store.CreateNode(ctx, []string{"Person", "Actor"}, map[string]any{"name": "Carol"}))
	action := must(store.CreateNode(ctx, []string{"Genre"}, map[string]any{"name": "Action"}))

	aliceMatrix := mustRel(store.CreateRelationship(ctx, "ACTED_IN", alice.ID, matrix.ID, map[string]any{"role": "Neo"}))
	aliceJohnWick := mustRel(store.CreateRelationship(ctx, "ACTED_IN", alice.ID, johnWick.ID, map[string]any{"role": "John"}))
	bobJohnWick := mustRel(store.CreateRelationship(ctx, "ACTED_IN", bob.ID, johnWick.ID, map[string]any{"role": "Buddy"}))
	matrixAction := mustRel(store.CreateRelationship(ctx, "IN_GENRE", matrix.ID, action.ID, nil))

	return &Seed{
		Store:                store,
		Alice:                alice,
		Bob:                  bob,
		Carol:                carol,
		Matrix:               matrix,
		JohnWick:             johnWick,
		Action:               action,
		AliceActedInMatrix:   aliceMatrix,
		AliceActedInJohnWick: aliceJohnWick,
		BobActedInJohnWick:   bobJohnWick,
		MatrixInGenreAction:  matrixAction,
	}
}

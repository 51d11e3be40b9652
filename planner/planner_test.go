package planner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wyrmfield/cypherdb/planner"
	"github.com/wyrmfield/cypherdb/storage/memstore"
)

func TestChooseUsesIndexOnLabeledEqualityMatch(t *testing.T) {
	store := memstore.New()
	store.CreateIndex("Person", "name")

	decision := planner.Choose(context.Background(), store, []string{"Person"}, map[string]any{"name": "Alice"})
	assert.True(t, decision.UseIndex)
	assert.Equal(t, "Person", decision.Label)
	assert.Equal(t, "name", decision.Property)
}

func TestChooseSkipsIndexWithNoLabels(t *testing.T) {
	store := memstore.New()
	store.CreateIndex("Person", "name")

	decision := planner.Choose(context.Background(), store, nil, map[string]any{"name": "Alice"})
	assert.False(t, decision.UseIndex, "spec §4.4.1 step 1 only applies when labels is non-empty")
}

func TestChooseSkipsIndexOnLabelMismatch(t *testing.T) {
	store := memstore.New()
	store.CreateIndex("Person", "name")

	decision := planner.Choose(context.Background(), store, []string{"Movie"}, map[string]any{"name": "Alice"})
	assert.False(t, decision.UseIndex)
}

func TestChooseSkipsWithoutSingleEqualityFilter(t *testing.T) {
	store := memstore.New()
	store.CreateIndex("Person", "name")

	decision := planner.Choose(context.Background(), store, []string{"Person"}, map[string]any{"name": "Alice", "age": int64(30)})
	assert.False(t, decision.UseIndex)
}

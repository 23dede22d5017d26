// Package persistencetest checks persistence.Store implementations against
// a shared contract.
package persistencetest

import (
	"context"
	"testing"

	"github.com/anggasct/strata"
	"github.com/anggasct/strata/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Machine builds outer{a, b} where outer is a region holding "mode"
func Machine(t *testing.T, id string) *strata.Machine {
	t.Helper()
	g, err := strata.NewGraphBuilder().
		State("outer", "").
		State("a", "outer").
		State("b", "outer").
		Region("outer").
		Build()
	require.NoError(t, err)

	r := strata.NewTransitionRegistry(g)
	require.NoError(t, r.Register("a", "b"))

	m, err := strata.NewMachine(g, r, nil, "",
		strata.WithID(id),
		strata.WithRegionData("outer", map[string]any{"mode": "auto"}),
	)
	require.NoError(t, err)
	return m
}

// RunContract runs the store contract against store
func RunContract(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	machineID := "contract-machine"

	t.Run("Save and Load", func(t *testing.T) {
		m := Machine(t, machineID)
		require.NoError(t, m.Trigger("go"))
		snap := m.Snapshot()

		require.NoError(t, store.Save(ctx, snap))

		loaded, err := store.Load(ctx, machineID)
		require.NoError(t, err)
		assert.Equal(t, machineID, loaded.MachineID)
		assert.Equal(t, "b", loaded.Leaf)
		assert.Equal(t, uint64(1), loaded.Version)
		assert.Equal(t, snap.History, loaded.History)
		assert.Equal(t, "auto", loaded.Regions["outer"]["mode"])
		assert.True(t, snap.Timestamp.Equal(loaded.Timestamp))
	})

	t.Run("Restore", func(t *testing.T) {
		fresh := Machine(t, machineID)
		require.True(t, fresh.IsInState("a"))

		require.NoError(t, strata.LoadInto(ctx, store, fresh, machineID))
		assert.True(t, fresh.IsInState("b"))
		assert.Equal(t, uint64(1), fresh.Configuration().Version())
	})

	t.Run("Overwrite", func(t *testing.T) {
		m := Machine(t, machineID)
		require.NoError(t, strata.SaveTo(ctx, store, m))

		loaded, err := store.Load(ctx, machineID)
		require.NoError(t, err)
		assert.Equal(t, "a", loaded.Leaf)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+machineID)
		assert.ErrorIs(t, err, strata.ErrNotFound)
	})

	t.Run("Empty ID", func(t *testing.T) {
		assert.ErrorIs(t, store.Save(ctx, strata.Snapshot{}), persistence.ErrEmptyID)
		_, err := store.Load(ctx, "")
		assert.ErrorIs(t, err, persistence.ErrEmptyID)
		assert.ErrorIs(t, store.Delete(ctx, ""), persistence.ErrEmptyID)
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := machineID+"-1", machineID+"-2"
		require.NoError(t, strata.SaveTo(ctx, store, Machine(t, id1)))
		require.NoError(t, strata.SaveTo(ctx, store, Machine(t, id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, machineID))
		_, err := store.Load(ctx, machineID)
		assert.ErrorIs(t, err, strata.ErrNotFound)

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, machineID)

		assert.NoError(t, store.Delete(ctx, machineID), "deleting twice is not an error")
	})
}

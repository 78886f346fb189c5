// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/store"
)

// Learning runs the learning contract against a store with no prior data.
func Learning(t *testing.T, s store.LearningStore) {
	ctx := context.Background()

	t.Run("word weight increments and caps", func(t *testing.T) {
		w, err := s.IncrementWordWeight(ctx, "tuberia", 0.05, 2.0)
		require.NoError(t, err)
		assert.InDelta(t, 1.05, w.Weight, 1e-9)
		assert.Equal(t, 1, w.Frequency)

		for range 2 {
			w, err = s.IncrementWordWeight(ctx, "tuberia", 0.05, 2.0)
			require.NoError(t, err)
		}
		assert.Equal(t, 1.15, w.Weight, "stored weights stay on two decimals")

		for range 28 {
			w, err = s.IncrementWordWeight(ctx, "tuberia", 0.05, 2.0)
			require.NoError(t, err)
		}
		assert.InDelta(t, 2.0, w.Weight, 1e-9)
		assert.Equal(t, 31, w.Frequency)
	})

	t.Run("synonym starts at initial and caps", func(t *testing.T) {
		p, err := s.IncrementSynonym(ctx, "tubo", "tuberia", 0.3, 0.1, 1.0)
		require.NoError(t, err)
		assert.InDelta(t, 0.3, p.Confidence, 1e-9)

		p, err = s.IncrementSynonym(ctx, "tubo", "tuberia", 0.3, 0.1, 1.0)
		require.NoError(t, err)
		assert.InDelta(t, 0.4, p.Confidence, 1e-9)

		for range 4 {
			p, err = s.IncrementSynonym(ctx, "tubo", "tuberia", 0.3, 0.1, 1.0)
			require.NoError(t, err)
		}
		assert.Equal(t, 0.8, p.Confidence, "stored confidence stays on two decimals")

		for range 3 {
			p, err = s.IncrementSynonym(ctx, "tubo", "tuberia", 0.3, 0.1, 1.0)
			require.NoError(t, err)
		}
		assert.Equal(t, 1.0, p.Confidence, "capped at 1.0")

		for range 3 {
			p, err = s.IncrementSynonym(ctx, "tubo", "tuberia", 0.3, 0.1, 1.0)
			require.NoError(t, err)
		}
		assert.InDelta(t, 1.0, p.Confidence, 1e-9)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		const n = 8
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.IncrementWordWeight(ctx, "cobre", 0.05, 2.0)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		w, err := s.IncrementWordWeight(ctx, "cobre", 0, 2.0)
		require.NoError(t, err)
		assert.Equal(t, n+1, w.Frequency)
		assert.InDelta(t, 1+0.05*n, w.Weight, 1e-9)
	})

	t.Run("fetch tables", func(t *testing.T) {
		weights, err := s.FetchWordWeights(ctx, 0)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, weights["tuberia"], 1e-9)
		assert.Contains(t, weights, "cobre")

		top, err := s.FetchWordWeights(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, top, 1)
		assert.Contains(t, top, "tuberia")

		syn, err := s.FetchSynonyms(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"tuberia"}, syn["tubo"])
	})

	t.Run("confirmations and stats", func(t *testing.T) {
		require.NoError(t, s.AppendConfirmation(ctx, model.ConfirmationRecord{
			ClientDescription:  "tubo cobre",
			CatalogDescription: "tuberia cobre",
			CatalogID:          "FO-010",
		}))
		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.LearningStats{TotalConfirmations: 1, UniqueWords: 2, SynonymPairs: 1}, st)
	})
}

// Snapshot runs the snapshot contract against an empty store.
func Snapshot(t *testing.T, s store.SnapshotStore) {
	ctx := context.Background()

	_, err := s.LoadCatalogSnapshot(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	first := []model.CatalogEntry{
		{ID: "1", Code: "EL-001", Description: "Punto de luz", Category: "Electricidad", Unit: "ud", UnitPrice: decimal.RequireFromString("25.50")},
		{ID: "2", Code: "FO-010", Description: "Tubería de cobre", UnitPrice: decimal.RequireFromString("12")},
	}
	require.NoError(t, s.SaveCatalogSnapshot(ctx, first))

	got, err := s.LoadCatalogSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "EL-001", got[0].Code)
	assert.Equal(t, "Electricidad", got[0].Category)
	assert.True(t, got[0].UnitPrice.Equal(decimal.RequireFromString("25.5")))
	assert.Equal(t, "FO-010", got[1].Code)

	// a new snapshot replaces the old one
	require.NoError(t, s.SaveCatalogSnapshot(ctx, first[1:]))
	got, err = s.LoadCatalogSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "FO-010", got[0].Code)
}

// Catalog runs the catalog contract against an empty store.
func Catalog(t *testing.T, s store.CatalogStore) {
	ctx := context.Background()

	var ids []string
	for _, code := range []string{"A-1", "A-2", "A-3"} {
		e, err := s.CreateEntry(ctx, model.CatalogEntry{Code: code, Description: "partida " + code, UnitPrice: decimal.NewFromInt(1)})
		require.NoError(t, err)
		require.NotEmpty(t, e.ID)
		ids = append(ids, e.ID)
	}

	page, err := s.FetchCatalogPage(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	page, err = s.FetchCatalogPage(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	page, err = s.FetchCatalogPage(ctx, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	upd := model.CatalogEntry{ID: ids[0], Code: "A-1", Description: "partida editada", UnitPrice: decimal.NewFromInt(2)}
	require.NoError(t, s.UpdateEntry(ctx, upd))
	require.ErrorIs(t, s.UpdateEntry(ctx, model.CatalogEntry{ID: "00000000-0000-0000-0000-000000000000", Code: "X"}), store.ErrNotFound)

	require.NoError(t, s.DeleteEntry(ctx, ids[1]))
	require.ErrorIs(t, s.DeleteEntry(ctx, ids[1]), store.ErrNotFound)

	page, err = s.FetchCatalogPage(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	var descs []string
	for _, e := range page {
		descs = append(descs, e.Description)
	}
	assert.Contains(t, descs, "partida editada")
}

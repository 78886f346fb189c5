package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/store/storetest"
)

func TestLearning(t *testing.T) { storetest.Learning(t, New()) }

func TestSnapshot(t *testing.T) { storetest.Snapshot(t, New()) }

func TestCatalog(t *testing.T) { storetest.Catalog(t, New()) }

func TestSeed(t *testing.T) {
	s := New()
	s.Seed(model.CatalogEntry{Code: "A"}, model.CatalogEntry{ID: "keep", Code: "B"})

	page, err := s.FetchCatalogPage(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.NotEmpty(t, page[0].ID)
	assert.Equal(t, "keep", page[1].ID)
}

func TestConfirmationsAreStamped(t *testing.T) {
	s := New()
	require.NoError(t, s.AppendConfirmation(context.Background(), model.ConfirmationRecord{ClientDescription: "a", CatalogDescription: "b"}))
	got := s.Confirmations()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

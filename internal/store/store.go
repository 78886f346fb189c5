// Package store defines the catalog and learning persistence contracts.
package store

import (
	"context"
	"errors"

	"partidas-service/internal/matching/model"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
)

// CatalogStore is the remote master catalog.
type CatalogStore interface {
	FetchCatalogPage(ctx context.Context, offset, limit int) ([]model.CatalogEntry, error)
	CreateEntry(ctx context.Context, e model.CatalogEntry) (model.CatalogEntry, error)
	UpdateEntry(ctx context.Context, e model.CatalogEntry) error
	DeleteEntry(ctx context.Context, id string) error
}

// SnapshotStore keeps the last good catalog for offline reads.
type SnapshotStore interface {
	SaveCatalogSnapshot(ctx context.Context, entries []model.CatalogEntry) error
	LoadCatalogSnapshot(ctx context.Context) ([]model.CatalogEntry, error)
}

// LearningStore holds word weights, synonym pairs and confirmation history.
//
// Increments are applied atomically inside the store: a missing word is
// inserted with weight min(ceiling, 1+step) and frequency 1, an existing one
// gets min(ceiling, weight+step) and frequency+1. A missing synonym pair is
// inserted with confidence initial, an existing one gets min(ceiling, c+step).
type LearningStore interface {
	FetchWordWeights(ctx context.Context, limit int) (model.WeightTable, error)
	FetchSynonyms(ctx context.Context, limit int) (model.SynonymTable, error)
	IncrementWordWeight(ctx context.Context, word string, step, ceiling float64) (model.WordWeight, error)
	IncrementSynonym(ctx context.Context, word, synonym string, initial, step, ceiling float64) (model.SynonymPair, error)
	AppendConfirmation(ctx context.Context, rec model.ConfirmationRecord) error
	Stats(ctx context.Context) (model.LearningStats, error)
}

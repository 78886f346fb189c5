// Package memory is a process-local store used when no database is configured.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/store"
)

type pairKey struct{ word, synonym string }

type Store struct {
	mu            sync.RWMutex
	catalog       []model.CatalogEntry
	snapshot      []model.CatalogEntry
	weights       map[string]model.WordWeight
	synonyms      map[pairKey]model.SynonymPair
	confirmations []model.ConfirmationRecord
}

func New() *Store {
	return &Store{
		weights:  make(map[string]model.WordWeight),
		synonyms: make(map[pairKey]model.SynonymPair),
	}
}

// Seed replaces the catalog, assigning ids where missing.
func (s *Store) Seed(entries ...model.CatalogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = s.catalog[:0]
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.catalog = append(s.catalog, e)
	}
}

func (s *Store) FetchCatalogPage(_ context.Context, offset, limit int) ([]model.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset >= len(s.catalog) || limit <= 0 {
		return nil, nil
	}
	end := min(offset+limit, len(s.catalog))
	return append([]model.CatalogEntry(nil), s.catalog[offset:end]...), nil
}

func (s *Store) CreateEntry(_ context.Context, e model.CatalogEntry) (model.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.catalog = append(s.catalog, e)
	return e, nil
}

func (s *Store) UpdateEntry(_ context.Context, e model.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.catalog {
		if s.catalog[i].ID == e.ID {
			s.catalog[i] = e
			return nil
		}
	}
	return fmt.Errorf("partida %s: %w", e.ID, store.ErrNotFound)
}

func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.catalog {
		if s.catalog[i].ID == id {
			s.catalog = append(s.catalog[:i], s.catalog[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("partida %s: %w", id, store.ErrNotFound)
}

func (s *Store) SaveCatalogSnapshot(_ context.Context, entries []model.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = append([]model.CatalogEntry(nil), entries...)
	return nil
}

func (s *Store) LoadCatalogSnapshot(_ context.Context) ([]model.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, store.ErrNotFound
	}
	return append([]model.CatalogEntry(nil), s.snapshot...), nil
}

func (s *Store) FetchWordWeights(_ context.Context, limit int) (model.WeightTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]model.WordWeight, 0, len(s.weights))
	for _, w := range s.weights {
		all = append(all, w)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Frequency != all[j].Frequency {
			return all[i].Frequency > all[j].Frequency
		}
		return all[i].Word < all[j].Word
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make(model.WeightTable, len(all))
	for _, w := range all {
		out[w.Word] = w.Weight
	}
	return out, nil
}

func (s *Store) FetchSynonyms(_ context.Context, limit int) (model.SynonymTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]model.SynonymPair, 0, len(s.synonyms))
	for _, p := range s.synonyms {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Confidence != all[j].Confidence {
			return all[i].Confidence > all[j].Confidence
		}
		if all[i].Word != all[j].Word {
			return all[i].Word < all[j].Word
		}
		return all[i].Synonym < all[j].Synonym
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make(model.SynonymTable)
	for _, p := range all {
		out[p.Word] = append(out[p.Word], p.Synonym)
	}
	return out, nil
}

func (s *Store) IncrementWordWeight(_ context.Context, word string, step, ceiling float64) (model.WordWeight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weights[word]
	if !ok {
		w = model.WordWeight{Word: word, Weight: 1}
	}
	w.Weight = math.Min(ceiling, round2(w.Weight+step))
	w.Frequency++
	w.UpdatedAt = time.Now().UTC()
	s.weights[word] = w
	return w, nil
}

func (s *Store) IncrementSynonym(_ context.Context, word, synonym string, initial, step, ceiling float64) (model.SynonymPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{word, synonym}
	p, ok := s.synonyms[k]
	if ok {
		p.Confidence = math.Min(ceiling, round2(p.Confidence+step))
	} else {
		p = model.SynonymPair{Word: word, Synonym: synonym, Confidence: initial}
	}
	s.synonyms[k] = p
	return p, nil
}

// round2 keeps repeated 0.05/0.1 steps from drifting off two decimals.
func round2(x float64) float64 { return math.Round(x*100) / 100 }

func (s *Store) AppendConfirmation(_ context.Context, rec model.ConfirmationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.confirmations = append(s.confirmations, rec)
	return nil
}

// Confirmations returns a copy of the audit log.
func (s *Store) Confirmations() []model.ConfirmationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ConfirmationRecord(nil), s.confirmations...)
}

func (s *Store) Stats(_ context.Context) (model.LearningStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.LearningStats{
		TotalConfirmations: len(s.confirmations),
		UniqueWords:        len(s.weights),
		SynonymPairs:       len(s.synonyms),
	}, nil
}

var (
	_ store.CatalogStore  = (*Store)(nil)
	_ store.SnapshotStore = (*Store)(nil)
	_ store.LearningStore = (*Store)(nil)
)

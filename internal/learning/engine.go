// Package learning turns user confirmations into word weights and synonym
// pairs, and loads those tables back as immutable snapshots for matching.
package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
	"partidas-service/internal/store"
)

const (
	WeightStep    = 0.05
	WeightCeiling = 2.0

	SynonymInitial = 0.3
	SynonymStep    = 0.1
	SynonymCeiling = 1.0

	DefaultLimit = 100
)

type Engine struct {
	primary store.LearningStore
	local   store.LearningStore
	limit   int
	log     zerolog.Logger
}

type Option func(*Engine)

func WithLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// New builds an engine; local may be nil when no fallback is configured.
func New(primary, local store.LearningStore, opts ...Option) *Engine {
	e := &Engine{primary: primary, local: local, limit: DefaultLimit, log: zerolog.Nop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Outcome describes what a confirmation changed.
type Outcome struct {
	Weights   []model.WordWeight `json:"weights"`
	Synonym   *model.SynonymPair `json:"synonym,omitempty"`
	Recorded  bool               `json:"recorded"`
	Fallbacks int                `json:"fallbacks"`
}

// RecordConfirmation reinforces the words both sides share, learns a synonym
// when exactly one word differs on each side, and appends an audit record.
// Each effect falls back to the local store on its own.
func (e *Engine) RecordConfirmation(ctx context.Context, clientDesc, catalogDesc, catalogID string) (Outcome, error) {
	var out Outcome
	if strings.TrimSpace(clientDesc) == "" || strings.TrimSpace(catalogDesc) == "" {
		return out, fmt.Errorf("%w: both descriptions are required", model.ErrInvalid)
	}

	client := service.UniqueTokens(service.Normalize(clientDesc))
	catalog := service.UniqueTokens(service.Normalize(catalogDesc))
	matched, onlyClient, onlyCatalog := diff(client, catalog)

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, word := range matched {
		w, fellBack, err := withFallback(e, "word weight", func(s store.LearningStore) (model.WordWeight, error) {
			return s.IncrementWordWeight(ctx, word, WeightStep, WeightCeiling)
		})
		keep(err)
		if err == nil {
			out.Weights = append(out.Weights, w)
		}
		if fellBack {
			out.Fallbacks++
		}
	}

	if len(onlyClient) == 1 && len(onlyCatalog) == 1 {
		p, fellBack, err := withFallback(e, "synonym", func(s store.LearningStore) (model.SynonymPair, error) {
			return s.IncrementSynonym(ctx, onlyClient[0], onlyCatalog[0], SynonymInitial, SynonymStep, SynonymCeiling)
		})
		keep(err)
		if err == nil {
			out.Synonym = &p
		}
		if fellBack {
			out.Fallbacks++
		}
	}

	rec := model.ConfirmationRecord{
		ClientDescription:  clientDesc,
		CatalogDescription: catalogDesc,
		CatalogID:          catalogID,
	}
	_, fellBack, err := withFallback(e, "confirmation", func(s store.LearningStore) (struct{}, error) {
		return struct{}{}, s.AppendConfirmation(ctx, rec)
	})
	keep(err)
	out.Recorded = err == nil
	if fellBack {
		out.Fallbacks++
	}

	e.log.Debug().
		Int("matched", len(matched)).
		Bool("synonym", out.Synonym != nil).
		Int("fallbacks", out.Fallbacks).
		Msg("confirmation recorded")
	return out, firstErr
}

// withFallback runs op on the primary store and, when that fails, on the
// local one. The bool reports whether the local store was used.
func withFallback[T any](e *Engine, what string, op func(store.LearningStore) (T, error)) (T, bool, error) {
	v, err := op(e.primary)
	if err == nil {
		return v, false, nil
	}
	if e.local == nil {
		e.log.Error().Err(err).Str("effect", what).Msg("learning write failed, no local store")
		return v, false, err
	}
	e.log.Warn().Err(err).Str("effect", what).Msg("learning write failed, using local store")
	v, lerr := op(e.local)
	if lerr != nil {
		e.log.Error().Err(lerr).Str("effect", what).Msg("local learning write failed")
		return v, true, fmt.Errorf("%s: %w", what, lerr)
	}
	return v, true, nil
}

// diff splits two de-duplicated token lists into shared tokens and the
// tokens unique to each side, preserving order.
func diff(a, b []string) (shared, onlyA, onlyB []string) {
	inA := make(map[string]struct{}, len(a))
	for _, t := range a {
		inA[t] = struct{}{}
	}
	inB := make(map[string]struct{}, len(b))
	for _, t := range b {
		inB[t] = struct{}{}
	}
	for _, t := range a {
		if _, ok := inB[t]; ok {
			shared = append(shared, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range b {
		if _, ok := inA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	return shared, onlyA, onlyB
}

// LoadTables fetches the top weights and synonyms concurrently. Failures
// degrade to the local store and finally to empty tables; it never errors.
func (e *Engine) LoadTables(ctx context.Context) (model.WeightTable, model.SynonymTable) {
	var (
		weights  model.WeightTable
		synonyms model.SynonymTable
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		weights = loadOne(e, "weights", func(s store.LearningStore) (model.WeightTable, error) {
			return s.FetchWordWeights(gctx, e.limit)
		})
		return nil
	})
	g.Go(func() error {
		synonyms = loadOne(e, "synonyms", func(s store.LearningStore) (model.SynonymTable, error) {
			return s.FetchSynonyms(gctx, e.limit)
		})
		return nil
	})
	_ = g.Wait()

	if weights == nil {
		weights = model.WeightTable{}
	}
	if synonyms == nil {
		synonyms = model.SynonymTable{}
	}
	return weights, synonyms
}

func loadOne[T any](e *Engine, what string, fetch func(store.LearningStore) (T, error)) T {
	v, err := fetch(e.primary)
	if err == nil {
		return v
	}
	e.log.Warn().Err(err).Str("table", what).Msg("learning table fetch failed")
	if e.local != nil {
		if v, err = fetch(e.local); err == nil {
			return v
		}
		e.log.Warn().Err(err).Str("table", what).Msg("local learning table fetch failed")
	}
	var zero T
	return zero
}

// Stats reports the primary store's counters, or the local ones when the
// primary is unreachable.
func (e *Engine) Stats(ctx context.Context) (model.LearningStats, error) {
	st, err := e.primary.Stats(ctx)
	if err == nil || e.local == nil {
		return st, err
	}
	e.log.Warn().Err(err).Msg("learning stats failed, using local store")
	return e.local.Stats(ctx)
}

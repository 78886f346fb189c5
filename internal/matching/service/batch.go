package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"partidas-service/internal/matching/model"
)

const DefaultChunkSize = 200

var (
	ErrMalformedCatalog = errors.New("malformed catalog")
	ErrBatchAborted     = errors.New("batch aborted")
)

type EventType string

const (
	EventProgress EventType = "PROGRESS"
	EventComplete EventType = "COMPLETE"
	EventError    EventType = "ERROR"
)

// Event is one message of a batch run. Progress events arrive in input
// order; COMPLETE or ERROR is always last.
type Event struct {
	Type    EventType           `json:"type"`
	Current int                 `json:"current"`
	Total   int                 `json:"total"`
	Chunk   []model.MatchResult `json:"chunk,omitempty"`
	Results []model.MatchResult `json:"results,omitempty"`
	Error   string              `json:"error,omitempty"`
	Err     error               `json:"-"`
}

// Batch is the snapshot submitted once per run.
type Batch struct {
	Lines     []model.InputLine
	Catalog   []model.CatalogEntry
	Weights   model.WeightTable
	Synonyms  model.SynonymTable
	ChunkSize int
}

type Matcher struct {
	thresholds model.Thresholds
	workers    int
	log        zerolog.Logger
	newID      func() string
}

type Option func(*Matcher)

func WithThresholds(t model.Thresholds) Option { return func(m *Matcher) { m.thresholds = t } }

func WithWorkers(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.workers = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(m *Matcher) { m.log = l } }

func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		thresholds: model.DefaultThresholds(),
		workers:    runtime.GOMAXPROCS(0),
		log:        zerolog.Nop(),
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Matcher) Thresholds() model.Thresholds { return m.thresholds }

// Run is the caller's handle on a background batch.
type Run struct {
	ctx    context.Context
	events chan Event
}

// Events yields progress events terminated by COMPLETE or ERROR. The channel
// closes without a terminal event only when ctx was cancelled.
func (r *Run) Events() <-chan Event { return r.events }

// Wait drains the run and returns the full result list.
func (r *Run) Wait() ([]model.MatchResult, error) {
	for ev := range r.events {
		switch ev.Type {
		case EventComplete:
			return ev.Results, nil
		case EventError:
			return nil, ev.Err
		}
	}
	if err := r.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBatchAborted, err)
	}
	return nil, ErrBatchAborted
}

// MatchAll runs a batch to completion.
func (m *Matcher) MatchAll(ctx context.Context, b Batch) ([]model.MatchResult, error) {
	return m.Submit(ctx, b).Wait()
}

// Submit copies the snapshot and matches it in a background goroutine.
// The events channel is sized so the producer never blocks on a slow or
// absent reader.
func (m *Matcher) Submit(ctx context.Context, b Batch) *Run {
	snap := Batch{
		Lines:     append([]model.InputLine(nil), b.Lines...),
		Catalog:   append([]model.CatalogEntry(nil), b.Catalog...),
		Weights:   b.Weights.Clone(),
		Synonyms:  b.Synonyms.Clone(),
		ChunkSize: b.ChunkSize,
	}
	if snap.ChunkSize <= 0 {
		snap.ChunkSize = DefaultChunkSize
	}
	chunks := (len(snap.Lines) + snap.ChunkSize - 1) / snap.ChunkSize
	run := &Run{ctx: ctx, events: make(chan Event, chunks+1)}

	go func() {
		defer close(run.events)
		defer func() {
			if rec := recover(); rec != nil {
				run.fail(fmt.Errorf("%w: %v", ErrBatchAborted, rec))
			}
		}()
		if err := m.run(ctx, snap, run); err != nil {
			if ctx.Err() != nil {
				m.log.Warn().Err(err).Msg("batch abandoned")
				return
			}
			m.log.Error().Err(err).Msg("batch failed")
			run.fail(err)
		}
	}()
	return run
}

func (r *Run) fail(err error) {
	r.events <- Event{Type: EventError, Err: err, Error: err.Error()}
}

func (m *Matcher) run(ctx context.Context, b Batch, out *Run) error {
	start := time.Now()
	for i, e := range b.Catalog {
		if e.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: entry %d (%s) has negative price", ErrMalformedCatalog, i, e.Code)
		}
	}

	idx := BuildIndex(b.Catalog)
	total := len(b.Lines)
	m.log.Info().Int("lines", total).Int("catalog", idx.Len()).Int("chunk", b.ChunkSize).Msg("batch started")

	all := make([]model.MatchResult, 0, total)
	for i := 0; i < total; i += b.ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+b.ChunkSize, total)
		chunk, err := m.matchChunk(ctx, idx, b.Lines[i:end], b.Weights, b.Synonyms)
		if err != nil {
			return err
		}
		all = append(all, chunk...)
		out.events <- Event{Type: EventProgress, Current: end, Total: total, Chunk: chunk}
		m.log.Debug().Int("current", end).Int("total", total).Msg("batch progress")

		// let other goroutines in between chunks
		runtime.Gosched()
	}

	out.events <- Event{Type: EventComplete, Current: total, Total: total, Results: all}
	m.log.Info().Int("lines", total).Dur("elapsed", time.Since(start)).Msg("batch complete")
	return nil
}

// matchChunk scores lines in parallel; result i always belongs to line i.
func (m *Matcher) matchChunk(ctx context.Context, idx *Index, lines []model.InputLine, w model.WeightTable, s model.SynonymTable) ([]model.MatchResult, error) {
	out := make([]model.MatchResult, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for j := range lines {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("%w: line %q: %v", ErrBatchAborted, lines[j].Description, rec)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			out[j] = m.MatchLine(idx, lines[j], w, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MatchLine matches one line against the index and keeps the single best
// candidate. Price fields are seeded only at or above the similar threshold.
func (m *Matcher) MatchLine(idx *Index, line model.InputLine, w model.WeightTable, s model.SynonymTable) model.MatchResult {
	res := model.MatchResult{
		ID:         m.newID(),
		ClientText: line.Description,
		Quantity:   line.Quantity,
		Estado:     model.EstadoSinCoincidencia,
		CostPrice:  decimal.Zero,
		MarkupPct:  decimal.Zero,
		SalePrice:  decimal.Zero,
	}

	query := Normalize(line.Description)
	cands := idx.Candidates(query, s)
	if len(cands) == 0 {
		return res
	}

	bestPos := -1
	var best Similarity
	for _, pos := range cands {
		_, toks := idx.Entry(pos)
		sim := Score(query, toks, w, s)
		if bestPos < 0 || sim.Score > best.Score {
			bestPos, best = pos, sim
		}
		if best.Score == 100 {
			break
		}
	}

	res.Confidence = best.Score
	res.Estado = m.thresholds.Classify(best.Score)
	res.MatchedWords = best.MatchedWords
	res.Synonyms = best.SynonymsUsed
	if best.Score >= m.thresholds.Similar {
		entry, _ := idx.Entry(bestPos)
		res.Entry = &entry
		res.SalePrice = entry.UnitPrice
	}
	return res
}

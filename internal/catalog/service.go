// Package catalog serves catalog snapshots to the matcher and applies
// catalog edits, never handing out a snapshot older than the last edit.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"partidas-service/internal/matching/model"
	mservice "partidas-service/internal/matching/service"
	"partidas-service/internal/store"
)

const (
	DefaultPageSize    = 1000
	DefaultTTL         = 5 * time.Minute
	DefaultSearchLimit = 50

	// maxRefetch bounds how often Snapshot retries a fetch that an edit
	// overtook before handing the data back uncached.
	maxRefetch = 3
)

// Cache holds the last fetched catalog.
type Cache interface {
	Get(ctx context.Context) ([]model.CatalogEntry, bool)
	Set(ctx context.Context, entries []model.CatalogEntry)
	Clear(ctx context.Context)
}

type Service struct {
	remote   store.CatalogStore
	local    store.SnapshotStore
	cache    Cache
	pageSize int
	log      zerolog.Logger

	mu   sync.RWMutex
	last []model.CatalogEntry // last good snapshot, survives cache expiry
	gen  uint64               // bumped by every Invalidate
}

type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// New builds the service; local may be nil.
func New(remote store.CatalogStore, local store.SnapshotStore, opts ...Option) *Service {
	s := &Service{
		remote:   remote,
		local:    local,
		cache:    NewMemoryCache(DefaultTTL),
		pageSize: DefaultPageSize,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns the full catalog: cache, then remote (paged), then the
// last in-memory snapshot, then the local snapshot store.
func (s *Service) Snapshot(ctx context.Context) ([]model.CatalogEntry, error) {
	if entries, ok := s.cache.Get(ctx); ok {
		return entries, nil
	}

	var (
		entries []model.CatalogEntry
		err     error
	)
	for attempt := 1; ; attempt++ {
		gen := s.generation()
		entries, err = s.fetchAll(ctx)
		if err != nil {
			break
		}
		if s.remember(ctx, gen, entries) {
			return entries, nil
		}
		if attempt == maxRefetch {
			s.log.Warn().Int("attempts", attempt).Msg("catalog kept changing during fetch, serving uncached")
			return entries, nil
		}
		s.log.Debug().Msg("catalog edited during fetch, refetching")
	}
	s.log.Warn().Err(err).Msg("catalog fetch failed, using fallback snapshot")

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		return last, nil
	}
	if s.local != nil {
		snap, lerr := s.local.LoadCatalogSnapshot(ctx)
		if lerr == nil {
			return snap, nil
		}
		s.log.Warn().Err(lerr).Msg("local catalog snapshot unavailable")
	}
	return nil, fmt.Errorf("catalog unavailable: %w", err)
}

func (s *Service) fetchAll(ctx context.Context) ([]model.CatalogEntry, error) {
	var all []model.CatalogEntry
	for offset := 0; ; offset += s.pageSize {
		page, err := s.remote.FetchCatalogPage(ctx, offset, s.pageSize)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			if err := model.Validate(e); err != nil {
				return nil, err
			}
		}
		all = append(all, page...)
		if len(page) < s.pageSize {
			break
		}
	}
	s.log.Debug().Int("entries", len(all)).Msg("catalog fetched")
	return all, nil
}

func (s *Service) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// remember stores entries fetched at generation gen. It refuses when an
// Invalidate ran since, so a slow fetch never overwrites a newer edit.
func (s *Service) remember(ctx context.Context, gen uint64, entries []model.CatalogEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.cache.Set(ctx, entries)
	s.last = entries
	if s.local != nil {
		if err := s.local.SaveCatalogSnapshot(ctx, entries); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist local catalog snapshot")
		}
	}
	return true
}

// Invalidate drops every cached snapshot so the next read refetches.
func (s *Service) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cache.Clear(ctx)
	s.last = nil
}

func (s *Service) Create(ctx context.Context, e model.CatalogEntry) (model.CatalogEntry, error) {
	if err := model.Validate(e); err != nil {
		return model.CatalogEntry{}, err
	}
	created, err := s.remote.CreateEntry(ctx, e)
	if err != nil {
		return model.CatalogEntry{}, err
	}
	s.Invalidate(ctx)
	return created, nil
}

func (s *Service) Update(ctx context.Context, e model.CatalogEntry) error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", model.ErrInvalid)
	}
	if err := model.Validate(e); err != nil {
		return err
	}
	if err := s.remote.UpdateEntry(ctx, e); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.remote.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

// ImportResult reports a bulk import.
type ImportResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Import creates every valid entry; invalid rows are skipped and reported.
// Rows created before a store failure stay visible.
func (s *Service) Import(ctx context.Context, entries []model.CatalogEntry) (res ImportResult, err error) {
	defer func() {
		if res.Created > 0 {
			s.Invalidate(ctx)
		}
	}()
	for _, e := range entries {
		if err := model.Validate(e); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if _, err := s.remote.CreateEntry(ctx, e); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return res, err
			}
			res.Skipped++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Created++
	}
	s.log.Info().Int("created", res.Created).Int("skipped", res.Skipped).Msg("catalog import")
	return res, nil
}

// Search matches the simplified query as a substring of code + description.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.CatalogEntry, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	entries, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	q := mservice.Simplify(query)
	out := make([]model.CatalogEntry, 0, min(limit, len(entries)))
	for _, e := range entries {
		if len(out) == limit {
			break
		}
		if q == "" || strings.Contains(mservice.Simplify(e.Code+" "+e.Description), q) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries []model.CatalogEntry
	fetched time.Time
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(context.Context) ([]model.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entries == nil || c.now().Sub(c.fetched) >= c.ttl {
		return nil, false
	}
	return c.entries, true
}

func (c *MemoryCache) Set(_ context.Context, entries []model.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.fetched = c.now()
}

func (c *MemoryCache) Clear(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.fetched = time.Time{}
}

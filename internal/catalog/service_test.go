package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/store"
	"partidas-service/internal/store/memory"
)

// flakyRemote counts page fetches and can be switched off.
type flakyRemote struct {
	*memory.Store
	pages atomic.Int32
	down  atomic.Bool
}

func (f *flakyRemote) FetchCatalogPage(ctx context.Context, offset, limit int) ([]model.CatalogEntry, error) {
	if f.down.Load() {
		return nil, store.ErrUnavailable
	}
	f.pages.Add(1)
	return f.Store.FetchCatalogPage(ctx, offset, limit)
}

func entry(code, desc string) model.CatalogEntry {
	return model.CatalogEntry{Code: code, Description: desc, UnitPrice: decimal.NewFromInt(10)}
}

func newRemote(entries ...model.CatalogEntry) *flakyRemote {
	r := &flakyRemote{Store: memory.New()}
	r.Seed(entries...)
	return r
}

func TestSnapshot_Pages(t *testing.T) {
	tests := []struct {
		name      string
		entries   int
		wantPages int32
	}{
		{"partial last page", 5, 3},
		{"exact multiple", 4, 3},
		{"empty", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var es []model.CatalogEntry
			for i := 0; i < tt.entries; i++ {
				es = append(es, entry("C"+string(rune('A'+i)), "partida"))
			}
			remote := newRemote(es...)
			svc := New(remote, nil, WithPageSize(2))

			got, err := svc.Snapshot(context.Background())
			require.NoError(t, err)
			assert.Len(t, got, tt.entries)
			assert.Equal(t, tt.wantPages, remote.pages.Load())
		})
	}
}

func TestSnapshot_Cached(t *testing.T) {
	remote := newRemote(entry("A", "uno"))
	svc := New(remote, nil)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	_, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), remote.pages.Load())
}

func TestSnapshot_EditsInvalidate(t *testing.T) {
	remote := newRemote(entry("A", "uno"))
	svc := New(remote, nil)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	created, err := svc.Create(ctx, entry("B", "dos"))
	require.NoError(t, err)
	got, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	created.Description = "dos editada"
	require.NoError(t, svc.Update(ctx, created))
	got, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dos editada", got[1].Description)

	require.NoError(t, svc.Delete(ctx, created.ID))
	got, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(4), remote.pages.Load())
}

// gatedRemote reads the first page, then holds it until release is closed.
type gatedRemote struct {
	*flakyRemote
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gatedRemote) FetchCatalogPage(ctx context.Context, offset, limit int) ([]model.CatalogEntry, error) {
	page, err := g.flakyRemote.FetchCatalogPage(ctx, offset, limit)
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return page, err
}

func TestSnapshot_EditDuringFetchWins(t *testing.T) {
	ctx := context.Background()
	remote := &gatedRemote{
		flakyRemote: newRemote(entry("A", "viejo")),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	seeded, err := remote.Store.FetchCatalogPage(ctx, 0, 10)
	require.NoError(t, err)
	local := memory.New()
	svc := New(remote, local)

	type result struct {
		entries []model.CatalogEntry
		err     error
	}
	done := make(chan result, 1)
	go func() {
		got, err := svc.Snapshot(ctx)
		done <- result{got, err}
	}()
	<-remote.started

	edited := seeded[0]
	edited.Description = "nuevo"
	require.NoError(t, svc.Update(ctx, edited))
	close(remote.release)

	inflight := <-done
	require.NoError(t, inflight.err)
	require.Len(t, inflight.entries, 1)
	assert.Equal(t, "nuevo", inflight.entries[0].Description, "overtaken fetch is repeated")

	got, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nuevo", got[0].Description)
	assert.Equal(t, int32(2), remote.pages.Load(), "stale read refetched once, then cached")

	snap, err := local.LoadCatalogSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "nuevo", snap[0].Description)
}

func TestSnapshot_FallsBackToLastSnapshot(t *testing.T) {
	remote := newRemote(entry("A", "uno"))
	cache := NewMemoryCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }
	svc := New(remote, nil, WithCache(cache))
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	remote.down.Store(true)
	got, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Code)
}

func TestSnapshot_FallsBackToLocalStore(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	require.NoError(t, local.SaveCatalogSnapshot(ctx, []model.CatalogEntry{entry("L", "local")}))

	remote := newRemote()
	remote.down.Store(true)
	got, err := New(remote, local).Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "L", got[0].Code)
}

func TestSnapshot_PersistsLocalCopy(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	_, err := New(newRemote(entry("A", "uno")), local).Snapshot(ctx)
	require.NoError(t, err)

	snap, err := local.LoadCatalogSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

func TestSnapshot_NoFallback(t *testing.T) {
	remote := newRemote()
	remote.down.Store(true)
	_, err := New(remote, memory.New()).Snapshot(context.Background())
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestSnapshot_RejectsMalformedRows(t *testing.T) {
	bad := entry("X", "negativa")
	bad.UnitPrice = decimal.NewFromInt(-5)
	_, err := New(newRemote(entry("A", "uno"), bad), nil).Snapshot(context.Background())
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestUpdate_RequiresID(t *testing.T) {
	err := New(newRemote(), nil).Update(context.Background(), entry("A", "uno"))
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestCreate_Validates(t *testing.T) {
	_, err := New(newRemote(), nil).Create(context.Background(), model.CatalogEntry{Code: "A"})
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestImport(t *testing.T) {
	remote := newRemote(entry("A", "uno"))
	svc := New(remote, nil)
	ctx := context.Background()
	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	res, err := svc.Import(ctx, []model.CatalogEntry{
		entry("B", "dos"),
		{Code: "C"},
		entry("D", "cuatro"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Errors, 1)

	got, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

// brokenCreates accepts ok creates, then reports the store unavailable.
type brokenCreates struct {
	*flakyRemote
	ok atomic.Int32
}

func (b *brokenCreates) CreateEntry(ctx context.Context, e model.CatalogEntry) (model.CatalogEntry, error) {
	if b.ok.Add(-1) < 0 {
		return model.CatalogEntry{}, store.ErrUnavailable
	}
	return b.flakyRemote.CreateEntry(ctx, e)
}

func TestImport_PartialFailureInvalidates(t *testing.T) {
	remote := &brokenCreates{flakyRemote: newRemote(entry("A", "uno"))}
	remote.ok.Store(1)
	svc := New(remote, nil)
	ctx := context.Background()
	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	res, err := svc.Import(ctx, []model.CatalogEntry{entry("B", "dos"), entry("C", "tres")})
	require.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, 1, res.Created)

	got, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSearch(t *testing.T) {
	svc := New(newRemote(
		entry("FO-010", "Tubería de cobre 15 mm"),
		entry("FO-011", "Tubería de cobre 18 mm"),
		entry("EL-001", "Punto de luz simple"),
	), nil)
	ctx := context.Background()

	got, err := svc.Search(ctx, "TUBERIA", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.Search(ctx, "el-001", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EL-001", got[0].Code)

	got, err = svc.Search(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok := c.Get(ctx)
	assert.False(t, ok)

	c.Set(ctx, []model.CatalogEntry{entry("A", "uno")})
	_, ok = c.Get(ctx)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx)
	assert.False(t, ok)

	c.Set(ctx, []model.CatalogEntry{entry("A", "uno")})
	c.Clear(ctx)
	_, ok = c.Get(ctx)
	assert.False(t, ok)
}

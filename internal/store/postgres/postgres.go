// Package postgres is the remote catalog and learning store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Postgres driver
	"github.com/shopspring/decimal"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/store"
)

type Storage struct {
	db *sqlx.DB
}

func Open(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return &Storage{db: db}, nil
}

// New wraps an existing handle.
func New(db *sqlx.DB) *Storage { return &Storage{db: db} }

func (s *Storage) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS partidas (
		id TEXT PRIMARY KEY,
		codigo TEXT NOT NULL,
		descripcion TEXT NOT NULL,
		categoria TEXT,
		unidad TEXT,
		precio_unitario NUMERIC(14,4) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS word_weights (
		word TEXT PRIMARY KEY,
		weight DOUBLE PRECISION NOT NULL DEFAULT 1,
		frequency INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS synonyms (
		word TEXT NOT NULL,
		synonym TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (word, synonym)
	)`,
	`CREATE TABLE IF NOT EXISTS confirmation_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		cliente_desc TEXT NOT NULL,
		partida_desc TEXT NOT NULL,
		partida_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

func (s *Storage) Migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// partidaRow is the loosely typed database shape; toEntry is the only way
// into model.CatalogEntry.
type partidaRow struct {
	ID          string          `db:"id"`
	Codigo      string          `db:"codigo"`
	Descripcion string          `db:"descripcion"`
	Categoria   sql.NullString  `db:"categoria"`
	Unidad      sql.NullString  `db:"unidad"`
	Precio      decimal.Decimal `db:"precio_unitario"`
}

func (r partidaRow) toEntry() (model.CatalogEntry, error) {
	e := model.CatalogEntry{
		ID:          r.ID,
		Code:        r.Codigo,
		Description: r.Descripcion,
		Category:    r.Categoria.String,
		Unit:        r.Unidad.String,
		UnitPrice:   r.Precio,
	}
	if err := model.Validate(e); err != nil {
		return model.CatalogEntry{}, fmt.Errorf("partida %s: %w", r.ID, err)
	}
	return e, nil
}

func (s *Storage) FetchCatalogPage(ctx context.Context, offset, limit int) ([]model.CatalogEntry, error) {
	var rows []partidaRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, codigo, descripcion, categoria, unidad, precio_unitario
		FROM partidas ORDER BY codigo, id OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch partidas: %v", store.ErrUnavailable, err)
	}
	out := make([]model.CatalogEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Storage) CreateEntry(ctx context.Context, e model.CatalogEntry) (model.CatalogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO partidas (id, codigo, descripcion, categoria, unidad, precio_unitario)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.Code, e.Description, e.Category, e.Unit, e.UnitPrice)
	if err != nil {
		return model.CatalogEntry{}, fmt.Errorf("failed to insert partida: %w", err)
	}
	return e, nil
}

func (s *Storage) UpdateEntry(ctx context.Context, e model.CatalogEntry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE partidas SET codigo = $2, descripcion = $3, categoria = $4, unidad = $5, precio_unitario = $6
		WHERE id = $1
	`, e.ID, e.Code, e.Description, e.Category, e.Unit, e.UnitPrice)
	if err != nil {
		return fmt.Errorf("failed to update partida: %w", err)
	}
	return mustAffect(res, e.ID)
}

func (s *Storage) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM partidas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete partida: %w", err)
	}
	return mustAffect(res, id)
}

func mustAffect(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("partida %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Storage) FetchWordWeights(ctx context.Context, limit int) (model.WeightTable, error) {
	var rows []model.WordWeight
	err := s.db.SelectContext(ctx, &rows, `
		SELECT word, weight, frequency, updated_at FROM word_weights
		ORDER BY frequency DESC, word LIMIT $1
	`, limitOrNull(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch word weights: %v", store.ErrUnavailable, err)
	}
	out := make(model.WeightTable, len(rows))
	for _, r := range rows {
		out[r.Word] = r.Weight
	}
	return out, nil
}

func (s *Storage) FetchSynonyms(ctx context.Context, limit int) (model.SynonymTable, error) {
	var rows []model.SynonymPair
	err := s.db.SelectContext(ctx, &rows, `
		SELECT word, synonym, confidence FROM synonyms
		ORDER BY confidence DESC, word, synonym LIMIT $1
	`, limitOrNull(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch synonyms: %v", store.ErrUnavailable, err)
	}
	out := make(model.SynonymTable)
	for _, r := range rows {
		out[r.Word] = append(out[r.Word], r.Synonym)
	}
	return out, nil
}

// IncrementWordWeight evaluates the increment in a single upsert so
// concurrent confirmations never overwrite each other.
func (s *Storage) IncrementWordWeight(ctx context.Context, word string, step, ceiling float64) (model.WordWeight, error) {
	var w model.WordWeight
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO word_weights (word, weight, frequency, updated_at)
		VALUES ($1, LEAST($2::double precision, ROUND((1 + $3::double precision)::numeric, 2)::double precision), 1, NOW())
		ON CONFLICT (word) DO UPDATE SET
			weight = LEAST($2::double precision, ROUND((word_weights.weight + $3::double precision)::numeric, 2)::double precision),
			frequency = word_weights.frequency + 1,
			updated_at = NOW()
		RETURNING word, weight, frequency, updated_at
	`, word, ceiling, step).StructScan(&w)
	if err != nil {
		return model.WordWeight{}, fmt.Errorf("%w: upsert word weight: %v", store.ErrUnavailable, err)
	}
	return w, nil
}

func (s *Storage) IncrementSynonym(ctx context.Context, word, synonym string, initial, step, ceiling float64) (model.SynonymPair, error) {
	var p model.SynonymPair
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO synonyms (word, synonym, confidence)
		VALUES ($1, $2, $3::double precision)
		ON CONFLICT (word, synonym) DO UPDATE SET
			confidence = LEAST($5::double precision, ROUND((synonyms.confidence + $4::double precision)::numeric, 2)::double precision)
		RETURNING word, synonym, confidence
	`, word, synonym, initial, step, ceiling).StructScan(&p)
	if err != nil {
		return model.SynonymPair{}, fmt.Errorf("%w: upsert synonym: %v", store.ErrUnavailable, err)
	}
	return p, nil
}

func (s *Storage) AppendConfirmation(ctx context.Context, rec model.ConfirmationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO confirmation_history (id, user_id, cliente_desc, partida_desc, partida_id, created_at)
		VALUES (:id, NULLIF(:user_id, ''), :cliente_desc, :partida_desc, NULLIF(:partida_id, ''), :created_at)
	`, rec)
	if err != nil {
		return fmt.Errorf("%w: append confirmation: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Storage) Stats(ctx context.Context) (model.LearningStats, error) {
	var st struct {
		Confirmations int `db:"confirmations"`
		Words         int `db:"words"`
		Synonyms      int `db:"synonyms"`
	}
	err := s.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(*) FROM confirmation_history) AS confirmations,
			(SELECT COUNT(*) FROM word_weights) AS words,
			(SELECT COUNT(*) FROM synonyms) AS synonyms
	`)
	if err != nil {
		return model.LearningStats{}, fmt.Errorf("%w: stats: %v", store.ErrUnavailable, err)
	}
	return model.LearningStats{
		TotalConfirmations: st.Confirmations,
		UniqueWords:        st.Words,
		SynonymPairs:       st.Synonyms,
	}, nil
}

// NULL means no limit in Postgres.
func limitOrNull(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

var (
	_ store.CatalogStore  = (*Storage)(nil)
	_ store.LearningStore = (*Storage)(nil)
)

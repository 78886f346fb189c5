// Package sqlite is the local persisted store the learning loop and catalog
// reads fall back to when the remote store is unreachable.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/store"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type Storage struct {
	db *sql.DB
}

// Open opens (and creates) the database at path and runs migrations.
// ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("sqlite: empty path")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection serializes read-modify-write increments
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Storage{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS word_weights (
		word TEXT PRIMARY KEY,
		weight REAL NOT NULL DEFAULT 1,
		frequency INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_word_weights_frequency ON word_weights(frequency)`,
	`CREATE TABLE IF NOT EXISTS synonyms (
		word TEXT NOT NULL,
		synonym TEXT NOT NULL,
		confidence REAL NOT NULL,
		PRIMARY KEY (word, synonym)
	)`,
	`CREATE TABLE IF NOT EXISTS confirmation_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		cliente_desc TEXT NOT NULL,
		partida_desc TEXT NOT NULL,
		partida_id TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_snapshot (
		pos INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		codigo TEXT NOT NULL,
		descripcion TEXT NOT NULL,
		categoria TEXT,
		unidad TEXT,
		precio_unitario TEXT NOT NULL
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

func (s *Storage) FetchWordWeights(ctx context.Context, limit int) (model.WeightTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word, weight FROM word_weights ORDER BY frequency DESC, word LIMIT ?`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query word weights: %w", err)
	}
	defer rows.Close()

	out := make(model.WeightTable)
	for rows.Next() {
		var word string
		var weight float64
		if err := rows.Scan(&word, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan word weight: %w", err)
		}
		out[word] = weight
	}
	return out, rows.Err()
}

func (s *Storage) FetchSynonyms(ctx context.Context, limit int) (model.SynonymTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word, synonym FROM synonyms ORDER BY confidence DESC, word, synonym LIMIT ?`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query synonyms: %w", err)
	}
	defer rows.Close()

	out := make(model.SynonymTable)
	for rows.Next() {
		var word, syn string
		if err := rows.Scan(&word, &syn); err != nil {
			return nil, fmt.Errorf("failed to scan synonym: %w", err)
		}
		out[word] = append(out[word], syn)
	}
	return out, rows.Err()
}

func (s *Storage) IncrementWordWeight(ctx context.Context, word string, step, ceiling float64) (model.WordWeight, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WordWeight{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO word_weights (word, weight, frequency, updated_at)
		VALUES (?, MIN(?, ROUND(1 + ?, 2)), 1, ?)
		ON CONFLICT(word) DO UPDATE SET
			weight = MIN(?, ROUND(weight + ?, 2)),
			frequency = frequency + 1,
			updated_at = excluded.updated_at
	`, word, ceiling, step, now, ceiling, step); err != nil {
		return model.WordWeight{}, fmt.Errorf("failed to upsert word weight: %w", err)
	}

	w := model.WordWeight{Word: word}
	if err := tx.QueryRowContext(ctx,
		`SELECT weight, frequency, updated_at FROM word_weights WHERE word = ?`, word,
	).Scan(&w.Weight, &w.Frequency, &w.UpdatedAt); err != nil {
		return model.WordWeight{}, fmt.Errorf("failed to read word weight: %w", err)
	}
	return w, tx.Commit()
}

func (s *Storage) IncrementSynonym(ctx context.Context, word, synonym string, initial, step, ceiling float64) (model.SynonymPair, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.SynonymPair{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO synonyms (word, synonym, confidence) VALUES (?, ?, ?)
		ON CONFLICT(word, synonym) DO UPDATE SET confidence = MIN(?, ROUND(confidence + ?, 2))
	`, word, synonym, initial, ceiling, step); err != nil {
		return model.SynonymPair{}, fmt.Errorf("failed to upsert synonym: %w", err)
	}

	p := model.SynonymPair{Word: word, Synonym: synonym}
	if err := tx.QueryRowContext(ctx,
		`SELECT confidence FROM synonyms WHERE word = ? AND synonym = ?`, word, synonym,
	).Scan(&p.Confidence); err != nil {
		return model.SynonymPair{}, fmt.Errorf("failed to read synonym: %w", err)
	}
	return p, tx.Commit()
}

func (s *Storage) AppendConfirmation(ctx context.Context, rec model.ConfirmationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO confirmation_history (id, user_id, cliente_desc, partida_desc, partida_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, nullString(rec.UserID), rec.ClientDescription, rec.CatalogDescription, nullString(rec.CatalogID), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append confirmation: %w", err)
	}
	return nil
}

func (s *Storage) Stats(ctx context.Context) (model.LearningStats, error) {
	var st model.LearningStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM confirmation_history),
			(SELECT COUNT(*) FROM word_weights),
			(SELECT COUNT(*) FROM synonyms)
	`).Scan(&st.TotalConfirmations, &st.UniqueWords, &st.SynonymPairs)
	if err != nil {
		return st, fmt.Errorf("failed to read learning stats: %w", err)
	}
	return st, nil
}

// SaveCatalogSnapshot replaces the stored snapshot atomically.
func (s *Storage) SaveCatalogSnapshot(ctx context.Context, entries []model.CatalogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_snapshot`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_snapshot (pos, id, codigo, descripcion, categoria, unidad, precio_unitario)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, i, e.ID, e.Code, e.Description, e.Category, e.Unit, e.UnitPrice.String()); err != nil {
			return fmt.Errorf("failed to store snapshot entry %s: %w", e.Code, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) LoadCatalogSnapshot(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, codigo, descripcion, COALESCE(categoria, ''), COALESCE(unidad, ''), precio_unitario
		FROM catalog_snapshot ORDER BY pos
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Code, &e.Description, &e.Category, &e.Unit, &e.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out, nil
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ store.SnapshotStore = (*Storage)(nil)
	_ store.LearningStore = (*Storage)(nil)
)

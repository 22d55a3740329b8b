package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS baskets (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	cagr REAL NOT NULL DEFAULT 0,
	score REAL NOT NULL DEFAULT 0,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS basket_assets (
	basket_id TEXT NOT NULL REFERENCES baskets(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	coin_type TEXT NOT NULL DEFAULT '',
	decimals INTEGER NOT NULL DEFAULT 0,
	price TEXT NOT NULL DEFAULT '0',
	weight REAL NOT NULL,
	pyth_feed_id TEXT NOT NULL DEFAULT '',
	icon_url TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (basket_id, position)
);
`

// SQLiteStore is a Store backed by a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Replace swaps the stored catalog for baskets in one transaction
func (s *SQLiteStore) Replace(ctx context.Context, baskets []Basket) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM basket_assets`); err != nil {
		return fmt.Errorf("failed to clear assets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM baskets`); err != nil {
		return fmt.Errorf("failed to clear baskets: %w", err)
	}

	for pos, b := range baskets {
		b = normalize(b)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO baskets (id, slug, name, category, cagr, score, position) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.Slug, b.Name, b.Category, b.CAGR, b.Score, pos)
		if err != nil {
			return fmt.Errorf("failed to write basket %s: %w", b.Slug, err)
		}
		for i, e := range b.Weights {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO basket_assets (basket_id, position, symbol, name, coin_type, decimals, price, weight, pyth_feed_id, icon_url)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, i, e.Asset.Symbol, e.Asset.Name, e.Asset.CoinType, e.Asset.Decimals, e.Asset.Price.String(), e.Weight, e.Asset.PythFeedID, e.Asset.IconURL)
			if err != nil {
				return fmt.Errorf("failed to write asset %s of %s: %w", e.Asset.Symbol, b.Slug, err)
			}
		}
	}

	return tx.Commit()
}

// Count returns the number of stored baskets
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM baskets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count baskets: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Basket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, slug, name, category, cagr, score FROM baskets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list baskets: %w", err)
	}
	var out []Basket
	for rows.Next() {
		var b Basket
		if err := rows.Scan(&b.ID, &b.Slug, &b.Name, &b.Category, &b.CAGR, &b.Score); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan basket: %w", err)
		}
		out = append(out, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		w, err := s.weights(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Weights = w
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, slugOrID string) (*Basket, error) {
	var b Basket
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, category, cagr, score FROM baskets WHERE slug = ? OR id = ? LIMIT 1`, slugOrID, slugOrID).
		Scan(&b.ID, &b.Slug, &b.Name, &b.Category, &b.CAGR, &b.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrBasketNotFound, slugOrID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read basket: %w", err)
	}

	b.Weights, err = s.weights(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) weights(ctx context.Context, basketID string) (core.WeightVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, name, coin_type, decimals, price, weight, pyth_feed_id, icon_url
		 FROM basket_assets WHERE basket_id = ? ORDER BY position`, basketID)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets: %w", err)
	}
	defer rows.Close()

	var out core.WeightVector
	for rows.Next() {
		var (
			e     core.WeightEntry
			price string
		)
		if err := rows.Scan(&e.Asset.Symbol, &e.Asset.Name, &e.Asset.CoinType, &e.Asset.Decimals, &price, &e.Weight, &e.Asset.PythFeedID, &e.Asset.IconURL); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		e.Asset.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("asset %s has invalid price %q", e.Asset.Symbol, price)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package simple

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"basket_swap/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, snap core.RunSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("run has no id")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	// Save with checksum
	checksum := sha256.Sum256(data)
	query := `INSERT OR REPLACE INTO runs (id, basket_id, mode, all_ok, data, checksum, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query, snap.ID, snap.BasketID, string(snap.Mode), snap.AllOK, string(data), checksum[:], snap.CompletedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write run to db: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadRun(ctx context.Context, id string) (*core.RunSnapshot, error) {
	var data string
	var storedChecksum []byte
	err := s.db.QueryRowContext(ctx, `SELECT data, checksum FROM runs WHERE id = ?`, id).Scan(&data, &storedChecksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run from db: %w", err)
	}
	return decodeRun(data, storedChecksum)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]core.RunSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data, checksum FROM runs ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []core.RunSnapshot
	for rows.Next() {
		var data string
		var checksum []byte
		if err := rows.Scan(&data, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		snap, err := decodeRun(data, checksum)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func decodeRun(data string, storedChecksum []byte) (*core.RunSnapshot, error) {
	computed := sha256.Sum256([]byte(data))
	if !bytes.Equal(storedChecksum, computed[:]) {
		return nil, fmt.Errorf("checksum verification failed: data corruption detected")
	}

	var snap core.RunSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

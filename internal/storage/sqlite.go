// Package storage provides the SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/miru/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		slot INTEGER NOT NULL UNIQUE,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_items_slot ON items(slot);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceItems replaces the full item table in one transaction, so a snapshot
// is either fully written or not at all.
func (s *SQLiteStore) ReplaceItems(ctx context.Context, items []*models.IndexedItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (id, slot, metadata, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		metadataJSON, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", item.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, item.ID, item.Slot, string(metadataJSON), item.CreatedAt); err != nil {
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

// ListItems returns all item records in slot order. Vectors are not stored
// here; they live in the engine's index file.
func (s *SQLiteStore) ListItems(ctx context.Context) ([]*models.IndexedItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slot, metadata, created_at FROM items ORDER BY slot ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.IndexedItem
	for rows.Next() {
		var item models.IndexedItem
		var metadataJSON string
		if err := rows.Scan(&item.ID, &item.Slot, &metadataJSON, &item.CreatedAt); err != nil {
			return nil, err
		}
		if metadataJSON != "" && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &item.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", item.ID, err)
			}
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// CountItems returns the number of stored item records.
func (s *SQLiteStore) CountItems(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

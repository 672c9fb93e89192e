package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3" // Import for side-effects only

	"mspro-labs/coffee-finder/internal/models"
)

// Connect opens a connection to the SQLite database and ensures the schema exists.
// It automatically applies recommended settings for concurrency (WAL mode).
func Connect(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Use robust connection settings to prevent "database locked" errors
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err = createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// createSchema is private as it's only called by Connect.
// The id column is indexed but not unique: uniqueness is the service's job.
func createSchema(db *sql.DB) error {
	shopsTable := `
	CREATE TABLE IF NOT EXISTS coffee_stores (
	  record_id INTEGER PRIMARY KEY AUTOINCREMENT,
	  id TEXT NOT NULL,
	  name TEXT NOT NULL,
	  address TEXT,
	  neighbourhood TEXT,
	  img_url TEXT,
	  voting INTEGER NOT NULL DEFAULT 0,
	  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	  updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_coffee_stores_id ON coffee_stores(id);
	`
	_, err := db.Exec(shopsTable)
	return err
}

// ShopTable stores coffee shops in SQLite.
type ShopTable struct {
	db *sql.DB
}

// NewShopTable wraps an open database.
func NewShopTable(db *sql.DB) *ShopTable {
	return &ShopTable{db: db}
}

const selectColumns = `record_id, id, name, address, neighbourhood, img_url, voting`

// FindByID returns every row stored for the shop id, oldest first.
func (t *ShopTable) FindByID(ctx context.Context, id string) ([]models.PersistedShop, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM coffee_stores WHERE id = ? ORDER BY record_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shops []models.PersistedShop
	for rows.Next() {
		shop, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		shops = append(shops, shop)
	}
	return shops, rows.Err()
}

// Create inserts one row and returns it.
func (t *ShopTable) Create(ctx context.Context, shop models.PersistedShop) ([]models.PersistedShop, error) {
	res, err := t.db.ExecContext(ctx, `
		INSERT INTO coffee_stores (id, name, address, neighbourhood, img_url, voting)
		VALUES (?, ?, ?, ?, ?, ?)`,
		shop.ID,
		shop.Name,
		sql.NullString{String: shop.Address, Valid: shop.Address != ""},
		sql.NullString{String: shop.Neighbourhood, Valid: shop.Neighbourhood != ""},
		sql.NullString{String: shop.ImgURL, Valid: shop.ImgURL != ""},
		shop.Voting,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", shop.ID, err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created, err := t.getByRecordID(ctx, rowID)
	if err != nil {
		return nil, err
	}
	return []models.PersistedShop{created}, nil
}

// UpdateVoting sets the vote count of one row and returns the updated row.
func (t *ShopTable) UpdateVoting(ctx context.Context, recordID string, voting int) ([]models.PersistedShop, error) {
	return t.updateRow(ctx, recordID, `voting = ?`, voting)
}

// IncrementVoting adds one vote in a single statement and returns the
// updated row.
func (t *ShopTable) IncrementVoting(ctx context.Context, recordID string) ([]models.PersistedShop, error) {
	return t.updateRow(ctx, recordID, `voting = voting + 1`)
}

func (t *ShopTable) updateRow(ctx context.Context, recordID, set string, args ...any) ([]models.PersistedShop, error) {
	rowID, err := strconv.ParseInt(recordID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid record id %q: %w", recordID, err)
	}
	res, err := t.db.ExecContext(ctx,
		`UPDATE coffee_stores SET `+set+`, updated_at = CURRENT_TIMESTAMP WHERE record_id = ?`,
		append(args, rowID)...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("record %s does not exist", recordID)
	}
	updated, err := t.getByRecordID(ctx, rowID)
	if err != nil {
		return nil, err
	}
	return []models.PersistedShop{updated}, nil
}

func (t *ShopTable) getByRecordID(ctx context.Context, rowID int64) (models.PersistedShop, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM coffee_stores WHERE record_id = ?`, rowID)
	shop, err := scanShop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PersistedShop{}, fmt.Errorf("record %d vanished", rowID)
	}
	return shop, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShop(s scanner) (models.PersistedShop, error) {
	var (
		shop                          models.PersistedShop
		rowID                         int64
		address, neighbourhood, image sql.NullString
	)
	if err := s.Scan(&rowID, &shop.ID, &shop.Name, &address, &neighbourhood, &image, &shop.Voting); err != nil {
		return models.PersistedShop{}, err
	}
	shop.RecordID = strconv.FormatInt(rowID, 10)
	shop.Address = address.String
	shop.Neighbourhood = neighbourhood.String
	shop.ImgURL = image.String
	return shop, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.CandleCache using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/candles.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Debug(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// Candles keep their position in the series so placeholders survive a round trip.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS candle_ranges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		candle_count INTEGER NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		UNIQUE (symbol, interval, start_time, end_time)
	);

	CREATE TABLE IF NOT EXISTS candles (
		range_id INTEGER NOT NULL REFERENCES candle_ranges (id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		open_time INTEGER NOT NULL,
		close_time INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (range_id, seq)
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Debug(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveRange replaces the stored series for the range in one transaction.
func (r *Repository) SaveRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64, candles []domain.Candle) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrQueryFailed, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const deleteRange = `DELETE FROM candle_ranges WHERE symbol = ? AND interval = ? AND start_time = ? AND end_time = ?`
	if _, err = tx.ExecContext(ctx, deleteRange, symbol, interval, startMillis, endMillis); err != nil {
		return fmt.Errorf("failed to clear cached range for %s %s: %w: %w", symbol, interval, ports.ErrQueryFailed, err)
	}

	const insertRange = `
	INSERT INTO candle_ranges (symbol, interval, start_time, end_time, candle_count, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, insertRange, symbol, interval, startMillis, endMillis, len(candles), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert range for %s %s: %w: %w", symbol, interval, ports.ErrQueryFailed, err)
	}
	rangeID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get range ID for %s %s: %w", symbol, interval, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO candles (range_id, seq, open_time, close_time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare candle insert: %w: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for i, c := range candles {
		if _, err = stmt.ExecContext(ctx, rangeID, i, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("failed to insert candle %d for %s %s: %w: %w", i, symbol, interval, ports.ErrQueryFailed, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit range for %s %s: %w: %w", symbol, interval, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Candle range cached", map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"candles":  len(candles),
	})
	return nil
}

// HasRange reports whether a series was saved for exactly this range.
func (r *Repository) HasRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64) (bool, error) {
	_, err := r.findRangeID(ctx, symbol, interval, startMillis, endMillis)
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindRange returns the saved series ordered as it was saved.
func (r *Repository) FindRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64) ([]domain.Candle, error) {
	rangeID, err := r.findRangeID(ctx, symbol, interval, startMillis, endMillis)
	if err != nil {
		return nil, err
	}

	const query = `
	SELECT open_time, close_time, open, high, low, close, volume
	FROM candles
	WHERE range_id = ?
	ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, rangeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s %s: %w: %w", symbol, interval, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle row: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w", err)
	}
	return candles, nil
}

func (r *Repository) findRangeID(ctx context.Context, symbol, interval string, startMillis, endMillis int64) (int64, error) {
	const query = `
	SELECT id FROM candle_ranges
	WHERE symbol = ? AND interval = ? AND start_time = ? AND end_time = ?`

	var id int64
	err := r.db.QueryRowContext(ctx, query, symbol, interval, startMillis, endMillis).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no cached range for %s %s [%d, %d]: %w", symbol, interval, startMillis, endMillis, ports.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up cached range: %w: %w", ports.ErrQueryFailed, err)
	}
	return id, nil
}

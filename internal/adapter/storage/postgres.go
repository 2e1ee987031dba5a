package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tailwatch/internal/domain/model"
)

// PostgresAdapter archives every refreshed instrument universe. Signals are
// not persisted.
type PostgresAdapter struct {
	db *sql.DB
}

func NewPostgresAdapter(connStr string, maxOpenConns int, connMaxLifetime time.Duration) (*PostgresAdapter, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresAdapter{db: db}, nil
}

func (a *PostgresAdapter) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS instrument_snapshots (
		id SERIAL PRIMARY KEY,
		fetched_at TIMESTAMPTZ NOT NULL,
		source VARCHAR(50) NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		base_asset VARCHAR(16) NOT NULL,
		quote_asset VARCHAR(16) NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_fetched_symbol ON instrument_snapshots(fetched_at, symbol);
	`
	_, err := a.db.ExecContext(ctx, query)
	return err
}

// SaveUniverseSnapshot writes the whole snapshot in one COPY inside a
// transaction, so a snapshot is either fully archived or not at all.
func (a *PostgresAdapter) SaveUniverseSnapshot(ctx context.Context, snapshot model.UniverseSnapshot) error {
	if len(snapshot.Instruments) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("instrument_snapshots",
		"fetched_at", "source", "symbol", "base_asset", "quote_asset", "price", "volume"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, i := range snapshot.Instruments {
		if _, err := stmt.ExecContext(ctx, snapshot.FetchedAt, snapshot.Source,
			i.Symbol, i.BaseAsset, i.QuoteAsset, i.Price, i.Volume); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy instrument %s: %w", i.Symbol, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LastSnapshotTime returns the zero time when nothing has been archived yet.
func (a *PostgresAdapter) LastSnapshotTime(ctx context.Context) (time.Time, error) {
	var last sql.NullTime
	err := a.db.QueryRowContext(ctx, `SELECT MAX(fetched_at) FROM instrument_snapshots`).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last snapshot: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (a *PostgresAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *PostgresAdapter) Close() error {
	return a.db.Close()
}

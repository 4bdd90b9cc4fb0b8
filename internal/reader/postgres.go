package reader

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/model"
)

// Postgres reads a trace from a PostgreSQL table. The configured query must
// return (table_id, key, ts) rows in trace order with the key as bytea.
type Postgres struct {
	db      *sql.DB
	cfg     *config.DatabaseConfig
	tableID uint64
}

// NewPostgres opens a connection pool for the trace database.
func NewPostgres(cfg *config.DatabaseConfig, tableID uint64) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	// A run issues one query at a time
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{
		db:      db,
		cfg:     cfg,
		tableID: tableID,
	}, nil
}

// Ping tests the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Scan runs the trace query and streams its rows.
func (p *Postgres) Scan(ctx context.Context, fn func(model.Record) error) error {
	rows, err := p.db.QueryContext(ctx, p.cfg.Query, int64(p.tableID))
	if err != nil {
		return fmt.Errorf("querying trace: %w", err)
	}
	defer rows.Close()

	row := 0
	for rows.Next() {
		row++
		var (
			tableID int64
			key     []byte
			ts      int64
		)
		if err := rows.Scan(&tableID, &key, &ts); err != nil {
			return fmt.Errorf("scanning trace row %d: %w", row, err)
		}
		if tableID < 0 || ts < 0 {
			return malformed(p.Name(), row, "negative table id or timestamp (%d, %d)", tableID, ts)
		}
		if err := fn(model.Record{TableID: uint64(tableID), Key: key, Timestamp: uint64(ts)}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating trace rows: %w", err)
	}
	return nil
}

// Name describes the database.
func (p *Postgres) Name() string {
	return fmt.Sprintf("postgres://%s:%d/%s", p.cfg.Host, p.cfg.Port, p.cfg.DBName)
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

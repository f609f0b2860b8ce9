package eventlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore appends events to the app_logs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database, applies pending migrations and
// returns a store.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := migrate(dsn); err != nil {
		return nil, fmt.Errorf("migrate event log: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open event log pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping event log database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// migrate runs goose over a short-lived database/sql connection; the
// pgxpool handles everything after.
func migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Append inserts one event row.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode event metadata: %w", err)
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO app_logs (assistant_id, event_type, metadata, created_at) VALUES ($1, $2, $3, $4)`,
		nullable(entry.AssistantID), entry.EventType, metadata, at)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

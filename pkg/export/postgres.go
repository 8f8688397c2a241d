package export

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TablePrefix is prepended to every table created in PostgreSQL.
const TablePrefix = "vre_"

// PostgresSink writes tables into PostgreSQL, one SQL table per metric.
// Rows are stamped with the run id and snapshot; re-exporting the same run
// and snapshot replaces the earlier rows.
type PostgresSink struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	migrated map[string]bool
}

// NewPostgresSink connects to databaseURL and verifies the connection.
func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &PostgresSink{pool: pool, migrated: make(map[string]bool)}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

// Export creates the table if needed and replaces the run's rows.
func (s *PostgresSink) Export(ctx context.Context, run RunInfo, table *Table) error {
	if err := s.migrate(ctx, table); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	name := SQLTableName(table)
	_, err = tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE run_id = $1 AND snapshot_at = $2", pgx.Identifier{name}.Sanitize()),
		run.ID, run.SnapshotAt)
	if err != nil {
		return err
	}

	rows := make([][]any, len(table.Rows))
	for i, row := range table.Rows {
		rows[i] = append([]any{run.ID, run.SnapshotAt}, row...)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{name}, CopyColumns(table), pgx.CopyFromRows(rows)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresSink) migrate(ctx context.Context, table *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated[table.Name] {
		return nil
	}
	if _, err := s.pool.Exec(ctx, CreateTableSQL(table)); err != nil {
		return err
	}
	s.migrated[table.Name] = true
	return nil
}

// Close closes the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// SQLTableName is the PostgreSQL table holding table.
func SQLTableName(table *Table) string {
	return TablePrefix + table.Name
}

// CopyColumns lists the SQL columns in row order, run stamp first.
func CopyColumns(table *Table) []string {
	cols := []string{"run_id", "snapshot_at"}
	for _, c := range table.Columns {
		cols = append(cols, SQLName(c.Name))
	}
	return cols
}

// CreateTableSQL returns the idempotent DDL for table.
func CreateTableSQL(table *Table) string {
	name := SQLTableName(table)
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", pgx.Identifier{name}.Sanitize())
	b.WriteString("\trun_id UUID NOT NULL,\n\tsnapshot_at TIMESTAMPTZ NOT NULL")
	for _, c := range table.Columns {
		fmt.Fprintf(&b, ",\n\t%s %s", pgx.Identifier{SQLName(c.Name)}.Sanitize(), sqlType(c.Type))
	}
	b.WriteString("\n);\n")
	fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s ON %s (run_id, snapshot_at);",
		pgx.Identifier{name + "_run_idx"}.Sanitize(), pgx.Identifier{name}.Sanitize())
	return b.String()
}

func sqlType(t ColumnType) string {
	switch t {
	case Integer:
		return "BIGINT"
	case Float:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

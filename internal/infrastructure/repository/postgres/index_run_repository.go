package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

const schemaLockKey = int64(2026101401)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

type IndexRunRepository struct {
	db *sql.DB
}

func NewIndexRunRepository(db *sql.DB) *IndexRunRepository {
	return &IndexRunRepository{db: db}
}

func (r *IndexRunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS index_runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	tables_indexed INTEGER NOT NULL DEFAULT 0,
	passages INTEGER NOT NULL DEFAULT 0,
	chunks INTEGER NOT NULL DEFAULT 0,
	skipped JSONB NOT NULL DEFAULT '[]'::jsonb,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_index_runs_created_at ON index_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *IndexRunRepository) CreateRun(ctx context.Context, run *domain.IndexRun) error {
	skipped, err := marshalSkipped(run.Skipped)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO index_runs (id, status, tables_indexed, passages, chunks, skipped, error_message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, run.ID, string(run.Status), run.Tables, run.Passages, run.Chunks, skipped, nullString(run.Error), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create index run: %w", err)
	}
	return nil
}

func (r *IndexRunRepository) GetRun(ctx context.Context, id string) (*domain.IndexRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, status, tables_indexed, passages, chunks, skipped, error_message, created_at, started_at, finished_at
FROM index_runs
WHERE id = $1
`, id)

	var (
		run        domain.IndexRun
		status     string
		skipped    []byte
		errMessage sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(&run.ID, &status, &run.Tables, &run.Passages, &run.Chunks, &skipped, &errMessage, &run.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get index run", fmt.Errorf("index run not found: id=%s", id))
		}
		return nil, fmt.Errorf("get index run: %w", err)
	}

	run.Status = domain.IndexRunStatus(status)
	run.Error = errMessage.String
	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &run.Skipped); err != nil {
			return nil, fmt.Errorf("decode skipped tables: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func (r *IndexRunRepository) MarkRunning(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE index_runs
SET status = $2, started_at = $3
WHERE id = $1
`, id, string(domain.IndexRunRunning), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark index run running: %w", err)
	}
	return requireRow(result, id)
}

func (r *IndexRunRepository) Finish(ctx context.Context, id string, status domain.IndexRunStatus, stats domain.IndexStats, errMessage string) error {
	skipped, err := marshalSkipped(stats.Skipped)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE index_runs
SET status = $2, tables_indexed = $3, passages = $4, chunks = $5, skipped = $6, error_message = $7, finished_at = $8
WHERE id = $1
`, id, string(status), stats.Tables, stats.Passages, stats.Chunks, skipped, nullString(errMessage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finish index run: %w", err)
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("index run rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update index run", fmt.Errorf("index run not found: id=%s", id))
	}
	return nil
}

func marshalSkipped(skipped []string) ([]byte, error) {
	if skipped == nil {
		skipped = []string{}
	}
	raw, err := json.Marshal(skipped)
	if err != nil {
		return nil, fmt.Errorf("encode skipped tables: %w", err)
	}
	return raw, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

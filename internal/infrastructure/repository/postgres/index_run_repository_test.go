package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

func TestIndexRunRepositoryCreateRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	created := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO index_runs").
		WithArgs("run-1", "queued", 0, 0, 0, []byte("[]"), sqlmock.AnyArg(), created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &domain.IndexRun{ID: "run-1", Status: domain.IndexRunQueued, CreatedAt: created}
	if err := NewIndexRunRepository(db).CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexRunRepositoryGetRunDecodesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "status", "tables_indexed", "passages", "chunks", "skipped", "error_message", "created_at", "started_at", "finished_at"}).
		AddRow("run-2", "completed_with_errors", 1, 6, 6, []byte(`["REXP"]`), nil, now, now, now)
	mock.ExpectQuery("FROM index_runs").WithArgs("run-2").WillReturnRows(rows)

	run, err := NewIndexRunRepository(db).GetRun(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != domain.IndexRunCompletedWithErrors || run.Passages != 6 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(run.Skipped) != 1 || run.Skipped[0] != "REXP" {
		t.Fatalf("unexpected skipped %v", run.Skipped)
	}
	if run.StartedAt == nil || run.FinishedAt == nil || run.Error != "" {
		t.Fatalf("expected timestamps and no error, got %+v", run)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexRunRepositoryGetRunNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM index_runs").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewIndexRunRepository(db).GetRun(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIndexRunRepositoryFinishReturnsNotFoundWhenNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE index_runs").
		WithArgs("missing", "failed", 0, 0, 0, []byte("[]"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewIndexRunRepository(db).Finish(context.Background(), "missing", domain.IndexRunFailed, domain.IndexStats{}, "boom")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexRunRepositoryEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS index_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := NewIndexRunRepository(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

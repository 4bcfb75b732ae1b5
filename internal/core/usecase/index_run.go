package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

type IndexRunUseCase struct {
	runs     ports.IndexRunStore
	indexer  ports.KnowledgeIndexer
	observer ports.PipelineObserver
}

func NewIndexRunUseCase(runs ports.IndexRunStore, indexer ports.KnowledgeIndexer, observer ports.PipelineObserver) *IndexRunUseCase {
	return &IndexRunUseCase{
		runs:     runs,
		indexer:  indexer,
		observer: observerOrNop(observer),
	}
}

// Enqueue records a new queued run and returns it without starting work.
func (uc *IndexRunUseCase) Enqueue(ctx context.Context) (*domain.IndexRun, error) {
	run := &domain.IndexRun{
		ID:        uuid.NewString(),
		Status:    domain.IndexRunQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create index run: %w", err)
	}
	return run, nil
}

func (uc *IndexRunUseCase) GetRun(ctx context.Context, id string) (*domain.IndexRun, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get index run", errors.New("run id is required"))
	}
	return uc.runs.GetRun(ctx, id)
}

// Execute runs the indexer for a queued run and records the terminal status.
// The returned error is the indexing failure, if any, after it was recorded.
func (uc *IndexRunUseCase) Execute(ctx context.Context, runID string) error {
	if err := uc.runs.MarkRunning(ctx, runID); err != nil {
		return fmt.Errorf("set status=running: %w", err)
	}
	started := time.Now()
	slog.Info("index run started", "run_id", runID)

	stats, runErr := uc.indexer.IndexAll(ctx)
	status := runStatus(stats, runErr)
	errMessage := ""
	if runErr != nil {
		errMessage = runErr.Error()
	}

	// the run context may be spent by now; the status write must still land
	finishCtx := context.WithoutCancel(ctx)
	if err := uc.runs.Finish(finishCtx, runID, status, stats, errMessage); err != nil {
		if runErr != nil {
			return fmt.Errorf("%w; finish index run: %v", runErr, err)
		}
		return fmt.Errorf("finish index run: %w", err)
	}

	elapsed := time.Since(started).Seconds()
	uc.observer.ObserveIndexRun(string(status), elapsed)
	slog.Info("index run finished",
		"run_id", runID,
		"status", status,
		"tables", stats.Tables,
		"passages", stats.Passages,
		"chunks", stats.Chunks,
		"skipped", len(stats.Skipped),
		"duration_seconds", elapsed,
	)
	return runErr
}

func runStatus(stats domain.IndexStats, err error) domain.IndexRunStatus {
	switch {
	case err != nil:
		return domain.IndexRunFailed
	case len(stats.Skipped) > 0:
		return domain.IndexRunCompletedWithErrors
	default:
		return domain.IndexRunCompleted
	}
}

// Abandon marks a run failed before it ever started, e.g. when dispatch fails.
func (uc *IndexRunUseCase) Abandon(ctx context.Context, runID string, cause error) error {
	message := "abandoned"
	if cause != nil {
		message = cause.Error()
	}
	if err := uc.runs.Finish(ctx, runID, domain.IndexRunFailed, domain.IndexStats{}, message); err != nil {
		return fmt.Errorf("abandon index run: %w", err)
	}
	uc.observer.ObserveIndexRun(string(domain.IndexRunFailed), 0)
	return nil
}

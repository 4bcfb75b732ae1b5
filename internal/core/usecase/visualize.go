package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

const visualizeDoneMessage = "done"

type VisualizeUseCase struct {
	selector   *SelectPagesUseCase
	dataset    *BuildDatasetUseCase
	runs       *IndexRunUseCase
	dispatcher ports.IndexDispatcher
}

func NewVisualizeUseCase(
	selector *SelectPagesUseCase,
	dataset *BuildDatasetUseCase,
	runs *IndexRunUseCase,
	dispatcher ports.IndexDispatcher,
) *VisualizeUseCase {
	return &VisualizeUseCase{
		selector:   selector,
		dataset:    dataset,
		runs:       runs,
		dispatcher: dispatcher,
	}
}

// Visualize selects statement pages, rebuilds every company table and then
// hands knowledge indexing to the dispatcher. Indexing never blocks the
// caller; its progress is read through the returned run ID.
func (uc *VisualizeUseCase) Visualize(ctx context.Context) (*domain.VisualizeResult, error) {
	result := &domain.VisualizeResult{Name: visualizeDoneMessage}

	result.Selection = uc.selector.SelectAll(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("page selection: %w", err)
	}
	result.Extraction = uc.dataset.BuildAll(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}

	run, err := uc.runs.Enqueue(ctx)
	if err != nil {
		slog.Error("index run not queued", "error", err)
		return result, nil
	}
	result.RunID = run.ID

	if err := uc.dispatcher.Dispatch(ctx, run.ID); err != nil {
		slog.Error("index run dispatch failed", "run_id", run.ID, "error", err)
		if abandonErr := uc.runs.Abandon(context.WithoutCancel(ctx), run.ID, fmt.Errorf("dispatch: %w", err)); abandonErr != nil {
			slog.Error("index run status not recorded", "run_id", run.ID, "error", abandonErr)
		}
		return result, nil
	}
	slog.Info("index run dispatched", "run_id", run.ID)
	return result, nil
}

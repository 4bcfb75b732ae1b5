package ports

import (
	"context"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

// ReportAcquirer is the inbound contract for downloading a company's reports.
type ReportAcquirer interface {
	Acquire(ctx context.Context, companyName string) (*domain.AcquireResult, error)
}

// Visualizer runs page selection, extraction and table assembly, then
// dispatches knowledge indexing in the background.
type Visualizer interface {
	Visualize(ctx context.Context) (*domain.VisualizeResult, error)
}

// QueryAnswerer answers a free-text financial question.
type QueryAnswerer interface {
	Answer(ctx context.Context, question string) (*domain.QueryAnswer, error)
}

// IndexRunReader is the read model for background indexing status.
type IndexRunReader interface {
	GetRun(ctx context.Context, id string) (*domain.IndexRun, error)
}

// KnowledgeIndexer rebuilds vector entries from the persisted tables.
type KnowledgeIndexer interface {
	IndexAll(ctx context.Context) (domain.IndexStats, error)
}

// IndexRunExecutor executes one queued index run and records its status.
type IndexRunExecutor interface {
	Execute(ctx context.Context, runID string) error
}

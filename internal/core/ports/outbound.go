package ports

import (
	"context"
	"io"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

// ReportSource lists and downloads report PDFs published for a company.
type ReportSource interface {
	ListReportLinks(ctx context.Context, company domain.Company) ([]string, error)
	Download(ctx context.Context, url string, w io.Writer) error
}

// FileStore is the local data area holding raw, selected and tabular files.
type FileStore interface {
	List(ctx context.Context, dir, ext string) ([]string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data io.Reader) error
	Exists(ctx context.Context, path string) (bool, error)
}

// PDFPages reads page text from a PDF and carves single pages out of it.
type PDFPages interface {
	PageTexts(ctx context.Context, data []byte) (PageIterator, error)
	ExtractPage(ctx context.Context, data []byte, page int, w io.Writer) error
}

// PageIterator yields page text in document order. Close must be called on
// every path.
type PageIterator interface {
	NumPages() int
	// Text returns the plain text of a 1-based page.
	Text(page int) (string, error)
	Close() error
}

// MetricModel sends one statement PDF to the generative model with the
// extraction prompt and returns the raw text response.
type MetricModel interface {
	ExtractMetrics(ctx context.Context, filename string, pdf []byte) (string, error)
}

// TableStore persists and reloads company tables.
type TableStore interface {
	Save(ctx context.Context, path string, table *domain.CompanyTable) error
	Load(ctx context.Context, path string) (*domain.LoadedTable, error)
}

// TableExporter writes an auxiliary rendering of all tables, e.g. a workbook.
type TableExporter interface {
	Export(ctx context.Context, tables []*domain.CompanyTable) error
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into bounded chunks.
type Chunker interface {
	Split(text string) []string
}

// VectorIndex is the similarity store for embedded chunks.
type VectorIndex interface {
	EnsureIndex(ctx context.Context, spec domain.IndexSpec) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
}

// TextGenerator produces free text and planner JSON from prompts.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error)
	GenerateJSON(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Calculator evaluates deterministic arithmetic expressions.
type Calculator interface {
	Evaluate(ctx context.Context, expression string) (string, error)
}

// IndexRunStore persists background indexing status records.
type IndexRunStore interface {
	CreateRun(ctx context.Context, run *domain.IndexRun) error
	GetRun(ctx context.Context, id string) (*domain.IndexRun, error)
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status domain.IndexRunStatus, stats domain.IndexStats, errMessage string) error
}

// IndexDispatcher hands a queued index run to whatever executes it.
type IndexDispatcher interface {
	Dispatch(ctx context.Context, runID string) error
}

// PipelineObserver receives stage outcomes for metrics.
type PipelineObserver interface {
	ObserveDocument(stage, company, status string)
	ObserveIndexRun(status string, seconds float64)
	ObserveAgentRun(stopReason string, iterations int)
}

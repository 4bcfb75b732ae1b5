package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

const (
	yearColumn        = "Year"
	missingDataPoint  = "N/A"
	defaultEmbedBatch = 32
)

type IndexKnowledgeUseCase struct {
	companies []domain.Company
	files     ports.FileStore
	tables    ports.TableStore
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	spec      domain.IndexSpec
	batchSize int
}

func NewIndexKnowledgeUseCase(
	companies []domain.Company,
	files ports.FileStore,
	tables ports.TableStore,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	spec domain.IndexSpec,
	batchSize int,
) *IndexKnowledgeUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatch
	}
	return &IndexKnowledgeUseCase{
		companies: companies,
		files:     files,
		tables:    tables,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		spec:      spec,
		batchSize: batchSize,
	}
}

// IndexAll rebuilds passages from every persisted company table and appends
// their chunks to the vector index. A failure to ensure the index aborts the
// run before anything is read.
func (uc *IndexKnowledgeUseCase) IndexAll(ctx context.Context) (domain.IndexStats, error) {
	stats := domain.IndexStats{Skipped: []string{}}

	if err := uc.index.EnsureIndex(ctx, uc.spec); err != nil {
		return stats, fmt.Errorf("ensure vector index: %w", err)
	}

	passages := make([]domain.Passage, 0)
	for _, company := range uc.companies {
		table, err := uc.loadTable(ctx, company)
		if err != nil {
			slog.Warn("skipping company table", "company", company.Symbol, "path", company.OutputCSV, "error", err)
			stats.Skipped = append(stats.Skipped, company.OutputCSV)
			continue
		}
		stats.Tables++
		rendered := RenderPassages(company, table)
		slog.Info("rendered passages", "company", company.Symbol, "rows", len(table.Rows), "passages", len(rendered))
		passages = append(passages, rendered...)
	}
	stats.Passages = len(passages)
	if len(passages) == 0 {
		slog.Warn("no passages to index")
		return stats, nil
	}

	chunks := uc.chunkPassages(passages)
	for start := 0; start < len(chunks); start += uc.batchSize {
		end := min(start+uc.batchSize, len(chunks))
		if err := uc.indexBatch(ctx, chunks[start:end]); err != nil {
			return stats, err
		}
		stats.Chunks += end - start
	}
	return stats, nil
}

func (uc *IndexKnowledgeUseCase) loadTable(ctx context.Context, company domain.Company) (*domain.LoadedTable, error) {
	exists, err := uc.files.Exists(ctx, company.OutputCSV)
	if err != nil {
		return nil, fmt.Errorf("stat table: %w", err)
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrNotFound, "load table", errors.New("table file does not exist"))
	}
	table, err := uc.tables.Load(ctx, company.OutputCSV)
	if err != nil {
		return nil, fmt.Errorf("load table: %w", err)
	}
	return table, nil
}

func (uc *IndexKnowledgeUseCase) chunkPassages(passages []domain.Passage) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(passages))
	for _, passage := range passages {
		for i, text := range uc.chunker.Split(passage.Text) {
			chunks = append(chunks, domain.Chunk{
				Text:       text,
				ChunkIndex: i,
				Metadata:   passage.Metadata,
			})
		}
	}
	return chunks
}

func (uc *IndexKnowledgeUseCase) indexBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(batch) {
		return domain.WrapError(
			domain.ErrMalformedModel,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
		)
	}
	if err := uc.index.Upsert(ctx, batch, vectors); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// RenderPassages turns each table row into a self-describing passage. Empty
// cells are left out of the values list.
func RenderPassages(company domain.Company, table *domain.LoadedTable) []domain.Passage {
	dataPointIdx, yearIdx := -1, -1
	for i, column := range table.Header {
		switch column {
		case domain.DataPointColumn:
			dataPointIdx = i
		case yearColumn:
			yearIdx = i
		}
	}

	sourceFile := table.SourceFile
	if sourceFile == "" {
		sourceFile = filepath.Base(company.OutputCSV)
	}

	passages := make([]domain.Passage, 0, len(table.Rows))
	for rowIndex, row := range table.Rows {
		dataPoint := missingDataPoint
		if dataPointIdx >= 0 && dataPointIdx < len(row) {
			dataPoint = row[dataPointIdx]
		}

		values := make([]string, 0, len(row))
		for i, cell := range row {
			if i == dataPointIdx || i >= len(table.Header) {
				continue
			}
			if strings.TrimSpace(cell) == "" {
				continue
			}
			values = append(values, fmt.Sprintf("%s: %s", table.Header[i], cell))
		}

		metadata := domain.PassageMetadata{
			Company:    company.Name,
			Symbol:     company.Symbol,
			SourceFile: sourceFile,
			RowIndex:   rowIndex,
		}
		if dataPointIdx >= 0 {
			metadata.DataPointName = dataPoint
		}
		if yearIdx >= 0 && yearIdx < len(row) {
			metadata.Year = row[yearIdx]
		}

		passages = append(passages, domain.Passage{
			Text: fmt.Sprintf("Company: %s (%s). Data Point: %s. Values: %s",
				company.Name, company.Symbol, dataPoint, strings.Join(values, ", ")),
			Metadata: metadata,
		})
	}
	return passages
}

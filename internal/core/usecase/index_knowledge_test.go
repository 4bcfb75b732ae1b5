package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

func loadedDIPDTable() *domain.LoadedTable {
	return &domain.LoadedTable{
		SourceFile: "dipd_processed_financial_data.csv",
		Header:     []string{domain.DataPointColumn, "03/2024", "06/2024"},
		Rows: [][]string{
			{domain.MetricRevenue, "1250000", "1300000"},
			{domain.MetricCOGS, "-400000", ""},
		},
	}
}

func TestRenderPassagesOmitsEmptyCells(t *testing.T) {
	company := testCompany("DIPD")
	company.Name = "Dipped Products PLC"

	passages := RenderPassages(company, loadedDIPDTable())
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}
	want := "Company: Dipped Products PLC (DIPD). Data Point: COGS. Values: 03/2024: -400000"
	if passages[1].Text != want {
		t.Fatalf("passage = %q, want %q", passages[1].Text, want)
	}
	meta := passages[1].Metadata
	if meta.RowIndex != 1 || meta.DataPointName != domain.MetricCOGS || meta.SourceFile != "dipd_processed_financial_data.csv" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.Year != "" {
		t.Fatalf("year must be empty without a Year column")
	}
}

func TestRenderPassagesCarriesYearColumn(t *testing.T) {
	table := &domain.LoadedTable{
		Header: []string{domain.DataPointColumn, "Year", "Value"},
		Rows:   [][]string{{"Revenue", "2024", "10"}},
	}
	passages := RenderPassages(testCompany("REXP"), table)
	if passages[0].Metadata.Year != "2024" {
		t.Fatalf("expected year metadata, got %+v", passages[0].Metadata)
	}
	if !strings.Contains(passages[0].Text, "Year: 2024, Value: 10") {
		t.Fatalf("unexpected passage text %q", passages[0].Text)
	}
	if passages[0].Metadata.SourceFile != "rexp.csv" {
		t.Fatalf("expected source file from the configured path, got %q", passages[0].Metadata.SourceFile)
	}
}

func TestIndexAllSkipsMissingTablesAndUpsertsChunks(t *testing.T) {
	dipd, rexp := testCompany("DIPD"), testCompany("REXP")
	files := newMemFiles()
	files.put(dipd.OutputCSV, []byte("present"))
	tables := newFakeTableStore()
	tables.loaded[dipd.OutputCSV] = loadedDIPDTable()
	index := &fakeVectorIndex{}
	embedder := &fakeEmbedder{}
	spec := domain.IndexSpec{Name: "financial-data", Dimension: 768, Metric: "Cosine"}

	uc := NewIndexKnowledgeUseCase([]domain.Company{dipd, rexp}, files, tables, fakeChunker{}, embedder, index, spec, 1)
	stats, err := uc.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll() error = %v", err)
	}
	if stats.Tables != 1 || stats.Passages != 2 || stats.Chunks != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.Skipped) != 1 || stats.Skipped[0] != rexp.OutputCSV {
		t.Fatalf("expected REXP skipped, got %v", stats.Skipped)
	}
	if len(index.ensured) != 1 || index.ensured[0] != spec {
		t.Fatalf("expected index ensured with %+v, got %+v", spec, index.ensured)
	}
	if len(index.upserted) != 2 || embedder.batches != 2 {
		t.Fatalf("expected 2 chunks in 2 batches, got %d chunks / %d batches", len(index.upserted), embedder.batches)
	}
}

func TestIndexAllAbortsWhenIndexCannotBeEnsured(t *testing.T) {
	company := testCompany("DIPD")
	files := newMemFiles()
	files.put(company.OutputCSV, []byte("present"))
	tables := newFakeTableStore()
	tables.loaded[company.OutputCSV] = loadedDIPDTable()
	index := &fakeVectorIndex{ensureErr: errors.New("qdrant unavailable")}

	uc := NewIndexKnowledgeUseCase([]domain.Company{company}, files, tables, fakeChunker{}, &fakeEmbedder{}, index, domain.IndexSpec{}, 0)
	if _, err := uc.IndexAll(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(index.upserted) != 0 {
		t.Fatalf("nothing may be upserted after ensure failure")
	}
}

func TestIndexAllFailsOnVectorMismatch(t *testing.T) {
	company := testCompany("DIPD")
	files := newMemFiles()
	files.put(company.OutputCSV, []byte("present"))
	tables := newFakeTableStore()
	tables.loaded[company.OutputCSV] = loadedDIPDTable()

	uc := NewIndexKnowledgeUseCase([]domain.Company{company}, files, tables, fakeChunker{}, &fakeEmbedder{short: true}, &fakeVectorIndex{}, domain.IndexSpec{}, 0)
	_, err := uc.IndexAll(context.Background())
	if !domain.IsKind(err, domain.ErrMalformedModel) {
		t.Fatalf("expected malformed model error, got %v", err)
	}
}

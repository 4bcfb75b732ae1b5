package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

func TestBuildAllSavesAndExportsEachCompanyTable(t *testing.T) {
	dipd, rexp := testCompany("DIPD"), testCompany("REXP")
	files := newMemFiles()
	files.put(filepath.Join(dipd.OutputDir, "q1.pdf"), []byte("d1"))
	files.put(filepath.Join(rexp.OutputDir, "q1.pdf"), []byte("r1"))
	model := &fakeMetricModel{responses: map[string]string{
		"q1.pdf": `{"Period":"03/2024","Revenue":100,"COGS":"(40)"}`,
	}}
	tables := newFakeTableStore()
	exporter := &fakeExporter{}

	uc := NewBuildDatasetUseCase(
		[]domain.Company{dipd, rexp},
		NewExtractMetricsUseCase(files, model, nil),
		tables,
		exporter,
	)
	reports := uc.BuildAll(context.Background())

	if len(reports) != 2 {
		t.Fatalf("expected a report per company, got %d", len(reports))
	}
	saved, ok := tables.saved[dipd.OutputCSV]
	if !ok {
		t.Fatalf("expected DIPD table saved at %s", dipd.OutputCSV)
	}
	if got := saved.Get(domain.MetricCOGS, "03/2024"); got != "-40" {
		t.Fatalf("unexpected COGS cell %q", got)
	}
	if _, ok := tables.saved[rexp.OutputCSV]; !ok {
		t.Fatalf("expected REXP table saved")
	}
	if len(exporter.exported) != 2 {
		t.Fatalf("expected both tables exported, got %d", len(exporter.exported))
	}
}

func TestBuildAllRecordsSaveFailureAndIgnoresExportFailure(t *testing.T) {
	company := testCompany("DIPD")
	files := newMemFiles()
	files.put(filepath.Join(company.OutputDir, "q1.pdf"), []byte("d1"))
	model := &fakeMetricModel{responses: map[string]string{"q1.pdf": `{"Period":"03/2024"}`}}
	tables := newFakeTableStore()
	tables.saveErr = errors.New("disk full")
	exporter := &fakeExporter{err: errors.New("should not be called")}

	uc := NewBuildDatasetUseCase([]domain.Company{company}, NewExtractMetricsUseCase(files, model, nil), tables, exporter)
	reports := uc.BuildAll(context.Background())

	if reports[0].Outcome != domain.OutcomeFailed || reports[0].Error != "disk full" {
		t.Fatalf("expected failed report, got %+v", reports[0])
	}
	if exporter.exported != nil {
		t.Fatalf("nothing should be exported when no table was saved")
	}
}

func TestBuildAllWritesHeaderOnlyTableWhenNoDocuments(t *testing.T) {
	company := testCompany("REXP")
	tables := newFakeTableStore()

	uc := NewBuildDatasetUseCase([]domain.Company{company}, NewExtractMetricsUseCase(newMemFiles(), &fakeMetricModel{}, nil), tables, nil)
	uc.BuildAll(context.Background())

	saved, ok := tables.saved[company.OutputCSV]
	if !ok {
		t.Fatalf("expected table rewritten even without documents")
	}
	if len(saved.Header()) != 1 {
		t.Fatalf("expected header-only table, got %v", saved.Header())
	}
}

package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

type BuildDatasetUseCase struct {
	companies []domain.Company
	extractor *ExtractMetricsUseCase
	tables    ports.TableStore
	exporter  ports.TableExporter
}

func NewBuildDatasetUseCase(
	companies []domain.Company,
	extractor *ExtractMetricsUseCase,
	tables ports.TableStore,
	exporter ports.TableExporter,
) *BuildDatasetUseCase {
	return &BuildDatasetUseCase{
		companies: companies,
		extractor: extractor,
		tables:    tables,
		exporter:  exporter,
	}
}

// BuildAll extracts metrics and rewrites each company's table in full.
func (uc *BuildDatasetUseCase) BuildAll(ctx context.Context) []domain.StageReport {
	reports := make([]domain.StageReport, 0, len(uc.companies))
	built := make([]*domain.CompanyTable, 0, len(uc.companies))

	for _, company := range uc.companies {
		records, report := uc.extractor.ExtractCompany(ctx, company)
		if report.Error == "" {
			table := AssembleTable(company.Symbol, records)
			if err := uc.tables.Save(ctx, company.OutputCSV, table); err != nil {
				slog.Error("save company table", "company", company.Symbol, "path", company.OutputCSV, "error", err)
				report.Error = err.Error()
				report.Finalize()
			} else {
				slog.Info("saved company table", "company", company.Symbol, "path", company.OutputCSV, "periods", len(table.Periods))
				built = append(built, table)
			}
		}
		reports = append(reports, report)
	}

	if uc.exporter != nil && len(built) > 0 {
		if err := uc.exporter.Export(ctx, built); err != nil {
			slog.Warn("table export failed", "error", err)
		}
	}
	return reports
}

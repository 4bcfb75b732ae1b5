package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

const stagePageSelection = "page_selection"

type SelectPagesUseCase struct {
	companies []domain.Company
	files     ports.FileStore
	pdf       ports.PDFPages
	observer  ports.PipelineObserver
}

func NewSelectPagesUseCase(
	companies []domain.Company,
	files ports.FileStore,
	pdf ports.PDFPages,
	observer ports.PipelineObserver,
) *SelectPagesUseCase {
	return &SelectPagesUseCase{
		companies: companies,
		files:     files,
		pdf:       pdf,
		observer:  observerOrNop(observer),
	}
}

// SelectAll runs page selection for every configured company. Succeeded lists
// files whose statement page was found; Failed lists files that were copied
// whole or could not be processed.
func (uc *SelectPagesUseCase) SelectAll(ctx context.Context) []domain.StageReport {
	reports := make([]domain.StageReport, 0, len(uc.companies))
	for _, company := range uc.companies {
		reports = append(reports, uc.SelectCompany(ctx, company))
	}
	return reports
}

func (uc *SelectPagesUseCase) SelectCompany(ctx context.Context, company domain.Company) domain.StageReport {
	report := domain.NewStageReport(company.Symbol)

	pattern, err := company.MarkerPattern()
	if err != nil {
		report.Error = err.Error()
		report.Finalize()
		return report
	}

	filenames, err := uc.files.List(ctx, company.InputDir, ".pdf")
	if err != nil {
		slog.Error("list raw reports", "company", company.Symbol, "dir", company.InputDir, "error", err)
		report.Error = err.Error()
		report.Finalize()
		return report
	}

	for _, filename := range filenames {
		slog.Info("processing report", "company", company.Symbol, "file", filename)
		doc, err := uc.selectDocument(ctx, company, pattern, filename)
		switch {
		case err != nil:
			slog.Error("page selection failed", "company", company.Symbol, "file", filename, "error", err)
			report.Failed = append(report.Failed, filename)
			uc.observer.ObserveDocument(stagePageSelection, company.Symbol, "error")
		case doc.Matched:
			report.Succeeded = append(report.Succeeded, filename)
			uc.observer.ObserveDocument(stagePageSelection, company.Symbol, "matched")
		default:
			report.Failed = append(report.Failed, filename)
			uc.observer.ObserveDocument(stagePageSelection, company.Symbol, "copied")
		}
	}

	report.Finalize()
	slog.Info("page selection finished",
		"company", company.Symbol,
		"matched", report.Succeeded,
		"unmatched_or_failed", report.Failed,
	)
	return report
}

func (uc *SelectPagesUseCase) selectDocument(
	ctx context.Context,
	company domain.Company,
	pattern *regexp.Regexp,
	filename string,
) (domain.SelectedDocument, error) {
	inputPath := filepath.Join(company.InputDir, filename)
	outputPath := filepath.Join(company.OutputDir, filename)
	doc := domain.SelectedDocument{Company: company.Symbol, Filename: filename, Path: outputPath}

	data, err := uc.files.ReadFile(ctx, inputPath)
	if err != nil {
		return doc, fmt.Errorf("read raw report: %w", err)
	}

	page, err := uc.findMarkerPage(ctx, data, pattern)
	if err != nil {
		return doc, err
	}

	if page == 0 {
		if err := uc.files.WriteFile(ctx, outputPath, bytes.NewReader(data)); err != nil {
			return doc, fmt.Errorf("copy unmatched report: %w", err)
		}
		return doc, nil
	}

	var out bytes.Buffer
	if err := uc.pdf.ExtractPage(ctx, data, page, &out); err != nil {
		return doc, fmt.Errorf("extract page %d: %w", page, err)
	}
	if err := uc.files.WriteFile(ctx, outputPath, &out); err != nil {
		return doc, fmt.Errorf("write selected page: %w", err)
	}
	doc.Matched = true
	doc.Page = page
	slog.Info("statement page selected", "company", company.Symbol, "file", filename, "page", page)
	return doc, nil
}

// findMarkerPage returns the first 1-based page whose text matches, or 0.
func (uc *SelectPagesUseCase) findMarkerPage(ctx context.Context, data []byte, pattern *regexp.Regexp) (page int, err error) {
	pages, err := uc.pdf.PageTexts(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		if closeErr := pages.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close pdf: %w", closeErr)
		}
	}()

	for i := 1; i <= pages.NumPages(); i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		text, err := pages.Text(i)
		if err != nil {
			return 0, fmt.Errorf("read page %d text: %w", i, err)
		}
		if pattern.MatchString(text) {
			return i, nil
		}
	}
	return 0, nil
}

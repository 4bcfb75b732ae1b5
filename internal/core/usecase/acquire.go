package usecase

import (
	"bytes"
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
	maxReportsPerCompany   = 12
	invalidCompanyMessage  = "Invalid Company name"
	scrapeCompletedMessage = "Scrape Completed: %s"
)

type AcquireReportsUseCase struct {
	companies []domain.Company
	source    ports.ReportSource
	files     ports.FileStore
	observer  ports.PipelineObserver
}

func NewAcquireReportsUseCase(companies []domain.Company, source ports.ReportSource, files ports.FileStore, observer ports.PipelineObserver) *AcquireReportsUseCase {
	return &AcquireReportsUseCase{
		companies: companies,
		source:    source,
		files:     files,
		observer:  observerOrNop(observer),
	}
}

// Acquire downloads the newest quarterly reports of the company the free-form
// name refers to. An unrecognised name is a normal response, not an error.
func (uc *AcquireReportsUseCase) Acquire(ctx context.Context, companyName string) (*domain.AcquireResult, error) {
	if strings.TrimSpace(companyName) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acquire reports", errors.New("company name is required"))
	}

	company, ok := uc.resolve(companyName)
	if !ok {
		slog.Info("company is not in list", "name", companyName)
		return &domain.AcquireResult{Message: invalidCompanyMessage}, nil
	}
	slog.Info("company selected", "company", company.Symbol, "name", company.Name)

	links, err := uc.source.ListReportLinks(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("list report links for %s: %w", company.Symbol, err)
	}
	if len(links) > maxReportsPerCompany {
		links = links[:maxReportsPerCompany]
	}
	slog.Info("found report links", "company", company.Symbol, "count", len(links))

	result := &domain.AcquireResult{
		Message:    fmt.Sprintf(scrapeCompletedMessage, company.Name),
		Company:    company.Symbol,
		Downloaded: []string{},
		Failed:     []string{},
	}
	for i, link := range links {
		filename := ReportFilename(company.Symbol, i+1)
		if err := uc.download(ctx, company, link, filename); err != nil {
			slog.Error("report download failed", "company", company.Symbol, "url", link, "error", err)
			result.Failed = append(result.Failed, link)
			uc.observer.ObserveDocument("acquisition", company.Symbol, "error")
			continue
		}
		slog.Info("saved report", "company", company.Symbol, "file", filename)
		result.Downloaded = append(result.Downloaded, filename)
		uc.observer.ObserveDocument("acquisition", company.Symbol, "downloaded")
	}
	return result, nil
}

func (uc *AcquireReportsUseCase) resolve(name string) (domain.Company, bool) {
	for _, company := range uc.companies {
		if company.Matches(name) {
			return company, true
		}
	}
	return domain.Company{}, false
}

func (uc *AcquireReportsUseCase) download(ctx context.Context, company domain.Company, link, filename string) error {
	var buf bytes.Buffer
	if err := uc.source.Download(ctx, link, &buf); err != nil {
		return err
	}
	if err := uc.files.WriteFile(ctx, filepath.Join(company.InputDir, filename), &buf); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReportFilename is the stable on-disk name of the i-th (1-based) report.
func ReportFilename(symbol string, i int) string {
	return fmt.Sprintf("financial_report_%s_%d.pdf", symbol, i)
}

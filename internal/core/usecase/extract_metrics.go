package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

const stageMetricExtraction = "metric_extraction"

type ExtractMetricsUseCase struct {
	files    ports.FileStore
	model    ports.MetricModel
	observer ports.PipelineObserver
}

func NewExtractMetricsUseCase(files ports.FileStore, model ports.MetricModel, observer ports.PipelineObserver) *ExtractMetricsUseCase {
	return &ExtractMetricsUseCase{
		files:    files,
		model:    model,
		observer: observerOrNop(observer),
	}
}

// ExtractCompany sends every selected document of a company to the model.
// Documents whose response cannot be parsed are skipped and reported failed.
func (uc *ExtractMetricsUseCase) ExtractCompany(ctx context.Context, company domain.Company) ([]domain.MetricRecord, domain.StageReport) {
	report := domain.NewStageReport(company.Symbol)
	slog.Info("extracting metrics", "company", company.Symbol, "dir", company.OutputDir)

	filenames, err := uc.files.List(ctx, company.OutputDir, ".pdf")
	if err != nil {
		slog.Error("list selected reports", "company", company.Symbol, "error", err)
		report.Error = err.Error()
		report.Finalize()
		return nil, report
	}

	records := make([]domain.MetricRecord, 0, len(filenames))
	for _, filename := range filenames {
		record, err := uc.extractDocument(ctx, company, filename)
		if err != nil {
			slog.Error("skipping report", "company", company.Symbol, "file", filename, "error", err)
			report.Failed = append(report.Failed, filename)
			uc.observer.ObserveDocument(stageMetricExtraction, company.Symbol, "skipped")
			continue
		}
		slog.Info("extracted metrics", "company", company.Symbol, "file", filename, "period", record.Period)
		records = append(records, record)
		report.Succeeded = append(report.Succeeded, filename)
		uc.observer.ObserveDocument(stageMetricExtraction, company.Symbol, "extracted")
	}

	report.Finalize()
	return records, report
}

func (uc *ExtractMetricsUseCase) extractDocument(ctx context.Context, company domain.Company, filename string) (domain.MetricRecord, error) {
	data, err := uc.files.ReadFile(ctx, filepath.Join(company.OutputDir, filename))
	if err != nil {
		return domain.MetricRecord{}, fmt.Errorf("read selected report: %w", err)
	}
	raw, err := uc.model.ExtractMetrics(ctx, filename, data)
	if err != nil {
		return domain.MetricRecord{}, fmt.Errorf("model extraction: %w", err)
	}
	return ParseMetricResponse(filename, raw)
}

// ParseMetricResponse turns the model's raw response into a MetricRecord.
// Keys are applied in document order, so when a metric appears under both its
// canonical name and a synonym the later non-null value wins.
func ParseMetricResponse(filename, raw string) (domain.MetricRecord, error) {
	object, err := locateJSONObject(raw)
	if err != nil {
		return domain.MetricRecord{}, err
	}

	fields, err := decodeObjectFields(object)
	if err != nil {
		return domain.MetricRecord{}, domain.WrapError(domain.ErrMalformedModel, "decode metrics json", err)
	}

	record := domain.MetricRecord{
		Filename: filename,
		Period:   domain.UnknownPeriod,
		Metrics:  make(map[string]*float64, len(fields)),
	}
	for _, field := range fields {
		if field.key == domain.PeriodKey {
			record.Period = periodOf(field.value)
			continue
		}
		name := domain.NormalizeMetricName(field.key)
		parsed, err := domain.ParseMetricValue(field.value)
		if err != nil {
			slog.Warn("metric value treated as missing", "file", filename, "metric", name, "error", err)
			parsed = nil
		}
		if _, exists := record.Metrics[name]; exists && parsed == nil {
			continue
		}
		record.Metrics[name] = parsed
	}
	return record, nil
}

type jsonField struct {
	key   string
	value any
}

// decodeObjectFields reads the top-level members of a JSON object in the
// order they appear.
func decodeObjectFields(object string) ([]jsonField, error) {
	dec := json.NewDecoder(strings.NewReader(object))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("metrics payload is not a JSON object")
	}

	var fields []jsonField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in metrics object", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		fields = append(fields, jsonField{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after metrics object")
	}
	return fields, nil
}

func periodOf(value any) string {
	if value == nil {
		return domain.UnknownPeriod
	}
	period := strings.TrimSpace(fmt.Sprint(value))
	if period == "" {
		return domain.UnknownPeriod
	}
	return period
}

// locateJSONObject strips markdown fences and returns the span between the
// first opening and the last closing brace.
func locateJSONObject(raw string) (string, error) {
	text := stripCodeFence(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", domain.WrapError(domain.ErrMalformedModel, "locate metrics json", errors.New("no JSON object found in model output"))
	}
	return text[start : end+1], nil
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

package usecase

import (
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

// AssembleTable merges per-document records into the wide company table.
// Unknown periods are excluded, unparsable periods are dropped, and for a
// period reported by several documents the first record wins.
func AssembleTable(symbol string, records []domain.MetricRecord) *domain.CompanyTable {
	logPeriodDiagnostics(symbol, records)

	periods := sortedPeriods(symbol, records)
	table := domain.NewCompanyTable(symbol, periods)

	for _, period := range periods {
		record, ok := firstRecordFor(records, period)
		if !ok {
			continue
		}
		for _, metric := range domain.TargetMetrics {
			if v, present := record.Value(metric); present {
				table.Set(metric, period, domain.FormatMetricValue(v))
			}
		}
	}
	return table
}

func logPeriodDiagnostics(symbol string, records []domain.MetricRecord) {
	counts := make(map[string]int, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if _, seen := counts[r.Period]; !seen {
			order = append(order, r.Period)
		}
		counts[r.Period]++
	}
	for _, period := range order {
		if counts[period] > 1 {
			slog.Info("duplicate period detected", "company", symbol, "period", period, "files", counts[period])
		}
		if period == domain.UnknownPeriod {
			slog.Info("some files returned unknown period", "company", symbol, "files", counts[period])
		}
	}
}

func sortedPeriods(symbol string, records []domain.MetricRecord) []string {
	type datedPeriod struct {
		label string
		at    time.Time
	}

	seen := make(map[string]struct{}, len(records))
	dated := make([]datedPeriod, 0, len(records))
	for _, r := range records {
		if r.Period == domain.UnknownPeriod {
			continue
		}
		if _, dup := seen[r.Period]; dup {
			continue
		}
		seen[r.Period] = struct{}{}

		at, err := domain.ParsePeriod(r.Period)
		if err != nil {
			slog.Warn("dropping unparsable period", "company", symbol, "period", r.Period, "file", r.Filename)
			continue
		}
		dated = append(dated, datedPeriod{label: r.Period, at: at})
	}

	sort.SliceStable(dated, func(i, j int) bool {
		if dated[i].at.Equal(dated[j].at) {
			return dated[i].label < dated[j].label
		}
		return dated[i].at.Before(dated[j].at)
	})

	out := make([]string, 0, len(dated))
	for _, d := range dated {
		out = append(out, d.label)
	}
	return out
}

func firstRecordFor(records []domain.MetricRecord, period string) (domain.MetricRecord, bool) {
	for _, r := range records {
		if r.Period == period {
			return r, true
		}
	}
	return domain.MetricRecord{}, false
}

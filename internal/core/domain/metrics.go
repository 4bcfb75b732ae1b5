package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	MetricRevenue           = "Revenue"
	MetricCOGS              = "COGS"
	MetricGrossProfit       = "Gross Profit"
	MetricOperatingExpenses = "Operating Expenses"
	MetricOperatingIncome   = "Operating Income"
	MetricNetIncome         = "Net Income"

	PeriodKey     = "Period"
	UnknownPeriod = "Unknown"
	PeriodLayout  = "01/2006"
)

// TargetMetrics is the fixed row order of every company table.
var TargetMetrics = []string{
	MetricRevenue,
	MetricCOGS,
	MetricGrossProfit,
	MetricOperatingExpenses,
	MetricOperatingIncome,
	MetricNetIncome,
}

var metricSynonyms = map[string]string{
	"Cost of Goods Sold":     MetricCOGS,
	"Cost of Sales":          MetricCOGS,
	"Operating Profit":       MetricOperatingIncome,
	"Profit from Operations": MetricOperatingIncome,
	"Profit for the period":  MetricNetIncome,
	"Net Profit":             MetricNetIncome,
}

// NormalizeMetricName maps reporting synonyms onto the canonical metric names.
// Canonical names are never synonym keys, so the mapping is idempotent.
func NormalizeMetricName(name string) string {
	trimmed := strings.TrimSpace(name)
	if canonical, ok := metricSynonyms[trimmed]; ok {
		return canonical
	}
	return trimmed
}

// MetricRecord holds the figures extracted from one selected document.
// A nil value means the model reported the metric as missing.
type MetricRecord struct {
	Filename string              `json:"filename"`
	Period   string              `json:"period"`
	Metrics  map[string]*float64 `json:"metrics"`
}

// Value returns the metric value and whether it was present and non-null.
func (r MetricRecord) Value(metric string) (float64, bool) {
	v, ok := r.Metrics[metric]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// ParsePeriod parses a MM/YYYY label.
func ParsePeriod(period string) (time.Time, error) {
	t, err := time.Parse(PeriodLayout, strings.TrimSpace(period))
	if err != nil {
		return time.Time{}, WrapError(ErrInvalidInput, "parse period", err)
	}
	return t, nil
}

// ParseMetricValue converts a model-reported figure into a number. Accounting
// notation is honoured: "(400,000)" is -400000. Empty strings and "null" are
// reported as absent.
func ParseMetricValue(raw any) (*float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		return &v, nil
	case int:
		f := float64(v)
		return &f, nil
	case string:
		return parseMetricString(v)
	default:
		return nil, WrapError(ErrMalformedModel, "parse metric value", fmt.Errorf("unsupported value type %T", raw))
	}
}

func parseMetricString(raw string) (*float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") || s == "-" {
		return nil, nil
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, WrapError(ErrMalformedModel, "parse metric value", fmt.Errorf("not a number: %q", raw))
	}
	if negative {
		f = -math.Abs(f)
	}
	return &f, nil
}

// FormatMetricValue renders a value the way it is stored in the CSV table.
func FormatMetricValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package domain

const DataPointColumn = "Data Point Name"

// CompanyTable is the wide metric table for one company: one row per target
// metric, one column per reporting period in ascending order.
type CompanyTable struct {
	Symbol  string
	Metrics []string
	Periods []string
	// Cells is keyed by metric then period; absent entries render empty.
	Cells map[string]map[string]string
}

func NewCompanyTable(symbol string, periods []string) *CompanyTable {
	cells := make(map[string]map[string]string, len(TargetMetrics))
	for _, m := range TargetMetrics {
		cells[m] = make(map[string]string, len(periods))
	}
	metrics := make([]string, len(TargetMetrics))
	copy(metrics, TargetMetrics)
	return &CompanyTable{
		Symbol:  symbol,
		Metrics: metrics,
		Periods: periods,
		Cells:   cells,
	}
}

func (t *CompanyTable) Set(metric, period, value string) {
	row, ok := t.Cells[metric]
	if !ok {
		row = make(map[string]string)
		t.Cells[metric] = row
	}
	row[period] = value
}

func (t *CompanyTable) Get(metric, period string) string {
	return t.Cells[metric][period]
}

// Header returns the persisted column labels.
func (t *CompanyTable) Header() []string {
	out := make([]string, 0, len(t.Periods)+1)
	out = append(out, DataPointColumn)
	return append(out, t.Periods...)
}

// Rows returns the persisted data rows in fixed metric order.
func (t *CompanyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Metrics))
	for _, m := range t.Metrics {
		row := make([]string, 0, len(t.Periods)+1)
		row = append(row, m)
		for _, p := range t.Periods {
			row = append(row, t.Get(m, p))
		}
		rows = append(rows, row)
	}
	return rows
}

// LoadedTable is a persisted table read back as generic rows, used by the
// indexer which must cope with whatever columns the file carries.
type LoadedTable struct {
	SourceFile string
	Header     []string
	Rows       [][]string
}

package domain

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
)

// StageReport is the per-company result of a batch stage. Failed items never
// abort the batch, so callers inspect Outcome instead of error strings.
type StageReport struct {
	Company   string   `json:"company"`
	Outcome   Outcome  `json:"outcome"`
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Error     string   `json:"error,omitempty"`
}

func NewStageReport(company string) StageReport {
	return StageReport{
		Company:   company,
		Succeeded: []string{},
		Failed:    []string{},
	}
}

// Finalize derives the outcome from the recorded items.
func (r *StageReport) Finalize() {
	switch {
	case r.Error != "":
		r.Outcome = OutcomeFailed
	case len(r.Failed) == 0:
		r.Outcome = OutcomeCompleted
	case len(r.Succeeded) == 0:
		r.Outcome = OutcomeFailed
	default:
		r.Outcome = OutcomePartial
	}
}

type VisualizeResult struct {
	Name       string        `json:"name"`
	RunID      string        `json:"run_id,omitempty"`
	Selection  []StageReport `json:"selection"`
	Extraction []StageReport `json:"extraction"`
}

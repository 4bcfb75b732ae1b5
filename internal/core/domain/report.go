package domain

// RawDocument is a report PDF as acquired from the exchange, never mutated.
type RawDocument struct {
	Company  string `json:"company"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// SelectedDocument is the single statement page of a RawDocument, or a full
// copy of it when no page carried the marker pattern.
type SelectedDocument struct {
	Company  string `json:"company"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Matched  bool   `json:"matched"`
	// Page is 1-based; zero when the whole document was copied.
	Page int `json:"page,omitempty"`
}

type AcquireResult struct {
	Message    string   `json:"name"`
	Company    string   `json:"company,omitempty"`
	Downloaded []string `json:"downloaded,omitempty"`
	Failed     []string `json:"failed,omitempty"`
}

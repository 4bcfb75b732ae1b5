package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Company is one listed issuer tracked by the pipeline together with the
// filesystem layout and marker pattern used by every stage.
type Company struct {
	Symbol       string   `yaml:"symbol" json:"symbol"`
	Name         string   `yaml:"name" json:"name"`
	Aliases      []string `yaml:"aliases" json:"aliases,omitempty"`
	ProfileURL   string   `yaml:"profile_url" json:"profile_url"`
	// ReportsURL is an optional static page listing report PDFs. It is read
	// instead of the profile page when set.
	ReportsURL   string   `yaml:"reports_url" json:"reports_url,omitempty"`
	InputDir     string   `yaml:"input_dir" json:"input_dir"`
	OutputDir    string   `yaml:"output_dir" json:"output_dir"`
	KeywordRegex string   `yaml:"keyword_regex" json:"keyword_regex"`
	OutputCSV    string   `yaml:"output_csv" json:"output_csv"`
}

// MarkerPattern compiles the keyword regex as a case-insensitive pattern.
func (c Company) MarkerPattern() (*regexp.Regexp, error) {
	pattern := strings.TrimSpace(c.KeywordRegex)
	if pattern == "" {
		return nil, fmt.Errorf("company %s: keyword regex is empty", c.Symbol)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("company %s: compile keyword regex: %w", c.Symbol, err)
	}
	return re, nil
}

// Matches reports whether a free-form company name refers to this company.
func (c Company) Matches(name string) bool {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return false
	}
	if strings.EqualFold(needle, c.Symbol) {
		return true
	}
	for _, alias := range c.Aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias != "" && strings.Contains(needle, alias) {
			return true
		}
	}
	return false
}

// ValidateCompanies checks a company registry before any stage runs.
func ValidateCompanies(companies []Company) error {
	if len(companies) == 0 {
		return WrapError(ErrInvalidInput, "validate companies", fmt.Errorf("no companies configured"))
	}
	seen := make(map[string]struct{}, len(companies))
	for _, c := range companies {
		symbol := strings.TrimSpace(c.Symbol)
		if symbol == "" {
			return WrapError(ErrInvalidInput, "validate companies", fmt.Errorf("company symbol is required"))
		}
		if _, dup := seen[symbol]; dup {
			return WrapError(ErrInvalidInput, "validate companies", fmt.Errorf("duplicate symbol %s", symbol))
		}
		seen[symbol] = struct{}{}
		if strings.TrimSpace(c.InputDir) == "" || strings.TrimSpace(c.OutputDir) == "" || strings.TrimSpace(c.OutputCSV) == "" {
			return WrapError(ErrInvalidInput, "validate companies", fmt.Errorf("company %s: input_dir, output_dir and output_csv are required", symbol))
		}
		if _, err := c.MarkerPattern(); err != nil {
			return WrapError(ErrInvalidInput, "validate companies", err)
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

const cseProfileURL = "https://www.cse.lk/pages/company-profile/company-profile.component.html?symbol=%s.N0000"

// DefaultCompanies is the registry used when COMPANIES_FILE is unset.
// Paths are relative to DATA_DIR.
func DefaultCompanies() []domain.Company {
	return []domain.Company{
		{
			Symbol:       "REXP",
			Name:         "Richard Pieris Exports PLC",
			Aliases:      []string{"richard", "rexp"},
			ProfileURL:   fmt.Sprintf(cseProfileURL, "REXP"),
			InputDir:     "unprocess_data/REXP",
			OutputDir:    "extracted_data/REXP",
			KeywordRegex: `consolidated\s+income\s+statements?`,
			OutputCSV:    "processed_csv/rexp_processed_financial_data.csv",
		},
		{
			Symbol:       "DIPD",
			Name:         "Dipped Products PLC",
			Aliases:      []string{"dipped", "dipd"},
			ProfileURL:   fmt.Sprintf(cseProfileURL, "DIPD"),
			InputDir:     "unprocess_data/DIPD",
			OutputDir:    "extracted_data/DIPD",
			KeywordRegex: `STATEMENT OF PROFIT OR LOSS`,
			OutputCSV:    "processed_csv/dipd_processed_financial_data.csv",
		},
	}
}

type companiesFile struct {
	Companies []domain.Company `yaml:"companies"`
}

// LoadCompanies reads the registry from a YAML file, or returns the defaults
// when path is empty. The result is validated either way.
func LoadCompanies(path string) ([]domain.Company, error) {
	companies := DefaultCompanies()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read companies file: %w", err)
		}
		var file companiesFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse companies file %s: %w", path, err)
		}
		companies = file.Companies
	}
	for i := range companies {
		companies[i].Symbol = strings.ToUpper(strings.TrimSpace(companies[i].Symbol))
		if companies[i].ProfileURL == "" && companies[i].Symbol != "" {
			companies[i].ProfileURL = fmt.Sprintf(cseProfileURL, companies[i].Symbol)
		}
	}
	if err := domain.ValidateCompanies(companies); err != nil {
		return nil, err
	}
	return companies, nil
}

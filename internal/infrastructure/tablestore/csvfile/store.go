package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

// Store keeps company tables as CSV files in the data area. Writes replace
// the whole file.
type Store struct {
	files ports.FileStore
}

func New(files ports.FileStore) *Store {
	return &Store{files: files}
}

func (s *Store) Save(ctx context.Context, path string, table *domain.CompanyTable) error {
	if table == nil {
		return domain.WrapError(domain.ErrInvalidInput, "save table", errors.New("table is nil"))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Header()); err != nil {
		return fmt.Errorf("encode table header: %w", err)
	}
	if err := w.WriteAll(table.Rows()); err != nil {
		return fmt.Errorf("encode table rows: %w", err)
	}

	if err := s.files.WriteFile(ctx, path, &buf); err != nil {
		return fmt.Errorf("write table %s: %w", path, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, path string) (*domain.LoadedTable, error) {
	data, err := s.files.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load table", fmt.Errorf("%s is empty", path))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load table", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := &domain.LoadedTable{
		SourceFile: filepath.Base(path),
		Header:     header,
	}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "load table", err)
		}
		row := make([]string, len(header))
		copy(row, record)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

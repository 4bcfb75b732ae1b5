package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

var disableConfigDir sync.Once

// Pages reads page text with ledongthuc/pdf and writes single-page
// documents with pdfcpu.
type Pages struct{}

func NewPages() *Pages {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Pages{}
}

func (p *Pages) PageTexts(ctx context.Context, data []byte) (ports.PageIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open pdf", errors.New("empty document"))
	}

	reader, err := openReader(data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}
	return &pageIterator{reader: reader}, nil
}

// openReader guards against the parser panicking on malformed xref tables.
func openReader(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func (p *Pages) ExtractPage(ctx context.Context, data []byte, page int, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if page < 1 {
		return domain.WrapError(domain.ErrInvalidInput, "extract page", fmt.Errorf("page %d out of range", page))
	}
	conf := model.NewDefaultConfiguration()
	if err := api.Trim(bytes.NewReader(data), w, []string{strconv.Itoa(page)}, conf); err != nil {
		return fmt.Errorf("extract page %d: %w", page, err)
	}
	return nil
}

type pageIterator struct {
	reader *pdf.Reader
	closed bool
}

func (it *pageIterator) NumPages() int {
	if it.closed {
		return 0
	}
	return it.reader.NumPage()
}

func (it *pageIterator) Text(page int) (text string, err error) {
	if it.closed {
		return "", errors.New("page iterator is closed")
	}
	if page < 1 || page > it.reader.NumPage() {
		return "", fmt.Errorf("page %d out of range", page)
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read page %d: %v", page, r)
		}
	}()

	p := it.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	raw, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("read page %d: %w", page, err)
	}
	return strings.TrimSpace(raw), nil
}

func (it *pageIterator) Close() error {
	it.closed = true
	it.reader = nil
	return nil
}

package pdf

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

func TestPageTextsRejectsEmptyDocument(t *testing.T) {
	_, err := NewPages().PageTexts(context.Background(), nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPageTextsRejectsGarbage(t *testing.T) {
	_, err := NewPages().PageTexts(context.Background(), []byte("not a pdf at all"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPageTextsHonoursCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPages().PageTexts(ctx, []byte("%PDF-1.4")); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestExtractPageRejectsNonPositivePage(t *testing.T) {
	var out bytes.Buffer
	err := NewPages().ExtractPage(context.Background(), []byte("%PDF-1.4"), 0, &out)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestClosedIteratorReportsNoPages(t *testing.T) {
	it := &pageIterator{closed: true}
	if it.NumPages() != 0 {
		t.Fatalf("closed iterator must report zero pages")
	}
	if _, err := it.Text(1); err == nil {
		t.Fatalf("expected error from closed iterator")
	}
}

var statementPages = []string{
	"Chairman's review",
	"STATEMENT OF PROFIT OR LOSS",
	"Statement of financial position",
	"Notes to the financial statements",
	"STATEMENT OF PROFIT OR LOSS continued",
}

func TestPageTextsFindsFirstMarkerPage(t *testing.T) {
	pages := NewPages()
	it, err := pages.PageTexts(context.Background(), buildTextPDF(statementPages))
	if err != nil {
		t.Fatalf("PageTexts() error = %v", err)
	}
	defer it.Close()

	if it.NumPages() != len(statementPages) {
		t.Fatalf("expected %d pages, got %d", len(statementPages), it.NumPages())
	}
	marker := regexp.MustCompile(`(?i)statement of profit or loss`)
	found := 0
	for page := 1; page <= it.NumPages(); page++ {
		text, err := it.Text(page)
		if err != nil {
			t.Fatalf("Text(%d) error = %v", page, err)
		}
		if marker.MatchString(text) {
			found = page
			break
		}
	}
	if found != 2 {
		t.Fatalf("expected first marker on page 2, got %d", found)
	}
}

func TestExtractPageWritesSinglePageDocument(t *testing.T) {
	pages := NewPages()
	var out bytes.Buffer
	if err := pages.ExtractPage(context.Background(), buildTextPDF(statementPages), 2, &out); err != nil {
		t.Fatalf("ExtractPage() error = %v", err)
	}

	it, err := pages.PageTexts(context.Background(), out.Bytes())
	if err != nil {
		t.Fatalf("PageTexts(extracted) error = %v", err)
	}
	defer it.Close()
	if it.NumPages() != 1 {
		t.Fatalf("expected 1 page, got %d", it.NumPages())
	}
	text, err := it.Text(1)
	if err != nil {
		t.Fatalf("Text(1) error = %v", err)
	}
	if text != "STATEMENT OF PROFIT OR LOSS" {
		t.Fatalf("unexpected page text %q", text)
	}
}

func TestPageTextsRejectsOutOfRangePage(t *testing.T) {
	it, err := NewPages().PageTexts(context.Background(), buildTextPDF(statementPages[:1]))
	if err != nil {
		t.Fatalf("PageTexts() error = %v", err)
	}
	defer it.Close()
	if _, err := it.Text(2); err == nil {
		t.Fatalf("expected out of range error")
	}
}

// buildTextPDF writes an uncompressed PDF with one line of Helvetica text per
// page and a classic xref table.
func buildTextPDF(texts []string) []byte {
	kids := make([]string, len(texts))
	for i := range texts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(texts)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	for i, text := range texts {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, object := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, object)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

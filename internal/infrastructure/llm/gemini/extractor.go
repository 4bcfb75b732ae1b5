package gemini

import (
	"bytes"
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
)

const pdfMIMEType = "application/pdf"

// inlineLimit keeps request bodies under the inline data cap; larger PDFs
// go through the Files API.
const inlineLimit = 15 << 20

const metricExtractionPrompt = `You extract figures from quarterly financial statements of listed companies.

Rules:
1. Use only the most recent "3 months ended" column.
2. Use the Group or Consolidated figures. Ignore Company or standalone columns.
3. Take the reporting period from the heading, the column title or the footnotes.
4. A number in parentheses is negative: (3000) is -3000.
5. Apply the stated currency scale:
   - Rs. '000 means multiply by 1,000.
   - Rs. Mn or Rs. Millions means multiply by 1,000,000.
   - Rs. Bn or Rs. Billions means multiply by 1,000,000,000.
   - Without a stated unit assume full rupees.
6. Report these metrics:
   - Revenue: total revenue of the period.
   - COGS: cost of goods sold or cost of sales, as a negative number.
   - Gross Profit: Revenue minus COGS.
   - Operating Expenses: the negative sum of Distribution Costs and Administrative Expenses only.
   - Operating Income: Gross Profit plus Other Operating Income minus Operating Expenses, before finance costs and tax.
   - Net Income: profit or loss for the period after tax, including discontinued operations.
7. Reply with one JSON object and nothing else. Use null for a missing value. Format Period as MM/YYYY.

Example:
{
  "Period": "MM/YYYY",
  "Revenue": "1000000",
  "COGS": "-400000",
  "Gross Profit": "600000",
  "Operating Expenses": "-150000",
  "Operating Income": "450000",
  "Net Income": "350000"
}`

// MetricExtractor sends one statement PDF to the model with the extraction
// prompt. It returns the raw response; parsing is the caller's concern.
type MetricExtractor struct {
	client *Client
}

func NewMetricExtractor(client *Client) *MetricExtractor {
	return &MetricExtractor{client: client}
}

func (e *MetricExtractor) ExtractMetrics(ctx context.Context, filename string, pdf []byte) (string, error) {
	document, err := e.documentPart(ctx, filename, pdf)
	if err != nil {
		return "", err
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{document, genai.NewPartFromText(metricExtractionPrompt)}, genai.RoleUser),
	}
	return e.client.generate(ctx, "extract metrics", contents, generationConfig("", false))
}

func (e *MetricExtractor) documentPart(ctx context.Context, filename string, pdf []byte) (*genai.Part, error) {
	if len(pdf) <= inlineLimit || e.client.files == nil {
		return genai.NewPartFromBytes(pdf, pdfMIMEType), nil
	}

	file, err := resilience.Call(ctx, e.client.exec, "gemini.upload", classifyGeminiError, func(ctx context.Context) (*genai.File, error) {
		return e.client.files.Upload(ctx, bytes.NewReader(pdf), &genai.UploadFileConfig{
			MIMEType:    pdfMIMEType,
			DisplayName: filename,
		})
	})
	if err != nil {
		return nil, resilience.MarkTemporary("gemini upload", fmt.Errorf("gemini upload %s: %w", filename, err), classifyGeminiError)
	}
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = pdfMIMEType
	}
	return genai.NewPartFromURI(file.URI, mimeType), nil
}

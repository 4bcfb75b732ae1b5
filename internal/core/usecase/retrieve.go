package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

const (
	defaultRetrieverTopK = 5
	noContextMessage     = "No relevant financial information found for your query."
	couldNotFindMessage  = "I could not find that specific information in the available financial data."
)

// Retrieval is the outcome of one retriever call. Found is false when the
// index returned no passages, in which case Text is the fixed notice.
type Retrieval struct {
	Text    string
	Found   bool
	Sources []domain.RetrievedChunk
}

type FinancialRetriever struct {
	embedder  ports.Embedder
	index     ports.VectorIndex
	generator ports.TextGenerator
	topK      int
}

func NewFinancialRetriever(embedder ports.Embedder, index ports.VectorIndex, generator ports.TextGenerator, topK int) *FinancialRetriever {
	if topK <= 0 {
		topK = defaultRetrieverTopK
	}
	return &FinancialRetriever{
		embedder:  embedder,
		index:     index,
		generator: generator,
		topK:      topK,
	}
}

// Retrieve searches the index for passages about the query and answers it
// strictly from those passages.
func (r *FinancialRetriever) Retrieve(ctx context.Context, query string) (*Retrieval, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
	}

	vector, err := r.embedder.EmbedQuery(ctx, "Financial information about "+query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := r.index.Search(ctx, vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	if len(chunks) == 0 {
		return &Retrieval{Text: noContextMessage}, nil
	}

	answer, err := r.generator.GenerateText(ctx, "", buildQAPrompt(query, chunks))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = couldNotFindMessage
	}
	return &Retrieval{Text: answer, Found: true, Sources: chunks}, nil
}

func buildQAPrompt(question string, chunks []domain.RetrievedChunk) string {
	contextLines := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		contextLines = append(contextLines, strings.TrimSpace(chunk.Text))
	}

	return fmt.Sprintf(`You are a professional financial analyst who interprets corporate financial data.

CONTEXT:
%s

QUESTION:
%s

RULES:
1. Use only the context above and look for the exact figures requested.
2. Quarters end in March (Q1), June (Q2), September (Q3) and December (Q4).
3. Format monetary values with the currency and thousands separators.
4. Compare against earlier quarters or years when the context has them.
5. When the exact figure is missing, say so and give the closest relevant figure.
6. Explain what any ratio or percentage says about performance.
7. When nothing in the context is relevant, answer exactly: "%s"

ANSWER:
`, strings.Join(contextLines, "\n\n"), question, couldNotFindMessage)
}

package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
)

// maxEmbedBatch is the per-request limit of the batch embedding endpoint.
const maxEmbedBatch = 100

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		vectors, err := e.embed(ctx, texts[start:end], "RETRIEVAL_DOCUMENT")
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}
	config := &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: genai.Ptr(e.client.embedDim),
	}

	resp, err := resilience.Call(ctx, e.client.exec, "gemini.embed", classifyGeminiError, func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		return e.client.models.EmbedContent(ctx, e.client.embedModel, contents, config)
	})
	if err != nil {
		return nil, resilience.MarkTemporary("gemini embed", fmt.Errorf("gemini embed: %w", err), classifyGeminiError)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, domain.WrapError(domain.ErrMalformedModel, "gemini embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), got))
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for i, embedding := range resp.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, domain.WrapError(domain.ErrMalformedModel, "gemini embed", fmt.Errorf("embedding %d is empty", i))
		}
		out = append(out, embedding.Values)
	}
	return out, nil
}

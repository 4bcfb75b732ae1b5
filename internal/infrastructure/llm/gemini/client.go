package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
)

const (
	defaultLLMModel       = "gemini-2.0-flash"
	defaultEmbeddingModel = "text-embedding-004"
	defaultEmbeddingDim   = 768
)

// contentAPI is the subset of *genai.Models the adapters use.
type contentAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// fileAPI is the subset of *genai.Files used for large documents.
type fileAPI interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
}

type Config struct {
	APIKey             string
	LLMModel           string
	EmbeddingModel     string
	EmbeddingDimension int
}

// Client is the shared Gemini connection behind the extractor, embedder and
// generator.
type Client struct {
	models     contentAPI
	files      fileAPI
	llmModel   string
	embedModel string
	embedDim   int32
	exec       *resilience.Executor
}

func New(ctx context.Context, cfg Config, exec *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(sdk.Models, sdk.Files, cfg, exec), nil
}

func newClient(models contentAPI, files fileAPI, cfg Config, exec *resilience.Executor) *Client {
	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultLLMModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.EmbeddingDimension <= 0 {
		cfg.EmbeddingDimension = defaultEmbeddingDim
	}
	return &Client{
		models:     models,
		files:      files,
		llmModel:   cfg.LLMModel,
		embedModel: cfg.EmbeddingModel,
		embedDim:   int32(cfg.EmbeddingDimension),
		exec:       exec,
	}
}

func (c *Client) generate(ctx context.Context, operation string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	text, err := resilience.Call(ctx, c.exec, "gemini."+operation, classifyGeminiError, func(ctx context.Context) (string, error) {
		resp, err := c.models.GenerateContent(ctx, c.llmModel, contents, config)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	})
	if err != nil {
		return "", resilience.MarkTemporary("gemini "+operation, fmt.Errorf("gemini %s: %w", operation, err), classifyGeminiError)
	}
	return strings.TrimSpace(text), nil
}

func generationConfig(systemPrompt string, jsonOutput bool) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}
	if jsonOutput {
		config.ResponseMIMEType = "application/json"
	}
	if strings.TrimSpace(systemPrompt) != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	return config
}

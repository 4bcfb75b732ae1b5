package gemini

import (
	"context"

	"google.golang.org/genai"
)

// Generator serves the retriever's QA prompt and the agent planner.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error) {
	return g.client.generate(ctx, "generate", genai.Text(prompt), generationConfig(systemPrompt, false))
}

func (g *Generator) GenerateJSON(ctx context.Context, systemPrompt, prompt string) (string, error) {
	return g.client.generate(ctx, "plan", genai.Text(prompt), generationConfig(systemPrompt, true))
}

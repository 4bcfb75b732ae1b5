package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
)

// Client talks to the Qdrant REST API for a single collection.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, apiKey, collection string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		exec:       exec,
	}
}

// EnsureIndex creates the collection when it does not exist yet. The check
// and the create are separate calls; concurrent creators race harmlessly.
func (c *Client) EnsureIndex(ctx context.Context, spec domain.IndexSpec) error {
	if spec.Name != "" && spec.Name != c.collection {
		return domain.WrapError(domain.ErrInvalidInput, "ensure index", fmt.Errorf("index %q does not match collection %q", spec.Name, c.collection))
	}
	if spec.Dimension <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "ensure index", errors.New("dimension must be positive"))
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := c.call(ctx, "get collection", http.MethodGet, c.collectionPath(), nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != spec.Dimension {
			slog.Warn("vector index dimension differs", "collection", c.collection, "have", size, "want", spec.Dimension)
		}
		return nil
	}
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		return err
	}

	slog.Info("creating vector index", "collection", c.collection, "dimension", spec.Dimension, "metric", spec.Metric)
	body := map[string]any{
		"vectors": map[string]any{
			"size":     spec.Dimension,
			"distance": distanceName(spec.Metric),
		},
	}
	err = c.call(ctx, "create collection", http.MethodPut, c.collectionPath(), body, nil)
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}

func (c *Client) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors)))
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: chunkPayload(chunk),
		})
	}

	return c.call(ctx, "upsert points", http.MethodPut, c.collectionPath()+"/points?wait=true", map[string]any{"points": points}, nil)
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.call(ctx, "search points", http.MethodPost, c.collectionPath()+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.RetrievedChunk{
			Chunk: domain.Chunk{
				Text:       getStringPayload(r.Payload, "text"),
				ChunkIndex: getIntPayload(r.Payload, "chunk_index"),
				Metadata: domain.PassageMetadata{
					Company:       getStringPayload(r.Payload, "company"),
					Symbol:        getStringPayload(r.Payload, "symbol"),
					SourceFile:    getStringPayload(r.Payload, "source_file"),
					RowIndex:      getIntPayload(r.Payload, "row_index"),
					DataPointName: getStringPayload(r.Payload, "data_point_name"),
					Year:          getStringPayload(r.Payload, "year"),
				},
			},
			Score: r.Score,
		})
	}
	return out, nil
}

func (c *Client) collectionPath() string {
	return "/collections/" + c.collection
}

func (c *Client) call(ctx context.Context, operation, method, path string, in, out any) error {
	err := c.exec.Execute(ctx, "qdrant."+operation, nil, func(ctx context.Context) error {
		return c.do(ctx, operation, method, path, in, out)
	})
	return resilience.MarkTemporary("qdrant "+operation, err, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.StatusError{Service: "qdrant", Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func chunkPayload(chunk domain.Chunk) map[string]any {
	payload := map[string]any{
		"text":        chunk.Text,
		"chunk_index": chunk.ChunkIndex,
		"company":     chunk.Metadata.Company,
		"symbol":      chunk.Metadata.Symbol,
		"source_file": chunk.Metadata.SourceFile,
		"row_index":   chunk.Metadata.RowIndex,
	}
	if chunk.Metadata.DataPointName != "" {
		payload["data_point_name"] = chunk.Metadata.DataPointName
	}
	if chunk.Metadata.Year != "" {
		payload["year"] = chunk.Metadata.Year
	}
	return payload
}

func distanceName(metric string) string {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "dot", "dotproduct":
		return "Dot"
	case "euclid", "euclidean":
		return "Euclid"
	default:
		return "Cosine"
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

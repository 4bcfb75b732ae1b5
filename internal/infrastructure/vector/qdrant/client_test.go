package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
)

var financialSpec = domain.IndexSpec{Name: "financial-data", Dimension: 768, Metric: "cosine"}

func TestEnsureIndexCreatesMissingCollection(t *testing.T) {
	var created int32
	var createBody map[string]map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/financial-data":
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/financial-data":
			atomic.AddInt32(&created, 1)
			_ = json.NewDecoder(r.Body).Decode(&createBody)
			_, _ = w.Write([]byte(`{"result":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "secret", "financial-data", nil)
	if err := client.EnsureIndex(context.Background(), financialSpec); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	if atomic.LoadInt32(&created) != 1 {
		t.Fatalf("expected one create call")
	}
	vectors := createBody["vectors"]
	if vectors["size"] != float64(768) || vectors["distance"] != "Cosine" {
		t.Fatalf("unexpected create body %v", createBody)
	}
}

func TestEnsureIndexKeepsExistingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":768,"distance":"Cosine"}}}}}`))
	}))
	defer server.Close()

	if err := New(server.URL, "", "financial-data", nil).EnsureIndex(context.Background(), financialSpec); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
}

func TestEnsureIndexSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{MaxAttempts: 1})
	err := New(server.URL, "", "financial-data", exec).EnsureIndex(context.Background(), financialSpec)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error with body, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("503 should be temporary, got %v", err)
	}
}

func TestUpsertAndSearchRoundTripPayload(t *testing.T) {
	var upserted struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/financial-data/points":
			_ = json.NewDecoder(r.Body).Decode(&upserted)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/financial-data/points/search":
			_, _ = w.Write([]byte(`{"result":[{"score":0.87,"payload":{"text":"Company: Dipped Products PLC (DIPD). Data Point: Revenue.","symbol":"DIPD","row_index":0,"chunk_index":0,"data_point_name":"Revenue"}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "", "financial-data", nil)
	chunk := domain.Chunk{
		Text:     "Company: Dipped Products PLC (DIPD). Data Point: Revenue.",
		Metadata: domain.PassageMetadata{Company: "Dipped Products PLC", Symbol: "DIPD", SourceFile: "dipd.csv", DataPointName: "Revenue"},
	}
	if err := client.Upsert(context.Background(), []domain.Chunk{chunk, chunk}, [][]float32{{0.1}, {0.2}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(upserted.Points) != 2 || upserted.Points[0].ID == upserted.Points[1].ID {
		t.Fatalf("expected two points with distinct ids, got %+v", upserted.Points)
	}
	if upserted.Points[0].Payload["symbol"] != "DIPD" {
		t.Fatalf("unexpected payload %v", upserted.Points[0].Payload)
	}
	if _, ok := upserted.Points[0].Payload["year"]; ok {
		t.Fatalf("empty year must not be stored")
	}

	hits, err := client.Search(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Metadata.Symbol != "DIPD" || hits[0].Score != 0.87 {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestUpsertRejectsMismatch(t *testing.T) {
	err := New("http://unused", "", "c", nil).Upsert(context.Background(), []domain.Chunk{{Text: "a"}}, nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

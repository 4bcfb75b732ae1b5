package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
)

type memFiles struct {
	mu       sync.Mutex
	files    map[string][]byte
	listErr  error
	writeErr error
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string][]byte)}
}

func (f *memFiles) put(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[filepath.Clean(path)] = data
}

func (f *memFiles) get(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[filepath.Clean(path)]
	return data, ok
}

func (f *memFiles) List(_ context.Context, dir, ext string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0)
	for path := range f.files {
		if filepath.Dir(path) != filepath.Clean(dir) {
			continue
		}
		if !strings.EqualFold(filepath.Ext(path), ext) {
			continue
		}
		out = append(out, filepath.Base(path))
	}
	sort.Strings(out)
	return out, nil
}

func (f *memFiles) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, ok := f.get(path)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "read file", errors.New(path))
	}
	return data, nil
}

func (f *memFiles) WriteFile(_ context.Context, path string, data io.Reader) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.put(path, content)
	return nil
}

func (f *memFiles) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.get(path)
	return ok, nil
}

// fakePDF keys documents by their byte content; every page is one entry.
type fakePDF struct {
	docs      map[string][]string
	extracted []int
	closed    int
	opened    int
}

func (f *fakePDF) PageTexts(_ context.Context, data []byte) (ports.PageIterator, error) {
	pages, ok := f.docs[string(data)]
	if !ok {
		return nil, errors.New("malformed pdf")
	}
	f.opened++
	return &fakePageIterator{pdf: f, pages: pages}, nil
}

func (f *fakePDF) ExtractPage(_ context.Context, data []byte, page int, w io.Writer) error {
	f.extracted = append(f.extracted, page)
	_, err := fmt.Fprintf(w, "%s#page=%d", data, page)
	return err
}

type fakePageIterator struct {
	pdf   *fakePDF
	pages []string
}

func (it *fakePageIterator) NumPages() int { return len(it.pages) }

func (it *fakePageIterator) Text(page int) (string, error) {
	if page < 1 || page > len(it.pages) {
		return "", fmt.Errorf("page %d out of range", page)
	}
	return it.pages[page-1], nil
}

func (it *fakePageIterator) Close() error {
	it.pdf.closed++
	return nil
}

type fakeMetricModel struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (f *fakeMetricModel) ExtractMetrics(_ context.Context, filename string, _ []byte) (string, error) {
	f.calls = append(f.calls, filename)
	if err := f.errs[filename]; err != nil {
		return "", err
	}
	return f.responses[filename], nil
}

type fakeTableStore struct {
	saved   map[string]*domain.CompanyTable
	loaded  map[string]*domain.LoadedTable
	saveErr error
	loadErr error
}

func newFakeTableStore() *fakeTableStore {
	return &fakeTableStore{
		saved:  make(map[string]*domain.CompanyTable),
		loaded: make(map[string]*domain.LoadedTable),
	}
}

func (f *fakeTableStore) Save(_ context.Context, path string, table *domain.CompanyTable) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[path] = table
	return nil
}

func (f *fakeTableStore) Load(_ context.Context, path string) (*domain.LoadedTable, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	table, ok := f.loaded[path]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "load table", errors.New(path))
	}
	return table, nil
}

type fakeExporter struct {
	exported []*domain.CompanyTable
	err      error
}

func (f *fakeExporter) Export(_ context.Context, tables []*domain.CompanyTable) error {
	f.exported = tables
	return f.err
}

type fakeChunker struct{}

func (fakeChunker) Split(text string) []string { return []string{text} }

type fakeEmbedder struct {
	err     error
	queries []string
	batches int
	short   bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches++
	n := len(texts)
	if f.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, text)
	return []float32{0.5, 0.5}, nil
}

type fakeVectorIndex struct {
	ensureErr error
	ensured   []domain.IndexSpec
	upserted  []domain.Chunk
	hits      []domain.RetrievedChunk
	limits    []int
}

func (f *fakeVectorIndex) EnsureIndex(_ context.Context, spec domain.IndexSpec) error {
	f.ensured = append(f.ensured, spec)
	return f.ensureErr
}

func (f *fakeVectorIndex) Upsert(_ context.Context, chunks []domain.Chunk, _ [][]float32) error {
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeVectorIndex) Search(_ context.Context, _ []float32, limit int) ([]domain.RetrievedChunk, error) {
	f.limits = append(f.limits, limit)
	return f.hits, nil
}

// scriptedGenerator replays planner replies in order and answers every free
// text prompt with the same text.
type scriptedGenerator struct {
	steps     []string
	stepErr   error
	text      string
	textErr   error
	prompts   []string
	textCalls int
}

func (g *scriptedGenerator) GenerateJSON(_ context.Context, _ string, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.stepErr != nil {
		return "", g.stepErr
	}
	if len(g.steps) == 0 {
		return `{"type":"tool","tool":"financial_data_retriever","input":{"query":"revenue"}}`, nil
	}
	out := g.steps[0]
	g.steps = g.steps[1:]
	return out, nil
}

func (g *scriptedGenerator) GenerateText(context.Context, string, string) (string, error) {
	g.textCalls++
	if g.textErr != nil {
		return "", g.textErr
	}
	return g.text, nil
}

type fakeCalculator struct {
	expressions []string
}

func (f *fakeCalculator) Evaluate(_ context.Context, expression string) (string, error) {
	f.expressions = append(f.expressions, expression)
	if expression == "1/0" {
		return "", errors.New("division by zero")
	}
	return "42", nil
}

type fakeRunStore struct {
	runs      map[string]*domain.IndexRun
	createErr error
	statuses  []domain.IndexRunStatus
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[string]*domain.IndexRun)}
}

func (f *fakeRunStore) CreateRun(_ context.Context, run *domain.IndexRun) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyRun := *run
	f.runs[run.ID] = &copyRun
	f.statuses = append(f.statuses, run.Status)
	return nil
}

func (f *fakeRunStore) GetRun(_ context.Context, id string) (*domain.IndexRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get run", errors.New(id))
	}
	copyRun := *run
	return &copyRun, nil
}

func (f *fakeRunStore) MarkRunning(_ context.Context, id string) error {
	run, ok := f.runs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "mark running", errors.New(id))
	}
	run.Status = domain.IndexRunRunning
	f.statuses = append(f.statuses, run.Status)
	return nil
}

func (f *fakeRunStore) Finish(_ context.Context, id string, status domain.IndexRunStatus, stats domain.IndexStats, errMessage string) error {
	run, ok := f.runs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "finish", errors.New(id))
	}
	run.Status = status
	run.Tables = stats.Tables
	run.Passages = stats.Passages
	run.Chunks = stats.Chunks
	run.Skipped = stats.Skipped
	run.Error = errMessage
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeDispatcher struct {
	dispatched []string
	err        error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, runID string) error {
	f.dispatched = append(f.dispatched, runID)
	return f.err
}

type recordingObserver struct {
	documents []string
	runs      []string
	agents    []string
}

func (o *recordingObserver) ObserveDocument(stage, company, status string) {
	o.documents = append(o.documents, stage+"/"+company+"/"+status)
}

func (o *recordingObserver) ObserveIndexRun(status string, _ float64) {
	o.runs = append(o.runs, status)
}

func (o *recordingObserver) ObserveAgentRun(stopReason string, _ int) {
	o.agents = append(o.agents, stopReason)
}

func testCompany(symbol string) domain.Company {
	lower := strings.ToLower(symbol)
	return domain.Company{
		Symbol:       symbol,
		Name:         symbol + " PLC",
		Aliases:      []string{lower},
		InputDir:     "raw/" + symbol,
		OutputDir:    "selected/" + symbol,
		KeywordRegex: `statement\s+of\s+profit\s+or\s+loss`,
		OutputCSV:    "csv/" + lower + ".csv",
	}
}

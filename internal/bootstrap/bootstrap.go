package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/quarterly-financial-analyser/internal/config"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"
	"github.com/kirillkom/quarterly-financial-analyser/internal/core/usecase"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/calculator"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/chunking"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/queue/inproc"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/queue/nats"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/repository/memory"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/scraper/cse"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/tablestore/csvfile"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/tablestore/xlsx"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/quarterly-financial-analyser/internal/observability/metrics"
)

type Options struct {
	// Service labels pipeline metrics.
	Service string
	// Registerer receives pipeline metrics; nil disables them.
	Registerer prometheus.Registerer
	// RequireQueue connects NATS even when the API dispatches in-process.
	RequireQueue bool
}

type App struct {
	Config    config.Config
	Companies []domain.Company

	Acquirer   *usecase.AcquireReportsUseCase
	Selector   *usecase.SelectPagesUseCase
	Dataset    *usecase.BuildDatasetUseCase
	Indexer    *usecase.IndexKnowledgeUseCase
	Runs       *usecase.IndexRunUseCase
	Visualizer *usecase.VisualizeUseCase
	Answerer   *usecase.AnswerQueryUseCase

	Queue *nats.Queue

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	companies, err := config.LoadCompanies(cfg.CompaniesFile)
	if err != nil {
		return nil, fmt.Errorf("load companies: %w", err)
	}
	app.Companies = companies

	var observer ports.PipelineObserver
	if opts.Registerer != nil {
		observer = metrics.NewPipelineMetrics(opts.Service, opts.Registerer)
	}

	exec := resilience.NewExecutor(cfg.Resilience())

	files, err := localfs.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init data dir: %w", err)
	}

	geminiClient, err := gemini.New(ctx, gemini.Config{
		APIKey:             cfg.GoogleAPIKey,
		LLMModel:           cfg.LLMModel,
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingDimension: cfg.EmbeddingDimension,
	}, exec)
	if err != nil {
		return nil, fmt.Errorf("init gemini: %w", err)
	}
	embedder := gemini.NewEmbedder(geminiClient)
	generator := gemini.NewGenerator(geminiClient)

	runs, err := app.openRunStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.VectorIndexName, exec)
	tables := csvfile.New(files)
	exportPath := cfg.ExportXLSXPath
	if !filepath.IsAbs(exportPath) {
		exportPath = filepath.Join(cfg.DataDir, exportPath)
	}

	scraper := cse.New(&http.Client{Timeout: time.Duration(cfg.ScraperTimeoutSeconds) * time.Second}, exec)
	app.Acquirer = usecase.NewAcquireReportsUseCase(companies, scraper, files, observer)
	app.Selector = usecase.NewSelectPagesUseCase(companies, files, pdf.NewPages(), observer)
	extractor := usecase.NewExtractMetricsUseCase(files, gemini.NewMetricExtractor(geminiClient), observer)
	app.Dataset = usecase.NewBuildDatasetUseCase(companies, extractor, tables, xlsx.NewExporter(exportPath))
	app.Indexer = usecase.NewIndexKnowledgeUseCase(
		companies,
		files,
		tables,
		chunking.NewSplitter(cfg.ChunkSize),
		embedder,
		vectorIndex,
		domain.IndexSpec{Name: cfg.VectorIndexName, Dimension: cfg.EmbeddingDimension, Metric: "cosine"},
		cfg.EmbedBatchSize,
	)
	app.Runs = usecase.NewIndexRunUseCase(runs, app.Indexer, observer)

	retriever := usecase.NewFinancialRetriever(embedder, vectorIndex, generator, cfg.RetrieverTopK)
	app.Answerer = usecase.NewAnswerQueryUseCase(generator, retriever, calculator.New(), domain.AgentLimits{
		MaxIterations: cfg.AgentMaxIterations,
		RetrieverTopK: cfg.RetrieverTopK,
	}, observer)

	dispatcher, err := app.openDispatcher(cfg, opts, exec)
	if err != nil {
		return nil, err
	}
	app.Visualizer = usecase.NewVisualizeUseCase(app.Selector, app.Dataset, app.Runs, dispatcher)

	slog.Info("application wired",
		"companies", len(companies),
		"dispatch", cfg.IndexDispatch,
		"run_store", runStoreKind(cfg),
		"vector_index", cfg.VectorIndexName,
	)
	ok = true
	return app, nil
}

func (a *App) openRunStore(ctx context.Context, cfg config.Config) (ports.IndexRunStore, error) {
	if cfg.PostgresDSN == "" {
		return memory.NewIndexRunStore(), nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { closeDB(db) })

	repo := postgres.NewIndexRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func (a *App) openDispatcher(cfg config.Config, opts Options, exec *resilience.Executor) (ports.IndexDispatcher, error) {
	if cfg.IndexDispatch == config.DispatchNATS || opts.RequireQueue {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: exec})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		a.Queue = queue
		a.closers = append(a.closers, queue.Close)
		if cfg.IndexDispatch == config.DispatchNATS {
			return queue, nil
		}
	}

	dispatcher := inproc.New(a.Runs.Execute, cfg.IndexTimeout())
	a.closers = append(a.closers, dispatcher.Close)
	return dispatcher, nil
}

// Close releases resources in reverse order of acquisition. In-process index
// runs are waited for before the run store closes.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("close postgres", "error", err)
	}
}

func runStoreKind(cfg config.Config) string {
	if cfg.PostgresDSN == "" {
		return "memory"
	}
	return "postgres"
}

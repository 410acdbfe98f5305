package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/chunkdim/internal/api"
	"github.com/kalambet/chunkdim/internal/audit"
	"github.com/kalambet/chunkdim/internal/chunker"
	"github.com/kalambet/chunkdim/internal/config"
	"github.com/kalambet/chunkdim/internal/extraction"
	"github.com/kalambet/chunkdim/internal/generation"
	"github.com/kalambet/chunkdim/internal/llm"
	"github.com/kalambet/chunkdim/internal/metrics"
	"github.com/kalambet/chunkdim/internal/storage"
	"github.com/kalambet/chunkdim/internal/worker"
)

// extractionMaxTokens leaves room for long candidate lists.
const extractionMaxTokens = 8192

// app is the wired pipeline behind the server.
type app struct {
	store        *storage.Store
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	client       *llm.Client
	sink         *audit.Sink
	engine       *generation.Engine
	orchestrator *extraction.Orchestrator
	worker       *worker.Worker
}

func newApp(cfg config.Config, store *storage.Store, logger *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client, err := llm.New(llm.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Timeout:           cfg.Extraction.ModelTimeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}

	sink := audit.NewSink(store, audit.Options{Logger: logger.With("component", "audit"), Drops: m})

	engine := generation.New(store, client, generation.Config{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BatchSize:   cfg.Generation.BatchSize,
		InputPrice:  cfg.Generation.InputPrice,
		OutputPrice: cfg.Generation.OutputPrice,
	}, generation.Options{
		Logger:   logger.With("component", "generation"),
		Audit:    sink,
		Observer: m,
	})

	finder := chunker.New(client, chunker.Options{
		Model:     cfg.ExtractionModel(),
		MaxTokens: extractionMaxTokens,
		Timeout:   cfg.Extraction.ModelTimeout,
		Logger:    logger.With("component", "chunker"),
		Observer:  m,
	})

	opts := extraction.Options{Observer: m, Logger: logger.With("component", "extraction")}
	if cfg.Extraction.AutoGenerate {
		opts.Generator = engine
	}
	orchestrator := extraction.New(store, finder, opts)

	w := worker.New(store, 0, logger.With("component", "worker"))
	w.Handle(extraction.TaskType, orchestrator)
	w.Handle(generation.TaskType, engine)

	return &app{
		store:        store,
		registry:     reg,
		metrics:      m,
		client:       client,
		sink:         sink,
		engine:       engine,
		orchestrator: orchestrator,
		worker:       w,
	}, nil
}

func (a *app) apiDeps(logger *slog.Logger) api.Deps {
	return api.Deps{
		Store:     a.store,
		Extractor: a.orchestrator,
		Generator: a.engine,
		Models:    a.client,
		Metrics:   promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Logger:    logger.With("component", "api"),
	}
}

func (a *app) handler(logger *slog.Logger) http.Handler {
	return api.NewHandler(a.apiDeps(logger))
}

// close flushes pending audit records.
func (a *app) close() {
	a.sink.Close()
}

package server

import (
	"context"
	"log"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"policyqa/app/api"
	"policyqa/config"
	"policyqa/model"
	"policyqa/pipeline"
	"policyqa/store"
)

var fiberConfig = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	cfg    *config.AppConfig
	logger *slog.Logger
	pg     *store.PostgresStore
}

func NewServer(cfg *config.AppConfig) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

func (s *Server) Stop() {
	if s.pg != nil {
		s.pg.Close()
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()
	cfg := s.cfg

	embedder := model.NewOllamaEmbedder(
		cfg.Embedder.URL, cfg.Embedder.Model, cfg.Embedder.Dimension, cfg.Embedder.Timeout())

	// No LLM configured is a supported mode: enrichment is skipped and the
	// engine answers from rules alone.
	var completer model.Completer
	if cfg.LLM.URL != "" {
		completer = model.NewOllamaLLM(cfg.LLM.URL, cfg.LLM.Model, "", cfg.LLM.Timeout())
	} else {
		s.logger.Info("no LLM configured, running rules-only")
	}

	chunks := store.NewChunkStore()
	index := store.NewVectorIndex(chunks)

	var searcher store.Searcher = index
	if cfg.Postgres.Host != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN(), cfg.Embedder.Dimension)
		if err != nil {
			log.Fatal("error to connect to Postgres database", err)
			return
		}
		if err := pg.Init(ctx); err != nil {
			log.Fatal("error to create tables", err)
			return
		}
		s.pg = pg
		searcher = pg
		s.logger.Info("using Postgres-backed clause store", "host", cfg.Postgres.Host)
	}

	parser := pipeline.NewParser(completer)
	retriever := pipeline.NewRetriever(embedder, searcher, cfg.Pipeline.MaxAttempts, cfg.Pipeline.Backoff())
	engine := pipeline.NewEngine(pipeline.DefaultRules(), completer, pipeline.EngineConfig{
		MinConfidence: cfg.Pipeline.MinRuleConfidence,
		MaxAttempts:   cfg.Pipeline.MaxAttempts,
		Backoff:       cfg.Pipeline.Backoff(),
		TokenBudget:   cfg.Pipeline.PromptTokenBudget,
	})
	pipe := pipeline.New(parser, retriever, engine, cfg.Pipeline.TopK)

	var (
		app           = fiber.New(fiberConfig)
		checkHandler  = api.NewCheckHandler()
		answerHandler = api.NewAnswerHandler(pipe)
		ingestHandler = api.NewIngestHandler(NewIngestService(chunks, index, s.pg, embedder))
		check         = app.Group("/check")
		apiv1         = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/answer", answerHandler.HandleAnswer)
	apiv1.Post("/ingest", ingestHandler.HandleIngest)

	if err := app.Listen(cfg.ServerAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}

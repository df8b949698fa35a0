package main

import (
	"context"
	"fmt"
	"log"
	"os"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/quarrylabs/quarry/internal/catalog"
	catalogneo4j "github.com/quarrylabs/quarry/internal/catalog/neo4j"
	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/document"
	"github.com/quarrylabs/quarry/internal/embedding"
	"github.com/quarrylabs/quarry/internal/generator"
	"github.com/quarrylabs/quarry/internal/llm"
	"github.com/quarrylabs/quarry/internal/llmutil"
	"github.com/quarrylabs/quarry/internal/logger"
	"github.com/quarrylabs/quarry/internal/memory"
	"github.com/quarrylabs/quarry/internal/observability"
	"github.com/quarrylabs/quarry/internal/pipeline"
	"github.com/quarrylabs/quarry/internal/retriever"
	"github.com/quarrylabs/quarry/internal/secrets"
	"github.com/quarrylabs/quarry/internal/server"
	temporalmod "github.com/quarrylabs/quarry/internal/temporal"
	"github.com/quarrylabs/quarry/internal/vector/qdrant"
)

func main() {
	configPath := "configs/quarry.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	fillSecrets(ctx, cfg)

	if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.OutputPath,
	}); err != nil {
		log.Fatalf("audit: %v", err)
	}

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "quarry-worker",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)
	provider, err := factory.Create(llm.ProviderConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		EmbedModel: cfg.LLM.EmbedModel,
	})
	if err != nil {
		log.Fatalf("creating LLM provider: %v", err)
	}
	if provider != nil {
		provider = llm.WithRateLimit(provider, llm.DefaultRateLimitConfig())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Vector.Host, cfg.Vector.Port)
	index, err := qdrant.New(addr, cfg.Vector.Collection)
	if err != nil {
		log.Fatalf("qdrant: %v", err)
	}

	var repo catalog.Repository
	if cfg.Catalog.URI != "" && cfg.Catalog.Password != "" {
		r, err := catalogneo4j.New(ctx, cfg.Catalog.URI, cfg.Catalog.Username, cfg.Catalog.Password)
		if err != nil {
			logger.Warn("catalog unavailable: %v", err)
		} else {
			repo = r
		}
	}

	embedder := embedding.NewClient(provider, cfg.Ingest.BatchSize, cfg.Vector.Dimension, cfg.Ingest.Concurrency)
	app := pipeline.New(pipeline.Deps{
		Loader:    document.NewLoader(),
		Chunker:   chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		Embedder:  embedder,
		Index:     index,
		Retriever: retriever.New(embedder, index, cfg.Chat.K),
		Generator: generator.New(provider, generator.Options{
			Temperature:  cfg.LLM.Temperature,
			MaxTokens:    cfg.LLM.MaxTokens,
			HistoryTurns: cfg.Chat.HistoryTurns,
		}),
		Sessions:   memory.NewSessionStore(cfg.Chat.MaxTurns, cfg.Chat.MaxChars),
		Catalog:    repo,
		Collection: cfg.Vector.Collection,
		Dimension:  cfg.Vector.Dimension,
	})

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		App:    app,
		Loader: document.NewLoader(),
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	g := server.NewGracefulServer(&server.HealthConfig{
		Version: "0.1.0",
		Metrics: observability.Metrics().Handler(),
	}, nil)

	g.Health.RegisterCheck("qdrant", server.QdrantHealthChecker(func(ctx context.Context) error {
		_, err := index.Count(ctx)
		return err
	}))
	if repo != nil {
		g.Health.RegisterCheck("neo4j", server.Neo4jHealthChecker(func(ctx context.Context) error {
			_, err := repo.Years(ctx)
			return err
		}))
	}
	g.Health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))
	g.Health.RegisterCheck("llm", server.LLMHealthChecker(cfg.LLM.Provider, nil))

	g.RegisterHook("temporal-worker", 20, func(ctx context.Context) error {
		w.Stop()
		return nil
	})
	g.RegisterHook("temporal-client", 30, func(ctx context.Context) error {
		c.Close()
		return nil
	})
	g.RegisterHook("qdrant", 40, func(ctx context.Context) error {
		return index.Close()
	})
	if repo != nil {
		g.RegisterHook("catalog", 50, func(ctx context.Context) error {
			return repo.Close(ctx)
		})
	}
	g.RegisterHook("tracer", 60, func(ctx context.Context) error {
		return tracer.Shutdown(ctx)
	})
	g.RegisterHook("audit", 70, func(ctx context.Context) error {
		return observability.Audit().Close()
	})

	if err := g.Start(":8080"); err != nil {
		log.Fatalf("health server: %v", err)
	}
	g.Wait()
	fmt.Println("Worker stopped")
}

// fillSecrets resolves empty sensitive fields from the secrets manager.
func fillSecrets(ctx context.Context, cfg *config.Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = secrets.GetOrDefault(ctx, string(secrets.SecretLLMAPIKey), "")
	}
	if cfg.Vector.APIKey == "" {
		cfg.Vector.APIKey = secrets.GetOrDefault(ctx, string(secrets.SecretQdrantAPIKey), "")
	}
	if cfg.Catalog.Password == "" {
		cfg.Catalog.Password = secrets.GetOrDefault(ctx, string(secrets.SecretCatalogPassword), "")
	}
}

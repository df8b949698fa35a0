package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

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
	"github.com/quarrylabs/quarry/internal/vector/qdrant"
)

func main() {
	var (
		configPath string
		verbose    bool
		session    string
	)

	rootCmd := &cobra.Command{
		Use:   "quarry",
		Short: "Retrieval-augmented question answering over PDF document collections",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetVerbose(verbose)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/quarry.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose diagnostic output")
	rootCmd.PersistentFlags().StringVar(&session, "session", "default", "Conversation session key")

	var (
		ingestDir         string
		ingestConcurrency int
		ingestNoMetadata  bool
		ingestJSON        bool
		ingestStrict      bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, chunk, embed, and index a directory of documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeAll, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer closeAll()

			report, err := app.Ingest(cmd.Context(), ingestDir, pipeline.IngestOptions{
				Concurrency:  ingestConcurrency,
				SkipMetadata: ingestNoMetadata,
			})
			if err != nil {
				return err
			}

			if ingestJSON {
				out, err := report.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			} else {
				report.PrintSummary(os.Stdout)
			}

			if ingestStrict && report.Failed > 0 {
				return fmt.Errorf("%d documents failed", report.Failed)
			}
			return nil
		},
	}
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Directory of PDF/text documents")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "Parallel documents (0 = config default)")
	ingestCmd.Flags().BoolVar(&ingestNoMetadata, "no-metadata", false, "Skip year and financial tagging")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "Print the report as JSON")
	ingestCmd.Flags().BoolVar(&ingestStrict, "strict", false, "Exit non-zero on any document failure")
	_ = ingestCmd.MarkFlagRequired("dir")

	var (
		queryText      string
		queryK         int
		queryYear      int
		queryFinancial bool
	)
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Ask a one-shot question against the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeAll, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer closeAll()

			req := pipeline.Request{Query: queryText, K: queryK, Year: queryYear, Session: session}
			if queryFinancial {
				f := true
				req.Financial = &f
			}

			res, err := app.Query(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	queryCmd.Flags().StringVar(&queryText, "text", "", "Question text")
	queryCmd.Flags().IntVar(&queryK, "k", 0, "Number of chunks to retrieve (0 = config default)")
	queryCmd.Flags().IntVar(&queryYear, "year", 0, "Restrict to chunks mentioning this year")
	queryCmd.Flags().BoolVar(&queryFinancial, "financial", false, "Restrict to financially-tagged chunks")
	_ = queryCmd.MarkFlagRequired("text")

	var chatK int
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversational question answering",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeAll, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer closeAll()
			return runChat(cmd.Context(), app, session, chatK)
		},
	}
	chatCmd.Flags().IntVar(&chatK, "k", 0, "Number of chunks to retrieve per turn")

	var (
		summaryYear int
		summaryK    int
	)
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize the financial content of the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeAll, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer closeAll()

			res, err := app.Summary(cmd.Context(), summaryYear, summaryK)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	summaryCmd.Flags().IntVar(&summaryYear, "year", 0, "Restrict to this year")
	summaryCmd.Flags().IntVar(&summaryK, "k", 10, "Number of chunks to summarize")

	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "List cataloged documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeAll, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer closeAll()

			docs, err := app.Documents(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No documents cataloged.")
				return nil
			}
			for _, d := range docs {
				fmt.Printf("%-40s %4d pages %5d chunks  ingested %s\n",
					d.Name, d.Pages, d.Chunks, d.IngestedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	var resetYes bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the collection and all indexed data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !resetYes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			app, closeAll, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer closeAll()

			if err := app.ResetCollection(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Collection reset.")
			return nil
		},
	}
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm the reset")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (retrieval only, no generation)")
			fmt.Println()
			fmt.Println("Configure in quarry.yaml or via environment:")
			fmt.Println("  QUARRY_LLM_PROVIDER=openai")
			fmt.Println("  QUARRY_LLM_API_KEY=sk-...")
			fmt.Println("  QUARRY_LLM_MODEL=gpt-4o-mini")
		},
	}

	rootCmd.AddCommand(ingestCmd, queryCmd, chatCmd, summaryCmd, docsCmd, resetCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildApp loads config and wires the pipeline. The returned closer
// releases the index and catalog connections.
func buildApp(configPath string) (*pipeline.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	ctx := context.Background()
	fillSecrets(ctx, cfg)

	if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.OutputPath,
	}); err != nil {
		return nil, nil, err
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
		return nil, nil, err
	}
	if provider != nil {
		provider = llm.WithRateLimit(provider, nil)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Vector.Host, cfg.Vector.Port)
	index, err := qdrant.New(addr, cfg.Vector.Collection)
	if err != nil {
		return nil, nil, err
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

	closeAll := func() {
		if err := index.Close(); err != nil {
			logger.Warn("closing index: %v", err)
		}
		if repo != nil {
			if err := repo.Close(ctx); err != nil {
				logger.Warn("closing catalog: %v", err)
			}
		}
	}
	return app, closeAll, nil
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

func printResult(res *generator.Result) {
	fmt.Println(res.Answer)
	if len(res.Citations) > 0 {
		fmt.Println("\nSources:")
		// Citations are per chunk; collapse to one line per page here.
		seen := make(map[string]bool)
		for _, c := range res.Citations {
			line := fmt.Sprintf("%s (page %d)", c.Source, c.Page)
			if seen[line] {
				continue
			}
			seen[line] = true
			fmt.Printf("  %s\n", line)
		}
	}
}

func runChat(ctx context.Context, app *pipeline.App, session string, k int) error {
	fmt.Println("Chat mode. /clear resets memory, /history shows it, /quit exits.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			app.ClearConversation(session)
			fmt.Println("Conversation cleared.")
			continue
		case "/history":
			for _, t := range app.History(session) {
				fmt.Printf("%s: %s\n", t.Role, t.Content)
			}
			continue
		}

		res, err := app.Chat(ctx, pipeline.Request{Query: line, K: k, Session: session})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		printResult(res)
	}
}

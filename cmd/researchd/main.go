package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/arcburst/deepresearch/config"
	"github.com/arcburst/deepresearch/internal/cache"
	"github.com/arcburst/deepresearch/internal/httpapi"
	"github.com/arcburst/deepresearch/internal/llm"
	"github.com/arcburst/deepresearch/internal/ratelimit"
	"github.com/arcburst/deepresearch/internal/research"
	"github.com/arcburst/deepresearch/internal/store"
	"github.com/arcburst/deepresearch/internal/stream"
	"github.com/arcburst/deepresearch/internal/telemetry"
	"github.com/arcburst/deepresearch/internal/webscrape"
	"github.com/arcburst/deepresearch/internal/websearch"
	"github.com/arcburst/deepresearch/internal/websearch/factory"
)

func main() {
	root := &cobra.Command{Use: "researchd"}
	root.AddCommand(serveCmd(), migrateCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the research HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return cmd
}

func migrateCmd() *cobra.Command {
	var cfgPath, dir, direction string
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run chat/message schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return store.Migrate(dir, cfg.Storage.Postgres.DSN(), direction, steps)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "file://internal/store/migrations", "migrations source")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logLevel := slog.LevelInfo
	if cfg.General.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	tel, _, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer tel.Shutdown(ctx)

	db, err := store.Open(cfg.Storage.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	defer rdb.Close()

	respCache := cache.New(rdb, cfg.Research.CacheTTL, logger)

	limiter := ratelimit.New(rdb, logger,
		cfg.Research.DailyRequestLimit, cfg.Research.GlobalRateMax, cfg.Research.GlobalRateWindow,
		cfg.Research.GlobalRateRetries, cfg.Server.AdminUsers)

	searcher, err := factory.New(websearch.Provider(cfg.Research.SearchProvider), cfg.Research.SearchAPIKey)
	if err != nil {
		return fmt.Errorf("build web searcher: %w", err)
	}
	cachingSearcher := &websearch.CachingSearcher{Inner: searcher, Cache: respCache}
	scraper := webscrape.New()
	scraper.MaxRetries = cfg.Research.ScrapeMaxRetries
	scraper.Cache = respCache

	rewriterLLM, err := buildProvider(cfg, cfg.LLM.Routing.Rewriter)
	if err != nil {
		return fmt.Errorf("build rewriter llm: %w", err)
	}
	evaluatorLLM, err := buildProvider(cfg, cfg.LLM.Routing.Evaluator)
	if err != nil {
		return fmt.Errorf("build evaluator llm: %w", err)
	}
	summarizerLLM, err := buildProvider(cfg, cfg.LLM.Routing.Summarizer)
	if err != nil {
		return fmt.Errorf("build summarizer llm: %w", err)
	}
	answererLLM, err := buildProvider(cfg, cfg.LLM.Routing.Answerer)
	if err != nil {
		return fmt.Errorf("build answerer llm: %w", err)
	}
	guardrailLLM, err := buildProvider(cfg, cfg.LLM.Routing.Guardrail)
	if err != nil {
		return fmt.Errorf("build guardrail llm: %w", err)
	}

	driver := &research.Driver{
		Guardrail:          &research.Guardrail{Provider: guardrailLLM, Model: guardrailLLM.Model()},
		Rewriter:           &research.Rewriter{Provider: rewriterLLM, Model: rewriterLLM.Model()},
		Evaluator:          &research.Evaluator{Provider: evaluatorLLM, Model: evaluatorLLM.Model()},
		Answerer:           &research.Answerer{Provider: answererLLM, Model: answererLLM.Model()},
		Summarizer:         &research.Summarizer{Provider: summarizerLLM, Model: summarizerLLM.Model(), Cache: respCache},
		Search:             research.WrapSearcher(cachingSearcher),
		Scrape:             scraper,
		MaxSteps:           cfg.Research.AgentMaxSteps,
		SearchResultsCount: cfg.Research.SearchResultsCount,
		Logger:             logger,
	}

	publisher := stream.NewResumablePublisher(rdb)

	server := httpapi.NewServer(httpapi.Deps{
		Store:     db,
		Limiter:   limiter,
		Publisher: publisher,
		Driver:    driver,
		Registry:  tel.Registry,
		JWTSecret: []byte(cfg.Server.JWTSecret),
		Logger:    logger,
	})

	logger.Info("listening", "address", cfg.Server.Address)
	return server.Start(cfg.Server.Address)
}

// buildProvider resolves a loop stage's routing key to a provider entry
// and constructs the concrete llm.Provider for it.
func buildProvider(cfg *config.Config, providerKey string) (llm.Provider, error) {
	p, ok := cfg.LLM.Providers[providerKey]
	if !ok {
		return nil, fmt.Errorf("llm routing references unknown provider %q", providerKey)
	}
	return llm.New(llm.Config{Type: p.Type, APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model})
}

// Package app wires the application together: tracing, the database pool,
// Genkit, the knowledge store, and the retrieval engine. Runs are assembled
// on top of a configured App via BuildTeam.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/rajarajane97/mastt/db"
	"github.com/rajarajane97/mastt/internal/chunk"
	"github.com/rajarajane97/mastt/internal/config"
	"github.com/rajarajane97/mastt/internal/knowledge"
	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/observability"
	"github.com/rajarajane97/mastt/internal/rag"
)

// Generation requests share one limiter: the whole pipeline talks to the API
// with a single key, so per-agent limiters would not help.
const (
	requestInterval = time.Second
	requestBurst    = 2
)

// App is the application container. Setup initializes it, Close releases it.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	DBPool    *pgxpool.Pool
	Knowledge *knowledge.Store
	Splitter  *chunk.Splitter
	Engine    *rag.Engine

	limiter     *rate.Limiter
	otelCleanup func()
}

// Setup creates and initializes the application. On error everything already
// initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit initialization so generation
	// spans reach the exporter.
	otelShutdown, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, err
	}
	a.otelCleanup = func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.GeminiAPIKey}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit with googleai provider")
	}
	a.Genkit = g
	logger.Info("initialized Genkit with googleai provider", "model", cfg.ModelName)

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.NewWithBatchSize(knowledge.NewPGQuerier(pool), embedder, cfg.EmbedBatchSize, logger)

	splitter, err := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("configuring splitter: %w", err)
	}
	a.Splitter = splitter
	a.Engine = rag.New(a.Knowledge, splitter, logger)

	a.limiter = rate.NewLimiter(rate.Every(requestInterval), requestBurst)

	return a, nil
}

// Close gracefully shuts down all resources in reverse setup order.
func (a *App) Close() error {
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// provideDBPool runs migrations then creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// qualifyModel prefixes the provider namespace Genkit expects unless the
// configured name already carries one.
func qualifyModel(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return "googleai/" + name
}

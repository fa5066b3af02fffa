package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/helix-labs/helix/internal/auth"
	"github.com/helix-labs/helix/internal/chat"
	"github.com/helix-labs/helix/internal/config"
	"github.com/helix-labs/helix/internal/engine"
	"github.com/helix-labs/helix/internal/memory"
	"github.com/helix-labs/helix/internal/orchestrator"
	"github.com/helix-labs/helix/internal/ratelimit"
	"github.com/helix-labs/helix/internal/rubric"
	"github.com/helix-labs/helix/internal/store"
	"github.com/helix-labs/helix/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Connect to PostgreSQL. The pgvector codec is registered per
	// connection so embedding columns scan into vector values.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (service will start but requests will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (caching and rate limiting disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Engine registry with config hot reload.
	registry := engine.BuildFromConfig(loader.Engines(), cfg.Chat)
	loader.OnReload(func() {
		registry.Replace(engine.BuildFromConfig(loader.Engines(), loader.Config().Chat))
		logger.Info("engine registry reloaded")
	})

	// Stores.
	users := store.NewUserStore(dbPool)
	personas := store.NewPersonaStore(dbPool, rdb)
	conversations := store.NewConversationStore(dbPool)

	// Retrieval is optional; when disabled the memory endpoints 404 and
	// turns run without context injection.
	var (
		vectorStore memory.VectorStore
		ingestor    *memory.Ingestor
		retriever   orchestrator.Retriever
	)
	if cfg.Retrieval.Enabled {
		embedder := memory.NewOpenAIEmbedder(cfg.Retrieval.OpenAIAPIKey, cfg.Retrieval.EmbeddingModel, "", nil)
		switch cfg.Retrieval.Backend {
		case "pinecone":
			vectorStore = memory.NewPineconeStore(
				cfg.Retrieval.Pinecone.APIKey,
				cfg.Retrieval.Pinecone.IndexHost,
				cfg.Retrieval.Pinecone.Namespace,
				embedder, nil,
			)
		default:
			vectorStore = memory.NewPostgresStore(dbPool, embedder, cfg.Retrieval.TableName)
		}
		ingestor = memory.NewIngestor(vectorStore, memory.ChunkOptions{
			MaxChunkSize: cfg.Retrieval.MaxChunkSize,
			Overlap:      cfg.Retrieval.ChunkOverlap,
		})
		retriever = &memory.ContextRetriever{Store: vectorStore, TopK: cfg.Retrieval.TopK}
		logger.Info("retrieval enabled", "backend", cfg.Retrieval.Backend)
	}

	orch := orchestrator.New(registry, personas, conversations, users, retriever, rubric.Judge{}, metrics, orchestrator.Options{
		HistoryWindow: cfg.Chat.HistoryWindow,
		JudgeEngineID: cfg.Chat.JudgeEngine,
	})

	handler := chat.NewHandler(orch, registry, ingestor, vectorStore)
	limiter := ratelimit.NewLimiter(rdb)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/helix/v1/health", chat.Health(version))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(users))
		r.Use(ratelimit.Middleware(limiter, cfg.Chat.RPMLimit, metrics))
		r.Post("/v1/chat", handler.Chat)
		r.Post("/v1/chat/baton", handler.Baton)
		r.Post("/v1/chat/panel", handler.Panel)
		r.Get("/v1/engines", handler.ListEngines)
		r.Post("/v1/memory/documents", handler.IngestDocument)
		r.Post("/v1/memory/query", handler.QueryMemory)
		r.Delete("/v1/memory/documents/{id}", handler.DeleteDocument)
	})

	// Metrics on a separate port so it never shares the public surface.
	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("helix starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("helix stopped")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}

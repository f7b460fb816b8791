package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlchat/sqlchat/internal/api"
	"github.com/sqlchat/sqlchat/internal/api/uistatic"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/conversation"
	"github.com/sqlchat/sqlchat/internal/exemplar"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/pipeline"
	"github.com/sqlchat/sqlchat/internal/query/sqldb"
	"github.com/sqlchat/sqlchat/internal/respond"
	"github.com/sqlchat/sqlchat/internal/schema"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
	"github.com/sqlchat/sqlchat/internal/sqlguard/mysqldialect"
	"github.com/sqlchat/sqlchat/internal/storage"
	s3store "github.com/sqlchat/sqlchat/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger, closeLog, err := observability.OpenLogger(cfg, os.Stdout)
	if err != nil {
		slog.Error("failed to open log file", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	doc := schema.Default()
	if cfg.Schema.Path != "" {
		doc, err = schema.Load(cfg.Schema.Path)
		if err != nil {
			logger.Error("failed to load schema", slog.Any("error", err))
			os.Exit(1)
		}
	}
	registry := schema.NewRegistry(doc)

	guardOpts := []sqlguard.Option{sqlguard.WithAllowed(cfg.SQL.AllowedStatements...)}
	if cfg.Database.Driver == "mysql" {
		verifier, err := mysqldialect.New(cfg.Database.MySQLVersion)
		if err != nil {
			logger.Error("failed to initialize mysql grammar", slog.Any("error", err))
			os.Exit(1)
		}
		guardOpts = append(guardOpts, sqlguard.WithVerifier(verifier))
	}
	guard := sqlguard.New(guardOpts...)
	loader := exemplar.Loader{
		Guard: guard,
		OpenStore: func(ctx context.Context, bucket string) (storage.ObjectStore, error) {
			return s3store.New(ctx, s3store.Config{
				Endpoint:        cfg.ObjectStore.Endpoint,
				Region:          cfg.ObjectStore.Region,
				Bucket:          bucket,
				AccessKeyID:     cfg.ObjectStore.AccessKeyID,
				SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
				UseSSL:          cfg.ObjectStore.UseSSL,
				Prefix:          cfg.ObjectStore.Prefix,
			})
		},
	}
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	exemplars, err := loader.Load(loadCtx, cfg.Exemplars.Source)
	cancelLoad()
	if err != nil {
		logger.Error("failed to load exemplars", slog.Any("error", err))
		os.Exit(1)
	}
	exemplars = exemplars.Limit(cfg.Exemplars.Max)
	logger.Info("exemplars loaded",
		slog.String("source", cfg.Exemplars.Source),
		slog.String("version", exemplars.Version),
		slog.Int("count", exemplars.Len()),
	)

	backend, err := nl2sql.NewBackend(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize language model backend", slog.Any("error", err))
		os.Exit(1)
	}
	generator, err := nl2sql.NewGenerator(backend, nl2sql.GeneratorConfig{
		Provider:  cfg.AI.Provider,
		Model:     cfg.AI.Model,
		Decoding:  nl2sql.DecodingFromConfig(cfg.AI),
		Exemplars: exemplars,
	})
	if err != nil {
		logger.Error("failed to initialize query generator", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := sqldb.New(sqldb.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		ReadOnly: cfg.Database.ReadOnly,
	})
	if err != nil {
		logger.Error("failed to initialize query engine", slog.Any("error", err))
		os.Exit(1)
	}

	assistant, err := pipeline.New(pipeline.Config{
		Translator: generator,
		Guard:      guard,
		Engine:     engine,
		Schema:     registry,
		Formatter:  respond.New(cfg.Response.MaxRows),
		RowLimit:   cfg.Database.RowLimit,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to initialize pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:    logger,
		Assistant: assistant,
		Sessions: conversation.NewStore(conversation.StoreConfig{
			MaxSessions: cfg.Conversation.MaxSessions,
			MaxTurns:    cfg.Conversation.MaxTurns,
			IdleTTL:     cfg.Conversation.IdleTTL,
		}),
		Schema:            registry,
		UI:                uistatic.Handler(),
		Readiness:         api.PingCheck(engine),
		DependencyTimeout: cfg.Database.PingTimeout,
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", cfg.Database.Driver),
			slog.String("provider", cfg.AI.Provider),
			slog.String("model", cfg.AI.Model),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

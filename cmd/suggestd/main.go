package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/glyphml/suggestions/emb"
	"github.com/glyphml/suggestions/engine"
	"github.com/glyphml/suggestions/internal/config"
	"github.com/glyphml/suggestions/internal/server"
	"github.com/glyphml/suggestions/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	addr := flag.String("addr", "", "Listen address override")
	flag.Parse()

	manager, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Snapshot()

	logger, err := buildLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received shutdown signal, stopping server...")
		cancel()
	}()

	// --- Embedding model ---
	embedder, err := emb.NewEmbedder(emb.EmbedderConfig{
		Encoder: emb.Config{
			OrtDLL:        cfg.Embedder.OrtDLL,
			ModelPath:     cfg.Embedder.ModelPath,
			TokenizerPath: cfg.Embedder.TokenizerPath,
			MaxSeqLen:     cfg.Embedder.MaxSeqLen,
		},
		CacheDir: cfg.Embedder.CacheDir,
		ModelID:  cfg.Embedder.ModelID,
	})
	if err != nil {
		logger.Fatal("Failed to initialize embedding model", zap.Error(err))
	}
	defer embedder.Close()
	logger.Info("Embedding model ready", zap.String("model_id", embedder.ModelID()))

	lexicon, err := engine.LoadLexicon(cfg.Scorer.LexiconPath)
	if err != nil {
		logger.Fatal("Failed to load entity lexicon", zap.Error(err))
	}
	scorer, err := engine.NewScorer(ctx, embedder, lexicon, engine.UUIDSource{}, cfg.ScorerConfig())
	if err != nil {
		logger.Fatal("Failed to initialize entity scorer", zap.Error(err))
	}

	// Rebuild the scorer when the configuration file changes so lexicon and
	// weight edits take effect without a restart. A failed rebuild keeps the
	// previous scorer serving.
	scorerSwap := server.NewScorerSwap(scorer)
	manager.Subscribe(func(next config.Config) {
		lex, err := engine.LoadLexicon(next.Scorer.LexiconPath)
		if err != nil {
			logger.Error("Keeping previous scorer: lexicon reload failed", zap.Error(err))
			return
		}
		rebuilt, err := engine.NewScorer(ctx, embedder, lex, engine.UUIDSource{}, next.ScorerConfig())
		if err != nil {
			logger.Error("Keeping previous scorer: rebuild failed", zap.Error(err))
			return
		}
		scorerSwap.Swap(rebuilt)
		logger.Info("Entity scorer rebuilt from configuration")
	})
	if err := manager.Watch(ctx, logger); err != nil {
		logger.Warn("Configuration watch disabled", zap.Error(err))
	}

	// --- Postgres ---
	dsn := cfg.ResolveDSN()
	if dsn == "" {
		logger.Fatal("Database DSN is empty: set database.dsn or DATABASE_URL")
	}
	db, err := store.Open(ctx, dsn, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	srv := server.New(
		logger,
		manager,
		scorerSwap,
		engine.NewEstimator(),
		store.NewTaskRepo(db),
		store.NewAnnotatorRepo(db),
		db,
	)

	errChan, err := srv.Start(ctx, *addr)
	if err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	select {
	case startErr := <-errChan:
		if startErr != nil {
			logger.Fatal("Server encountered an error", zap.Error(startErr))
		}
		logger.Info("Server shutdown cleanly")
	case <-ctx.Done():
		logger.Info("Server context done")
		<-errChan
	}
	logger.Info("Server stopped")
}

// buildLogger constructs the production logger at the configured level.
func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(lvl)
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return loggerConfig.Build()
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inquest-app/inquest/cmd/inquest/internal/config"
	"github.com/inquest-app/inquest/pkg/api"
	"github.com/inquest-app/inquest/pkg/embed"
	"github.com/inquest-app/inquest/pkg/generate"
	"github.com/inquest-app/inquest/pkg/kv"
	sig "github.com/inquest-app/inquest/pkg/signal"
	"github.com/inquest-app/inquest/pkg/store"
	"github.com/inquest-app/inquest/pkg/turn"
)

var (
	flagListen   string
	flagDataDir  string
	flagInMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversation server",
	Long: `Run the conversation server.

The server exposes a single turn endpoint. Each POST starts one
assistant turn and streams it back as SSE: response text, reflection
text, extracted signals and action hints, then a terminal done or
error frame.

Example:
  inquest serve --listen 127.0.0.1:8600`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "badger data directory (overrides config)")
	serveCmd.Flags().BoolVar(&flagInMemory, "in-memory", false, "keep all state in memory (no persistence)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	db, err := kv.NewBadger(kv.BadgerOptions{
		Dir:      cfg.DataDir,
		InMemory: flagInMemory,
	})
	if err != nil {
		return fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
	}
	defer db.Close()

	gen, err := buildGenerator(ctx, cfg.Generator)
	if err != nil {
		return err
	}

	engine := &turn.Engine{
		Gen:             gen,
		Store:           db,
		MaxOutputTokens: cfg.Generator.MaxOutputTokens,
		Log:             logger,
	}

	if cfg.Embeddings.Model != "" && cfg.Embeddings.APIKey != "" {
		var opts []embed.Option
		if cfg.Embeddings.Model != embed.ModelSmall {
			opts = append(opts, embed.WithModel(cfg.Embeddings.Model, 0))
		}
		embedder := embed.NewOpenAI(cfg.Embeddings.APIKey, opts...)
		queue := sig.NewEmbedQueue(embedder, store.VectorSink(db), 64, logger)
		defer queue.Close()
		engine.Embeds = queue
		logger.Info("signal embeddings enabled", "model", cfg.Embeddings.Model)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/turn", api.NewHandler(engine, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", cfg.Listen,
			"backend", cfg.Generator.Backend,
			"model", cfg.Generator.Model,
			"data", cfg.DataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func buildGenerator(ctx context.Context, cfg config.Generator) (generate.Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("no generator API key configured (set generator.api_key or the provider's environment variable)")
	}
	switch cfg.Backend {
	case "openai":
		return generate.NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "gemini":
		return generate.NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generator backend %q (available: openai, gemini)", cfg.Backend)
	}
}

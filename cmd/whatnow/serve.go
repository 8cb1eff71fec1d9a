package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/whatnow/internal/api"
	"github.com/kalambet/whatnow/internal/config"
	"github.com/kalambet/whatnow/internal/labeling"
	"github.com/kalambet/whatnow/internal/llm"
	"github.com/kalambet/whatnow/internal/recommend"
	"github.com/kalambet/whatnow/internal/situation"
	"github.com/kalambet/whatnow/internal/storage"
	"github.com/kalambet/whatnow/internal/vector"
	"github.com/kalambet/whatnow/internal/worker"
)

func runServer() error {
	fmt.Fprintf(os.Stderr, "whatnow version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the labeling and recommendation plumbing around the shared client.
	client := llm.NewHTTPClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, cfg.OpenAI.EmbedModel, cfg.OpenAI.BaseURL)
	vectors := vector.NewSQLiteStore(store.DB())
	if err := vectors.EnsureIndex(); err != nil {
		return fmt.Errorf("preparing vector store: %w", err)
	}
	if n, err := vectors.Count(cfg.Vector.Namespace); err == nil {
		slog.Info("vector index ready", "namespace", cfg.Vector.Namespace, "vectors", n)
	}
	embedder := vector.NewEmbedder(client)
	syncer := labeling.NewSyncer(embedder, vectors, store, cfg.Vector.Namespace, cfg.OpenAI.EmbedModel)
	runner := labeling.NewRunner(store, client, syncer)
	extractor := situation.NewExtractor(client)
	recommender := recommend.NewRecommender(extractor, store, client)

	// Start the labeling worker.
	w := worker.NewWorker(store, runner, cfg.Worker.PollInterval)
	go w.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Store:       store,
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		Recommender: recommender,
		Vectors:     vectors,
		Embedder:    embedder,
		Namespace:   cfg.Vector.Namespace,
	})

	// Start MCP server (stdio transport) when a tool user is configured.
	if cfg.MCP.UserID != "" {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:       store,
			Recommender: recommender,
			UserID:      cfg.MCP.UserID,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)", "user_id", cfg.MCP.UserID)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "whatnow listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

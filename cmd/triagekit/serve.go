package main

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

	"github.com/triagekit/triagekit/internal/ai"
	"github.com/triagekit/triagekit/internal/config"
	"github.com/triagekit/triagekit/internal/fixer"
	"github.com/triagekit/triagekit/internal/hosting"
	"github.com/triagekit/triagekit/internal/orchestrator"
	"github.com/triagekit/triagekit/internal/storage"
	_ "github.com/triagekit/triagekit/internal/storage/sqlite"
	"github.com/triagekit/triagekit/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and triage pipeline",
	Long: `Start the HTTP webhook listener and process issue events until
interrupted. Requires TRIAGEKIT_GITHUB_TOKEN and ANTHROPIC_API_KEY.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(policyPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.GitHubToken == "" {
		return fmt.Errorf("%s is required", config.EnvGitHubToken)
	}
	if cfg.AnthropicAPIKey == "" {
		return fmt.Errorf("%s is required", config.EnvAnthropicAPIKey)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	host, err := hosting.NewGitHubClient(cfg.GitHubToken)
	if err != nil {
		return fmt.Errorf("creating GitHub client: %w", err)
	}

	analyzer, err := ai.NewClient(&ai.ClientConfig{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.Model,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating AI client: %w", err)
	}

	store, err := storage.New(storage.Config{Backend: storage.BackendSQLite, Path: cfg.DBPath})
	if err != nil {
		return fmt.Errorf("opening issue store: %w", err)
	}
	defer store.Close()

	applicator := fixer.New(host, logger)
	orch := orchestrator.New(cfg, host, analyzer, applicator, store, logger)
	handler := webhook.NewHandler(cfg.WebhookSecret, orch, logger)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening",
			"addr", cfg.ListenAddr, "bot", cfg.BotName, "auto_fix", cfg.AutoFixEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

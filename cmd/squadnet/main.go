// Command squadnet runs the multi-agent squad net: a shared radio-style text
// channel where LLM-backed agents coordinate under an operator's direction.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/squadnet-ai/squadnet/internal/app"
	"github.com/squadnet-ai/squadnet/internal/config"
	"github.com/squadnet-ai/squadnet/internal/observe"
	"github.com/squadnet-ai/squadnet/pkg/provider/llm/anthropic"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	sessionID := flag.String("session", "", "session ID to create or resume (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "squadnet: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "squadnet: %v\n", err)
		}
		return 1
	}
	if *sessionID != "" {
		cfg.Session.ID = *sessionID
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("squadnet starting",
		"config", *configPath,
		"agents", len(cfg.Agents),
		"mcp_servers", len(cfg.MCP.Servers),
		"log_level", cfg.Server.LogLevel,
	)

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "squadnet: ANTHROPIC_API_KEY is not set")
		return 1
	}
	provider, err := anthropic.NewFromAPIKey(apiKey, anthropic.Options{
		DefaultModel: defaultModel(cfg),
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
	})
	if err != nil {
		slog.Error("failed to build LLM provider", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg, &app.Providers{LLM: provider})
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("net ready — press Ctrl+C to shut down")

	if err := application.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// defaultModel resolves the provider-level default model. When llm.model is
// unset, every agent carries its own override and the first one stands in as
// the provider default.
func defaultModel(cfg *config.Config) string {
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model
	}
	for _, a := range cfg.Agents {
		if a.Model != "" {
			return a.Model
		}
	}
	return ""
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

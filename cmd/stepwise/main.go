package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/stepwise/internal/agents"
	"github.com/user/stepwise/internal/config"
	"github.com/user/stepwise/internal/prompt"
	"github.com/user/stepwise/internal/sandbox"
	"github.com/user/stepwise/internal/searchprov"
	"github.com/user/stepwise/pkg/llm"
	"github.com/user/stepwise/pkg/llm/openai"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stepwise",
	Short: "Delegating agent with a live run/step event stream",
}

func init() {
	defaultPath := filepath.Join(os.Getenv("HOME"), ".stepwise", "config.json")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "config file path")
}

func main() {
	// A missing .env file is fine; real env vars still apply.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildOrchestrator wires the provider, delegates, and collaborators from
// configuration.
func buildOrchestrator(cfg *config.Config) (*agents.Orchestrator, error) {
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	budgeter, err := prompt.NewBudgeter(cfg.LLM.Model, cfg.LLM.SummaryBudgetTokens)
	if err != nil {
		return nil, fmt.Errorf("create budgeter: %w", err)
	}

	var searchOpts []searchprov.Option
	if cfg.Search.Excerpts {
		searchOpts = append(searchOpts, searchprov.WithExcerpts())
	}
	searcher := searchprov.NewBrave(cfg.Search.APIKey, searchOpts...)

	sandboxes := sandbox.NewClient(cfg.Sandbox.BaseURL, cfg.Sandbox.Token)

	search := agents.NewSearchAgent(provider, searcher, budgeter)
	artifact := agents.NewArtifactAgent(provider)
	analysis := agents.NewDataAnalysisAgent(provider, sandboxes)
	return agents.NewOrchestrator(provider, search, artifact, analysis), nil
}

func turnTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.TurnTimeoutSeconds) * time.Second
}

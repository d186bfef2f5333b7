// Package config loads runtime configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	LogLevel           string `json:"log_level"`
	TurnTimeoutSeconds int    `json:"turn_timeout_seconds"`
	LLM                struct {
		BaseURL             string  `json:"base_url"`
		APIKey              string  `json:"api_key"`
		Model               string  `json:"model"`
		MaxTokens           int     `json:"max_tokens"`
		Temperature         float32 `json:"temperature"`
		SummaryBudgetTokens int     `json:"summary_budget_tokens"`
	} `json:"llm"`
	Search struct {
		APIKey   string `json:"api_key"`
		Excerpts bool   `json:"excerpts"`
	} `json:"search"`
	Sandbox struct {
		BaseURL        string `json:"base_url"`
		Token          string `json:"token"`
		Runtime        string `json:"runtime"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"sandbox"`
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
}

// Load reads the config file at path, writing defaults there first when
// it does not exist. Environment variables take highest precedence.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LogLevel = "info"
	cfg.TurnTimeoutSeconds = 30
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4.1-nano"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.SummaryBudgetTokens = 24000
	cfg.Sandbox.Runtime = "python3.13"
	cfg.Sandbox.TimeoutSeconds = 60
	cfg.Server.Addr = ":8080"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if braveKey := os.Getenv("BRAVE_API_KEY"); braveKey != "" {
		cfg.Search.APIKey = braveKey
	}
	if sbURL := os.Getenv("SANDBOX_BASE_URL"); sbURL != "" {
		cfg.Sandbox.BaseURL = sbURL
	}
	if sbToken := os.Getenv("SANDBOX_TOKEN"); sbToken != "" {
		cfg.Sandbox.Token = sbToken
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}

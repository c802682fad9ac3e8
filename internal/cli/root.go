// Package cli implements the agentctl command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	agentapi "github.com/coder/agentapi-sdk-go"
	"github.com/coder/agentapi-sdk-go/internal/config"
)

var (
	configPath string
	baseURL    string
	apiKey     string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "agentapi command-line client",
	Long:  "agentctl talks to an agentapi server: send messages, inspect status and history, upload files, manage routing rules, and run a local dev server.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "agentctl.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "agentapi server base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "bearer token for the server")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when it exists and overlays flag values.
// A missing file at the default location falls back to defaults.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if configPath != "agentctl.yaml" {
		return nil, fmt.Errorf("config file %s not found", configPath)
	}

	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if timeout != 0 {
		cfg.Timeout = config.Duration(timeout)
	}
	return cfg, nil
}

func clientOptions(cfg *config.Config) []agentapi.Option {
	opts := []agentapi.Option{agentapi.WithTimeout(cfg.Timeout.Std())}
	if cfg.APIKey != "" {
		opts = append(opts, agentapi.WithAPIKey(cfg.APIKey))
	}
	return opts
}

func newClient(cfg *config.Config) *agentapi.Client {
	return agentapi.NewClient(cfg.BaseURL, clientOptions(cfg)...)
}

func newCompletionsClient(cfg *config.Config) *agentapi.CompletionsClient {
	return agentapi.NewCompletionsClient(cfg.BaseURL, clientOptions(cfg)...)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

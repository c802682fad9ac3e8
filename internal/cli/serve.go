package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	agentapi "github.com/coder/agentapi-sdk-go"
	"github.com/coder/agentapi-sdk-go/agenttest"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local in-memory agentapi server",
	Long:  "serve starts the agenttest dev server: every agentapi endpoint backed by in-memory state, with an echoing agent. Point the SDK or agentctl itself at it for local development.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Logging)

		opts := []agenttest.ServerOption{
			agenttest.WithLogger(logger),
			agenttest.WithAgentType(agentapi.AgentType(cfg.Serve.AgentType)),
			agenttest.WithResponder(agenttest.EchoResponder),
		}
		if cfg.APIKey != "" {
			opts = append(opts, agenttest.WithAPIKey(cfg.APIKey))
		}
		if cfg.Serve.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Serve.RedisAddr})
			if err := rdb.Ping(cmd.Context()).Err(); err != nil {
				return fmt.Errorf("connecting to redis at %s: %w", cfg.Serve.RedisAddr, err)
			}
			opts = append(opts,
				agenttest.WithRuleStore(agenttest.NewRedisRuleStore(rdb)),
				agenttest.WithSessionStore(agenttest.NewRedisSessionStore(rdb)),
			)
			logger.Info("using redis-backed stores", "addr", cfg.Serve.RedisAddr)
		}

		server := agenttest.NewServer(opts...)
		httpSrv := &http.Server{
			Addr:              cfg.Serve.Addr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("dev server starting", "addr", cfg.Serve.Addr)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case <-ctx.Done():
			logger.Info("shutting down gracefully")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutCtx); err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
		}

		logger.Info("server stopped")
		return nil
	},
}

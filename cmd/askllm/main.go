// Command askllm forwards a prompt to one of several configured LLM providers.
//
// Usage:
//
//	askllm serve                      # HTTP API and metrics
//	askllm stdio                      # JSON-RPC / MCP over stdin and stdout
//	askllm call '<json-rpc request>'  # one request, one response line
//	askllm ask <llm> <prompt>         # print the raw answer
//	askllm providers                  # list configured aliases
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/askllm/app"
	"github.com/upb/askllm/config"
	"github.com/upb/askllm/internal/observability"
)

// Version is injected at build time
var Version = "dev"

// errReported marks a failure whose output was already written
var errReported = errors.New("reported")

// options holds the process hooks a test can replace
type options struct {
	loadConfig  func(ctx context.Context) (*config.Config, error)
	onListening func(addr net.Addr)
}

func defaultOptions() *options {
	return &options{loadConfig: config.New}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultOptions()).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "askllm",
		Short: "Forward a prompt to a configured LLM provider",
		Long: `askllm routes a prompt to one of several configured LLM providers by alias
and returns the provider's answer unmodified.

Providers are configured through ASKLLM_CONFIG and the per-provider
ASKLLM_<NAME>_MODEL / ASKLLM_<NAME>_APIKEY variables, or a YAML file named by
ASKLLM_PROVIDERS_FILE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	setup := func(cmd *cobra.Command) (*app.Dependencies, error) {
		return buildDependencies(cmd.Context(), opts, logLevel)
	}

	rootCmd.AddCommand(
		serveCmd(opts, setup),
		stdioCmd(setup),
		callCmd(setup),
		askCmd(setup),
		providersCmd(setup),
	)
	return rootCmd
}

type setupFunc func(cmd *cobra.Command) (*app.Dependencies, error)

// buildDependencies loads configuration, builds the logger and wires the
// application. Logs go to LOG_FILE or stderr, never stdout.
func buildDependencies(ctx context.Context, opts *options, logLevel string) (*app.Dependencies, error) {
	cfg, err := opts.loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		File:        cfg.Observability.LogFile,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("starting askllm",
		zap.String("version", Version),
		zap.String("environment", cfg.Environment))

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return deps, nil
}

// closeDependencies flushes the audit ledger on the way out
func closeDependencies(deps *app.Dependencies) {
	if err := deps.Close(context.Background()); err != nil {
		deps.Logger.Warn("shutdown completed with errors", zap.Error(err))
	}
}

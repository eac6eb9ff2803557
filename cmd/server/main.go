// Package main is the entry point for the storefront server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/storefront/internal/auth"
	"github.com/vyrodovalexey/storefront/internal/config"
	"github.com/vyrodovalexey/storefront/internal/handler"
	"github.com/vyrodovalexey/storefront/internal/server"
	"github.com/vyrodovalexey/storefront/internal/store"
	"github.com/vyrodovalexey/storefront/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flagOptions holds command-line overrides. Only flags the user set are
// applied over the file and environment configuration.
type flagOptions struct {
	configPath string
	port       int
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var opts flagOptions

	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "storefront - catalog and cart service with live item updates",
		Long: `storefront serves a product catalog and shopping carts over REST and
pushes every catalog change to WebSocket subscribers. Both collections
are kept in memory and persisted to JSON files.`,
		Version:       handler.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, &opts)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (default $"+config.EnvConfigFile+")")
	flags.IntVarP(&opts.port, "port", "p", config.DefaultServerPort, "HTTP listen port")
	flags.StringVar(&opts.dataDir, "data-dir", config.DefaultDataDir, "directory holding the collection files")
	flags.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetVersionTemplate("storefront version {{.Version}}\n")
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "storefront version %s\n", handler.Version)
}

// loadConfig layers the flags the user actually set over the file and
// environment configuration.
func loadConfig(cmd *cobra.Command, opts *flagOptions) (*config.Config, error) {
	flags := cmd.Flags()

	return config.Load(opts.configPath, func(c *config.Config) {
		if flags.Changed("port") {
			c.ServerPort = opts.port
		}
		if flags.Changed("data-dir") {
			c.DataDir = opts.dataDir
		}
		if flags.Changed("log-level") {
			c.LogLevel = opts.logLevel
		}
	})
}

func run(cfg *config.Config) error {
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("items_path", cfg.ItemsPath()),
		zap.String("carts_path", cfg.CartsPath()),
		zap.String("auth_mode", cfg.AuthMode),
	)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, handler.Version, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}

	authenticator, err := createAuthenticator(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	items := store.NewFileItemStore(cfg.ItemsPath(), logger)
	carts := store.NewFileCartStore(cfg.CartsPath(), logger)

	srv := server.New(cfg, logger, items, carts, authenticator)

	// Start server in a goroutine. Until both collections are in memory
	// /ready reports loading and writes are answered with 503.
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	if err := loadStores(ctx, items, carts); err != nil {
		return err
	}
	logger.Info("collections loaded")

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		runErr = err
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			runErr = err
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}

	logger.Info("server stopped")
	return runErr
}

type loader interface {
	Load(ctx context.Context) error
}

// loadStores reads every collection from disk.
func loadStores(ctx context.Context, stores ...loader) error {
	for _, s := range stores {
		if err := s.Load(ctx); err != nil {
			return fmt.Errorf("loading collection: %w", err)
		}
	}
	return nil
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// createAuthenticator creates an authenticator based on the config auth mode.
// A nil authenticator means authentication is disabled.
func createAuthenticator(cfg *config.Config, logger *zap.Logger) (auth.Authenticator, error) {
	authenticator, err := auth.New(cfg.AuthMode, cfg.BasicAuthUsers, cfg.APIKeys)
	if err != nil {
		return nil, err
	}

	if authenticator == nil {
		logger.Info("authentication disabled")
	} else {
		logger.Info("authentication mode", zap.String("mode", string(authenticator.Method())))
	}

	return authenticator, nil
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solatis/wafscope/internal/core/api"
	"github.com/solatis/wafscope/internal/core/auth"
	"github.com/solatis/wafscope/internal/core/config"
	"github.com/solatis/wafscope/internal/core/db"
	"github.com/solatis/wafscope/internal/core/server"
	"github.com/solatis/wafscope/internal/rules"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC debugger API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
	serveCmd.Flags().String("data-dir", "./data", "directory for evaluation logs")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Flags bound into viper win over environment and config file
	v := viper.New()
	_ = v.BindPFlag("debugger_api.host", cmd.Flags().Lookup("host"))
	_ = v.BindPFlag("debugger_api.port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("debugger_api.data_dir", cmd.Flags().Lookup("data-dir"))

	cfg, err := config.LoadConfigWith(v, configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RequireMigrated(database); err != nil {
		return err
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set WS_HMAC_SECRET environment variable)")
	}
	authenticator := auth.NewAuthenticator(secrets, queries)

	engine, err := rules.NewEngine(
		rules.WithRegexCacheSize(cfg.RegexCacheSize),
		rules.WithRegexTimeout(cfg.RegexTimeout),
		rules.WithTracer(rules.LogTracer{Logger: slog.Default()}),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	service, err := api.NewDebuggerService(queries, engine, cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg, service, authenticator)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	slog.Info("starting wafscope debugger API",
		slog.String("version", Version),
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.Int("max_sessions", cfg.MaxSessions),
		slog.Duration("session_ttl", cfg.SessionTTL))

	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		slog.Info("shutting down gracefully")
		return grpcServer.Shutdown(ctx)
	}
}

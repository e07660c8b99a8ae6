// Command fieldsync runs the field-verification sync server and its admin tooling.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/and161185/fieldsync/internal/config"
	"github.com/and161185/fieldsync/internal/migrate"
	grpcserver "github.com/and161185/fieldsync/internal/server/grpc"
	httpapi "github.com/and161185/fieldsync/internal/server/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Set with -ldflags "-X main.buildVersion=... -X main.buildDate=...".
var (
	buildVersion = "dev"
	buildDate    = "unknown"
)

const shutdownTimeout = 5 * time.Second

type rootOptions struct {
	configFile string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "fieldsync",
		Short:         "Offline sync backend for field verification apps",
		Version:       fmt.Sprintf("%s (built %s)", buildVersion, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./config.yaml or ./config/config.yaml)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newDeviceCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(migrate.Up), string(migrate.Down), string(migrate.Status)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrations need storage.driver=postgres, got %q", cfg.Storage.Driver)
			}
			dir := migrate.Up
			if len(args) == 1 {
				dir = migrate.Direction(args[0])
			}
			return migrate.Run(cmd.Context(), cfg.Storage.DSN, dir)
		},
	}
}

// runServe starts HTTP (and optionally gRPC health) and blocks until SIGINT/SIGTERM.
func runServe(parent context.Context, opts *rootOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", buildVersion),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	router := httpapi.NewRouter(a.services, httpapi.Options{
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		FilesBaseURL: cfg.Files.BaseURL,
		Version:      buildVersion,
		Ready:        a.store.Ping,
	}, logger)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var hs *grpcserver.Health
	if cfg.GRPC.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("grpc health listen: %w", err)
		}
		hs = grpcserver.NewHealth(logger)
		go func() {
			if err := hs.Serve(lis); err != nil {
				errCh <- err
			}
		}()
		hs.MarkServing()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	if hs != nil {
		hs.MarkNotServing()
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if hs != nil {
		hs.Stop(shutdownTimeout)
	}
	logger.Info("shutdown complete")
	return runErr
}

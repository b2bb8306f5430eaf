// cmd/service/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github-integration/internal/api"
	"github-integration/internal/auth"
	"github-integration/internal/config"
	"github-integration/internal/github"
	"github-integration/internal/integration"
	"github-integration/internal/model"
	"github-integration/internal/query"
	"github-integration/internal/store/postgres"
	"github-integration/internal/syncer"
	"github-integration/internal/telemetry"
	"github-integration/migrations"
)

const shutdownTimeout = 10 * time.Second

func loadConfig(logger *slog.Logger, logLevel *slog.LevelVar) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")
	return cfg, nil
}

// app wires the components shared by the serve and resync commands.
type app struct {
	store        *postgres.Store
	integrations *integration.Manager
	syncer       *syncer.Syncer
	queries      *query.Engine
	clientOpts   []github.Option
	logger       *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := postgres.New(ctx, cfg.DBURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")

	a := &app{
		store:        st,
		integrations: integration.NewManager(st, logger),
		queries:      query.NewEngine(st, logger),
		logger:       logger,
	}
	if cfg.GithubAPIURL != "" {
		a.clientOpts = append(a.clientOpts, github.WithBaseURL(cfg.GithubAPIURL))
	}
	a.clientOpts = append(a.clientOpts, github.WithRateLimit(cfg.GithubRequestsPerSecond))

	a.syncer = syncer.NewSyncer(st, a.integrations, a.newUpstream, logger, syncer.Config{
		PageSize:        cfg.SyncPageSize,
		MaxRetries:      cfg.SyncMaxRetries,
		RepoConcurrency: cfg.SyncRepoConcurrency,
		Interval:        cfg.SyncInterval,
	})
	return a, nil
}

func (a *app) newClient(token string) (*github.Client, error) {
	return github.NewClient(token, a.logger, a.clientOpts...)
}

func (a *app) newUpstream(token string) (syncer.Upstream, error) {
	return a.newClient(token)
}

func (a *app) fetchProfile(ctx context.Context, token string) (model.Profile, error) {
	c, err := a.newClient(token)
	if err != nil {
		return model.Profile{}, err
	}
	return c.Profile(ctx)
}

func (a *app) Close() {
	a.store.Close()
}

func newServeCmd(logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the optional periodic resync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(logger, logLevel)
			if err != nil {
				return err
			}
			if err := cfg.ValidateOAuth(); err != nil {
				return err
			}

			shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Options{
				Enabled:     cfg.OtelEnabled,
				Stdout:      cfg.OtelStdout,
				ServiceName: "github-integration",
				Version:     version,
			})
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownTelemetry(flushCtx); err != nil {
					logger.Warn("Failed to flush telemetry", "error", err)
				}
			}()

			if err := migrations.Up(cfg.DBURL); err != nil {
				return fmt.Errorf("failed to run database migrations: %w", err)
			}
			logger.Info("Database migrations applied successfully")

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			router := api.NewRouter(api.Deps{
				Integrations: a.integrations,
				Syncer:       a.syncer,
				Queries:      a.queries,
				OAuth:        auth.NewAuthenticator(cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubRedirectURI, nil),
				FetchProfile: a.fetchProfile,
				Version:      version,
			}, logger)

			// Start the syncer in a separate goroutine
			go a.syncer.Start(ctx)

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
				logger.Info("Shutdown signal received. Exiting.")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("http-addr", "", "HTTP listen address")
	cmd.Flags().Duration("sync-interval", 0, "Resync every active integration at this interval (0 disables)")
	mustBind(cmd, "HTTP_ADDR", "http-addr")
	mustBind(cmd, "SYNC_INTERVAL", "sync-interval")
	return cmd
}

func newMigrateCmd(logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(logger, logLevel)
			if err != nil {
				return err
			}
			if err := migrations.Up(cfg.DBURL); err != nil {
				return fmt.Errorf("failed to run database migrations: %w", err)
			}
			logger.Info("Database migrations applied successfully")
			return nil
		},
	}
}

func newResyncCmd(logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Resync one connected GitHub account and print the counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(logger, logLevel)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.syncer.Resync(ctx, userID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "GitHub user id of the connected account")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func mustBind(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

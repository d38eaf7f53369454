package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/get2b/get2b-go/internal/platform/apispec"
	"github.com/get2b/get2b-go/internal/platform/auditlog"
	"github.com/get2b/get2b-go/internal/platform/auth"
	"github.com/get2b/get2b-go/internal/platform/env"
	"github.com/get2b/get2b-go/internal/platform/httpserver"
	"github.com/get2b/get2b-go/internal/platform/objectstore"
	"github.com/get2b/get2b-go/internal/platform/postgres"
	"github.com/get2b/get2b-go/internal/platform/telegram"
	"github.com/get2b/get2b-go/internal/repo"
	repopg "github.com/get2b/get2b-go/internal/repo/postgres"
	"github.com/get2b/get2b-go/internal/repo/sqlite"
	"github.com/get2b/get2b-go/internal/service/scenarios"
)

const (
	storePostgres = "postgres"
	storeSQLite   = "sqlite"
)

type storeOptions struct {
	kind       string
	sqlitePath string
}

func addStoreFlags(fs *pflag.FlagSet, opts *storeOptions) {
	fs.StringVar(&opts.kind, "store", env.String("SCENARIOS_STORE", storePostgres), "storage backend (postgres|sqlite)")
	fs.StringVar(&opts.sqlitePath, "sqlite-path", env.String("SCENARIOS_SQLITE_PATH", "scenarios.db"), "database file for the sqlite backend")
}

func newServeCmd(logger *slog.Logger) *cobra.Command {
	var (
		addr  string
		store storeOptions
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scenarios HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, logger, addr, store)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", env.String("SCENARIOS_HTTP_ADDR", ":8090"), "listen address")
	addStoreFlags(cmd.Flags(), &store)
	return cmd
}

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbCfg, err := postgres.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("invalid database config: %w", err)
			}
			dbCfg.AutoMigrate = false
			db, err := postgres.Open(cmd.Context(), dbCfg)
			if err != nil {
				return fmt.Errorf("database unavailable: %w", err)
			}
			defer func() { _ = db.Close() }()

			applied, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "versions", applied)
			return nil
		},
	}
}

func openStore(ctx context.Context, logger *slog.Logger, opts storeOptions) (repo.Store, error) {
	switch opts.kind {
	case storePostgres:
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("invalid database config: %w", err)
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("database unavailable: %w", err)
		}
		if dbCfg.AutoMigrate {
			logger.Info("database schema up to date", "store", storePostgres)
		}
		return repopg.NewStore(db)
	case storeSQLite:
		return sqlite.Open(ctx, opts.sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store %q (expected %s or %s)", opts.kind, storePostgres, storeSQLite)
	}
}

type handlerConfig struct {
	Service       *scenarios.Service
	Store         repo.Store
	Authenticator auth.Authenticator
	Validator     *apispec.Validator
	Readiness     []httpserver.ReadinessCheck
}

func newHandler(logger *slog.Logger, cfg handlerConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, cfg.Readiness...))
	mux.Handle("/openapi.yaml", apispec.Handler())
	newScenariosAPI(logger, cfg.Service).register(mux)

	var handler http.Handler = mux
	if cfg.Validator != nil {
		handler = cfg.Validator.Middleware(handler)
	}
	if cfg.Authenticator != nil {
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: cfg.Authenticator,
			Authorize:     auth.MethodRoleAuthorizer(),
			Audit: func(ctx context.Context, event auth.DenyEvent) error {
				auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return cfg.Store.Audit().Append(auditCtx, auditlog.FromDeny(serviceName, event))
			},
			SkipPrefixes: []string{"/healthz", "/readyz", "/openapi.yaml"},
		}.Wrap(handler)
	}
	return httpserver.Wrap(logger, serviceName, handler)
}

func serve(ctx context.Context, logger *slog.Logger, addr string, storeOpts storeOptions) error {
	shutdownTimeout, err := env.Duration("SCENARIOS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}
	svcCfg, err := scenarios.ConfigFromEnv()
	if err != nil {
		return err
	}
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	validate, err := env.Bool("SCENARIOS_OPENAPI_VALIDATE", true)
	if err != nil {
		return err
	}
	uploadsEnabled, err := env.Bool("SCENARIOS_UPLOADS_ENABLED", false)
	if err != nil {
		return err
	}
	tgCfg, err := telegram.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid telegram config: %w", err)
	}

	store, err := openStore(ctx, logger, storeOpts)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	readiness := []httpserver.ReadinessCheck{{
		Name:  storeOpts.kind,
		Check: httpserver.CheckWithTimeout(750*time.Millisecond, store.Ping),
	}}
	opts := []scenarios.Option{scenarios.WithLogger(logger)}

	if uploadsEnabled {
		osCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return fmt.Errorf("invalid object store config: %w", err)
		}
		client, err := objectstore.NewMinIOClient(osCfg)
		if err != nil {
			return fmt.Errorf("minio client: %w", err)
		}
		if err := objectstore.EnsureBucket(ctx, client, osCfg); err != nil {
			return err
		}
		uploads, err := objectstore.NewMinioUploads(client, osCfg)
		if err != nil {
			return err
		}
		opts = append(opts, scenarios.WithUploads(uploads))
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "minio",
			Check: httpserver.CheckWithTimeout(2*time.Second, func(ctx context.Context) error {
				return objectstore.CheckBucket(ctx, client, osCfg)
			}),
		})
	}

	if tgCfg.Enabled() {
		client, err := telegram.NewClient(tgCfg)
		if err != nil {
			return err
		}
		notifier, err := telegram.NewManagerNotifier(client, tgCfg.ChatID)
		if err != nil {
			return err
		}
		opts = append(opts, scenarios.WithNotifier(notifier))
	} else {
		logger.Info("manager notifications disabled")
	}

	svc, err := scenarios.New(store, svcCfg, opts...)
	if err != nil {
		return err
	}

	authenticator, err := auth.NewAuthenticator(ctx, authCfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if authenticator == nil {
		logger.Warn("authentication disabled", "mode", string(authCfg.Mode))
	}

	var validator *apispec.Validator
	if validate {
		doc, err := apispec.Load(ctx)
		if err != nil {
			return err
		}
		if validator, err = apispec.NewValidator(doc); err != nil {
			return err
		}
	}

	handler := newHandler(logger, handlerConfig{
		Service:       svc,
		Store:         store,
		Authenticator: authenticator,
		Validator:     validator,
		Readiness:     readiness,
	})

	cfg := httpserver.Config{
		Service:         serviceName,
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

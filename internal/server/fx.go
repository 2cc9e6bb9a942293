// Package server provides the application container and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/api"
	"github.com/JakeFAU/jobwatch/internal/clock/system"
	"github.com/JakeFAU/jobwatch/internal/config"
	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/delivery"
	gcsdelivery "github.com/JakeFAU/jobwatch/internal/delivery/gcs"
	pubsubdelivery "github.com/JakeFAU/jobwatch/internal/delivery/pubsub"
	smtpdelivery "github.com/JakeFAU/jobwatch/internal/delivery/smtp"
	"github.com/JakeFAU/jobwatch/internal/delivery/webhook"
	collyfetcher "github.com/JakeFAU/jobwatch/internal/fetcher/colly"
	"github.com/JakeFAU/jobwatch/internal/id/uuid"
	"github.com/JakeFAU/jobwatch/internal/logging"
	"github.com/JakeFAU/jobwatch/internal/metrics"
	"github.com/JakeFAU/jobwatch/internal/query"
	"github.com/JakeFAU/jobwatch/internal/report"
	"github.com/JakeFAU/jobwatch/internal/runner"
	"github.com/JakeFAU/jobwatch/internal/schedule"
	memorystore "github.com/JakeFAU/jobwatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/jobwatch/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/jobwatch/internal/storage/sqlite"
	"github.com/JakeFAU/jobwatch/internal/traverse"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	clock           crawler.Clock
	store           crawler.PostingStore
	deliverer       crawler.Deliverer
	runner          *runner.Runner
	query           *query.Service
	apiServer       *api.Server
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	type SanitizedConfig struct {
		ServerPort    int    `json:"server_port"`
		StorageDriver string `json:"storage_driver"`
		ReportMethod  string `json:"report_method"`
		Sites         int    `json:"sites"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:    cfg.Server.Port,
		StorageDriver: cfg.Storage.Driver,
		ReportMethod:  cfg.Report.Method,
		Sites:         len(cfg.Sites),
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
	}, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger wires the application around an existing logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	metrics.Init()

	app.logger.Info("building application dependencies")
	if err := setupStore(ctx, app); err != nil {
		return nil, err
	}
	if err := setupDeliverer(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout(),
	})
	app.logger.Info("using colly fetcher",
		zap.String("user_agent", cfg.HTTP.UserAgent),
		zap.Duration("timeout", cfg.HTTP.Timeout()),
	)

	app.runner = runner.New(
		cfg.Sites,
		traverse.New(fetcher, app.logger.Named("traverse")),
		app.store,
		report.New(cfg.Report.MaxLength),
		app.deliverer,
		uuid.New(),
		app.clock,
		runner.Config{Concurrency: cfg.Run.Concurrency},
		app.logger.Named("runner"),
	)
	app.query = query.NewService(app.store, query.Config{
		DefaultLimit: cfg.API.DefaultLimit,
		MaxLimit:     cfg.API.MaxLimit,
	}, app.logger.Named("query"))
	app.apiServer = api.NewServer(app.query, app.store, app.logger.Named("api"))
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runner returns the watcher run orchestrator.
func (a *App) Runner() *runner.Runner {
	return a.runner
}

// Handler returns the HTTP handler served by Serve.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Serve runs the HTTP API, and the cron schedule when enabled, until ctx is
// canceled or SIGINT/SIGTERM arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sched *schedule.Scheduler
	if a.cfg.Schedule.Enabled {
		var err error
		sched, err = schedule.New(a.cfg.Schedule.Cron, a.runner, runner.Options{
			Backfill:  a.cfg.Schedule.Backfill,
			ReportAll: a.cfg.Schedule.ReportAll,
		}, a.logger.Named("schedule"))
		if err != nil {
			return fmt.Errorf("scheduler init failed: %w", err)
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil && !isSyncNoise(err) {
		return fmt.Errorf("logger sync failed: %w", err)
	}
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("posting store close failed", zap.Error(err))
		}
	}
}

// isSyncNoise matches the error zap returns when syncing a terminal.
func isSyncNoise(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

func setupStore(ctx context.Context, app *App) error {
	var err error
	switch app.cfg.Storage.Driver {
	case config.DriverPostgres:
		app.logger.Info("using postgres posting store")
		app.store, err = pgstore.New(ctx, pgstore.Config{
			DSN:      app.cfg.Storage.Postgres.DSN,
			Table:    app.cfg.Storage.Postgres.Table,
			MaxConns: app.cfg.Storage.Postgres.MaxConns,
		}, app.clock, app.logger.Named("postgres"))
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
	case config.DriverMemory:
		app.logger.Info("using in-memory posting store")
		app.store = memorystore.New(app.clock)
	default:
		app.logger.Info("using sqlite posting store", zap.String("path", app.cfg.Storage.SQLite.Path))
		app.store, err = sqlitestore.Open(ctx, sqlitestore.Config{
			Path:     app.cfg.Storage.SQLite.Path,
			SeedPath: app.cfg.Storage.SQLite.SeedPath,
		}, app.clock, app.logger.Named("sqlite"))
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
	}
	if err := app.store.EnsureSchema(ctx); err != nil {
		app.logger.Warn("ensure schema failed; continuing", zap.Error(err))
	}
	return nil
}

func setupDeliverer(ctx context.Context, app *App) error {
	rc := app.cfg.Report
	var (
		d   crawler.Deliverer
		err error
	)
	switch rc.Method {
	case delivery.MethodWebhook:
		d, err = webhook.New(webhook.Config{
			URL:     rc.Webhook.URL,
			Title:   rc.Title,
			Timeout: time.Duration(rc.Webhook.TimeoutSeconds) * time.Second,
		})
	case delivery.MethodSMTP:
		d, err = smtpdelivery.New(smtpdelivery.Config{
			Host:     rc.SMTP.Host,
			Port:     rc.SMTP.Port,
			Username: rc.SMTP.Username,
			Password: rc.SMTP.Password,
			From:     rc.SMTP.From,
			To:       rc.SMTP.To,
			Subject:  rc.Title,
		})
	case delivery.MethodPubSub:
		d, err = setupPubSub(ctx, app)
	case delivery.MethodGCS:
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		d, err = gcsdelivery.New(app.storage, gcsdelivery.Config{
			Bucket: rc.GCS.Bucket,
			Prefix: rc.GCS.Prefix,
		}, app.clock)
	default:
		d = delivery.NewLog(os.Stdout, app.logger.Named("report"))
	}
	if err != nil {
		return fmt.Errorf("%s deliverer init failed: %w", rc.Method, err)
	}
	method := rc.Method
	if method == "" {
		method = delivery.MethodLog
	}
	app.deliverer = delivery.WithMetrics(method, d)
	app.logger.Info("report delivery configured", zap.String("method", method))
	return nil
}

func setupPubSub(ctx context.Context, app *App) (crawler.Deliverer, error) {
	ps := app.cfg.Report.PubSub
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(ps.Topic)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.Topic),
	)
	return pubsubdelivery.New(app.pubsubPublisher, app.cfg.Report.Title, app.logger.Named("pubsub"))
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/sorel-connect/internal/pkg/config"
	"github.com/anicoll/sorel-connect/internal/pkg/database"
	"github.com/anicoll/sorel-connect/internal/pkg/database/migration"
	"github.com/anicoll/sorel-connect/internal/pkg/metrics"
	"github.com/anicoll/sorel-connect/internal/pkg/model"
	"github.com/anicoll/sorel-connect/internal/pkg/mqtt"
	"github.com/anicoll/sorel-connect/internal/pkg/publisher"
	"github.com/anicoll/sorel-connect/internal/pkg/scheduler"
	"github.com/anicoll/sorel-connect/internal/pkg/server"
	"github.com/anicoll/sorel-connect/internal/pkg/sorel"
	"github.com/anicoll/sorel-connect/internal/pkg/store"
	"github.com/anicoll/sorel-connect/pkg/hasher"
)

type sorelClient interface {
	Initialize(ctx context.Context) error
	Refresh(ctx context.Context) (model.ValueMapping, error)
	Catalog() model.Catalog
	Values() (model.ValueMapping, time.Time)
}

// SorelCommand discovers the installation and polls it until interrupted.
func SorelCommand(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	st, closer, err := openStore(ctx.Context, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	client := sorel.New(cfg.SorelCfg, sorel.NewHTTPFetcher(cfg.SorelCfg.RequestTimeout), st, sorel.WithLogger(logger))
	return run(ctx.Context, cfg, client, logger)
}

// CheckCommand verifies the credentials with a single login.
func CheckCommand(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	client := sorel.New(cfg.SorelCfg, sorel.NewHTTPFetcher(cfg.SorelCfg.RequestTimeout), &store.Memory{}, sorel.WithLogger(logger))
	if err := client.Login(ctx.Context); err != nil {
		logger.Debug("login failed", zap.Error(err))
		return cli.Exit(describeSetupError(err), 1)
	}
	logger.Info("login successful", zap.String("installation", cfg.SorelCfg.ID))
	return nil
}

// describeSetupError maps a login failure onto the message shown to the user.
func describeSetupError(err error) string {
	switch {
	case errors.Is(err, sorel.ErrInvalidCredentials):
		return "invalid credentials: check the installation id, email and password"
	case errors.Is(err, sorel.ErrServiceUnavailable):
		return "service unavailable: the SOREL Connect portal could not be reached"
	}
	return "unknown error"
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("poll-interval") {
		cfg.SorelCfg.PollInterval = ctx.Duration("poll-interval")
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore picks Postgres when DATABASE_URL is set, the JSON file otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, io.Closer, error) {
	if cfg.DatabaseURL == "" {
		return store.NewFile(cfg.StorePath), nopCloser{}, nil
	}
	if err := migration.Migrate(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	db := database.NewDatabase(conn)
	return db, db, nil
}

func run(ctx context.Context, cfg *config.Config, client sorelClient, logger *zap.Logger) error {
	if err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing client: %w", err)
	}

	m := metrics.New()
	m.ObserveCatalog(client.Catalog())

	pub := publisher.New(logger)
	srv := server.New(client, m.Registry, server.WithConfig(cfg.SorelCfg))
	defer srv.Close()
	if err := pub.Register("websocket", srv.Feed()); err != nil {
		return err
	}

	if cfg.MqttCfg.Enabled() {
		token, err := hasher.GenerateToken(4)
		if err != nil {
			return err
		}
		opts := mqtt.OptsFromConfig(cfg.MqttCfg, cfg.SorelCfg.ID, "sorel_connect_"+token)
		mqttSvc := mqtt.New(paho_mqtt.NewClient(opts), cfg.MqttCfg, cfg.SorelCfg.ID)
		if err := mqttSvc.Connect(); err != nil {
			return fmt.Errorf("connecting to mqtt: %w", err)
		}
		defer mqttSvc.Disconnect()
		if err := pub.Register("mqtt", mqttSvc); err != nil {
			return err
		}
	}
	pub.RegisterEntities(ctx, client.Catalog())

	sched := scheduler.New(client, cfg.SorelCfg.PollInterval,
		scheduler.WithSink(pub),
		scheduler.WithObserver(m),
		scheduler.WithLogger(logger),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return sched.Run(ctx)
	})

	if cfg.HTTPAddr != "" {
		httpSrv := &http.Server{
			Handler:      srv.Handler(),
			Addr:         cfg.HTTPAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		eg.Go(func() error {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("context done")
		return nil
	}
	return err
}

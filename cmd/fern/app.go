package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/acquire"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/loader"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/notify"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const shutdownTimeout = 10 * time.Second

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg      *config.Config
	logger   ectologger.Logger
	db       database.DB
	redis    *redis.Client
	notifier *notify.Multi
	driver   *pipeline.Driver
	startup  *startup.Startup

	syncLogs    func()
	stopTracing func(context.Context) error
}

func loadConfig(envFile string) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}

// newApp connects to storage, retrying with backoff, and wires the pipeline. The
// returned error wraps pipeline.ErrStorageUnavailable when storage never answered.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, syncLogs, err := logging.New(cfg.AppName, cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, &configError{err: fmt.Errorf("failed to build logger: %w", err)}
	}

	stopTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Enabled:     cfg.OTLPEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		},
	})
	if err != nil {
		syncLogs()
		return nil, &configError{err: fmt.Errorf("failed to set up tracing: %w", err)}
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		syncLogs:    syncLogs,
		stopTracing: stopTracing,
		startup:     startup.New(logger, cfg.StartupMaxAttempts),
	}

	a.startup.Add(startup.Func{
		DependencyName: "database",
		StartFunc: func(ctx context.Context) error {
			db, err := database.Open(ctx, database.Config{
				DSN:             cfg.DSN,
				MaxOpenConns:    database.MinOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
		StopFunc: func(context.Context) error {
			return a.db.Close()
		},
	})

	if err := a.startup.Start(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("%w: %w", pipeline.ErrStorageUnavailable, err)
	}

	a.connectRedis(ctx)
	a.notifier = a.buildNotifier()
	a.driver = a.buildDriver()

	return a, nil
}

// connectRedis enables the window lock when Redis is configured and reachable.
func (a *app) connectRedis(ctx context.Context) {
	cfg := redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}
	if !cfg.Enabled() {
		return
	}

	client, err := redis.NewClient(ctx, cfg, a.logger)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Warnf("Redis at %s unreachable, running without window locks", cfg.Host)
		return
	}
	a.redis = client
}

func (a *app) buildNotifier() *notify.Multi {
	var notifiers []notify.Notifier

	if a.cfg.EmailEnabled() {
		email, err := notify.NewEmailNotifier(notify.EmailConfig{
			APIKey:  a.cfg.SendGridAPIKey,
			From:    a.cfg.NotifyFrom,
			To:      a.cfg.NotifyTo,
			Subject: a.cfg.NotifySubject,
		}, a.logger)
		if err != nil {
			a.logger.WithError(err).Warn("Email notifications disabled")
		} else {
			notifiers = append(notifiers, email)
		}
	}

	if a.cfg.KafkaEnabled() {
		notifiers = append(notifiers, notify.NewKafkaNotifier(notify.KafkaConfig{
			Brokers: notify.ParseBrokers(a.cfg.KafkaBrokers),
			Topic:   a.cfg.KafkaSummaryTopic,
		}, a.logger))
	}

	return notify.NewMulti(a.logger, notifiers...)
}

func (a *app) buildDriver() *pipeline.Driver {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = a.cfg.AcquireTimeout
	httpCfg.MaxDownloadSize = a.cfg.HTTPMaxDownloadBytes

	acquirer := acquire.NewHTTPAcquirer(httpclient.NewClient(httpCfg, a.logger), acquire.Config{
		URLTemplate: a.cfg.SourceURLTemplate,
		Timeout:     a.cfg.AcquireTimeout,
	}, a.logger)

	storage := loader.NewLoader(a.db, loader.Config{BatchSize: a.cfg.LoadBatchSize}, a.logger)

	opts := []pipeline.Option{}
	if a.notifier.Len() > 0 {
		opts = append(opts, pipeline.WithNotifier(a.notifier))
	}
	if a.redis != nil {
		opts = append(opts, pipeline.WithLocker(redis.NewLocker(a.redis, redis.DefaultKeyPrefix)))
	}

	return pipeline.NewDriver(acquirer, storage, pipeline.Config{
		WorkDir:       a.cfg.WorkDir,
		WindowTimeout: a.cfg.WindowLoadTimeout,
		LockTTL:       a.cfg.LockTTL,
	}, a.logger, opts...)
}

// pushMetrics sends one shot run metrics to the Pushgateway when one is configured.
func (a *app) pushMetrics(ctx context.Context) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := metrics.Push(ctx, a.cfg.PushgatewayURL, a.cfg.AppName); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warnf("Failed to push metrics to %s", a.cfg.PushgatewayURL)
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close notifiers")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to stop dependencies")
	}
	if err := a.stopTracing(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to flush traces")
	}
	a.syncLogs()
}

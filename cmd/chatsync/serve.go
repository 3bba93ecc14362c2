package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/chatsync/internal/audio"
	"github.com/memohai/chatsync/internal/call"
	"github.com/memohai/chatsync/internal/config"
	"github.com/memohai/chatsync/internal/directory"
	"github.com/memohai/chatsync/internal/docstore"
	"github.com/memohai/chatsync/internal/docstore/bolt"
	"github.com/memohai/chatsync/internal/docstore/memory"
	mongostore "github.com/memohai/chatsync/internal/docstore/mongo"
	"github.com/memohai/chatsync/internal/docstore/postgres"
	"github.com/memohai/chatsync/internal/handlers"
	"github.com/memohai/chatsync/internal/healthcheck"
	"github.com/memohai/chatsync/internal/logger"
	"github.com/memohai/chatsync/internal/media"
	"github.com/memohai/chatsync/internal/media/providers/cloudinary"
	"github.com/memohai/chatsync/internal/media/providers/gridfs"
	"github.com/memohai/chatsync/internal/media/providers/localfs"
	"github.com/memohai/chatsync/internal/metrics"
	"github.com/memohai/chatsync/internal/server"
	"github.com/memohai/chatsync/internal/session"
)

const (
	startupTimeout = 30 * time.Second
	uploadTimeout  = 2 * time.Minute
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideRegistry,
			provideMetrics,
			provideStore,
			provideStorage,
			provideSessionFactory,
			provideDirectory,
			provideCallService,
			provideHealthChecker,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewUsersHandler),
			provideServerHandler(provideChannelsHandler),
			provideServerHandler(provideSessionHandler),
			provideServerHandler(handlers.NewMediaHandler),
			provideServerHandler(provideMetricsHandler),
			provideServer,
		),
		fx.Invoke(
			startRecordingPruner,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := loadConfig("")
	if err != nil {
		return config.Config{}, err
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return config.Config{}, errors.New("auth.jwt_secret is required to serve")
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (docstore.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	var (
		store docstore.Store
		err   error
	)
	switch cfg.Store.Driver {
	case "bolt":
		store, err = bolt.Open(log, cfg.Bolt.Path)
	case "postgres":
		store, err = postgres.Open(ctx, log, cfg.Postgres.DSN())
	case "mongo":
		store, err = mongostore.Connect(ctx, log, cfg.Mongo.URI, cfg.Mongo.Database)
	default:
		store = memory.New(log)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	log.Info("document store ready", slog.String("driver", cfg.Store.Driver))
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return store.Close() }})
	return store, nil
}

type storageResult struct {
	fx.Out

	Provider media.StorageProvider
	Uploader media.Uploader
}

func provideStorage(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, store docstore.Store) (storageResult, error) {
	switch cfg.Storage.Driver {
	case "cloudinary":
		c := cfg.Storage.Cloudinary
		client, err := cloudinary.New(log, cloudinary.Config{
			BaseURL:       c.BaseURL,
			CloudName:     c.CloudName,
			APIKey:        c.APIKey,
			APISecret:     c.APISecret,
			UploadPreset:  c.UploadPreset,
			AllowUnsigned: c.AllowUnsigned,
		}, &http.Client{Timeout: uploadTimeout})
		if err != nil {
			return storageResult{}, err
		}
		return storageResult{Uploader: client}, nil
	case "gridfs":
		ms, ok := store.(*mongostore.Store)
		if !ok {
			ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
			defer cancel()
			var err error
			ms, err = mongostore.Connect(ctx, log, cfg.Mongo.URI, cfg.Mongo.Database)
			if err != nil {
				return storageResult{}, fmt.Errorf("connect gridfs: %w", err)
			}
			lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return ms.Close() }})
		}
		provider, err := gridfs.New(ms.Database(), gridfs.DefaultBucket, cfg.Storage.Local.PublicBaseURL)
		if err != nil {
			return storageResult{}, err
		}
		return storageResult{Provider: provider, Uploader: media.NewStorageUploader(log, provider, cfg.Media.MaxBytes)}, nil
	default:
		provider, err := localfs.New(cfg.Storage.Local.DataRoot, cfg.Storage.Local.PublicBaseURL)
		if err != nil {
			return storageResult{}, err
		}
		return storageResult{Provider: provider, Uploader: media.NewStorageUploader(log, provider, cfg.Media.MaxBytes)}, nil
	}
}

func provideSessionFactory(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, store docstore.Store, uploader media.Uploader, m *metrics.Metrics) *session.Factory {
	factory := session.NewFactory(log, session.Config{
		Subscriber:    store,
		Appender:      store,
		Uploader:      uploader,
		RecordingsDir: cfg.Audio.RecordingsDir,
		MaxBytes:      cfg.Media.MaxBytes,
		Metrics:       m,
	})
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		factory.CloseAll(ctx)
		return nil
	}})
	return factory
}

func provideDirectory(log *slog.Logger, store docstore.Store) *directory.Service {
	return directory.NewService(log, store)
}

func provideCallService(log *slog.Logger, cfg config.Config) *call.Service {
	svc := call.NewService(log, call.Config{
		URL:       cfg.Calling.URL,
		APIKey:    cfg.Calling.APIKey,
		APISecret: cfg.Calling.APISecret,
		TokenTTL:  config.Duration(cfg.Calling.TokenTTL, call.DefaultTokenTTL),
	})
	if !svc.Configured() {
		log.Warn("calling credentials missing, call handoff disabled")
	}
	return svc
}

func provideHealthChecker(log *slog.Logger, store docstore.Store, cfg config.Config) healthcheck.Checker {
	return healthcheck.NewProbeChecker(log,
		healthcheck.Probe{ID: "docstore." + cfg.Store.Driver, Type: "docstore", Check: store.Ping},
	)
}

func provideChannelsHandler(log *slog.Logger, cfg config.Config, store docstore.Store, sessions *session.Factory, calls *call.Service) *handlers.ChannelsHandler {
	return handlers.NewChannelsHandler(log, store, sessions, calls, cfg.Media.MaxBytes)
}

func provideSessionHandler(log *slog.Logger, sessions *session.Factory) *handlers.SessionHandler {
	return handlers.NewSessionHandler(log, sessions, nil)
}

func provideMetricsHandler(reg *prometheus.Registry) *handlers.MetricsHandler {
	return handlers.NewMetricsHandler(reg)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func startRecordingPruner(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) error {
	retention := config.Duration(cfg.Audio.Retention, 24*time.Hour)
	dir := cfg.Audio.RecordingsDir
	if cfg.Audio.PruneSchedule == "" {
		log.Info("recording prune disabled")
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(cfg.Audio.PruneSchedule, func() {
		n, err := audio.PruneRecordings(dir, retention, time.Now())
		if err != nil {
			log.Warn("prune recordings failed", slog.Any("error", err))
			return
		}
		if n > 0 {
			log.Info("pruned recordings", slog.Int("removed", n))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule recording prune %q: %w", cfg.Audio.PruneSchedule, err)
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

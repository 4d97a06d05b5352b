package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oklog/run"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"workboard/api"
	"workboard/config"
	"workboard/domain"
	"workboard/storage"
	"workboard/storage/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if err := serve(cfg); err != nil {
		log.Fatal(err)
	}
}

func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger := log.StandardLogger()

	backend, publishers, pings, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	broker := api.NewBroker()
	var (
		rc      *redis.Client
		deduper api.Deduper
	)
	if cfg.Redis.ConnectionString != "" {
		opts, err := config.RedisOptions(cfg.Redis.ConnectionString)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()

		backend = storage.NewCache(backend, rc, cfg.Redis.CacheTTL)
		deduper = api.NewRedisDeduper(rc, cfg.Redis.DeduperTTL)
		publishers = append(publishers, storage.NewRedisPublisher(rc, cfg.Redis.UpdatesChannel))
		pings = append(pings, func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	} else {
		log.Warn("REDIS_CONNECTION_STRING not set; caching, deduplication and cross-instance streams are disabled")
		publishers = append(publishers, broker)
	}

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderIdempotencyKey},
	}))
	api.Register(e, api.Deps{
		Tasks:     domain.NewTaskService(backend, publishers),
		Projects:  domain.NewProjectService(backend),
		Members:   domain.NewMemberService(backend),
		Auth:      auth,
		Deduper:   deduper,
		Broker:    broker,
		Logger:    logger,
		BodyLimit: cfg.BodyLimit,
		Ping:      pingAll(pings),
	})

	var g run.Group
	{
		g.Add(
			func() error {
				log.Infof("listening on %s", cfg.ListenAddr())
				if err := e.Start(cfg.ListenAddr()); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			},
			func(error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := e.Shutdown(shutdownCtx); err != nil {
					log.WithError(err).Error("server shutdown")
				}
			},
		)
	}
	if rc != nil {
		subCtx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return api.SubscribeBoardUpdates(subCtx, rc, cfg.Redis.UpdatesChannel, broker, logger)
			},
			func(error) { cancel() },
		)
	}
	{
		g.Add(
			func() error {
				<-ctx.Done()
				log.Info("termination signal received")
				return nil
			},
			func(error) { stop() },
		)
	}
	return g.Run()
}

// openStore connects the configured document store. The returned publishers
// hold the store specific event sinks.
func openStore(ctx context.Context, cfg config.Config, logger log.FieldLogger) (storage.Backend, domain.Publishers, []func(context.Context) error, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: cfg.SQLitePath, Logger: logger})
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		closeRepo := func() {
			if err := repo.Close(); err != nil {
				log.WithError(err).Warn("close sqlite")
			}
		}
		return repo, nil, []func(context.Context) error{repo.Ping}, closeRepo, nil
	default:
		t := cfg.Tables
		store, err := storage.New(t.ConnectionString, storage.Tables{Tasks: t.Tasks, Members: t.Members, Projects: t.Projects})
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("storage: %w", err)
		}
		var publishers domain.Publishers
		if t.ActivityQueue != "" {
			q, err := storage.NewQueuePublisher(t.ConnectionString, t.ActivityQueue)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("activity queue: %w", err)
			}
			publishers = append(publishers, q)
		}
		return store, publishers, []func(context.Context) error{store.Ping}, func() {}, nil
	}
}

func newAuth(cfg config.AuthConfig) (*api.Auth, error) {
	if cfg.TestMode {
		log.Warn("auth test mode enabled; accepting HS256 tokens")
		return api.NewTestAuth([]byte(cfg.TestSecret)), nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval: cfg.JWKSRefresh,
		RefreshErrorHandler: func(err error) {
			log.WithError(err).Error("jwks refresh")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Audience, "https://"+cfg.Domain+"/", cfg.JWKSRefresh), nil
}

func pingAll(pings []func(context.Context) error) func(context.Context) error {
	if len(pings) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		var errs []error
		for _, ping := range pings {
			errs = append(errs, ping(ctx))
		}
		return errors.Join(errs...)
	}
}

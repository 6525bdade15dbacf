package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/config"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
	"github.com/MrSnakeDoc/linkvault/internal/importer"
	"github.com/MrSnakeDoc/linkvault/internal/live"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/redis"
	"github.com/MrSnakeDoc/linkvault/internal/scheduler"
	"github.com/MrSnakeDoc/linkvault/internal/sources/homepage"
	"github.com/MrSnakeDoc/linkvault/internal/store"
	"github.com/MrSnakeDoc/linkvault/internal/store/memory"
	"github.com/MrSnakeDoc/linkvault/internal/store/postgres"
	redisstore "github.com/MrSnakeDoc/linkvault/internal/store/redis"
	"github.com/MrSnakeDoc/linkvault/internal/subscription"
	"github.com/MrSnakeDoc/linkvault/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	server   *httpserver.Server
	backend  store.Backend
	sessions *live.Sessions
	reloader *scheduler.ImportReloader
	sweeper  *scheduler.IndexSweeper
}

// OpenBackend connects the store selected by cfg.Backend. Redis and
// Postgres are retried/validated up front so the process fails fast.
func OpenBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			ClientName:     "linkvault",
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisstore.NewStore(client, log, cfg.FeedBuffer), nil

	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.Options{
			Table:        cfg.PostgresTable,
			MinReconnect: cfg.PostgresMinReconnect,
			MaxReconnect: cfg.PostgresMaxReconnect,
			FeedBuffer:   cfg.FeedBuffer,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return s, nil

	case config.BackendMemory:
		log.Warn("using the in-memory store, links are lost on restart")
		return memory.New(log, cfg.FeedBuffer), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// New wires the server from cfg. The store must be reachable.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	backend, err := OpenBackend(ctx, cfg, loggerClient)
	if err != nil {
		return nil, err
	}
	loggerClient.Info("store initialized successfully", logger.String("backend", backend.Name()))

	hub := feed.NewHub(cfg.BroadcastBuffer)
	sessions := live.NewSessions()

	// Import reloader (if an import file is configured)
	var (
		reloader      *scheduler.ImportReloader
		reloadTrigger chan struct{}
	)
	if cfg.ImportFile != "" {
		kind, ok := homepage.ParseKind(cfg.ImportKind)
		if !ok {
			_ = backend.Close()
			return nil, fmt.Errorf("invalid import kind %q", cfg.ImportKind)
		}
		loggerClient.Info("import file configured, initializing import reloader",
			logger.String("file", cfg.ImportFile),
			logger.String("owner", cfg.ImportOwner))
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewImportReloader(
			importer.New(backend, logger.Named(loggerClient, "import")),
			cfg.ImportFile,
			kind,
			cfg.ImportOwner,
			logger.Named(loggerClient, "import"),
			cfg.ImportInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("import file not configured, homepage import disabled")
	}

	// Only stores with a secondary index need sweeping.
	var sweeper *scheduler.IndexSweeper
	if s, ok := backend.(scheduler.Sweeper); ok {
		sweeper = scheduler.NewIndexSweeper(s, logger.Named(loggerClient, "sweep"), cfg.SweepInterval)
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustProxy:     cfg.TrustProxy,
		JWTSecret:      []byte(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		WriteLimit: mw.RateLimitConfig{
			Burst:        cfg.WriteBurst,
			RefillPerMin: cfg.WriteRefillPerMin,
			MaxEntries:   10000,
		},
		Backend:  backend,
		Hub:      hub,
		Sessions: sessions,
		ViewOptions: live.Options{Subscription: subscription.Options{
			RetryInterval: cfg.ResubscribeInterval,
			MaxWait:       cfg.ResubscribeMaxWait,
			IdleTimeout:   cfg.FeedIdleTimeout,
			PingTimeout:   cfg.FeedPingTimeout,
			ResyncTimeout: cfg.ResyncTimeout,
		}},
		ImportReloader: reloader,
		ReloadTrigger:  reloadTrigger,
	}

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		server:   httpserver.New(cfg, loggerClient, d),
		backend:  backend,
		sessions: sessions,
		reloader: reloader,
		sweeper:  sweeper,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting LinkVault v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start import reloader (imports once, then periodically)
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			a.closeBackend()
			return fmt.Errorf("failed to start import reloader: %w", err)
		}
		a.logger.Info("import reloader started",
			logger.Duration("interval", a.cfg.ImportInterval))
	}

	// Start index sweeper
	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			a.closeBackend()
			return fmt.Errorf("failed to start index sweeper: %w", err)
		}
		a.logger.Info("index sweeper started",
			logger.Duration("interval", a.cfg.SweepInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}
	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	// Live sessions are hijacked connections; Shutdown does not wait for them.
	open := a.sessions.Len()
	a.sessions.CloseAll()
	a.logger.Info("live sessions closed", logger.Int("count", open))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to stop server: %w", err))
	}

	a.closeBackend()
	if runErr != nil {
		return runErr
	}

	a.logger.Info("✅ LinkVault stopped cleanly")
	return nil
}

func (a *App) closeBackend() {
	if err := a.backend.Close(); err != nil {
		a.logger.Warnf("failed to close %s store: %v", a.backend.Name(), err)
		return
	}
	a.logger.Infof("✅ %s store closed cleanly", a.backend.Name())
}

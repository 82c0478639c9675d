// Package main - точка входа API сервера XP-экономики.
//
// Процесс держит HTTP API, шину доменных событий и локальный сервис
// присутствия. Redis опционален: без него присутствие видно только
// в пределах процесса, а лидерборд не кэшируется.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/xp-economy/config"

	// Application layer
	"github.com/alem-hub/xp-economy/internal/application/command"
	"github.com/alem-hub/xp-economy/internal/application/eventhandler"
	"github.com/alem-hub/xp-economy/internal/application/presence"
	"github.com/alem-hub/xp-economy/internal/application/query"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"

	// Infrastructure layer
	"github.com/alem-hub/xp-economy/internal/infrastructure/messaging"
	"github.com/alem-hub/xp-economy/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/xp-economy/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/xp-economy/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/alem-hub/xp-economy/internal/interface/http"

	// Packages
	"github.com/alem-hub/xp-economy/pkg/logger"
	"github.com/alem-hub/xp-economy/pkg/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting economy API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("backend", cfg.Economy.Backend),
		logger.String("timezone", cfg.App.Timezone),
	)
	if disabled := cfg.Features.Disabled(); len(disabled) > 0 {
		log.Info("features disabled", logger.Strings("features", disabled))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	catalog, err := config.LoadCatalog(cfg.Economy.CatalogPath)
	if err != nil {
		return err
	}
	if err := catalog.Seed(ctx, store, time.Now()); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	if !cfg.Redis.Disabled {
		redisCache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, presence stays local and leaderboard is not cached", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// Интерфейсные переменные остаются nil без Redis.
	var (
		leaderboardCache query.LeaderboardCache
		invalidator      eventhandler.LeaderboardInvalidator
	)
	if redisCache != nil {
		lc := redis.NewLeaderboardCache(redisCache, cfg.Economy.LeaderboardCacheTTL, log)
		leaderboardCache = lc
		invalidator = lc
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	if err := eventhandler.Register(bus, invalidator, log); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПРИСУТСТВИЕ
	// ─────────────────────────────────────────────────────────────────────────
	presenceService := presence.NewService(log)

	var presenceChannel *redis.PresenceChannel
	var broadcaster httpserver.PresenceBroadcaster = presence.NewLocal(presenceService)
	if redisCache != nil {
		presenceChannel = redis.NewPresenceChannel(redisCache, presenceService, log,
			redis.WithPresenceTTL(cfg.Presence.TTL))
		broadcaster = presenceChannel
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. COMMANDS / QUERIES
	// ─────────────────────────────────────────────────────────────────────────
	opts := []command.Option{
		command.WithLogger(log),
		command.WithPublisher(bus),
		command.WithRetrier(retry.New(
			retry.WithMaxAttempts(cfg.Economy.StoreRetryAttempts),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithRetryIf(shared.IsRetryable),
		)),
	}
	channel := presence.DefaultChannel
	if len(cfg.Presence.Channels) > 0 {
		channel = cfg.Presence.Channels[0]
	}

	health := httpserver.NewHealthChecker(cfg.App.Version)
	health.AddCheck("store", httpserver.PingCheck(store))
	if redisCache != nil {
		health.AddOptionalCheck("redis", httpserver.PingCheck(redisCache))
	}

	deps := httpserver.Dependencies{
		Bootstrap:        command.NewBootstrapSessionHandler(store, opts...),
		RecordCompletion: command.NewRecordCompletionHandler(store, opts...),
		Redeem:           command.NewRedeemRewardHandler(store, opts...),
		MarkFulfilled:    command.NewMarkFulfilledHandler(store, opts...),
		Connections:      command.NewConnectionHandler(store, opts...),
		Memberships:      command.NewMembershipHandler(store, opts...),
		Catalog:          command.NewCatalogHandler(store, opts...),

		Profile:     query.NewGetProfileHandler(store, presenceService),
		Leaderboard: query.NewGetLeaderboardHandler(store, leaderboardCache, log),
		Economy:     query.NewEconomyQueries(store),
		Social:      query.NewSocialQueries(store, presenceService, channel),
		Analytics:   query.NewAnalyticsHandler(store, presenceService, channel),

		Presence:          presenceService,
		PresenceBroadcast: broadcaster,
		Features:          cfg.Features,
		Health:            health,
		Logger:            log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpConfig(cfg), deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	if presenceChannel != nil {
		ready := make(chan struct{})
		g.Go(func() error {
			return presenceChannel.Listen(gctx, ready)
		})
		g.Go(func() error {
			select {
			case <-ready:
			case <-gctx.Done():
				return nil
			}
			// Начальный снимок: подтягиваем тех, кто уже онлайн в других процессах.
			for _, ch := range cfg.Presence.Channels {
				if _, err := presenceChannel.Sync(gctx, ch); err != nil {
					log.Warn("initial presence sync failed", logger.Channel(ch), logger.Err(err))
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		bus.Drain()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// openStore открывает выбранное хранилище и возвращает функцию закрытия.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (economy.Store, func(), error) {
	if cfg.Economy.Backend == config.BackendMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil
	}

	log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeConn := func() {
		log.Info("closing database connection...")
		conn.Close()
	}

	if cfg.Database.AutoMigrate {
		migrator := postgres.NewMigrator(conn)
		if err := migrator.Migrate(ctx); err != nil {
			closeConn()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if applied, err := migrator.Applied(ctx); err == nil && len(applied) > 0 {
			log.Info("database schema is up to date", logger.Int("version", applied[len(applied)-1]))
		}
	}

	return postgres.NewStore(conn), closeConn, nil
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	pc.MaxConns = int32(c.MaxConns)
	pc.MinConns = int32(c.MinConns)
	pc.MaxConnLifetime = c.ConnMaxLifetime
	pc.MaxConnIdleTime = c.ConnMaxIdleTime
	pc.ConnectTimeout = c.ConnectTimeout
	return pc
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

func httpConfig(cfg *config.Config) httpserver.Config {
	hc := httpserver.DefaultConfig()
	hc.Host = cfg.HTTP.Host
	hc.Port = cfg.HTTP.Port
	hc.ReadTimeout = cfg.HTTP.ReadTimeout
	hc.WriteTimeout = cfg.HTTP.WriteTimeout
	hc.IdleTimeout = cfg.HTTP.IdleTimeout
	hc.RequestTimeout = cfg.HTTP.RequestTimeout
	hc.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	hc.RateLimit.RequestsPerMinute = cfg.HTTP.RateLimitPerMinute
	hc.RateLimit.BurstSize = cfg.HTTP.RateLimitBurst
	hc.DefaultLocation = cfg.App.Location
	return hc
}

// setupLogger настраивает структурированное логирование.
// В development - цветной консольный вывод, иначе JSON.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	switch {
	case cfg.Observability.LogFormat != "":
		opts.Format = cfg.Observability.LogFormat
	case cfg.IsDevelopment():
		opts.Format = "console"
	}
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}

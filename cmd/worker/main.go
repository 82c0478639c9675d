// Package main - точка входа фонового процесса (Worker) XP-экономики.
//
// Worker отвечает за периодические задачи:
//   - Публикация снимка присутствия (чистка протухших записей и sync-сигнал)
//   - Прогрев кэша лидерборда
//
// Оба задания работают через Redis, поэтому без Redis worker не запускается.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alem-hub/xp-economy/config"

	"github.com/alem-hub/xp-economy/internal/application/presence"
	"github.com/alem-hub/xp-economy/internal/application/query"

	"github.com/alem-hub/xp-economy/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/xp-economy/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/xp-economy/internal/infrastructure/scheduler"
	"github.com/alem-hub/xp-economy/internal/infrastructure/scheduler/jobs"

	"github.com/alem-hub/xp-economy/pkg/logger"
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
	if !cfg.Worker.Enabled {
		fmt.Fprintln(os.Stderr, "worker is disabled (WORKER_ENABLED=false)")
		return nil
	}
	if cfg.Economy.Backend != config.BackendPostgres {
		return errors.New("worker requires the postgres backend")
	}
	if cfg.Redis.Disabled {
		return errors.New("worker requires Redis")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting economy worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	pc := postgres.DefaultConfig()
	pc.URL = cfg.Database.URL
	pc.MaxConns = int32(cfg.Database.MaxConns)
	pc.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := postgres.NewConnection(ctx, pc)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		conn.Close()
	}()

	// Worker также должен иметь актуальную схему.
	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	store := postgres.NewStore(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS
	// ─────────────────────────────────────────────────────────────────────────
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.DialTimeout = cfg.Redis.DialTimeout

	cache, err := redis.NewCache(rc)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer cache.Close()

	// Worker публикует снимки, но сам их не слушает: локальный сервис ему не нужен.
	presenceChannel := redis.NewPresenceChannel(cache, presence.NewService(log), log,
		redis.WithPresenceTTL(cfg.Presence.TTL))
	leaderboard := query.NewGetLeaderboardHandler(store,
		redis.NewLeaderboardCache(cache, cfg.Economy.LeaderboardCacheTTL, log), log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Timezone = cfg.App.Location
	schedConfig.TickInterval = cfg.Worker.TickInterval
	sched := scheduler.NewScheduler(schedConfig)

	sched.OnJobComplete(func(r scheduler.JobResult) {
		if !r.Success {
			log.Warn("job failed", logger.String("job", r.JobName), logger.Err(r.Error))
		}
	})

	register := func(job scheduler.Job, spec string) error {
		schedule, err := scheduler.ParseSchedule(spec)
		if err != nil {
			return fmt.Errorf("%s: %w", job.Name(), err)
		}
		return sched.Register(withTimeout(job, cfg.Worker.JobTimeout), schedule)
	}
	if err := register(jobs.NewPresenceSyncJob(presenceChannel, cfg.Presence.Channels, log), cfg.Worker.PresenceSyncSchedule); err != nil {
		return err
	}
	if err := register(jobs.NewWarmLeaderboardJob(leaderboard, log), cfg.Worker.LeaderboardWarmSchedule); err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, info := range sched.ListJobs() {
		log.Info("job scheduled", logger.String("job", info.Name), logger.Time("next_run", info.NextRun))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()

	select {
	case err := <-stopped:
		if err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			return fmt.Errorf("failed to stop scheduler: %w", err)
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		return errors.New("scheduler did not stop in time")
	}

	m := sched.GetMetrics().Snapshot()
	log.Info("shutdown completed successfully",
		logger.Int64("executions", m.TotalExecutions),
		logger.Int64("failures", m.TotalFailures),
	)
	return nil
}

// timeoutJob ограничивает одно выполнение задания.
type timeoutJob struct {
	scheduler.Job
	timeout time.Duration
}

func withTimeout(job scheduler.Job, d time.Duration) scheduler.Job {
	if d <= 0 {
		return job
	}
	return timeoutJob{Job: job, timeout: d}
}

func (j timeoutJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.Job.Run(ctx)
}

// setupLogger настраивает структурированное логирование.
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
	return logger.New(opts).With(logger.String("service", cfg.App.Name+"-worker"))
}

// The worker process runs the three background queues of the platform:
// schedule, user and publication. It connects Postgres and Redis,
// applies migrations, registers handlers with their recurring tables
// and pulls jobs until terminated.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkpress/stagehand/internal/assets"
	"github.com/inkpress/stagehand/internal/notices"
	"github.com/inkpress/stagehand/internal/platform"
	"github.com/inkpress/stagehand/internal/publication"
	"github.com/inkpress/stagehand/internal/schedule"
	"github.com/inkpress/stagehand/internal/user"
	"github.com/inkpress/stagehand/internal/views"
	"github.com/inkpress/stagehand/pkg/config"
	"github.com/inkpress/stagehand/pkg/email"
	"github.com/inkpress/stagehand/pkg/logger"
	"github.com/inkpress/stagehand/pkg/pg"
	"github.com/inkpress/stagehand/pkg/queue"
	"github.com/inkpress/stagehand/pkg/redis"
)

type appConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Timezone    string `env:"SCHEDULE_TIMEZONE" envDefault:"Asia/Hong_Kong"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var appCfg appConfig
	if err := config.Load(&appCfg); err != nil {
		return err
	}
	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return err
	}
	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return err
	}
	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return err
	}
	var assetsCfg assets.Config
	if err := config.Load(&assetsCfg); err != nil {
		return err
	}
	var queueCfg queue.Config
	if err := config.Load(&queueCfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(appCfg.Environment, "stagehand-worker"),
	)
	logger.SetAsDefault(log)

	loc, err := time.LoadLocation(appCfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", appCfg.Timezone, err)
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	broker, err := queue.NewRedisBroker(rdb,
		queue.WithKeyPrefix(queueCfg.KeyPrefix),
		queue.WithCompletedTTL(queueCfg.CompletedTTL),
	)
	if err != nil {
		return err
	}

	// Storage and gateways.
	store, err := platform.NewStore(pool)
	if err != nil {
		return err
	}
	noticeStorage, err := notices.NewPgStorage(pool)
	if err != nil {
		return err
	}
	notifier, err := notices.NewService(noticeStorage, notices.WithLogger(log))
	if err != nil {
		return err
	}
	refresher, err := views.NewRefresher(pool, views.WithLogger(log))
	if err != nil {
		return err
	}

	s3Client, err := assets.NewClient(ctx, assetsCfg)
	if err != nil {
		return err
	}
	fileStore, err := assets.NewStore(s3Client, assetsCfg.Bucket, assets.WithLogger(log))
	if err != nil {
		return err
	}

	var mailer email.EmailSender
	if appCfg.Environment == "production" {
		mailer, err = email.NewPostmarkClient(emailCfg)
		if err != nil {
			return err
		}
	} else {
		mailer = email.NewDevSender(emailCfg.DevOutputDir)
	}

	// Queues.
	queueLogger := queue.WithQueueLogger(log)
	publicationQueue, err := queue.NewQueue(publication.QueueName, broker, queueLogger)
	if err != nil {
		return err
	}
	scheduleQueue, err := queue.NewQueue(schedule.QueueName, broker, queueLogger)
	if err != nil {
		return err
	}
	userQueue, err := queue.NewQueue(user.QueueName, broker, queueLogger)
	if err != nil {
		return err
	}

	publicationSvc, err := publication.NewService(store, publication.WithLogger(log))
	if err != nil {
		return err
	}
	if err := publicationSvc.Register(publicationQueue); err != nil {
		return err
	}

	publisher, err := publication.NewProducer(publicationQueue)
	if err != nil {
		return err
	}
	scheduleSvc, err := schedule.NewService(
		store, publisher, refresher, store, notifier, mailer,
		schedule.WithLocation(loc),
		schedule.WithLogger(log),
	)
	if err != nil {
		return err
	}
	if err := scheduleSvc.Register(scheduleQueue); err != nil {
		return err
	}

	userSvc, err := user.NewService(
		store, store, fileStore, store, store, notifier,
		user.WithLocation(loc),
		user.WithLogger(log),
	)
	if err != nil {
		return err
	}
	if err := userSvc.Register(userQueue); err != nil {
		return err
	}

	worker := queue.NewWorker(
		queue.WithPullInterval(queueCfg.PullInterval),
		queue.WithLease(queueCfg.Lease),
		queue.WithMaxConcurrency(queueCfg.MaxConcurrency),
		queue.WithWorkerLogger(log),
	)
	for _, q := range []*queue.Queue{scheduleQueue, userQueue, publicationQueue} {
		if err := worker.Attach(q); err != nil {
			return err
		}
	}

	log.InfoContext(ctx, "worker process starting",
		slog.String("environment", appCfg.Environment),
		slog.String("timezone", appCfg.Timezone),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	return g.Wait()
}

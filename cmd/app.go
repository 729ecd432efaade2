package cmd

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/internal/docs/embedding"
	"github.com/Laisky/docspace/internal/docs/indexing"
	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/internal/docs/reminder"
	"github.com/Laisky/docspace/internal/docs/search"
	"github.com/Laisky/docspace/internal/docs/store"
	"github.com/Laisky/docspace/library/config"
	"github.com/Laisky/docspace/library/db/postgres"
	rlibs "github.com/Laisky/docspace/library/db/redis"
	"github.com/Laisky/docspace/library/db/sql/kv"
	"github.com/Laisky/docspace/library/log"
)

// app holds every component built from configuration. It is constructed once
// per command and torn down by close.
type app struct {
	db         *gorm.DB
	redis      *rlibs.DB
	store      *store.Store
	queue      *jobs.Queue
	embedder   embedding.Embedder
	scheduler  *indexing.Scheduler
	processor  *indexing.Processor
	reconciler *indexing.Reconciler
	notifier   *reminder.Notifier
	ranker     *search.Ranker
	events     *jobs.EventBus
	reports    reportLoader

	jobSettings   jobs.Settings
	indexSettings indexing.Settings
}

func newApp(ctx context.Context) (*app, error) {
	logger := log.Logger.Named("docspace")
	a := &app{
		jobSettings:   jobs.LoadSettingsFromConfig(),
		indexSettings: indexing.LoadSettingsFromConfig(),
		events:        jobs.NewEventBus(),
	}

	var err error
	if a.db, err = openPostgres(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	sinks := jobs.MultiSink{a.events}
	if addr := gconfig.Shared.GetString("settings.db.redis.addr"); addr != "" {
		a.redis = rlibs.NewDB(&redis.Options{
			Addr:     addr,
			DB:       config.Int("settings.db.redis.db", 0),
			Password: gconfig.Shared.GetString("settings.db.redis.pwd"),
		})
		if err := a.redis.Ping(ctx); err != nil {
			a.close()
			return nil, errors.Wrap(err, "connect redis")
		}
		sinks = append(sinks, rlibs.NewEventPublisher(a.redis, a.jobSettings.EventsChannel))
	}

	if a.store, err = store.New(a.db, logger.Named("store"), nil); err != nil {
		a.close()
		return nil, errors.WithStack(err)
	}
	if a.queue, err = jobs.NewQueue(a.db, a.jobSettings, logger.Named("queue"), nil); err != nil {
		a.close()
		return nil, errors.WithStack(err)
	}
	a.queue.SetEventSink(sinks)

	if a.embedder, err = newEmbedderFromConfig(); err != nil {
		logger.Warn("embeddings disabled, search runs lexically only", zap.Error(err))
	}

	if a.scheduler, err = indexing.NewScheduler(a.store, a.queue); err != nil {
		a.close()
		return nil, errors.WithStack(err)
	}

	if a.redis != nil {
		a.reports = rlibs.NewReportCache(a.redis, 24*time.Hour)
	} else {
		table, err := kv.NewKv(ctx, a.db)
		if err != nil {
			a.close()
			return nil, errors.WithStack(err)
		}
		a.reports = kv.NewReportStore(table, 24*time.Hour)
	}
	if a.reconciler, err = indexing.NewReconciler(a.store, a.scheduler, a.indexSettings,
		a.reports, logger.Named("reconciler")); err != nil {
		a.close()
		return nil, errors.WithStack(err)
	}
	if a.embedder != nil {
		if a.processor, err = indexing.NewProcessor(a.store, a.embedder, a.indexSettings,
			logger.Named("indexer")); err != nil {
			a.close()
			return nil, errors.WithStack(err)
		}
	}
	if a.notifier, err = reminder.NewNotifier(a.store, a.queue, logger.Named("reminder")); err != nil {
		a.close()
		return nil, errors.WithStack(err)
	}
	if a.ranker, err = search.NewRanker(a.store, a.embedder, search.LoadSettingsFromConfig(),
		logger.Named("search")); err != nil {
		a.close()
		return nil, errors.WithStack(err)
	}

	return a, nil
}

// reportLoader saves and reads back the last reconciler sweep report.
type reportLoader interface {
	indexing.ReportStore
	LoadReport(ctx context.Context) (indexing.SyncReport, error)
}

func openPostgres(ctx context.Context) (*gorm.DB, error) {
	db, err := postgres.NewGormDB(ctx, postgres.DialInfo{
		Addr:   gconfig.Shared.GetString("settings.db.postgres.addr"),
		Port:   config.Int("settings.db.postgres.port", 5432),
		DBName: gconfig.Shared.GetString("settings.db.postgres.db"),
		User:   gconfig.Shared.GetString("settings.db.postgres.user"),
		Pwd:    gconfig.Shared.GetString("settings.db.postgres.pwd"),
	}, log.Logger.Named("postgres"))
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	return db, nil
}

func newEmbedderFromConfig() (embedding.Embedder, error) {
	opts := []embedding.OpenAIOption{
		embedding.WithDimensions(config.Int("settings.openai.embedding_dimensions", 0)),
	}
	if rps := config.Float("settings.openai.requests_per_second", 0); rps > 0 {
		opts = append(opts, embedding.WithRateLimit(rps))
	}
	embedder, err := embedding.NewOpenAIEmbedder(
		config.String("settings.openai.base_url", "https://api.openai.com"),
		config.String("settings.openai.api_key", ""),
		config.String("settings.openai.embedding_model", "text-embedding-3-small"),
		opts...,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return embedder, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := postgres.Close(a.db); err != nil {
		log.Logger.Warn("close postgres", zap.Error(err))
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riskibarqy/fixture-harvester/internal/config"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
	"github.com/riskibarqy/fixture-harvester/internal/infrastructure/export"
	"github.com/riskibarqy/fixture-harvester/internal/infrastructure/fastscore"
	"github.com/riskibarqy/fixture-harvester/internal/infrastructure/fetch"
	"github.com/riskibarqy/fixture-harvester/internal/infrastructure/normalizerules"
	"github.com/riskibarqy/fixture-harvester/internal/infrastructure/repository/sqlstore"
	"github.com/riskibarqy/fixture-harvester/internal/infrastructure/runlock"
	"github.com/riskibarqy/fixture-harvester/internal/interfaces/httpapi"
	"github.com/riskibarqy/fixture-harvester/internal/metrics"
	"github.com/riskibarqy/fixture-harvester/internal/observability"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/riskibarqy/fixture-harvester/internal/platform/resilience"
	"github.com/riskibarqy/fixture-harvester/internal/scheduler"
	"github.com/riskibarqy/fixture-harvester/internal/usecase"
)

// App owns every long-lived dependency of one harvester process.
type App struct {
	cfg     config.Config
	logger  *logging.Logger
	db      *sqlx.DB
	locker  *runlock.RedisLocker
	metrics *metrics.Collector
	fetcher *fetch.Client
	harvest *usecase.HarvestService
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (_ *App, err error) {
	if logger == nil {
		logger = logging.Default()
	}
	a := &App{cfg: cfg, logger: logger, metrics: metrics.NewCollector()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	rules, err := normalizerules.Load(cfg.NormalizeRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load normalize rules: %w", err)
	}

	breaker := resilience.DefaultCircuitBreakerConfig()
	breaker.Enabled = cfg.FetchCircuitEnabled
	breaker.FailureThreshold = cfg.FetchCircuitFailureCount
	breaker.OpenTimeout = cfg.FetchCircuitOpenTimeout
	breaker.HalfOpenMaxReq = cfg.FetchCircuitHalfOpenMaxReq
	breaker.OnStateChange = func(from, to resilience.CircuitState) {
		a.metrics.BreakerStateChanged(from, to)
		logger.Warn("fetch circuit state changed", "from", from, "to", to)
	}

	a.fetcher = fetch.NewClient(fetch.Config{
		Timeout:         cfg.FetchTimeout,
		UserAgent:       cfg.FetchUserAgent,
		MaxConnsPerHost: cfg.FetchMaxConnsPerHost,
		MaxBodyBytes:    cfg.FetchMaxBodyBytes,
		CircuitBreaker:  breaker,
		Observer:        a.metrics,
		Logger:          logger,
	})

	paginator, err := fastscore.NewPaginator(a.fetcher, fastscore.PaginatorConfig{
		BaseURL:  cfg.SourceBaseURL,
		MaxPages: cfg.HarvestMaxPages,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	extractorCfg := fastscore.ExtractorConfig{TimeOffset: cfg.HarvestTimeOffset}
	if extractorCfg.VenuePathPattern, err = compileOptional(cfg.SourceVenuePathPattern); err != nil {
		return nil, fmt.Errorf("compile SOURCE_VENUE_PATH_PATTERN: %w", err)
	}
	if extractorCfg.RoundPattern, err = compileOptional(cfg.SourceRoundPattern); err != nil {
		return nil, fmt.Errorf("compile SOURCE_ROUND_PATTERN: %w", err)
	}
	extractor := fastscore.NewExtractor(extractorCfg)

	retriever := usecase.NewDetailRetriever(a.fetcher, extractor, usecase.DetailRetrieverConfig{
		Workers:       cfg.HarvestWorkers,
		ProgressEvery: cfg.HarvestProgressEvery,
		Retry: usecase.RetryPolicy{
			MaxAttempts: cfg.HarvestMaxAttempts,
			Backoff:     usecase.NewBackoff(cfg.HarvestBackoffUnit, cfg.HarvestJitterSeed),
		},
		Logger:  logger,
		Metrics: a.metrics,
	})

	sinks, err := a.buildSinks(ctx)
	if err != nil {
		return nil, err
	}

	harvestCfg := usecase.HarvestConfig{
		Listings: cfg.SourceListings,
		Logger:   logger,
		Metrics:  a.metrics,
	}
	if cfg.RedisURL != "" {
		a.locker, err = runlock.Dial(ctx, cfg.RedisURL, cfg.RunLockKey, cfg.RunLockTTL)
		if err != nil {
			return nil, fmt.Errorf("connect run lock: %w", err)
		}
		harvestCfg.Locker = a.locker
	}

	a.harvest = usecase.NewHarvestService(paginator, retriever, fixture.NewNormalizer(rules), sinks, harvestCfg)
	return a, nil
}

func (a *App) buildSinks(ctx context.Context) ([]usecase.Sink, error) {
	var sinks []usecase.Sink

	if a.cfg.PublishEnabled {
		db, err := openDB(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		a.db = db

		store, err := sqlstore.NewFixtureStore(db, a.cfg.FixtureTable, a.cfg.PublishBatchSize)
		if err != nil {
			return nil, err
		}
		if a.cfg.DBEnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		sinks = append(sinks, store)
	}

	if a.cfg.ExportCSVPath != "" {
		exp, err := export.NewCSVExporter(a.cfg.ExportCSVPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, exp)
	}
	if a.cfg.ExportJSONPath != "" {
		exp, err := export.NewJSONExporter(a.cfg.ExportJSONPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, exp)
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	a.logger.Info("sinks configured", "sinks", names)
	return sinks, nil
}

// RunOnce performs a single harvest. A held run lock is not an error here.
func (a *App) RunOnce(ctx context.Context) (usecase.RunSummary, error) {
	summary, err := a.harvest.Run(ctx)
	if errors.Is(err, usecase.ErrRunLocked) {
		return summary, nil
	}
	return summary, err
}

// RunScheduled blocks until ctx is canceled, harvesting on SCHEDULE_CRON and
// serving the ops endpoints on METRICS_ADDR.
func (a *App) RunScheduled(ctx context.Context) error {
	sched, err := scheduler.New(a.harvest, scheduler.Config{
		Spec:       a.cfg.ScheduleCron,
		RunOnStart: a.cfg.ScheduleRunOnStart,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.NewHandler(a.harvest, sched, a.logger), a.logger, httpapi.RouterConfig{
		Metrics:      promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}),
		PprofEnabled: a.cfg.PprofEnabled,
		TriggerToken: a.cfg.OpsTriggerToken,
	})
	srv := observability.StartOpsServer(a.cfg.MetricsAddr, router, a.logger)

	if err := sched.Start(ctx); err != nil {
		_ = observability.StopOpsServer(srv, a.logger, a.cfg.ShutdownTimeout)
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	stopErr := sched.Stop(stopCtx)
	if err := observability.StopOpsServer(srv, a.logger, a.cfg.ShutdownTimeout); err != nil {
		stopErr = errors.Join(stopErr, fmt.Errorf("stop ops server: %w", err))
	}
	return stopErr
}

func (a *App) Close() error {
	var errs []error
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close run lock: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

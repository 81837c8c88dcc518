package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultDetailWorkers = 40
	defaultProgressEvery = 10
)

type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

type FieldExtractor interface {
	Extract(payload []byte) fixture.ExtractedFields
}

// DetailResult pairs a listing record with what could be read from its detail page.
// Degraded results carry all-nil fields.
type DetailResult struct {
	Record   fixture.ListingRecord
	Fields   fixture.ExtractedFields
	Attempts int
	Degraded bool
	Err      error
}

type DetailRetrieverConfig struct {
	Workers       int
	ProgressEvery int
	Retry         RetryPolicy
	Logger        *logging.Logger
	Metrics       Metrics
}

// DetailRetriever fetches and extracts every detail page on a fixed-width pool.
type DetailRetriever struct {
	fetcher       Fetcher
	extractor     FieldExtractor
	workers       int
	progressEvery int
	retry         RetryPolicy
	logger        *logging.Logger
	metrics       Metrics
}

func NewDetailRetriever(fetcher Fetcher, extractor FieldExtractor, cfg DetailRetrieverConfig) *DetailRetriever {
	workers := cfg.Workers
	if workers < 1 {
		workers = defaultDetailWorkers
	}
	progressEvery := cfg.ProgressEvery
	if progressEvery < 1 {
		progressEvery = defaultProgressEvery
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}

	return &DetailRetriever{
		fetcher:       fetcher,
		extractor:     extractor,
		workers:       workers,
		progressEvery: progressEvery,
		retry:         cfg.Retry.normalized(),
		logger:        logger,
		metrics:       metrics,
	}
}

// Retrieve returns one result per record, in input order. Fetch failures
// degrade the record; only pool setup errors are returned.
func (r *DetailRetriever) Retrieve(ctx context.Context, records []fixture.ListingRecord) ([]DetailResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DetailRetriever.Retrieve", attribute.Int("records", len(records)))
	defer span.End()

	if len(records) == 0 {
		return nil, nil
	}

	workerCount := min(r.workers, len(records))
	pool, err := ants.NewPool(workerCount, ants.WithPanicHandler(func(p any) {
		r.logger.ErrorContext(ctx, "detail worker panic", "panic", fmt.Sprint(p))
	}))
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("create detail worker pool: %w", err)
	}
	defer pool.Release()

	type indexed struct {
		idx    int
		result DetailResult
	}
	results := make(chan indexed, len(records))

	var completed atomic.Int64
	var workers sync.WaitGroup
	for i, rec := range records {
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			res := r.retrieveOne(ctx, rec)
			results <- indexed{idx: i, result: res}

			done := completed.Add(1)
			if done%int64(r.progressEvery) == 0 || done == int64(len(records)) {
				r.logger.InfoContext(ctx, "detail retrieval progress", "completed", done, "total", len(records))
			}
		}); err != nil {
			workers.Done()
			workers.Wait()
			recordSpanError(span, err)
			return nil, fmt.Errorf("submit detail task: %w", err)
		}
	}

	workers.Wait()
	close(results)

	out := make([]DetailResult, len(records))
	filled := make([]bool, len(records))
	for item := range results {
		out[item.idx] = item.result
		filled[item.idx] = true
	}
	// A panicking task never reports; keep its record as degraded.
	for i := range out {
		if !filled[i] {
			out[i] = DetailResult{Record: records[i], Degraded: true, Err: fmt.Errorf("detail worker aborted")}
		}
	}
	return out, nil
}

func (r *DetailRetriever) retrieveOne(ctx context.Context, rec fixture.ListingRecord) DetailResult {
	payload, attempts, err := Retry(ctx, r.retry, func(ctx context.Context, attempt int) ([]byte, error) {
		body, err := r.fetcher.Fetch(ctx, rec.DetailRef)
		if err != nil {
			r.logger.DebugContext(ctx, "detail fetch attempt failed",
				"detail_ref", rec.DetailRef,
				"attempt", attempt,
				"error", err,
			)
		}
		return body, err
	})
	if err != nil {
		r.metrics.DetailRetrieved(true, attempts)
		r.logger.WarnContext(ctx, "detail fetch exhausted, keeping degraded record",
			"detail_ref", rec.DetailRef,
			"home_team", rec.HomeTeam,
			"away_team", rec.AwayTeam,
			"attempts", attempts,
			"error", err,
		)
		return DetailResult{Record: rec, Attempts: attempts, Degraded: true, Err: err}
	}

	r.metrics.DetailRetrieved(false, attempts)
	return DetailResult{
		Record:   rec,
		Fields:   r.extractor.Extract(payload),
		Attempts: attempts,
	}
}

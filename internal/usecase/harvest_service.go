package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
	idgen "github.com/riskibarqy/fixture-harvester/internal/platform/id"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
)

// ListingSource walks a paginated listing.
type ListingSource interface {
	Listings(ctx context.Context, listing fixture.Listing) (iter.Seq[fixture.ListingRecord], *fixture.WalkStats)
}

// Sink receives the final snapshot. The store and file exporters are sinks.
type Sink interface {
	Name() string
	Write(ctx context.Context, items []fixture.NormalizedFixture) error
}

// StagingSink is a sink that can prepare its output before any other sink
// commits. Staged sinks are committed only after every direct sink succeeded.
type StagingSink interface {
	Sink
	Stage(ctx context.Context, items []fixture.NormalizedFixture) (fixture.StagedSnapshot, error)
}

// RunLocker keeps concurrent runs (other replicas, overlapping schedules) apart.
type RunLocker interface {
	Acquire(ctx context.Context, owner string) (bool, error)
	Release(ctx context.Context, owner string) error
}

type RunSummary struct {
	RunID      string        `json:"run_id"`
	Pages      int           `json:"pages"`
	Discovered int           `json:"discovered"`
	Detailed   int           `json:"detailed"`
	Degraded   int           `json:"degraded"`
	Duplicates int           `json:"duplicates"`
	Published  int           `json:"published"`
	Duration   time.Duration `json:"duration"`
}

// RunStatus is the outcome of the most recent finished run.
type RunStatus struct {
	Summary    RunSummary `json:"summary"`
	Error      string     `json:"error,omitempty"`
	Skipped    bool       `json:"skipped"`
	FinishedAt time.Time  `json:"finished_at"`
}

type HarvestConfig struct {
	Listings []fixture.Listing
	Logger   *logging.Logger
	Metrics  Metrics
	Locker   RunLocker
	IDs      idgen.Generator
}

// HarvestService runs one full snapshot: paginate, retrieve details, normalize,
// dedupe, sort and publish to every sink.
type HarvestService struct {
	source     ListingSource
	retriever  *DetailRetriever
	normalizer *fixture.Normalizer
	sinks      []Sink
	listings   []fixture.Listing
	locker     RunLocker
	ids        idgen.Generator
	validate   *validator.Validate
	logger     *logging.Logger
	metrics    Metrics
	now        func() time.Time

	mu   sync.Mutex
	last *RunStatus
}

func NewHarvestService(
	source ListingSource,
	retriever *DetailRetriever,
	normalizer *fixture.Normalizer,
	sinks []Sink,
	cfg HarvestConfig,
) *HarvestService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	ids := cfg.IDs
	if ids == nil {
		ids = idgen.NewRunIDGenerator()
	}

	return &HarvestService{
		source:     source,
		retriever:  retriever,
		normalizer: normalizer,
		sinks:      sinks,
		listings:   append([]fixture.Listing(nil), cfg.Listings...),
		locker:     cfg.Locker,
		ids:        ids,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Run executes one harvest. Per-record failures are absorbed; only lock,
// configuration and publish-phase errors are returned.
func (s *HarvestService) Run(ctx context.Context) (summary RunSummary, err error) {
	start := s.now()
	runID, err := s.ids.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary.RunID = runID
	logger := s.logger.WithRunID(runID)

	ctx, span := startUsecaseSpan(ctx, "usecase.HarvestService.Run", attribute.String("run_id", runID))
	defer span.End()
	defer func() {
		summary.Duration = s.now().Sub(start)
		recordSpanError(span, err)
		s.metrics.RunFinished(summary, err)
		s.recordLastRun(summary, err)
	}()

	if len(s.listings) == 0 {
		return summary, fmt.Errorf("%w: no listings configured", ErrInvalidInput)
	}

	if s.locker != nil {
		acquired, lockErr := s.locker.Acquire(ctx, runID)
		if lockErr != nil {
			return summary, fmt.Errorf("acquire run lock: %w", lockErr)
		}
		if !acquired {
			logger.InfoContext(ctx, "harvest skipped, lock held elsewhere")
			return summary, ErrRunLocked
		}
		defer func() {
			if relErr := s.locker.Release(context.WithoutCancel(ctx), runID); relErr != nil {
				logger.WarnContext(ctx, "release run lock failed", "error", relErr)
			}
		}()
	}

	logger.InfoContext(ctx, "harvest started", "listings", len(s.listings))

	records := s.discover(ctx, logger, &summary)
	summary.Discovered = len(records)

	results, err := s.retriever.Retrieve(ctx, records)
	if err != nil {
		return summary, fmt.Errorf("retrieve details: %w", err)
	}

	items := make([]fixture.NormalizedFixture, 0, len(results))
	for _, res := range results {
		if res.Degraded {
			summary.Degraded++
		} else {
			summary.Detailed++
		}
		items = append(items, s.normalizer.Normalize(res.Record, res.Fields))
	}

	unique := fixture.Dedupe(items)
	summary.Duplicates = len(items) - len(unique)
	fixture.SortByDate(unique)

	if err := s.publish(ctx, logger, unique); err != nil {
		logger.ErrorContext(ctx, "harvest publish failed", "error", err)
		return summary, err
	}
	summary.Published = len(unique)

	logger.InfoContext(ctx, "harvest finished",
		"pages", summary.Pages,
		"discovered", summary.Discovered,
		"detailed", summary.Detailed,
		"degraded", summary.Degraded,
		"duplicates", summary.Duplicates,
		"published", summary.Published,
		"duration", s.now().Sub(start),
	)
	return summary, nil
}

// LastRun returns the status of the latest finished run, if any.
func (s *HarvestService) LastRun() (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunStatus{}, false
	}
	return *s.last, true
}

func (s *HarvestService) recordLastRun(summary RunSummary, err error) {
	status := RunStatus{
		Summary:    summary,
		Skipped:    errors.Is(err, ErrRunLocked),
		FinishedAt: s.now(),
	}
	if err != nil {
		status.Error = err.Error()
	}

	s.mu.Lock()
	s.last = &status
	s.mu.Unlock()
}

func (s *HarvestService) discover(ctx context.Context, logger *logging.Logger, summary *RunSummary) []fixture.ListingRecord {
	ctx, span := startUsecaseSpan(ctx, "usecase.HarvestService.discover")
	defer span.End()

	var records []fixture.ListingRecord
	for _, listing := range s.listings {
		seq, stats := s.source.Listings(ctx, listing)
		before := len(records)
		for rec := range seq {
			records = append(records, rec)
		}
		summary.Pages += stats.Pages
		s.metrics.ListingWalked(listing.League, stats.Pages, stats.StopReason)
		logger.InfoContext(ctx, "listing discovered",
			"league", listing.League,
			"records", len(records)-before,
			"pages", stats.Pages,
			"rejected", stats.Rejected,
			"stop_reason", stats.StopReason,
		)
	}
	return records
}

// publish stages every staging sink, writes the direct sinks (the
// transactional store) in order, and only then commits the staged outputs.
// A failure before the commit step leaves every sink on its prior snapshot.
func (s *HarvestService) publish(ctx context.Context, logger *logging.Logger, items []fixture.NormalizedFixture) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.HarvestService.publish", attribute.Int("items", len(items)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: run canceled before publish: %w", ErrPublish, err)
	}
	for i := range items {
		if err := s.validate.Struct(items[i]); err != nil {
			return fmt.Errorf("%w: invalid fixture %s vs %s: %w", ErrPublish, items[i].HomeTeam, items[i].AwayTeam, err)
		}
	}
	if len(s.sinks) == 0 {
		logger.WarnContext(ctx, "no sinks configured, snapshot discarded", "items", len(items))
		return nil
	}

	var (
		staging []StagingSink
		direct  []Sink
	)
	for _, sink := range s.sinks {
		if st, ok := sink.(StagingSink); ok {
			staging = append(staging, st)
			continue
		}
		direct = append(direct, sink)
	}

	staged, err := s.stage(ctx, staging, items)
	if err != nil {
		s.discard(ctx, logger, staged)
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	for _, sink := range direct {
		start := time.Now()
		err := sink.Write(ctx, items)
		s.metrics.SinkWritten(sink.Name(), time.Since(start), err)
		if err != nil {
			s.discard(ctx, logger, staged)
			return fmt.Errorf("%w: sink %s: %w", ErrPublish, sink.Name(), err)
		}
		logger.InfoContext(ctx, "snapshot written", "sink", sink.Name(), "items", len(items))
	}

	var commitErr error
	for _, st := range staged {
		if err := st.snapshot.Commit(); err != nil {
			commitErr = errors.Join(commitErr, fmt.Errorf("commit sink %s: %w", st.name, err))
			continue
		}
		logger.InfoContext(ctx, "snapshot written", "sink", st.name, "items", len(items))
	}
	if commitErr != nil {
		return fmt.Errorf("%w: %w", ErrPublish, commitErr)
	}
	return nil
}

type stagedOutput struct {
	name     string
	snapshot fixture.StagedSnapshot
}

// stage prepares all staging sinks concurrently. On error it still returns
// the outputs that were staged so the caller can discard them.
func (s *HarvestService) stage(ctx context.Context, sinks []StagingSink, items []fixture.NormalizedFixture) ([]stagedOutput, error) {
	if len(sinks) == 0 {
		return nil, nil
	}

	p := pool.NewWithResults[stagedOutput]().WithErrors().WithContext(ctx)
	for _, sink := range sinks {
		p.Go(func(ctx context.Context) (stagedOutput, error) {
			start := time.Now()
			snapshot, err := sink.Stage(ctx, items)
			s.metrics.SinkWritten(sink.Name(), time.Since(start), err)
			if err != nil {
				return stagedOutput{}, fmt.Errorf("sink %s: %w", sink.Name(), err)
			}
			return stagedOutput{name: sink.Name(), snapshot: snapshot}, nil
		})
	}
	return p.Wait()
}

func (s *HarvestService) discard(ctx context.Context, logger *logging.Logger, staged []stagedOutput) {
	for _, st := range staged {
		if err := st.snapshot.Discard(); err != nil {
			logger.WarnContext(ctx, "discard staged snapshot failed", "sink", st.name, "error", err)
		}
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
	"github.com/riskibarqy/fixture-harvester/internal/infrastructure/fastscore"
	"github.com/riskibarqy/fixture-harvester/internal/infrastructure/fetch"
	usecasemock "github.com/riskibarqy/fixture-harvester/internal/mocks/usecase"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	records map[string][]fixture.ListingRecord
}

func (s staticSource) Listings(_ context.Context, listing fixture.Listing) (iter.Seq[fixture.ListingRecord], *fixture.WalkStats) {
	stats := &fixture.WalkStats{}
	return func(yield func(fixture.ListingRecord) bool) {
		stats.Pages = 2
		for _, rec := range s.records[listing.League] {
			stats.Accepted++
			if !yield(rec) {
				return
			}
		}
		stats.StopReason = fixture.StopEmptyPage
	}, stats
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

func detailHTML(date string) []byte {
	return []byte(`<html><body>
<div>Matchday 3</div>
<span data-date-match>Saturday, ` + date + `</span>
<span data-time-match>18:00</span>
<a href="/stadium/teddy">Teddi Malcha Stadium (Jerusalem-Israel)</a>
</body></html>`)
}

func newTestHarvest(t *testing.T, fetcher Fetcher, sinks []Sink, locker RunLocker) *HarvestService {
	t.Helper()

	var sleeps atomic.Int32
	source := staticSource{records: map[string][]fixture.ListingRecord{
		"Ligat HaAl": {
			{League: "Ligat HaAl", HomeTeam: "A", AwayTeam: "B", DetailRef: "https://example.test/m/ab"},
			{League: "Ligat HaAl", HomeTeam: "C", AwayTeam: "D", DetailRef: "https://example.test/m/cd"},
		},
	}}
	retriever := NewDetailRetriever(fetcher, fastscore.NewExtractor(fastscore.ExtractorConfig{TimeOffset: fastscore.DefaultTimeOffset}),
		DetailRetrieverConfig{Workers: 2, Retry: noSleepPolicy(&sleeps)})
	normalizer := fixture.NewNormalizer(fixture.Rules{
		CountryTokens: []string{"Israel"},
		VenueAliases:  []fixture.VenueAlias{{From: "Teddi Malcha Stadium", To: "Teddy Stadium"}},
	})

	return NewHarvestService(source, retriever, normalizer, sinks, HarvestConfig{
		Listings: []fixture.Listing{{League: "Ligat HaAl", Path: "/israel/ligat-haal/fixtures"}},
		Locker:   locker,
		IDs:      fixedIDs{id: "run-1"},
	})
}

func TestHarvestService_Run_SortsByDateAndPublishes(t *testing.T) {
	t.Parallel()

	fetcher := usecasemock.NewFetcher(t)
	fetcher.On("Fetch", mock.Anything, "https://example.test/m/ab").Return(detailHTML("05/04/2025"), nil).Once()
	fetcher.On("Fetch", mock.Anything, "https://example.test/m/cd").Return(detailHTML("01/04/2025"), nil).Once()

	var published []fixture.NormalizedFixture
	sink := usecasemock.NewSink(t)
	sink.On("Name").Return("store").Maybe()
	sink.On("Write", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(1).([]fixture.NormalizedFixture)
		}).
		Return(nil).
		Once()

	summary, err := newTestHarvest(t, fetcher, []Sink{sink}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", summary.RunID)
	require.Equal(t, 2, summary.Discovered)
	require.Equal(t, 2, summary.Detailed)
	require.Equal(t, 0, summary.Degraded)
	require.Equal(t, 2, summary.Published)
	require.Equal(t, 2, summary.Pages)

	require.Len(t, published, 2)
	require.Equal(t, "C", published[0].HomeTeam)
	require.Equal(t, "2025-04-01", published[0].DateString())
	require.Equal(t, "A", published[1].HomeTeam)
	require.Equal(t, "2025-04-05", published[1].DateString())
	require.Equal(t, "21:00", fixture.Deref(published[0].Time))
	require.Equal(t, "Teddy Stadium", fixture.Deref(published[0].Venue))
	require.Equal(t, "Jerusalem", fixture.Deref(published[0].City))
	require.Equal(t, "3", fixture.Deref(published[0].RoundNumber))
	require.Equal(t, "Saturday", fixture.Deref(published[0].Day))
}

func TestHarvestService_Run_DegradedRecordStillPublished(t *testing.T) {
	t.Parallel()

	fetcher := usecasemock.NewFetcher(t)
	fetcher.On("Fetch", mock.Anything, "https://example.test/m/ab").Return(detailHTML("05/04/2025"), nil).Once()
	fetcher.On("Fetch", mock.Anything, "https://example.test/m/cd").
		Return(nil, fmt.Errorf("%w: timeout", fetch.ErrTransient)).
		Times(5)

	var published []fixture.NormalizedFixture
	sink := usecasemock.NewSink(t)
	sink.On("Name").Return("store").Maybe()
	sink.On("Write", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).([]fixture.NormalizedFixture) }).
		Return(nil).
		Once()

	summary, err := newTestHarvest(t, fetcher, []Sink{sink}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Degraded)
	require.Equal(t, 1, summary.Detailed)

	require.Len(t, published, 2)
	degraded := published[1]
	require.Equal(t, "Ligat HaAl", degraded.League)
	require.Equal(t, "C", degraded.HomeTeam)
	require.Equal(t, "D", degraded.AwayTeam)
	require.Nil(t, degraded.Date)
	require.Nil(t, degraded.Time)
	require.Nil(t, degraded.Venue)
	require.Nil(t, degraded.City)
}

func TestHarvestService_Run_PublishFailureIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := usecasemock.NewFetcher(t)
	fetcher.On("Fetch", mock.Anything, mock.AnythingOfType("string")).Return(detailHTML("05/04/2025"), nil)

	store := usecasemock.NewSink(t)
	store.On("Name").Return("store").Maybe()
	store.On("Write", mock.Anything, mock.Anything).Return(errors.New("insert fixtures: constraint failed")).Once()

	// A later direct sink is never reached once an earlier one failed.
	audit := usecasemock.NewSink(t)
	audit.On("Name").Return("audit").Maybe()

	summary, err := newTestHarvest(t, fetcher, []Sink{store, audit}, nil).Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPublish))
	require.Equal(t, 0, summary.Published)
	require.Equal(t, 2, summary.Discovered)
	audit.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
}

type stagedFile struct {
	sink *stagingSink
}

func (f stagedFile) Commit() error {
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	f.sink.committed++
	return f.sink.commitErr
}

func (f stagedFile) Discard() error {
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	f.sink.discarded++
	return nil
}

type stagingSink struct {
	name      string
	stageErr  error
	commitErr error

	mu        sync.Mutex
	staged    int
	committed int
	discarded int
}

func (s *stagingSink) Name() string { return s.name }

func (s *stagingSink) Write(context.Context, []fixture.NormalizedFixture) error {
	return errors.New("staging sinks are never written directly")
}

func (s *stagingSink) Stage(context.Context, []fixture.NormalizedFixture) (fixture.StagedSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	s.staged++
	return stagedFile{sink: s}, nil
}

func TestHarvestService_Run_StagedExportFailureLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	fetcher := usecasemock.NewFetcher(t)
	fetcher.On("Fetch", mock.Anything, mock.AnythingOfType("string")).Return(detailHTML("05/04/2025"), nil)

	store := usecasemock.NewSink(t)
	store.On("Name").Return("store").Maybe()

	json := &stagingSink{name: "json"}
	csv := &stagingSink{name: "csv", stageErr: errors.New("disk full")}

	summary, err := newTestHarvest(t, fetcher, []Sink{store, json, csv}, nil).Run(context.Background())
	require.ErrorIs(t, err, ErrPublish)
	require.Contains(t, err.Error(), "sink csv: disk full")
	require.Equal(t, 0, summary.Published)

	store.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
	require.Equal(t, 1, json.staged)
	require.Equal(t, 0, json.committed)
	require.Equal(t, 1, json.discarded)
}

func TestHarvestService_Run_StoreFailureDiscardsStagedExports(t *testing.T) {
	t.Parallel()

	fetcher := usecasemock.NewFetcher(t)
	fetcher.On("Fetch", mock.Anything, mock.AnythingOfType("string")).Return(detailHTML("05/04/2025"), nil)

	store := usecasemock.NewSink(t)
	store.On("Name").Return("store").Maybe()
	store.On("Write", mock.Anything, mock.Anything).Return(errors.New("commit tx replace fixtures: conn reset")).Once()

	csv := &stagingSink{name: "csv"}

	_, err := newTestHarvest(t, fetcher, []Sink{csv, store}, nil).Run(context.Background())
	require.ErrorIs(t, err, ErrPublish)
	require.Equal(t, 1, csv.staged)
	require.Equal(t, 0, csv.committed)
	require.Equal(t, 1, csv.discarded)
}

func TestHarvestService_Run_CommitsStagedExportsAfterStore(t *testing.T) {
	t.Parallel()

	fetcher := usecasemock.NewFetcher(t)
	fetcher.On("Fetch", mock.Anything, mock.AnythingOfType("string")).Return(detailHTML("05/04/2025"), nil)

	csv := &stagingSink{name: "csv"}
	store := usecasemock.NewSink(t)
	store.On("Name").Return("store").Maybe()
	store.On("Write", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			csv.mu.Lock()
			defer csv.mu.Unlock()
			require.Equal(t, 1, csv.staged)
			require.Equal(t, 0, csv.committed)
		}).
		Return(nil).
		Once()

	summary, err := newTestHarvest(t, fetcher, []Sink{csv, store}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Published)
	require.Equal(t, 1, csv.committed)
	require.Equal(t, 0, csv.discarded)
}

func TestHarvestService_Run_SkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	locker := usecasemock.NewRunLocker(t)
	locker.On("Acquire", mock.Anything, "run-1").Return(false, nil).Once()

	summary, err := newTestHarvest(t, usecasemock.NewFetcher(t), nil, locker).Run(context.Background())
	require.ErrorIs(t, err, ErrRunLocked)
	require.Equal(t, 0, summary.Discovered)
}

func TestHarvestService_Run_ReleasesLock(t *testing.T) {
	t.Parallel()

	fetcher := usecasemock.NewFetcher(t)
	fetcher.On("Fetch", mock.Anything, mock.AnythingOfType("string")).Return(detailHTML("05/04/2025"), nil)

	locker := usecasemock.NewRunLocker(t)
	locker.On("Acquire", mock.Anything, "run-1").Return(true, nil).Once()
	locker.On("Release", mock.Anything, "run-1").Return(nil).Once()

	_, err := newTestHarvest(t, fetcher, nil, locker).Run(context.Background())
	require.NoError(t, err)
}

func TestHarvestService_Run_CanceledBeforePublish(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := usecasemock.NewFetcher(t)
	fetcher.On("Fetch", mock.Anything, mock.AnythingOfType("string")).Return(nil, context.Canceled).Maybe()

	sink := usecasemock.NewSink(t)
	_, err := newTestHarvest(t, fetcher, []Sink{sink}, nil).Run(ctx)
	require.ErrorIs(t, err, ErrPublish)
	sink.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
}

func TestHarvestService_LastRun(t *testing.T) {
	t.Parallel()

	locker := usecasemock.NewRunLocker(t)
	locker.On("Acquire", mock.Anything, "run-1").Return(false, nil).Once()

	svc := newTestHarvest(t, usecasemock.NewFetcher(t), nil, locker)
	_, ok := svc.LastRun()
	require.False(t, ok)

	_, err := svc.Run(context.Background())
	require.ErrorIs(t, err, ErrRunLocked)

	status, ok := svc.LastRun()
	require.True(t, ok)
	require.True(t, status.Skipped)
	require.Equal(t, "run-1", status.Summary.RunID)
	require.NotEmpty(t, status.Error)
	require.False(t, status.FinishedAt.IsZero())
}

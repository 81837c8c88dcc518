package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/riskibarqy/fixture-harvester/internal/usecase"
	"github.com/stretchr/testify/require"
)

type fakeRuns struct {
	status usecase.RunStatus
	ok     bool
}

func (f fakeRuns) LastRun() (usecase.RunStatus, bool) { return f.status, f.ok }

type fakeTrigger struct {
	err   error
	calls int
}

func (f *fakeTrigger) Trigger() error {
	f.calls++
	return f.err
}

func newTestRouter(runs RunStatusReader, trigger RunTrigger, token string) http.Handler {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	return NewRouter(NewHandler(runs, trigger, logging.NewNop()), logging.NewNop(), RouterConfig{
		Metrics:      metrics,
		TriggerToken: token,
	})
}

func serve(t *testing.T, h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	router := newTestRouter(fakeRuns{}, nil, "")

	rec := serve(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# metrics")

	rec = serve(t, router, http.MethodGet, "/debug/pprof/", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_LastRun(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(fakeRuns{}, nil, ""), http.MethodGet, "/v1/runs/last", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	runs := fakeRuns{ok: true, status: usecase.RunStatus{Summary: usecase.RunSummary{RunID: "run-9", Published: 12}}}
	rec = serve(t, newTestRouter(runs, nil, ""), http.MethodGet, "/v1/runs/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data usecase.RunStatus `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-9", body.Data.Summary.RunID)
	require.Equal(t, 12, body.Data.Summary.Published)
}

func TestRouter_Readyz(t *testing.T) {
	t.Parallel()

	failed := fakeRuns{ok: true, status: usecase.RunStatus{Error: "publish failed"}}
	rec := serve(t, newTestRouter(failed, nil, ""), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	skipped := fakeRuns{ok: true, status: usecase.RunStatus{Error: "locked", Skipped: true}}
	rec = serve(t, newTestRouter(skipped, nil, ""), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_TriggerRun(t *testing.T) {
	t.Parallel()

	trigger := &fakeTrigger{}
	router := newTestRouter(fakeRuns{}, trigger, "secret")

	rec := serve(t, router, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, router, http.MethodPost, "/v1/runs", map[string]string{"X-Trigger-Token": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 0, trigger.calls)

	rec = serve(t, router, http.MethodPost, "/v1/runs", map[string]string{"X-Trigger-Token": "secret"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, trigger.calls)

	rec = serve(t, newTestRouter(fakeRuns{}, trigger, ""), http.MethodPost, "/v1/runs", map[string]string{"X-Trigger-Token": "secret"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_TriggerRunRejected(t *testing.T) {
	t.Parallel()

	header := map[string]string{"X-Trigger-Token": "secret"}

	busy := &fakeTrigger{err: usecase.ErrRunLocked}
	rec := serve(t, newTestRouter(fakeRuns{}, busy, "secret"), http.MethodPost, "/v1/runs", header)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "ABORTED")

	stopped := &fakeTrigger{err: errors.New("scheduler is not running")}
	rec = serve(t, newTestRouter(fakeRuns{}, stopped, "secret"), http.MethodPost, "/v1/runs", header)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(t, newTestRouter(fakeRuns{}, nil, "secret"), http.MethodPost, "/v1/runs", header)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_PprofWhenEnabled(t *testing.T) {
	t.Parallel()

	router := NewRouter(NewHandler(fakeRuns{}, nil, nil), nil, RouterConfig{PprofEnabled: true})
	rec := serve(t, router, http.MethodGet, "/debug/pprof/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

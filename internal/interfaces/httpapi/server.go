package httpapi

import (
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
)

type RouterConfig struct {
	// Metrics is served on GET /metrics when set.
	Metrics      http.Handler
	PprofEnabled bool
	TriggerToken string
}

// NewRouter builds the ops listener used in scheduled mode.
func NewRouter(handler *Handler, logger *logging.Logger, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestTracing, RequestLogging(logger), recoverPanic(logger))

	r.Get("/healthz", handler.Healthz)
	r.Get("/readyz", handler.Readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/last", handler.GetLastRun)
		r.With(RequireTriggerToken(cfg.TriggerToken)).Post("/", handler.TriggerRun)
	})

	if cfg.PprofEnabled {
		r.Mount("/debug", pprofRoutes())
	}

	return r
}

func pprofRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NoCache)
	r.HandleFunc("/pprof/", pprof.Index)
	r.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/pprof/profile", pprof.Profile)
	r.HandleFunc("/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/pprof/trace", pprof.Trace)
	r.Handle("/pprof/{profile}", http.HandlerFunc(pprof.Index))
	return r
}

func recoverPanic(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := startSpan(r.Context(), "httpapi.recoverPanic")
			defer span.End()

			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(ctx, "panic recovered", "panic", rec)
					writeInternalError(ctx, w)
				}
			}()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/riskibarqy/fixture-harvester/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RequireTriggerToken guards manual run triggers. An empty token disables the route.
func RequireTriggerToken(token string) func(http.Handler) http.Handler {
	expectedToken := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := startSpan(r.Context(), "httpapi.RequireTriggerToken")
			defer span.End()

			if expectedToken == "" {
				writeError(ctx, w, fmt.Errorf("%w: trigger token is not configured", usecase.ErrDependencyUnavailable))
				return
			}

			providedToken := strings.TrimSpace(r.Header.Get("X-Trigger-Token"))
			if providedToken == "" || providedToken != expectedToken {
				writeError(ctx, w, fmt.Errorf("%w: invalid trigger token", usecase.ErrUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestLogging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if !shouldTraceRequest(r.URL.Path) {
				return
			}
			logger.InfoContext(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"remote_addr", r.RemoteAddr,
				"duration_ms", time.Since(started).Milliseconds(),
			)
		})
	}
}

func RequestTracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "fixture-harvester-ops",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTraceRequest(r.URL.Path)
		}),
	)
}

// Health checks and scrapes are too frequent to trace or log.
func shouldTraceRequest(path string) bool {
	normalized := strings.ToLower(strings.TrimSpace(path))
	switch normalized {
	case "/healthz", "/health", "/livez", "/readyz", "/metrics":
		return false
	default:
		return true
	}
}

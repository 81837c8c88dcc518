package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
)

// StartOpsServer serves handler on addr in the background. An empty addr
// disables the listener and returns a nil server.
func StartOpsServer(addr string, handler http.Handler, logger *logging.Logger) *http.Server {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(addr) == "" {
		logger.Info("ops server disabled", "reason", "METRICS_ADDR empty")
		return nil
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("ops server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", "error", err)
		}
	}()

	return srv
}

func StopOpsServer(srv *http.Server, logger *logging.Logger, timeout time.Duration) error {
	if srv == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("ops server stopped")

	return nil
}

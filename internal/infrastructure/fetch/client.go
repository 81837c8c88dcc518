package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/riskibarqy/fixture-harvester/internal/platform/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrTransient marks failures worth retrying: network errors, timeouts,
	// 429/5xx responses and an open circuit.
	ErrTransient = crerr.New("transient fetch failure")
	// ErrStatus marks any non-2xx response.
	ErrStatus = crerr.New("unexpected response status")
	// ErrBodyTooLarge means the response exceeded the configured body limit.
	ErrBodyTooLarge = crerr.New("response body too large")
)

const (
	defaultTimeout      = 20 * time.Second
	defaultUserAgent    = "fixture-harvester/1.0"
	defaultMaxBodyBytes = 4 << 20
	defaultMaxConns     = 64

	OutcomeOK          = "ok"
	OutcomeTransient   = "transient"
	OutcomeStatus      = "status"
	OutcomeCircuitOpen = "circuit_open"
)

// Observer receives one call per network attempt.
type Observer interface {
	ObserveFetch(outcome string, elapsed time.Duration)
}

type Config struct {
	Timeout         time.Duration
	UserAgent       string
	MaxConnsPerHost int
	MaxBodyBytes    int64
	CircuitBreaker  resilience.CircuitBreakerConfig
	// Transport replaces the pooled default transport; it is still wrapped with otelhttp.
	Transport http.RoundTripper
	Observer  Observer
	Logger    *logging.Logger
}

// Client is the single HTTP entry point shared by pagination and detail workers.
// It is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	timeout      time.Duration
	userAgent    string
	maxBodyBytes int64
	breaker      *resilience.CircuitBreaker
	flight       resilience.SingleFlight[[]byte]
	observer     Observer
	logger       *logging.Logger
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	base := cfg.Transport
	if base == nil {
		base = newPooledTransport(cfg.MaxConnsPerHost)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(base),
			Timeout:   timeout,
		},
		timeout:      timeout,
		userAgent:    userAgent,
		maxBodyBytes: maxBody,
		breaker:      resilience.NewCircuitBreaker(cfg.CircuitBreaker),
		observer:     cfg.Observer,
		logger:       logger,
	}
}

func newPooledTransport(maxConns int) *http.Transport {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = maxConns
	transport.MaxIdleConnsPerHost = maxConns
	transport.MaxIdleConns = maxConns * 2
	return transport
}

// Fetch performs one bounded-timeout GET and returns the body of a 2xx response.
// Concurrent fetches of the same ref share a single request, and that shared
// request passes through the circuit breaker exactly once.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	body, _, err := c.flight.Do(ref, func() ([]byte, error) {
		if err := c.breaker.Allow(); err != nil {
			c.observe(OutcomeCircuitOpen, 0)
			return nil, fmt.Errorf("%w: get %s: %w", ErrTransient, ref, err)
		}

		start := time.Now()
		raw, reqErr := c.get(ctx, ref)
		elapsed := time.Since(start)

		c.breaker.Record(reqErr != nil && errors.Is(reqErr, ErrTransient))
		switch {
		case reqErr == nil:
			c.observe(OutcomeOK, elapsed)
		case errors.Is(reqErr, ErrTransient):
			c.observe(OutcomeTransient, elapsed)
		default:
			c.observe(OutcomeStatus, elapsed)
		}
		return raw, reqErr
	})
	if err != nil {
		c.logger.DebugContext(ctx, "fetch failed", "ref", ref, "error", err)
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", ref, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrTransient, ref, err)
	}
	defer resp.Body.Close()

	// One byte past the limit tells a truncated page apart from one that fits exactly.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body %s: %w", ErrTransient, ref, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if isRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: get %s: %w: status=%d", ErrTransient, ref, ErrStatus, resp.StatusCode)
		}
		return nil, fmt.Errorf("get %s: %w: status=%d", ref, ErrStatus, resp.StatusCode)
	}
	if int64(len(raw)) > c.maxBodyBytes {
		return nil, fmt.Errorf("get %s: %w: limit=%d bytes", ref, ErrBodyTooLarge, c.maxBodyBytes)
	}

	return raw, nil
}

func (c *Client) observe(outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveFetch(outcome, elapsed)
	}
}

func (c *Client) BreakerState() resilience.CircuitState {
	return c.breaker.State()
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// IsTimeout reports whether err came from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

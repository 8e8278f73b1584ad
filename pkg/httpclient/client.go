// Package httpclient downloads source archives with size limits and request metrics.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 10 * time.Minute

	// DefaultMaxDownloadSize is the default maximum download size (2GB)
	DefaultMaxDownloadSize = 2 * 1024 * 1024 * 1024

	userAgent = "fern/1.0"
)

// ErrTooLarge is returned when a body exceeds the configured limit.
var ErrTooLarge = errors.New("response body too large")

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client wraps the HTTP client with logging and size limits
type Client struct {
	client          *http.Client
	logger          ectologger.Logger
	maxDownloadSize int64
}

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	MaxDownloadSize int64
}

// DefaultConfig returns default HTTP client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
		MaxDownloadSize: DefaultMaxDownloadSize,
	}
}

// NewClient creates a new HTTP client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxDownloadSize <= 0 {
		cfg.MaxDownloadSize = def.MaxDownloadSize
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger:          logger,
		maxDownloadSize: cfg.MaxDownloadSize,
	}
}

// Download streams the body of a GET request into w and returns the number of bytes
// written. Non-2xx responses return a *StatusError and nothing is written.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "HTTPClient.Download", attribute.String("http.url", url))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		req.Header.Set("traceparent", traceParent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordHTTPRequest(req.Method, "error", time.Since(start).Seconds())
		c.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: %s %s", req.Method, url)
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordHTTPRequest(req.Method, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > c.maxDownloadSize {
		metrics.RecordHTTPRequest(req.Method, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, resp.ContentLength, c.maxDownloadSize)
	}

	n, err := io.Copy(w, io.LimitReader(resp.Body, c.maxDownloadSize+1))
	duration := time.Since(start)
	metrics.RecordHTTPRequest(req.Method, strconv.Itoa(resp.StatusCode), duration.Seconds())
	metrics.RecordDownload(n)
	if err != nil {
		return n, fmt.Errorf("failed to read response body: %w", err)
	}
	if n > c.maxDownloadSize {
		return n, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxDownloadSize)
	}

	c.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%d bytes, %s)",
		req.Method, url, resp.StatusCode, n, duration)

	return n, nil
}

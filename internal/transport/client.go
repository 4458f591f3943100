package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stagectl/internal/metrics"
	"stagectl/internal/pool"
	"stagectl/pkg/logging"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultWorkers        = 4
)

// Request is a call sent to a running process.
type Request struct {
	Name   string
	Method string
	URL    string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Timeout    time.Duration
	Workers    int
	HTTPClient *http.Client
	Metrics    *metrics.Collector
}

// Client sends requests to processes under test and hands the responses to
// their handlers on the generic worker pool. Failed calls are not retried.
type Client struct {
	http    *http.Client
	timeout time.Duration
	workers *pool.Pool
	metrics *metrics.Collector
}

// NewClient creates a client. Close it to wait for outstanding calls.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		http:    httpClient,
		timeout: cfg.Timeout,
		workers: pool.New(ExecutorGeneric, cfg.Workers),
		metrics: cfg.Metrics,
	}
}

// Send issues req asynchronously. When every worker is busy it waits for one to
// free up. The sink always receives exactly one outcome, including when the
// call cannot be scheduled.
func (c *Client) Send(ctx context.Context, req Request, sink ResponseSink) error {
	if sink.ExecutorName() != ExecutorGeneric {
		logging.Warn(subsystem, "Handler for %s asked for executor %q; using %q", req.describe(), sink.ExecutorName(), ExecutorGeneric)
	}

	err := c.workers.Go(func() error {
		c.do(ctx, req, sink)
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed to schedule %s: %w", req.describe(), err)
		c.metrics.RequestFinished(false)
		sink.Handle(nil, err)
		return err
	}
	return nil
}

// Close waits for outstanding calls and rejects new ones.
func (c *Client) Close() error {
	return c.workers.Shutdown()
}

func (c *Client) do(ctx context.Context, req Request, sink ResponseSink) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		c.metrics.RequestFinished(false)
		sink.Handle(nil, fmt.Errorf("invalid request %s: %w", req.describe(), err))
		return
	}

	logging.Debug(subsystem, "Sending %s %s", method, req.URL)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RequestFinished(false)
		sink.Handle(nil, fmt.Errorf("%s: %w", req.describe(), err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.metrics.RequestFinished(false)
		sink.Handle(nil, fmt.Errorf("%s: status %d: %s", req.describe(), resp.StatusCode, strings.TrimSpace(string(snippet))))
		return
	}

	c.metrics.RequestFinished(true)
	sink.Handle(resp.Body, nil)
}

func (r Request) describe() string {
	if r.Name != "" {
		return fmt.Sprintf("request %q", r.Name)
	}
	return "request to " + r.URL
}

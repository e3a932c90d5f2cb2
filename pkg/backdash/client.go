// Package backdash is a Go SDK for the backtesting backend's REST API.
package backdash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"backdash/internal/domain"
	"backdash/internal/util"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 32 << 20
)

// Client provides typed access to the backtesting backend. It never retries;
// every failure is logged and returned to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	limiter    *util.RateLimiter
	userAgent  string
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A nil client is
// ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request deadline. It applies to a copy of the
// HTTP client, never to one passed with WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRateLimit bounds outgoing requests to perMinute.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = util.NewRateLimiter(perMinute)
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a new backend API client. An empty baseURL selects
// DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        slog.Default(),
		userAgent:  "backdash",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

// ListStrategies returns the strategy catalog.
func (c *Client) ListStrategies(ctx context.Context) (*domain.StrategyListResponse, error) {
	var out domain.StrategyListResponse
	if err := c.do(ctx, http.MethodGet, "/api/strategies", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStrategy returns a single catalog entry.
func (c *Client) GetStrategy(ctx context.Context, id string) (*domain.Strategy, error) {
	if id == "" {
		return nil, &ValidationError{Field: "strategy_id", Reason: "empty"}
	}
	var out domain.Strategy
	if err := c.do(ctx, http.MethodGet, "/api/strategies/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// CreateRun launches a backtest of strategyID. It is not idempotent: two
// calls create two runs.
func (c *Client) CreateRun(ctx context.Context, strategyID string, params domain.Params, name string) (*domain.RunResponse, error) {
	if strings.TrimSpace(strategyID) == "" {
		return nil, &ValidationError{Field: "strategy_id", Reason: "empty"}
	}
	if params == nil {
		params = domain.Params{}
	}
	req := domain.CreateRunRequest{StrategyID: strategyID, Parameters: params, Name: name}
	var out domain.RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/runs", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns returns the run history. limit <= 0 leaves the page size to the
// backend.
func (c *Client) ListRuns(ctx context.Context, limit int) (*domain.RunListResponse, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out domain.RunListResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRunStatus returns the current status of a run.
func (c *Client) GetRunStatus(ctx context.Context, runID string) (*domain.RunStatus, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "run_id", Reason: "empty"}
	}
	var out domain.RunStatus
	if err := c.do(ctx, http.MethodGet, runPath(runID, "status"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRunResults returns the results of a completed run.
func (c *Client) GetRunResults(ctx context.Context, runID string) (*domain.RunResults, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "run_id", Reason: "empty"}
	}
	var out domain.RunResults
	if err := c.do(ctx, http.MethodGet, runPath(runID, "results"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRunHeatmap returns per weekday/hour performance of a run's trades.
func (c *Client) GetRunHeatmap(ctx context.Context, runID string) (*domain.HeatmapResponse, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "run_id", Reason: "empty"}
	}
	var out domain.HeatmapResponse
	if err := c.do(ctx, http.MethodGet, runPath(runID, "heatmap"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRun removes a run. Deleting a missing run returns the backend's 404
// as an *HTTPError.
func (c *Client) DeleteRun(ctx context.Context, runID string) (*domain.DeleteRunResponse, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "run_id", Reason: "empty"}
	}
	var out domain.DeleteRunResponse
	if err := c.do(ctx, http.MethodDelete, runPath(runID, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDataRange returns the span of market data backtests can use.
func (c *Client) GetDataRange(ctx context.Context) (*domain.DataRange, error) {
	var out domain.DataRange
	if err := c.do(ctx, http.MethodGet, "/api/runs/data-range", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOHLCData returns recent candles. days <= 0 requests the last 7 days.
func (c *Client) GetOHLCData(ctx context.Context, days int) (*domain.OHLCData, error) {
	if days <= 0 {
		days = 7
	}
	q := url.Values{"days": {strconv.Itoa(days)}}
	var out domain.OHLCData
	if err := c.do(ctx, http.MethodGet, "/api/runs/ohlc-data", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------------------------------------------------------------------------
// NinjaTrader imports
// ---------------------------------------------------------------------------

// ListNinjaStrategies returns the imported NinjaTrader exports.
func (c *Client) ListNinjaStrategies(ctx context.Context) (*domain.NinjaStrategyList, error) {
	var out domain.NinjaStrategyList
	if err := c.do(ctx, http.MethodGet, "/api/ninja-strategies", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNinjaStrategyData returns the trades and equity curve of an export.
func (c *Client) GetNinjaStrategyData(ctx context.Context, id string) (*domain.NinjaStrategyData, error) {
	if id == "" {
		return nil, &ValidationError{Field: "strategy_id", Reason: "empty"}
	}
	var out domain.NinjaStrategyData
	if err := c.do(ctx, http.MethodGet, "/api/ninja-strategies/"+url.PathEscape(id)+"/data", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadNinjaStrategy streams the raw CSV export into w and returns the
// number of bytes written.
func (c *Client) DownloadNinjaStrategy(ctx context.Context, id string, w io.Writer) (int64, error) {
	if id == "" {
		return 0, &ValidationError{Field: "strategy_id", Reason: "empty"}
	}
	path := "/api/ninja-strategies/" + url.PathEscape(id) + "/download"
	resp, err := c.send(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		err = c.classify(http.MethodGet, c.baseURL+path, err)
		c.log.Error("download failed", "id", id, "bytes", n, "error", err)
		return n, err
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Analyst
// ---------------------------------------------------------------------------

// Chat sends a question to the AI analyst.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &ValidationError{Field: "message", Reason: "empty"}
	}
	var out domain.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/ai/chat", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAnalystRuns returns the runs the analyst can discuss.
func (c *Client) ListAnalystRuns(ctx context.Context) (*domain.AnalystRunList, error) {
	var out domain.AnalystRunList
	if err := c.do(ctx, http.MethodGet, "/api/ai/runs", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the backend answers on its root path.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/", nil, nil, nil)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func runPath(runID, suffix string) string {
	p := "/api/runs/" + url.PathEscape(runID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// do sends a request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		err = c.classify(method, resp.Request.URL.String(), err)
		c.log.Error("reading response", "method", method, "path", path, "error", err)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		err = fmt.Errorf("decoding %s %s response: %w", method, path, err)
		c.log.Error("decoding response", "method", method, "path", path, "error", err)
		return err
	}
	return nil
}

// send performs the request and returns the response only for 2xx/3xx
// statuses. The caller must close the body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.classify(method, u, err)
		}
	}

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = c.classify(method, u, err)
		if errors.Is(err, context.Canceled) {
			c.log.Debug("request cancelled", "method", method, "url", u, "request_id", reqID)
		} else {
			c.log.Error("request failed", "method", method, "url", u, "request_id", reqID, "error", err)
		}
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		herr := &HTTPError{Method: method, URL: u, Status: resp.StatusCode, Body: data}
		c.log.Error("backend error", "method", method, "url", u, "status", resp.StatusCode,
			"detail", herr.Detail(), "request_id", reqID)
		return nil, herr
	}

	c.log.Debug("request ok", "method", method, "url", u, "status", resp.StatusCode,
		"elapsed", time.Since(start), "request_id", reqID)
	return resp, nil
}

// classify maps transport failures onto the error taxonomy.
func (c *Client) classify(method, u string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &TimeoutError{Op: method, URL: u, Timeout: c.httpClient.Timeout, Err: err}
	}
	return &NetworkError{Op: method, URL: u, Err: err}
}

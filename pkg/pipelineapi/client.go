// Package pipelineapi is a client for the brand analytics pipeline backend:
// stage status polling, stage triggers, the domain-readiness audit stream,
// and computed results.
package pipelineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/brandpulse/internal/model"
	"github.com/sells-group/brandpulse/internal/resilience"
)

const defaultBaseURL = "http://localhost:3000/api"

// Client defines the pipeline backend operations.
type Client interface {
	// GetStatus fetches the current PipelineSnapshot for a subject.
	GetStatus(ctx context.Context, subjectID string) (*model.PipelineSnapshot, error)
	// StartDomainAudit triggers the domain-readiness stage.
	StartDomainAudit(ctx context.Context, subjectID string) error
	// GenerateRecommendations triggers the recommendations stage.
	GenerateRecommendations(ctx context.Context, subjectID string) error
	// StreamAudit opens the audit event stream. The caller must Close it.
	StreamAudit(ctx context.Context, subjectID string) (Stream, error)
	// DataUpdates reports whether computed data changed since a timestamp.
	DataUpdates(ctx context.Context, since time.Time) (*UpdatesResponse, error)
	// GetResults fetches computed results; bypass skips server-side caches.
	GetResults(ctx context.Context, subjectID string, bypass bool) (*model.Results, error)
}

// UpdatesResponse is the body of GET /data-updates.
type UpdatesResponse struct {
	HasUpdates bool `json:"hasUpdates"`
	Count      int  `json:"count,omitempty"`
}

type recommendationsRequest struct {
	SubjectID string `json:"subjectId"`
}

// APIError is returned when the backend responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pipelineapi: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *httpClient) {
		c.token = token
	}
}

// WithHTTPClient sets the *http.Client used for every request, streams
// included.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
		c.stream = hc
	}
}

// WithTimeout sets the timeout of non-streaming requests. Audit streams are
// bounded only by their context.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry sets the retry policy for idempotent reads. Triggers are
// never retried here; the stage latch owns that.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewClient creates a pipeline API client.
func NewClient(opts ...Option) Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second, Transport: transport},
		// Streams stay open for the whole audit; only the context bounds them.
		stream: &http.Client{Transport: transport},
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.http.Timeout != c.timeout {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

func (c *httpClient) GetStatus(ctx context.Context, subjectID string) (*model.PipelineSnapshot, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("get_status", subjectID)

	snap, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.PipelineSnapshot, error) {
		var snap model.PipelineSnapshot
		if err := c.get(ctx, "/pipeline/"+url.PathEscape(subjectID)+"/status", nil, &snap); err != nil {
			return nil, err
		}
		return &snap, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipelineapi: get status %s", subjectID)
	}
	return snap, nil
}

func (c *httpClient) StartDomainAudit(ctx context.Context, subjectID string) error {
	path := "/pipeline/" + url.PathEscape(subjectID) + "/domain-readiness/audit"
	if err := c.post(ctx, path, nil, nil); err != nil {
		return eris.Wrapf(err, "pipelineapi: start domain audit %s", subjectID)
	}
	return nil
}

func (c *httpClient) GenerateRecommendations(ctx context.Context, subjectID string) error {
	if err := c.post(ctx, "/pipeline/recommendations/generate", recommendationsRequest{SubjectID: subjectID}, nil); err != nil {
		return eris.Wrapf(err, "pipelineapi: generate recommendations %s", subjectID)
	}
	return nil
}

func (c *httpClient) DataUpdates(ctx context.Context, since time.Time) (*UpdatesResponse, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339Nano))

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("data_updates", "")

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*UpdatesResponse, error) {
		var resp UpdatesResponse
		if err := c.get(ctx, "/data-updates", q, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipelineapi: data updates")
	}
	return resp, nil
}

func (c *httpClient) GetResults(ctx context.Context, subjectID string, bypass bool) (*model.Results, error) {
	var q url.Values
	if bypass {
		q = url.Values{"refresh": []string{"true"}}
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("get_results", subjectID)

	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.Results, error) {
		var res model.Results
		if err := c.get(ctx, "/pipeline/"+url.PathEscape(subjectID)+"/results", q, &res); err != nil {
			return nil, err
		}
		return &res, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipelineapi: get results %s", subjectID)
	}
	return res, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	if query.Get("refresh") == "true" {
		req.Header.Set("Cache-Control", "no-cache")
	}
	return c.do(req, out)
}

func (c *httpClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "rate limit")
}

func (c *httpClient) do(req *http.Request, out any) error {
	if err := c.wait(req.Context()); err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if err := checkStatus(resp.StatusCode, data); err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

// checkStatus converts a non-2xx response into an APIError, marked transient
// when the status is retryable.
func checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: code, Body: string(body)}
	if resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(apiErr, code)
	}
	return apiErr
}

// Package backend is the HTTP client for the interview backend: question
// banks, session submission, résumé analysis and session history.
//
// Every endpoint has its own [resilience.CircuitBreaker] so that a failing
// history endpoint does not block question loading. Each call is traced with
// an OpenTelemetry span and timed in [observe.Metrics.BackendDuration].
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/interviewcoach/internal/observe"
	"github.com/MrWong99/interviewcoach/internal/resilience"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

// ErrSubmitRejected is returned by SubmitSession for any non-2xx answer. It is
// recoverable: the caller keeps the payload and lets the user retry.
var ErrSubmitRejected = errors.New("backend: submission rejected")

// errStatus is returned for unexpected status codes on read endpoints.
var errStatus = errors.New("backend: unexpected status")

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 512

const (
	endpointQuestions = "questions"
	endpointSubmit    = "submit"
	endpointResume    = "resume"
	endpointHistory   = "history"
	endpointPing      = "ping"
)

// Client talks to the backend REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	metrics    *observe.Metrics
	breakers   map[string]*resilience.CircuitBreaker
}

type config struct {
	httpClient *http.Client
	timeout    time.Duration
	token      string
	metrics    *observe.Metrics
	breaker    resilience.CircuitBreakerConfig
}

// Option is a functional option for [Client].
type Option func(*config)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) { cfg.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.timeout = d }
}

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(cfg *config) { cfg.token = token }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(cfg *config) { cfg.metrics = m }
}

// WithBreaker tunes the per-endpoint circuit breakers.
func WithBreaker(b resilience.CircuitBreakerConfig) Option {
	return func(cfg *config) { cfg.breaker = b }
}

// New returns a Client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid base URL %q", baseURL)
	}

	cfg := &config{timeout: 10 * time.Second}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.metrics == nil {
		cfg.metrics = observe.DefaultMetrics()
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      cfg.token,
		httpClient: cfg.httpClient,
		metrics:    cfg.metrics,
		breakers:   make(map[string]*resilience.CircuitBreaker),
	}
	for _, ep := range []string{endpointQuestions, endpointSubmit, endpointResume, endpointHistory, endpointPing} {
		bc := cfg.breaker
		bc.Name = "backend." + ep
		bc.OnStateChange = func(name string, _, to resilience.State) {
			c.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		}
		if ep == endpointSubmit {
			// A rejected payload says nothing about backend health.
			bc.IsFailure = func(err error) bool {
				return !errors.Is(err, context.Canceled) && !isClientError(err)
			}
		}
		c.breakers[ep] = resilience.NewCircuitBreaker(bc)
	}
	return c, nil
}

// BaseURL returns the backend origin the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// ---- questions --------------------------------------------------------------

type questionsResponse struct {
	Success   bool          `json:"success"`
	Questions []rawQuestion `json:"questions"`
}

// rawQuestion accepts both field spellings the backend has used.
type rawQuestion struct {
	ID       string `json:"_id"`
	AltID    string `json:"id"`
	Question string `json:"question"`
	Text     string `json:"text"`
	Category string `json:"category"`
	Type     string `json:"type"`
}

// Questions fetches the question bank for t. Entries without text are
// dropped. A response with success=false is an error; an empty list is not.
func (c *Client) Questions(ctx context.Context, t types.InterviewType) ([]types.Question, error) {
	path := "/api/questions?type=" + url.QueryEscape(string(t))
	var resp questionsResponse
	err := c.call(ctx, endpointQuestions, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		return c.doJSON(req, &resp)
	}, attribute.String("interview.type", string(t)))
	if err != nil {
		return nil, fmt.Errorf("backend: questions: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("backend: questions: server reported failure")
	}

	out := make([]types.Question, 0, len(resp.Questions))
	for i, q := range resp.Questions {
		text := q.Question
		if text == "" {
			text = q.Text
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		id := q.ID
		if id == "" {
			id = q.AltID
		}
		if id == "" {
			id = fmt.Sprintf("%s-%d", t, i)
		}
		qt := types.InterviewType(q.Type)
		if !qt.IsValid() {
			qt = t
		}
		out = append(out, types.Question{ID: id, Text: text, Category: q.Category, Type: qt})
	}
	return out, nil
}

// ---- sessions ---------------------------------------------------------------

// SubmitSession posts the finished session. Any non-2xx status yields an
// error wrapping [ErrSubmitRejected].
func (c *Client) SubmitSession(ctx context.Context, s types.SessionSubmission) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("backend: submit: encode: %w", err)
	}
	err = c.call(ctx, endpointSubmit, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/api/sessions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.doJSON(req, nil)
	}, attribute.Int("session.answers", len(s.Answers)), attribute.Int("session.score", s.OverallScore))
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return fmt.Errorf("%w: %w", ErrSubmitRejected, err)
		}
		return fmt.Errorf("backend: submit: %w", err)
	}
	return nil
}

// SessionSummary is one past session as listed by the history endpoint.
type SessionSummary struct {
	ID        string                 `json:"_id"`
	Type      types.InterviewType    `json:"type"`
	Score     int                    `json:"score"`
	Duration  int                    `json:"duration"`
	Feedback  types.CategoryFeedback `json:"feedback"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Analytics aggregates the user's past sessions.
type Analytics struct {
	TotalSessions     int            `json:"totalSessions"`
	AverageScore      float64        `json:"averageScore"`
	BestScore         int            `json:"bestScore"`
	TotalTime         int            `json:"totalTime"`
	RecentImprovement float64        `json:"recentImprovement"`
	SessionsByType    map[string]int `json:"sessionsByType"`
}

// History is the response of the session history endpoint.
type History struct {
	Sessions  []SessionSummary `json:"sessions"`
	Analytics Analytics        `json:"analytics"`
}

// History lists the user's past sessions with aggregate analytics.
func (c *Client) History(ctx context.Context) (History, error) {
	var h History
	err := c.call(ctx, endpointHistory, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, "/api/sessions", nil)
		if err != nil {
			return err
		}
		return c.doJSON(req, &h)
	})
	if err != nil {
		return History{}, fmt.Errorf("backend: history: %w", err)
	}
	return h, nil
}

// ---- résumé -----------------------------------------------------------------

// ResumeAnalysis is the backend's summary of an uploaded résumé.
type ResumeAnalysis struct {
	Skills          []string `json:"skills"`
	YearsExperience float64  `json:"yearsExperience"`
}

// UploadResume sends the file in the multipart field "resume".
func (c *Client) UploadResume(ctx context.Context, filename string, r io.Reader) (ResumeAnalysis, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("resume", filename)
	if err != nil {
		return ResumeAnalysis{}, fmt.Errorf("backend: resume: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return ResumeAnalysis{}, fmt.Errorf("backend: resume: read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return ResumeAnalysis{}, fmt.Errorf("backend: resume: %w", err)
	}

	var resp struct {
		Analysis ResumeAnalysis `json:"analysis"`
	}
	err = c.call(ctx, endpointResume, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/api/resume/upload", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return c.doJSON(req, &resp)
	}, attribute.String("resume.filename", filename))
	if err != nil {
		return ResumeAnalysis{}, fmt.Errorf("backend: resume: %w", err)
	}
	return resp.Analysis, nil
}

// Ping reports whether the backend answers HTTP at all. Any status below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, endpointPing, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 500 {
			return &statusError{code: resp.StatusCode}
		}
		return nil
	})
}

// ---- plumbing ---------------------------------------------------------------

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%v: %d", errStatus, e.code)
	}
	return fmt.Sprintf("%v: %d: %s", errStatus, e.code, e.body)
}

func (e *statusError) Unwrap() error { return errStatus }

func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500
}

// call runs fn through the endpoint's breaker inside a span and records its latency.
func (c *Client) call(ctx context.Context, endpoint string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := observe.StartSpan(ctx, "backend."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	start := time.Now()
	err := c.breakers[endpoint].Execute(func() error { return fn(ctx) })

	status := "ok"
	if err != nil {
		status = "error"
		observe.Logger(ctx).Debug("backend call failed", "endpoint", endpoint, "err", err)
	}
	c.metrics.RecordBackendCall(ctx, endpoint, status, time.Since(start))
	observe.EndSpan(span, err)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON executes req and decodes a 2xx body into out (when non-nil).
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

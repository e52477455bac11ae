package backend

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"aceinterview/internal/config"
	appErrors "aceinterview/internal/errors"
	"aceinterview/internal/scoring"
	"aceinterview/internal/types"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// User-facing messages, one per step regardless of the failure cause
const (
	ParseResumeFailedMessage       = "Could not read the resume. Please try a different PDF/TXT."
	GenerateQuestionsFailedMessage = "Sorry, could not generate questions right now. Please try again."
	EvaluateAnswerFailedMessage    = "Sorry, could not evaluate your answer. Please try again."
)

const maxResponseSize = 4 << 20

// HTTPStatusError reports a non-2xx answer from the backend
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

type endpoint struct {
	op          config.ResolvedOperation
	breaker     *CircuitBreaker
	errCode     string
	userMessage string
}

// Client talks to the interview backend over HTTP
type Client struct {
	httpClient *http.Client
	userAgent  string
	observer   OperationObserver
	logger     *appErrors.Logger

	parseResume       *endpoint
	generateQuestions *endpoint
	evaluateAnswer    *endpoint
}

// Ensure Client implements Backend
var _ Backend = (*Client)(nil)

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithObserver reports every backend call to o
func WithObserver(o OperationObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a backend client with one circuit breaker per endpoint
func NewClient(cfg *config.Config, logger *appErrors.Logger, opts ...Option) *Client {
	newEndpoint := func(op config.ResolvedOperation, code, message string) *endpoint {
		return &endpoint{
			op:          op,
			breaker:     NewCircuitBreaker(op, logger),
			errCode:     code,
			userMessage: message,
		}
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent: cfg.Backend.UserAgent,
		logger:    logger,

		parseResume: newEndpoint(cfg.GetParseResumeConfig(),
			appErrors.ErrCodeParseResume, ParseResumeFailedMessage),
		generateQuestions: newEndpoint(cfg.GetGenerateQuestionsConfig(),
			appErrors.ErrCodeGenerateQuestions, GenerateQuestionsFailedMessage),
		evaluateAnswer: newEndpoint(cfg.GetEvaluateAnswerConfig(),
			appErrors.ErrCodeEvaluateAnswer, EvaluateAnswerFailedMessage),
	}

	for _, opt := range opts {
		opt(c)
	}

	logger.Debug("Initialized backend client",
		"base_url", cfg.Backend.BaseURL,
		"parse_resume_url", c.parseResume.op.URL,
		"generate_questions_url", c.generateQuestions.op.URL,
		"evaluate_answer_url", c.evaluateAnswer.op.URL)

	return c
}

// ParseResume uploads a resume file as multipart field "file"
func (c *Client) ParseResume(ctx context.Context, input types.ParseResumeInput) (types.ParseResumeOutput, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(input.FileName))
	if err != nil {
		return types.ParseResumeOutput{}, appErrors.NewInternalError(c.parseResume.errCode, ParseResumeFailedMessage, err)
	}
	if _, err := part.Write(input.Content); err != nil {
		return types.ParseResumeOutput{}, appErrors.NewInternalError(c.parseResume.errCode, ParseResumeFailedMessage, err)
	}
	if err := mw.Close(); err != nil {
		return types.ParseResumeOutput{}, appErrors.NewInternalError(c.parseResume.errCode, ParseResumeFailedMessage, err)
	}

	return executeOperation[types.ParseResumeOutput](c, ctx, c.parseResume, mw.FormDataContentType(), buf.Bytes(),
		attribute.String("resume.file_name", filepath.Base(input.FileName)),
		attribute.Int("resume.size_bytes", len(input.Content)),
	)
}

// GenerateQuestions requests a question list and drops empty entries.
// An empty result is reported as a failure.
func (c *Client) GenerateQuestions(ctx context.Context, input types.GenerateQuestionsInput) ([]types.QuestionRecord, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, appErrors.NewInternalError(c.generateQuestions.errCode, GenerateQuestionsFailedMessage, err)
	}

	out, err := executeOperation[types.GenerateQuestionsOutput](c, ctx, c.generateQuestions, "application/json", body,
		attribute.String("interview.domain", input.Domain),
		attribute.String("interview.role", input.Role),
		attribute.Int("interview.n_questions", input.NQuestions),
		attribute.Bool("interview.has_resume", input.ResumeToken != nil),
	)
	if err != nil {
		return nil, err
	}

	questions := make([]types.QuestionRecord, 0, len(out.Questions))
	for _, q := range out.Questions {
		if q == nil || strings.TrimSpace(q.Question) == "" {
			continue
		}
		questions = append(questions, *q)
	}

	if len(questions) == 0 {
		return nil, appErrors.NewBackendError(appErrors.ErrCodeNoQuestions, GenerateQuestionsFailedMessage,
			fmt.Errorf("no questions returned"))
	}

	return questions, nil
}

// EvaluateAnswer submits an answer and returns the evaluation exactly as the backend produced it
func (c *Client) EvaluateAnswer(ctx context.Context, input types.EvaluateAnswerInput) (scoring.RawEvaluation, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return scoring.RawEvaluation{}, appErrors.NewInternalError(c.evaluateAnswer.errCode, EvaluateAnswerFailedMessage, err)
	}

	out, err := executeOperation[types.EvaluateAnswerOutput](c, ctx, c.evaluateAnswer, "application/json", body,
		attribute.String("interview.question_type", input.QuestionType),
		attribute.String("interview.level", input.Level),
		attribute.Int("interview.answer_length", len(input.Answer)),
	)
	if err != nil {
		return scoring.RawEvaluation{}, err
	}

	return out.Evaluation, nil
}

// CircuitBreakerStats returns circuit breaker statistics for every endpoint
func (c *Client) CircuitBreakerStats() map[string]any {
	stats := map[string]any{
		c.parseResume.op.Name:       c.parseResume.breaker.GetStats(),
		c.generateQuestions.op.Name: c.generateQuestions.breaker.GetStats(),
		c.evaluateAnswer.op.Name:    c.evaluateAnswer.breaker.GetStats(),
	}

	stats["overall_healthy"] = c.parseResume.breaker.IsHealthy() &&
		c.generateQuestions.breaker.IsHealthy() &&
		c.evaluateAnswer.breaker.IsHealthy()

	return stats
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// executeOperation runs one backend call with tracing, circuit breaker, retries and decoding
func executeOperation[Out any](
	c *Client,
	ctx context.Context,
	ep *endpoint,
	contentType string,
	body []byte,
	spanAttributes ...attribute.KeyValue,
) (Out, error) {
	var output Out
	tracer := otel.Tracer("aceinterview.backend")
	ctx, span := tracer.Start(ctx, "backend."+ep.op.Name)
	defer span.End()

	span.SetAttributes(
		attribute.String("backend.url", ep.op.URL),
		attribute.Int("backend.max_retries", ep.op.MaxRetries),
	)
	span.SetAttributes(spanAttributes...)

	start := time.Now()
	data, err := ep.breaker.Execute(func() ([]byte, error) {
		return c.executeWithRetry(ctx, ep, func() ([]byte, error) {
			return c.send(ctx, ep, contentType, body)
		})
	})

	if err == nil {
		if decodeErr := json.Unmarshal(data, &output); decodeErr != nil {
			err = appErrors.NewBackendError(appErrors.ErrCodeBackendResponse, ep.userMessage, decodeErr).
				WithContext("operation", ep.op.Name)
		}
	} else {
		err = wrapOperationError(ep, err)
	}

	if c.observer != nil {
		c.observer.ObserveBackendOperation(ctx, ep.op.Name, time.Since(start), err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		c.logger.LogError(err, "Backend operation failed", "operation", ep.op.Name)
		return output, err
	}

	span.SetAttributes(attribute.Bool("success", true))
	return output, nil
}

// send performs a single POST bounded by the operation timeout
func (c *Client) send(ctx context.Context, ep *endpoint, contentType string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, ep.op.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.op.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	return data, nil
}

// executeWithRetry executes a backend call with retry logic and exponential backoff
func (c *Client) executeWithRetry(ctx context.Context, ep *endpoint, fn func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	maxRetries := ep.op.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying backend operation",
				"operation", ep.op.Name,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			// Exponential backoff with jitter
			baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			jitterMax := big.NewInt(int64(float64(baseDelay) * 0.1))
			jitterBig, _ := rand.Int(rand.Reader, jitterMax)
			jitter := time.Duration(jitterBig.Int64())
			backoff := min(baseDelay+jitter, 30*time.Second)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Backend operation succeeded after retry",
					"operation", ep.op.Name,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			c.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", ep.op.Name,
				"error", err.Error())
			break
		}
	}

	return nil, lastErr
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Timeouts, refused connections and resets
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}

// wrapOperationError classifies a transport failure while keeping the step's single user message
func wrapOperationError(ep *endpoint, err error) error {
	var appErr *appErrors.AppError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		appErr = appErrors.NewBackendError(appErrors.ErrCodeBackendOpen, ep.userMessage, err)
	case errors.Is(err, context.DeadlineExceeded):
		appErr = appErrors.NewNetworkError(appErrors.ErrCodeNetworkTimeout, ep.userMessage, err)
	default:
		var statusErr *HTTPStatusError
		var netErr net.Error
		switch {
		case errors.As(err, &statusErr):
			appErr = appErrors.NewBackendError(appErrors.ErrCodeBackendStatus, ep.userMessage, err).
				WithContext("status_code", statusErr.StatusCode)
		case errors.As(err, &netErr):
			appErr = appErrors.NewNetworkError(appErrors.ErrCodeBackendFailed, ep.userMessage, err)
		default:
			appErr = appErrors.NewBackendError(ep.errCode, ep.userMessage, err)
		}
	}
	return appErr.WithContext("operation", ep.op.Name)
}

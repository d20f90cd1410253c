package communication

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/logger"
	"github.com/iln-nexus/iln/pkg/resilience"
	"github.com/iln-nexus/iln/pkg/telemetry"
)

// maxErrorBody caps how much of a failed response is quoted in the error
const maxErrorBody = 512

// ProClient executes gated levels on the remote Pro service
type ProClient struct {
	endpoint    string
	apiKey      string
	httpClient  *http.Client
	options     *ClientOptions
	logger      logger.Logger
	retry       *resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	invalidator Invalidator
}

// Invalidator forgets a cached entitlement answer. *RemoteEntitlement
// implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, level core.Level) error
}

// ProClientOption configures the client
type ProClientOption func(*ProClient)

// WithHTTPClient replaces the traced default client
func WithHTTPClient(c *http.Client) ProClientOption {
	return func(p *ProClient) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithTimeout bounds each remote call
func WithTimeout(d time.Duration) ProClientOption {
	return func(p *ProClient) {
		if d > 0 {
			p.options.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ProClientOption {
	return func(p *ProClient) {
		if ua != "" {
			p.options.UserAgent = ua
		}
	}
}

// WithHeader adds a static header to every request
func WithHeader(key, value string) ProClientOption {
	return func(p *ProClient) {
		p.options.Headers[key] = value
	}
}

// WithClientLogger sets the logger
func WithClientLogger(log logger.Logger) ProClientOption {
	return func(p *ProClient) {
		if log != nil {
			p.logger = log
		}
	}
}

// WithRetry sets the retry policy. nil disables retries.
func WithRetry(cfg *resilience.RetryConfig) ProClientOption {
	return func(p *ProClient) {
		if cfg == nil {
			cfg = &resilience.RetryConfig{MaxAttempts: 1}
		}
		p.retry = cfg
	}
}

// WithCircuitBreaker guards remote calls with cb
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ProClientOption {
	return func(p *ProClient) {
		p.breaker = cb
	}
}

// WithInvalidator is told when the service rejects the API key, so a
// cached grant is not trusted again.
func WithInvalidator(inv Invalidator) ProClientOption {
	return func(p *ProClient) {
		p.invalidator = inv
	}
}

// NewProClient creates a client for endpoint authenticated with apiKey
func NewProClient(endpoint, apiKey string, opts ...ProClientOption) (*ProClient, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("%w: pro endpoint", core.ErrMissingConfiguration)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: pro api key", core.ErrMissingConfiguration)
	}

	p := &ProClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		options:  DefaultClientOptions(),
		logger:   logger.NoOpLogger{},
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.httpClient == nil {
		p.httpClient = telemetry.NewTracedHTTPClient(nil, 0)
	}
	if p.breaker == nil {
		cb, err := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
			Name:             "iln-pro",
			FailureThreshold: 5,
			SleepWindow:      30 * time.Second,
			Logger:           p.logger,
		})
		if err != nil {
			return nil, err
		}
		p.breaker = cb
	}
	return p, nil
}

// Endpoint returns the base URL
func (p *ProClient) Endpoint() string {
	return p.endpoint
}

// Breaker exposes the circuit breaker guarding the client
func (p *ProClient) Breaker() *resilience.CircuitBreaker {
	return p.breaker
}

// Execute posts req to {endpoint}/execute. Connection faults and timeouts
// come back as transport errors and are retried; a non-200 status or a
// response with success=false is a remote error and is not.
func (p *ProClient) Execute(ctx context.Context, req core.Request) (*RemoteResponse, error) {
	tracer := otel.Tracer("iln.communication")
	ctx, span := tracer.Start(ctx, "ProClient.Execute",
		trace.WithAttributes(
			attribute.Int("level", int(req.Level)),
			attribute.String("backend", req.Backend),
			attribute.Int("text.length", len(req.Text)),
		),
	)
	defer span.End()

	payload, err := json.Marshal(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to encode request")
		return nil, core.ValidationError("pro.Execute", "failed to encode request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.options.Timeout)
	defer cancel()

	p.logger.Info("Calling pro service", telemetry.EnrichLogFields(ctx, map[string]interface{}{
		"endpoint": p.endpoint,
		"level":    int(req.Level),
		"timeout":  p.options.Timeout.String(),
	}))

	var out *RemoteResponse
	attempts := 0
	err = resilience.RetryWithCircuitBreaker(ctx, p.retry, p.breaker, func() error {
		attempts++
		if attempts > 1 {
			p.logger.Debug("Retrying pro call", map[string]interface{}{
				"endpoint": p.endpoint,
				"attempt":  attempts,
			})
		}
		resp, err := p.do(ctx, payload)
		if err != nil {
			span.RecordError(err)
			return err
		}
		out = resp
		return nil
	})
	span.SetAttributes(attribute.Int("retry.attempts", attempts))

	if err != nil {
		if core.KindOf(err) == core.KindInternal && errors.Is(err, context.DeadlineExceeded) {
			err = transportError(err)
		}
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("Pro call failed", telemetry.EnrichLogFields(ctx, map[string]interface{}{
			"endpoint": p.endpoint,
			"attempts": attempts,
			"error":    err,
		}))
		if p.invalidator != nil && isAuthRejection(err) {
			if ierr := p.invalidator.Invalidate(context.WithoutCancel(ctx), req.Level); ierr != nil {
				p.logger.Warn("Failed to invalidate entitlement", map[string]interface{}{
					"level": int(req.Level),
					"error": ierr,
				})
			}
		}
		return nil, err
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "remote execution reported failure"
		}
		span.SetStatus(codes.Error, msg)
		return out, &core.Error{Op: "pro.Execute", Kind: core.KindRemote, Message: msg, Err: core.ErrRemote}
	}

	span.SetStatus(codes.Ok, "Pro call successful")
	return out, nil
}

func (p *ProClient) do(ctx context.Context, payload []byte) (*RemoteResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewError("pro.Execute", core.KindValidation, fmt.Errorf("%w: %v", core.ErrValidation, err))
	}
	p.setHeaders(ctx, httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		quoted := strings.TrimSpace(string(body))
		if len(quoted) > maxErrorBody {
			quoted = quoted[:maxErrorBody] + "..."
		}
		return nil, &core.Error{
			Op:      "pro.Execute",
			Kind:    core.KindRemote,
			ID:      statusID(resp.StatusCode),
			Message: fmt.Sprintf("API error %d: %s", resp.StatusCode, quoted),
			Err:     core.ErrRemote,
		}
	}

	var out RemoteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &core.Error{
			Op:      "pro.Execute",
			Kind:    core.KindRemote,
			Message: fmt.Sprintf("invalid response from pro service: %v", err),
			Err:     core.ErrRemote,
		}
	}
	if out.AnnotationsUsed == nil {
		out.AnnotationsUsed = []string{}
	}
	return &out, nil
}

func (p *ProClient) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.options.UserAgent)
	for k, v := range p.options.Headers {
		req.Header.Set(k, v)
	}

	telemetry.InjectCorrelationHeaders(ctx, req.Header)
	if req.Header.Get(telemetry.HeaderRequestID) == "" {
		req.Header.Set(telemetry.HeaderRequestID, uuid.New().String())
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

func isAuthRejection(err error) bool {
	var cerr *core.Error
	if !errors.As(err, &cerr) {
		return false
	}
	return cerr.ID == statusID(http.StatusUnauthorized) || cerr.ID == statusID(http.StatusForbidden)
}

func statusID(code int) string {
	return fmt.Sprintf("status-%d", code)
}

func transportError(err error) error {
	return &core.Error{
		Op:   "pro.Execute",
		Kind: core.KindTransport,
		Err:  fmt.Errorf("%w: %v", core.ErrTransport, err),
	}
}

package communication

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/logger"
	"github.com/iln-nexus/iln/pkg/memory"
	"github.com/iln-nexus/iln/pkg/telemetry"
)

// StaticEntitlement answers from configuration alone
type StaticEntitlement struct {
	entitled bool
}

// NewStaticEntitlement grants gated levels when an API key is configured
func NewStaticEntitlement(apiKey string) StaticEntitlement {
	return StaticEntitlement{entitled: strings.TrimSpace(apiKey) != ""}
}

// AllowAll grants every level
func AllowAll() StaticEntitlement { return StaticEntitlement{entitled: true} }

// DenyAll refuses every gated level
func DenyAll() StaticEntitlement { return StaticEntitlement{} }

// IsEntitled implements Entitler
func (s StaticEntitlement) IsEntitled(context.Context, core.Level) (bool, error) {
	return s.entitled, nil
}

// Default values for RemoteEntitlement
const (
	DefaultEntitlementTimeout  = 2 * time.Second
	DefaultEntitlementCacheTTL = 5 * time.Minute
)

// RemoteEntitlement asks the Pro service and caches answers in a
// memory.Memory, so several processes can share one Redis cache.
type RemoteEntitlement struct {
	endpoint   string
	apiKey     string
	keyDigest  string
	httpClient *http.Client
	cache      memory.Memory
	ttl        time.Duration
	timeout    time.Duration
	logger     logger.Logger
}

// RemoteEntitlementOption configures RemoteEntitlement
type RemoteEntitlementOption func(*RemoteEntitlement)

// WithEntitlementCache sets the answer cache. nil disables caching.
func WithEntitlementCache(m memory.Memory, ttl time.Duration) RemoteEntitlementOption {
	return func(r *RemoteEntitlement) {
		r.cache = m
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithEntitlementTimeout bounds the remote check
func WithEntitlementTimeout(d time.Duration) RemoteEntitlementOption {
	return func(r *RemoteEntitlement) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithEntitlementHTTPClient replaces the traced default client
func WithEntitlementHTTPClient(c *http.Client) RemoteEntitlementOption {
	return func(r *RemoteEntitlement) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithEntitlementLogger sets the logger
func WithEntitlementLogger(log logger.Logger) RemoteEntitlementOption {
	return func(r *RemoteEntitlement) {
		if log != nil {
			r.logger = log
		}
	}
}

// NewRemoteEntitlement creates a checker against endpoint. Without an API
// key nothing is asked and every gated level is refused.
func NewRemoteEntitlement(endpoint, apiKey string, opts ...RemoteEntitlementOption) (*RemoteEntitlement, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("%w: entitlement endpoint", core.ErrMissingConfiguration)
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("%w: entitlement endpoint: %v", core.ErrInvalidConfiguration, err)
	}

	sum := sha256.Sum256([]byte(apiKey))
	r := &RemoteEntitlement{
		endpoint:  endpoint,
		apiKey:    apiKey,
		keyDigest: hex.EncodeToString(sum[:8]),
		cache:     memory.NewInMemoryStore(),
		ttl:       DefaultEntitlementCacheTTL,
		timeout:   DefaultEntitlementTimeout,
		logger:    logger.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = telemetry.NewTracedHTTPClient(nil, 0)
	}
	return r, nil
}

type entitlementResponse struct {
	Entitled bool `json:"entitled"`
}

// IsEntitled implements Entitler. 401 and 403 are definite refusals and
// are cached like any other answer.
func (r *RemoteEntitlement) IsEntitled(ctx context.Context, level core.Level) (bool, error) {
	if strings.TrimSpace(r.apiKey) == "" {
		return false, nil
	}

	tracer := otel.Tracer("iln.communication")
	ctx, span := tracer.Start(ctx, "RemoteEntitlement.IsEntitled",
		trace.WithAttributes(attribute.Int("level", int(level))),
	)
	defer span.End()

	key := r.cacheKey(level)
	if r.cache != nil {
		if v, err := r.cache.Get(ctx, key); err == nil {
			if entitled, ok := v.(bool); ok {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				span.SetStatus(codes.Ok, "Cached answer")
				return entitled, nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entitled, err := r.fetch(ctx, level)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("Entitlement check failed", telemetry.EnrichLogFields(ctx, map[string]interface{}{
			"level": int(level),
			"error": err,
		}))
		return false, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, entitled, r.ttl); err != nil {
			r.logger.Warn("Failed to cache entitlement", map[string]interface{}{
				"level": int(level),
				"error": err,
			})
		}
	}
	span.SetAttributes(attribute.Bool("entitled", entitled))
	span.SetStatus(codes.Ok, "Entitlement checked")
	return entitled, nil
}

func (r *RemoteEntitlement) fetch(ctx context.Context, level core.Level) (bool, error) {
	u := r.endpoint + "/entitlements?level=" + strconv.Itoa(int(level))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, core.NewError("entitlement.Check", core.KindValidation, fmt.Errorf("%w: %v", core.ErrValidation, err))
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")
	telemetry.InjectCorrelationHeaders(ctx, req.Header)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, &core.Error{Op: "entitlement.Check", Kind: core.KindTransport, Err: fmt.Errorf("%w: %v", core.ErrTransport, err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return false, &core.Error{
			Op:      "entitlement.Check",
			Kind:    core.KindRemote,
			Message: fmt.Sprintf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Err:     core.ErrRemote,
		}
	}

	var out entitlementResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, &core.Error{
			Op:      "entitlement.Check",
			Kind:    core.KindRemote,
			Message: fmt.Sprintf("invalid entitlement response: %v", err),
			Err:     core.ErrRemote,
		}
	}
	return out.Entitled, nil
}

// Invalidate drops the cached answer for level, so the next check asks
// the service again.
func (r *RemoteEntitlement) Invalidate(ctx context.Context, level core.Level) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Delete(ctx, r.cacheKey(level)); err != nil {
		return fmt.Errorf("invalidating level %d entitlement: %w", int(level), err)
	}
	r.logger.Debug("Entitlement cache invalidated", map[string]interface{}{"level": int(level)})
	return nil
}

func (r *RemoteEntitlement) cacheKey(level core.Level) string {
	return fmt.Sprintf("entitlement:%s:%d", r.keyDigest, int(level))
}

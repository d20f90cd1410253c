package communication

import (
	"context"
	"time"

	"github.com/iln-nexus/iln/pkg/core"
)

// Entitler answers whether the caller may run a gated level. It is
// queried once per gated call, before any other work.
type Entitler interface {
	IsEntitled(ctx context.Context, level core.Level) (bool, error)
}

// EntitlerFunc adapts a function to Entitler
type EntitlerFunc func(ctx context.Context, level core.Level) (bool, error)

// IsEntitled calls f
func (f EntitlerFunc) IsEntitled(ctx context.Context, level core.Level) (bool, error) {
	return f(ctx, level)
}

// RemoteExecutor runs a request on the remote Pro service
type RemoteExecutor interface {
	Execute(ctx context.Context, req core.Request) (*RemoteResponse, error)
}

// RemoteResponse is the body returned by the remote execute endpoint
type RemoteResponse struct {
	Success         bool                   `json:"success"`
	Result          interface{}            `json:"result,omitempty"`
	AnnotationsUsed []string               `json:"annotations_used"`
	BackendUsed     string                 `json:"backend_used,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// ClientOptions contains optional parameters for remote calls
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

// DefaultTimeout bounds each remote call
const DefaultTimeout = 30 * time.Second

// DefaultClientOptions returns default client options
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Timeout:   DefaultTimeout,
		UserAgent: "ILN-Client/dev",
		Headers:   make(map[string]string),
	}
}

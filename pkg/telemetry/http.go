package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTracedHTTPClient returns a client whose transport records a client
// span per request and propagates trace context. A nil base uses
// http.DefaultTransport. timeout of zero leaves the client unbounded.
func NewTracedHTTPClient(base http.RoundTripper, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(base,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "ILN " + r.Method + " " + r.URL.Path
			}),
		),
		Timeout: timeout,
	}
}

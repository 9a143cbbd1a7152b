package ai

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-orchestrator/pkg/textx"
)

// maxErrorBody bounds how much of a failed upstream response is kept.
const maxErrorBody = 512

// NewHTTPClient builds an outbound client with an otelhttp transport so every
// provider call shows up as a span. A zero timeout leaves the client unbounded
// and relies on the caller's context.
func NewHTTPClient(component string, timeout time.Duration) *http.Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("%s %s %s", component, r.Method, r.URL.Path)
		}),
	)
	return &http.Client{Timeout: timeout, Transport: transport}
}

// ReadErrorBody returns a short, single-line snippet of an error response body.
func ReadErrorBody(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody*2))
	return textx.Snippet(string(b), maxErrorBody)
}

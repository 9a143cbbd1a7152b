// Package health probes backend health endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// DefaultTimeout is the hard per-probe timeout.
const DefaultTimeout = 5 * time.Second

// maxBody bounds how much of a health response is inspected for version info.
const maxBody = 64 << 10

// Checker implements domain.HealthChecker over HTTP GET.
type Checker struct {
	hc      *http.Client
	timeout time.Duration
	now     func() time.Time
}

// NewChecker builds a checker. A nil client gets the otelhttp-instrumented default.
func NewChecker(timeout time.Duration, hc *http.Client) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if hc == nil {
		hc = ai.NewHTTPClient("health", 0)
	}
	return &Checker{hc: hc, timeout: timeout, now: time.Now}
}

// CheckService probes svc once and returns its updated status. Failures are
// reported in the status, never as an error.
func (c *Checker) CheckService(ctx context.Context, svc domain.AIServiceStatus) (out domain.AIServiceStatus) {
	out = svc
	out.Error = ""
	out.Version = ""
	out.Latency = 0

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	defer func() {
		t := c.now()
		out.LastChecked = &t
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(svc.URL, svc.HealthPath), nil)
	if err != nil {
		out.Status = domain.ServiceError
		out.Error = fmt.Sprintf("invalid health url: %v", err)
		return out
	}
	req.Header.Set("Accept", "application/json, */*")

	resp, err := c.hc.Do(req)
	if err != nil {
		out.Status = domain.ServiceOffline
		out.Error = describe(err)
		return out
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		out.Status = domain.ServiceError
		out.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return out
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil && (domain.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		out.Status = domain.ServiceOffline
		out.Error = "timeout"
		return out
	}
	out.Status = domain.ServiceOnline
	out.Latency = c.now().Sub(start)
	out.Version = versionFrom(resp.Header.Get("Content-Type"), body)
	return out
}

func healthURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return base
	}
	return base + "/" + path
}

// describe turns a transport failure into the status error text.
func describe(err error) string {
	if domain.IsTimeout(err) {
		return "timeout"
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}

// versionFrom extracts "version" or "commit" from a JSON body. The declared
// content type is trusted first; otherwise the body is sniffed.
func versionFrom(contentType string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	isJSON := false
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json")) {
		isJSON = true
	} else if mimetype.Detect(body).Is("application/json") {
		isJSON = true
	}
	if !isJSON {
		return ""
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, k := range []string{"version", "commit"} {
		switch v := doc[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

package netutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const probeUserAgent = "Wayfinder/1.0"

// ProbeFunc executes a reachability probe against a target URL, returning
// the observed request latency. Injectable so tests and the registry's
// health monitor can swap the transport.
type ProbeFunc func(ctx context.Context, target string) (time.Duration, error)

// HTTPProbe performs an HTTP GET against target and reports success when a
// 2xx/3xx status arrives before ctx expires. The returned latency covers
// the full request/response exchange. The body is drained and discarded so
// keep-alive connections can be reused.
func HTTPProbe(client *http.Client, ctx context.Context, target string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", target, err)
	}
	req.Header.Set("User-Agent", probeUserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	latency := time.Since(start)
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return latency, nil
	}
	return latency, fmt.Errorf("probe %s: unexpected status %d", target, resp.StatusCode)
}

// NewProbeClient builds the shared HTTP client used for health probes.
// Redirects are followed (a 3xx chain still counts as reachable); per-probe
// deadlines come from the caller's context, not a client-wide timeout.
func NewProbeClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// StdProbe adapts HTTPProbe with its own client into a ProbeFunc.
func StdProbe() ProbeFunc {
	client := NewProbeClient()
	return func(ctx context.Context, target string) (time.Duration, error) {
		return HTTPProbe(client, ctx, target)
	}
}

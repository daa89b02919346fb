// Package client provides the upstream HTTP client for the Telegram hosts.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"tgme-proxy-go/internal/config"
	"tgme-proxy-go/internal/metrics"
	"tgme-proxy-go/internal/model"
)

// skippedRequestHeaders are never copied onto the outbound request. Cookies
// are re-added from the parsed jar; the transport negotiates its own encoding.
var skippedRequestHeaders = map[string]bool{
	"Host":                true,
	"Accept-Encoding":     true,
	"Cookie":              true,
	"Content-Length":      true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// UpstreamClient sends requests to the allowlisted upstream hosts.
type UpstreamClient struct {
	httpClient *http.Client
	maxBody    int64
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// Redirects are handed back to the caller instead of being followed.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*UpstreamClient, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext:         dialer.DialContext,
	}

	if cfg.Upstream.SOCKS5Proxy != "" {
		socksDialer, err := proxy.SOCKS5("tcp", cfg.Upstream.SOCKS5Proxy, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("create socks5 dialer: %w", err)
		}
		transport.DialContext = dialContextFromDialer(socksDialer)
		transport.Proxy = nil
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBody: cfg.Upstream.MaxBodyBytes,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}, nil
}

// Fetch performs one upstream call and reads the whole response body.
// Transport failures are reported as model.ErrUpstreamTransport, bodies over
// the configured limit as model.ErrUpstreamTooLarge.
func (c *UpstreamClient) Fetch(ctx context.Context, ur *model.UpstreamRequest) (*model.UpstreamResponse, error) {
	var body io.Reader = http.NoBody
	if len(ur.Body) > 0 {
		body = bytes.NewReader(ur.Body)
	}

	req, err := http.NewRequestWithContext(ctx, ur.Method, ur.URL, body)
	if err != nil {
		return nil, model.NewError(model.ErrUnexpected, "build upstream request", err)
	}
	for key, vals := range ur.Header {
		if skippedRequestHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}
	for _, ck := range ur.Cookies {
		req.AddCookie(ck)
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Hostname(),
		"path", req.URL.Path,
	)

	method := metrics.NormalizeMethod(req.Method)
	host := metrics.NormalizeHost(req.URL.Hostname())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method, host).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, model.NewError(model.ErrUpstreamTransport, req.URL.Hostname(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, host, strconv.Itoa(resp.StatusCode)).Inc()
	}

	data, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	return &model.UpstreamResponse{
		URL:        req.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *UpstreamClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, model.NewError(model.ErrUpstreamTransport, "read upstream body", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, model.NewError(model.ErrUpstreamTransport, "read upstream body", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, model.NewError(model.ErrUpstreamTooLarge,
			fmt.Sprintf("upstream body exceeds %d bytes", c.maxBody), nil)
	}
	return data, nil
}

func dialContextFromDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if ctxDialer, ok := d.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.Dial(network, addr)
		if err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		default:
			return conn, nil
		}
	}
}

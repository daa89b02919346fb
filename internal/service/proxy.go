// Package service implements the proxy pipeline: resolve, validate, fetch,
// rewrite and assemble.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"tgme-proxy-go/internal/allowlist"
	"tgme-proxy-go/internal/codec"
	"tgme-proxy-go/internal/config"
	"tgme-proxy-go/internal/metrics"
	"tgme-proxy-go/internal/model"
	"tgme-proxy-go/internal/rewrite"
)

const channelURLPrefix = "https://t.me/s/"

// Fetcher performs a single upstream call.
type Fetcher interface {
	Fetch(ctx context.Context, req *model.UpstreamRequest) (*model.UpstreamResponse, error)
}

// ProxyService runs the proxy pipeline for one request at a time. It holds no
// per-request state and is safe for concurrent use.
type ProxyService struct {
	fetcher   Fetcher
	codec     *codec.Codec
	validator *allowlist.Validator
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(f Fetcher, c *codec.Codec, v *allowlist.Validator, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		fetcher:   f,
		codec:     c,
		validator: v,
		cfg:       cfg,
		logger:    logger.With("component", "proxy_service"),
		metrics:   m,
	}
}

// ChannelURL is the upstream page of the configured channel.
func (s *ProxyService) ChannelURL() string {
	return channelURLPrefix + s.cfg.Proxy.ChannelName
}

// IsInternalHost reports whether host may be addressed directly by path.
func (s *ProxyService) IsInternalHost(host string) bool {
	return s.validator.Allowed(host, true)
}

// Encode mints an opaque token for rawURL.
func (s *ProxyService) Encode(rawURL string) (string, error) {
	return s.codec.Encode(rawURL)
}

// Resolve turns the inbound token into an upstream target. Internal requests
// carry the plain URL and skip decoding.
func (s *ProxyService) Resolve(pr *model.ProxyRequest) (*model.ProxyTarget, error) {
	if pr.Internal {
		return &model.ProxyTarget{RawToken: pr.Token, DecodedURL: pr.Token, IsInternal: true}, nil
	}
	decoded, err := s.codec.Decode(pr.Token)
	if err != nil {
		return nil, model.NewError(model.ErrDecode, "", err)
	}
	return &model.ProxyTarget{RawToken: pr.Token, DecodedURL: decoded}, nil
}

// Proxy runs the whole pipeline. Either a complete response or an error is
// returned; nothing is fetched when resolution or validation fails.
func (s *ProxyService) Proxy(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	resp, err := s.proxy(pr)
	if err != nil {
		s.reject(err)
		return nil, err
	}
	return resp, nil
}

func (s *ProxyService) proxy(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.Resolve(pr)
	if err != nil {
		return nil, err
	}

	checked, err := s.validator.Check(target.DecodedURL, target.IsInternal)
	if err != nil {
		return nil, err
	}

	upstreamURL, err := mergeQuery(checked, pr.Query)
	if err != nil {
		return nil, model.NewError(model.ErrValidation, checked, err)
	}

	s.logger.Debug("proxying",
		"method", pr.Method,
		"url", upstreamURL,
		"internal", target.IsInternal,
	)

	up, err := s.fetcher.Fetch(pr.Ctx, &model.UpstreamRequest{
		Method:  pr.Method,
		URL:     upstreamURL,
		Header:  pr.Header,
		Body:    pr.Body,
		Cookies: pr.Cookies,
	})
	if err != nil {
		return nil, err
	}

	fetched := upstreamURL
	if up.URL != nil {
		fetched = up.URL.String()
	}
	rc := model.NewRewriteContext(pr.ProxyBase, s.cfg.Proxy.ChannelName, fetched, pr.Query)

	body, err := rewrite.Content(up, rc)
	if err != nil {
		return nil, unexpected("rewrite body", err)
	}
	header := rewrite.Header(up.Header, rc)
	body, err = rewrite.Origin(body, rc)
	if err != nil {
		return nil, unexpected("rewrite origins", err)
	}

	if s.metrics != nil {
		s.metrics.RewritesTotal.WithLabelValues(body.Kind.String()).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: up.StatusCode,
		Header:     header,
		Body:       body.Bytes(),
	}, nil
}

// mergeQuery appends the inbound query to the target URL's own query.
func mergeQuery(raw string, query url.Values) (string, error) {
	if len(query) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vals := range query {
		for _, v := range vals {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func unexpected(detail string, err error) error {
	var me *model.Error
	if errors.As(err, &me) {
		return err
	}
	return model.NewError(model.ErrUnexpected, detail, err)
}

// rejectionReasons label RejectionsTotal in taxonomy order.
var rejectionReasons = []struct {
	kind   error
	reason string
}{
	{model.ErrDecode, "decode"},
	{model.ErrValidation, "validation"},
	{model.ErrForbiddenHost, "forbidden_host"},
	{model.ErrUpstreamTransport, "upstream_transport"},
	{model.ErrUpstreamTooLarge, "upstream_too_large"},
}

func (s *ProxyService) reject(err error) {
	reason := "unexpected"
	for _, r := range rejectionReasons {
		if errors.Is(err, r.kind) {
			reason = r.reason
			break
		}
	}
	if s.metrics != nil {
		s.metrics.RejectionsTotal.WithLabelValues(reason).Inc()
	}
	s.logger.Debug("request rejected", "reason", reason, "err", err)
}

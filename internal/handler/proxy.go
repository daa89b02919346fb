package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"tgme-proxy-go/internal/config"
	"tgme-proxy-go/internal/model"
	"tgme-proxy-go/internal/service"
)

// schemePathPattern matches a path that itself starts with an absolute URL,
// tolerating slashes collapsed by intermediaries.
var schemePathPattern = regexp.MustCompile(`^(https?):/+`)

// hiddenDetail replaces the error detail outside debug mode.
const hiddenDetail = "(hidden)"

// ProxyHandler feeds inbound requests through the proxy pipeline.
type ProxyHandler struct {
	service *service.ProxyService
	cfg     *config.Config
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Channel serves the configured channel page.
func (h *ProxyHandler) Channel(c echo.Context) error {
	return h.serve(c, h.service.ChannelURL(), true)
}

// Handle serves every other path. A path whose first segment is an allowed
// host, or which starts with an http(s) URL, is fetched as-is; anything else
// is an opaque token.
func (h *ProxyHandler) Handle(c echo.Context) error {
	path := strings.TrimPrefix(c.Request().URL.EscapedPath(), "/")

	if m := schemePathPattern.FindStringSubmatch(path); m != nil {
		return h.serve(c, m[1]+"://"+path[len(m[0]):], true)
	}

	first, _, _ := strings.Cut(path, "/")
	if h.service.IsInternalHost(first) {
		return h.serve(c, "https://"+path, true)
	}
	return h.serve(c, first, false)
}

func (h *ProxyHandler) serve(c echo.Context, token string, internal bool) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return h.mapError(c, model.NewError(model.ErrUnexpected, "read request body", err))
	}

	pr := &model.ProxyRequest{
		Ctx:       req.Context(),
		Token:     token,
		Internal:  internal,
		Method:    req.Method,
		Query:     req.URL.Query(),
		Header:    req.Header,
		Body:      body,
		Cookies:   req.Cookies(),
		ProxyBase: h.proxyBase(c),
	}

	resp, err := h.service.Proxy(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)

	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"path", req.URL.Path,
		)
	}
	return nil
}

// proxyBase is the configured public URL, or the scheme and host the client
// used to reach us.
func (h *ProxyHandler) proxyBase(c echo.Context) string {
	if h.cfg.Server.PublicURL != "" {
		return h.cfg.Server.PublicURL
	}
	return c.Scheme() + "://" + c.Request().Host + "/"
}

// errorStatuses maps error kinds to HTTP status codes, checked in order.
var errorStatuses = []struct {
	kind   error
	status int
}{
	{model.ErrDecode, http.StatusInternalServerError},
	{model.ErrValidation, http.StatusBadRequest},
	{model.ErrForbiddenHost, http.StatusForbidden},
	{model.ErrUpstreamTransport, http.StatusServiceUnavailable},
	{model.ErrUpstreamTooLarge, http.StatusBadGateway},
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	kind := model.ErrUnexpected
	for _, es := range errorStatuses {
		if errors.Is(err, es.kind) {
			status, kind = es.status, es.kind
			break
		}
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request().Context(), level, "proxy error",
		"err", err,
		"status", status,
		"path", c.Request().URL.Path,
	)

	detail := hiddenDetail
	if h.cfg.Server.Debug {
		detail = err.Error()
	}
	return c.JSON(status, map[string]string{
		"error":  kind.Error(),
		"detail": detail,
	})
}

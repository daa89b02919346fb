// Package rewrite implements the body and header rewriting rules that route
// every upstream reference back through the proxy.
package rewrite

import (
	"net/url"
	"regexp"
	"strings"

	"tgme-proxy-go/internal/model"
)

var (
	httpSchemePattern = regexp.MustCompile(`(?i)^https?://`)
	schemePattern     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

// StripScheme removes a leading http:// or https://.
func StripScheme(raw string) string {
	return httpSchemePattern.ReplaceAllString(raw, "")
}

// isStatic reports whether raw points at an asset served by the proxy itself.
func isStatic(raw string) bool {
	return raw == "static" || strings.HasPrefix(raw, "static/")
}

// proxify returns raw routed through the proxy as <base><host+path>. URLs
// already under the base and non-HTTP schemes (data:, javascript:, ...) are
// returned unchanged. Relative references are resolved against the upstream
// URL when it is known.
func proxify(rc model.RewriteContext, raw string) string {
	base := rc.ProxyBase
	switch {
	case base != "" && strings.HasPrefix(raw, base):
		return raw
	case strings.HasPrefix(raw, "//"):
		return base + StripScheme(raw[2:])
	case httpSchemePattern.MatchString(raw):
		return base + StripScheme(raw)
	case schemePattern.MatchString(raw), strings.HasPrefix(raw, "#"):
		return raw
	}
	if rc.UpstreamURL != "" {
		if up, err := url.Parse(rc.UpstreamURL); err == nil {
			if ref, err := url.Parse(raw); err == nil {
				return base + StripScheme(up.ResolveReference(ref).String())
			}
		}
	}
	return base + raw
}

// PackURL rewrites an embedded src/href/url() reference. Empty values and
// proxy-local static paths are left untouched.
func PackURL(rc model.RewriteContext, raw string) string {
	if raw == "" || isStatic(raw) {
		return raw
	}
	return proxify(rc, raw)
}

package rewrite

import (
	"net/http"
	"strings"

	"tgme-proxy-go/internal/model"
)

// droppedHeaders describe the upstream framing, which no longer applies once
// the body has been rewritten.
var droppedHeaders = map[string]bool{
	"Content-Encoding":  true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
}

// Header returns a copy of the upstream headers for the client, with framing
// headers dropped and Location routed back through the proxy. Keys are
// matched case-insensitively.
func Header(src http.Header, rc model.RewriteContext) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		ck := http.CanonicalHeaderKey(key)
		if droppedHeaders[ck] {
			continue
		}
		if ck == "Location" {
			for _, v := range vals {
				dst[ck] = append(dst[ck], Location(v, rc))
			}
			continue
		}
		dst[ck] = append(dst[ck], vals...)
	}
	return dst
}

// Location rewrites a redirect target to <proxyBase><host+path>. Targets that
// already point into the proxy are kept.
func Location(v string, rc model.RewriteContext) string {
	if v == "" || strings.HasPrefix(v, rc.ProxyBase+"http://") {
		return v
	}
	return proxify(rc, v)
}

// Package model defines shared types for the proxy pipeline.
package model

import (
	"context"
	"net/http"
	"net/url"
)

// ProxyRequest represents an inbound client request to be proxied upstream.
type ProxyRequest struct {
	Ctx context.Context
	// Token is the opaque path segment, or the plain upstream URL when Internal is set.
	Token    string
	Internal bool

	Method  string
	Query   url.Values
	Header  http.Header
	Body    []byte
	Cookies []*http.Cookie

	// ProxyBase is the proxy's own base URL, always ending in "/".
	ProxyBase string
}

// ProxyTarget is the resolved upstream destination of a ProxyRequest.
type ProxyTarget struct {
	RawToken   string
	DecodedURL string
	IsInternal bool
}

// UpstreamRequest is the outbound call issued by the fetcher.
type UpstreamRequest struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Cookies []*http.Cookie
}

// UpstreamResponse is the fully read upstream reply. It is not modified after
// the fetcher returns it.
type UpstreamResponse struct {
	URL        *url.URL
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the upstream Content-Type header and whether it was present.
func (r *UpstreamResponse) ContentType() (string, bool) {
	vals := r.Header.Values("Content-Type")
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// ProxyResponse is the assembled response emitted to the client.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RewriteContext carries the per-request values every rewrite stage reads.
type RewriteContext struct {
	ProxyBase string
	Channel   string
	// UpstreamURL is the fetched URL; relative references resolve against it.
	UpstreamURL string
	// WantsJSON is set when the inbound query carries a "before" or "after"
	// pagination cursor; the upstream then answers with HTML embedded in JSON.
	WantsJSON bool
}

// NewRewriteContext derives a RewriteContext from the inbound query.
func NewRewriteContext(proxyBase, channel, upstreamURL string, query url.Values) RewriteContext {
	return RewriteContext{
		ProxyBase:   proxyBase,
		Channel:     channel,
		UpstreamURL: upstreamURL,
		WantsJSON:   query.Has("before") || query.Has("after"),
	}
}

// BodyKind tags the variant held by a RewrittenBody.
type BodyKind int

const (
	BodyOpaque BodyKind = iota
	BodyHTML
	BodyCSS
	BodyJSON
)

func (k BodyKind) String() string {
	switch k {
	case BodyHTML:
		return "html"
	case BodyCSS:
		return "css"
	case BodyJSON:
		return "json"
	default:
		return "opaque"
	}
}

// RewrittenBody is the output of a rewrite strategy. Text holds the body for
// the HTML, CSS and JSON kinds; Raw holds it for BodyOpaque.
type RewrittenBody struct {
	Kind BodyKind
	Text string
	Raw  []byte
}

// Bytes returns the body as emitted to the client.
func (b RewrittenBody) Bytes() []byte {
	if b.Kind == BodyOpaque {
		return b.Raw
	}
	return []byte(b.Text)
}

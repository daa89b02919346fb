package rewrite

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"tgme-proxy-go/internal/model"
)

func TestHeader_DropsFraming(t *testing.T) {
	src := http.Header{
		"Content-Type":      {"text/html; charset=utf-8"},
		"content-length":    {"42"},
		"Content-Encoding":  {"gzip"},
		"Transfer-Encoding": {"chunked"},
		"CONNECTION":        {"keep-alive"},
		"Set-Cookie":        {"a=1", "b=2"},
		"Cache-Control":     {"no-cache"},
	}

	dst := Header(src, testContext(false))

	for _, key := range []string{"Content-Length", "Content-Encoding", "Transfer-Encoding", "Connection"} {
		assert.Empty(t, dst.Values(key), "%s should be dropped", key)
	}
	assert.Equal(t, "text/html; charset=utf-8", dst.Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, dst.Values("Set-Cookie"))
	assert.Equal(t, "no-cache", dst.Get("Cache-Control"))

	assert.Equal(t, []string{"42"}, src["content-length"], "source headers are not modified")
}

func TestHeader_Location(t *testing.T) {
	src := http.Header{"location": {"http://telegram.org/foo"}}
	dst := Header(src, testContext(false))
	assert.Equal(t, "https://proxy.example/telegram.org/foo", dst.Get("Location"))
}

func TestLocation(t *testing.T) {
	rc := model.RewriteContext{
		ProxyBase:   "https://proxy.example/",
		UpstreamURL: "https://telegram.org/a/b",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"http", "http://telegram.org/foo", "https://proxy.example/telegram.org/foo"},
		{"https", "https://t.me/s/durov", "https://proxy.example/t.me/s/durov"},
		{"protocol relative", "//cdn4.telegram-cdn.org/x", "https://proxy.example/cdn4.telegram-cdn.org/x"},
		{"root relative", "/foo?x=1", "https://proxy.example/telegram.org/foo?x=1"},
		{"relative", "c", "https://proxy.example/telegram.org/a/c"},
		{"already proxied http", "https://proxy.example/http://telegram.org/", "https://proxy.example/http://telegram.org/"},
		{"already proxied", "https://proxy.example/telegram.org/", "https://proxy.example/telegram.org/"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Location(tt.in, rc))
		})
	}
}

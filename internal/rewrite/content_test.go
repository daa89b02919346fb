package rewrite

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgme-proxy-go/internal/dom"
	"tgme-proxy-go/internal/model"
)

const testBase = "https://proxy.example/"

func testContext(wantsJSON bool) model.RewriteContext {
	return model.RewriteContext{
		ProxyBase:   testBase,
		Channel:     "durov",
		UpstreamURL: "https://t.me/s/durov",
		WantsJSON:   wantsJSON,
	}
}

func upstream(contentType, body string) *model.UpstreamResponse {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &model.UpstreamResponse{StatusCode: http.StatusOK, Header: h, Body: []byte(body)}
}

func TestMediaType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"text/html", "text/html"},
		{"text/html; charset=utf-8", "text/html"},
		{" Text/CSS ;charset=UTF-8", "text/css"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MediaType(tt.in), "MediaType(%q)", tt.in)
	}
}

func TestContent_Dispatch(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantsJSON   bool
		want        model.BodyKind
	}{
		{"missing content type", "", `"<p>x</p>"`, true, model.BodyOpaque},
		{"css", "text/css; charset=utf-8", "a{}", false, model.BodyCSS},
		{"css wins over cursor", "text/css", "a{}", true, model.BodyCSS},
		{"html", "text/html; charset=utf-8", "<p>x</p>", false, model.BodyHTML},
		{"html wins over cursor", "text/html", "<p>x</p>", true, model.BodyHTML},
		{"json with cursor", "application/json", `"<p>x</p>"`, true, model.BodyJSON},
		{"json without cursor", "application/json", `"<p>x</p>"`, false, model.BodyOpaque},
		{"image", "image/png", "\x89PNG", false, model.BodyOpaque},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Content(upstream(tt.contentType, tt.body), testContext(tt.wantsJSON))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestContent_OpaqueUnchanged(t *testing.T) {
	raw := "\x89PNG\r\n\x1a\n\x00\x01"
	got, err := Content(upstream("image/png", raw), testContext(false))
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), got.Bytes())
}

func TestContent_CSS(t *testing.T) {
	in := `.bg{background:url(/img/tgme/pattern.svg)}
@font-face{src:url('../fonts/Roboto.woff') format('woff'),url('../fonts/sub/Roboto-Bold.woff2')}
.keep{background:url('../img/x.png')}`

	got, err := Content(upstream("text/css", in), testContext(false))
	require.NoError(t, err)

	assert.Contains(t, got.Text, "url(static/images/pattern.svg)")
	assert.NotContains(t, got.Text, "/img/tgme/pattern.svg")
	assert.Contains(t, got.Text, "url('https://proxy.example/static/fonts/Roboto.woff')")
	assert.Contains(t, got.Text, "url('https://proxy.example/static/fonts/sub/Roboto-Bold.woff2')")
	assert.Contains(t, got.Text, "url('../img/x.png')")
}

func TestContent_HTML(t *testing.T) {
	in := `<html><head></head><body>` +
		`<canvas id="tgme_background" data-colors="1,2,3,4"></canvas>` +
		`<div class="tgme_widget_message_user">x</div>` +
		`<div class="tgme_widget_message_bubble tgme_widget_message_bubble_tail">t</div>` +
		`<div class="tgme_header_right_column">h</div>` +
		`<div class="tgme_widget_message_text">keep</div>` +
		`</body></html>`

	got, err := Content(upstream("text/html; charset=utf-8", in), testContext(false))
	require.NoError(t, err)
	require.Equal(t, model.BodyHTML, got.Kind)

	assert.Contains(t, got.Text, `<link href="static/css/style.css" rel="stylesheet"/>`)

	doc, err := dom.Parse(got.Text)
	require.NoError(t, err)

	link := doc.FindByTag("head").FindByTag("link")
	require.NotNil(t, link)
	href, _ := link.Attr("href")
	assert.Equal(t, "static/css/style.css", href)

	for _, cls := range htmlRemovedClasses {
		assert.Empty(t, doc.FindByClass(cls), "class %s should be removed", cls)
	}
	assert.Len(t, doc.FindByClass("tgme_widget_message_text"), 1)

	canvas := doc.FindByID("tgme_background")
	require.NotNil(t, canvas)
	colors, _ := canvas.Attr("data-colors")
	assert.Equal(t, "aba048,557ead,b0a971,5c8dc4", colors)
}

func TestContent_HTMLWithoutCanvas(t *testing.T) {
	in := `<html><head></head><body><div class="tgme_widget_message_user">x</div></body></html>`

	got, err := Content(upstream("text/html", in), testContext(false))
	require.NoError(t, err)
	assert.Contains(t, got.Text, `<link href="static/css/style.css" rel="stylesheet"/>`)
	assert.NotContains(t, got.Text, "tgme_widget_message_user")
}

func TestContent_JSONString(t *testing.T) {
	markup := `<div class="tgme_widget_message_wrap">` +
		`<div class="tgme_widget_message_user"><a href="https://t.me/durov">u</a></div>` +
		`<div class="tgme_widget_message_bubble_tail"></div>` +
		`<div class="tgme_widget_message_text">keep</div></div>`
	body, err := json.Marshal(markup)
	require.NoError(t, err)

	got, err := Content(upstream("application/json", string(body)), testContext(true))
	require.NoError(t, err)
	require.Equal(t, model.BodyJSON, got.Kind)

	var out string
	require.NoError(t, json.Unmarshal([]byte(got.Text), &out))
	assert.Equal(t, `<div class="tgme_widget_message_wrap"><div class="tgme_widget_message_text">keep</div></div>`, out)
}

func TestContent_JSONObject(t *testing.T) {
	body := `{"html":"<p class=\"tgme_widget_message_user\">u</p><p>k</p>","title":"a < b","id":12345678901234567890}`

	got, err := Content(upstream("application/json", body), testContext(true))
	require.NoError(t, err)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(got.Text), &out))
	assert.Equal(t, `"<p>k</p>"`, string(out["html"]))
	assert.Equal(t, `"a < b"`, string(out["title"]), "plain text is not parsed as markup")
	assert.Equal(t, `12345678901234567890`, string(out["id"]), "numbers keep full precision")
}

func TestContent_JSONInvalid(t *testing.T) {
	for _, body := range []string{"<html>not json</html>", `"a" "b"`, ""} {
		_, err := Content(upstream("text/plain", body), testContext(true))
		assert.Error(t, err, "body %q", body)
	}
}

func TestNewRewriteContext_WantsJSON(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"", false},
		{"q=1", false},
		{"before=10", true},
		{"after=123", true},
		{"after=", true},
		{"Before=10", false},
	}
	for _, tt := range tests {
		q, err := url.ParseQuery(tt.query)
		require.NoError(t, err)
		rc := model.NewRewriteContext(testBase, "durov", "", q)
		assert.Equal(t, tt.want, rc.WantsJSON, "query %q", tt.query)
	}
}

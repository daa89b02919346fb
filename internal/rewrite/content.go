package rewrite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"tgme-proxy-go/internal/dom"
	"tgme-proxy-go/internal/model"
)

const (
	stylesheetPath = "static/css/style.css"
	patternFrom    = "/img/tgme/pattern.svg"
	patternTo      = "static/images/pattern.svg"

	canvasID     = "tgme_background"
	canvasColors = "aba048,557ead,b0a971,5c8dc4"
)

// Elements with these classes only make sense inside the origin's chrome.
var (
	htmlRemovedClasses = []string{
		"tgme_widget_message_bubble_tail",
		"tgme_widget_message_user",
		"tgme_header_right_column",
	}
	jsonRemovedClasses = []string{
		"tgme_widget_message_bubble_tail",
		"tgme_widget_message_user",
	}
)

// fontURLPattern matches '../fonts/<rest>' in stylesheets.
var fontURLPattern = regexp.MustCompile(`'\.\.(/fonts/[^']*)'`)

// MediaType returns the lower-cased media type of a Content-Type value,
// without parameters.
func MediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// Content applies the rewrite strategy selected by the upstream content type.
func Content(resp *model.UpstreamResponse, rc model.RewriteContext) (model.RewrittenBody, error) {
	opaque := model.RewrittenBody{Kind: model.BodyOpaque, Raw: resp.Body}

	ct, ok := resp.ContentType()
	if !ok {
		return opaque, nil
	}

	switch mt := MediaType(ct); {
	case mt == "text/css":
		return model.RewrittenBody{Kind: model.BodyCSS, Text: CSS(string(resp.Body), rc)}, nil
	case mt == "text/html":
		out, err := HTML(string(resp.Body))
		if err != nil {
			return model.RewrittenBody{}, err
		}
		return model.RewrittenBody{Kind: model.BodyHTML, Text: out}, nil
	case rc.WantsJSON:
		out, err := JSON(resp.Body)
		if err != nil {
			return model.RewrittenBody{}, err
		}
		return model.RewrittenBody{Kind: model.BodyJSON, Text: out}, nil
	}
	return opaque, nil
}

// CSS points the background pattern and the web fonts at the proxy's assets.
func CSS(body string, rc model.RewriteContext) string {
	body = strings.ReplaceAll(body, patternFrom, patternTo)
	return fontURLPattern.ReplaceAllStringFunc(body, func(m string) string {
		rest := fontURLPattern.FindStringSubmatch(m)[1]
		return "'" + rc.ProxyBase + "static" + rest + "'"
	})
}

// HTML injects the proxy stylesheet, recolours the background canvas and
// drops the origin-only decorations.
func HTML(body string) (string, error) {
	doc, err := dom.Parse(body)
	if err != nil {
		return "", err
	}

	if head := doc.FindByTag("head"); head != nil {
		head.AppendChild(dom.NewElement("link", "href", stylesheetPath, "rel", "stylesheet"))
	}
	if canvas := doc.FindByID(canvasID); canvas != nil {
		canvas.SetAttr("data-colors", canvasColors)
	}
	doc.RemoveByClass(htmlRemovedClasses...)

	return doc.Render()
}

// JSON removes the origin-only decorations from the markup carried by a
// pagination payload. The payload is normally a single JSON string; for
// objects and arrays every markup-bearing string is processed.
func JSON(body []byte) (string, error) {
	payload, err := decodeJSON(body)
	if err != nil {
		return "", err
	}

	out, err := walkStrings(payload, true, func(s string, root bool) (string, error) {
		if !root && !looksLikeMarkup(s) {
			return s, nil
		}
		frag, err := dom.ParseFragment(s)
		if err != nil {
			return "", err
		}
		frag.RemoveByClass(jsonRemovedClasses...)
		return frag.Render()
	})
	if err != nil {
		return "", err
	}
	return encodeJSON(out)
}

func looksLikeMarkup(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode json payload: trailing data")
	}
	return v, nil
}

// encodeJSON serialises v compactly without escaping <, > and &, which the
// embedded markup is full of.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode json payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// walkStrings replaces every string in a decoded JSON value with fn's result.
// root is true only when v itself is the string.
func walkStrings(v any, root bool, fn func(s string, root bool) (string, error)) (any, error) {
	switch t := v.(type) {
	case string:
		return fn(t, root)
	case []any:
		for i, e := range t {
			out, err := walkStrings(e, false, fn)
			if err != nil {
				return nil, err
			}
			t[i] = out
		}
	case map[string]any:
		for k, e := range t {
			out, err := walkStrings(e, false, fn)
			if err != nil {
				return nil, err
			}
			t[k] = out
		}
	}
	return v, nil
}

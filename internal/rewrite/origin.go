package rewrite

import (
	"regexp"
	"strings"

	"tgme-proxy-go/internal/dom"
	"tgme-proxy-go/internal/model"
)

var (
	srcTags  = []string{"script", "img", "video"}
	hrefTags = []string{"link"}

	styleURLPattern = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)
	// strayWrapperPattern matches document wrappers that must not appear in a
	// markup fragment returned as JSON.
	strayWrapperPattern = regexp.MustCompile(`</?html>|</?body>`)
)

// Origin routes the resource references of an HTML or JSON body through the
// proxy. Other bodies are returned unchanged.
func Origin(body model.RewrittenBody, rc model.RewriteContext) (model.RewrittenBody, error) {
	switch body.Kind {
	case model.BodyHTML:
		out, err := originMarkup(body.Text, rc, false)
		if err != nil {
			return model.RewrittenBody{}, err
		}
		return model.RewrittenBody{Kind: model.BodyHTML, Text: out}, nil
	case model.BodyJSON:
		out, err := originJSON(body.Text, rc)
		if err != nil {
			return model.RewrittenBody{}, err
		}
		return model.RewrittenBody{Kind: model.BodyJSON, Text: out}, nil
	}
	return body, nil
}

func originJSON(text string, rc model.RewriteContext) (string, error) {
	payload, err := decodeJSON([]byte(text))
	if err != nil {
		return "", err
	}
	out, err := walkStrings(payload, true, func(s string, root bool) (string, error) {
		switch {
		case root || looksLikeMarkup(s):
			return originMarkup(s, rc, true)
		case strings.HasPrefix(s, "http"):
			return PackURL(rc, s), nil
		}
		return s, nil
	})
	if err != nil {
		return "", err
	}
	return encodeJSON(out)
}

// originMarkup rewrites src/href attributes and inline style url() references,
// then hides the origin's channel path prefix.
func originMarkup(markup string, rc model.RewriteContext, fragment bool) (string, error) {
	parse := dom.Parse
	if fragment {
		parse = dom.ParseFragment
	}
	doc, err := parse(markup)
	if err != nil {
		return "", err
	}

	for _, n := range doc.FindByTagAttr(srcTags, "src") {
		v, _ := n.Attr("src")
		n.SetAttr("src", PackURL(rc, v))
	}
	for _, n := range doc.FindByTagAttr(hrefTags, "href") {
		v, _ := n.Attr("href")
		n.SetAttr("href", PackURL(rc, v))
	}
	for _, n := range doc.FindWithAttr("style") {
		v, _ := n.Attr("style")
		n.SetAttr("style", rewriteStyle(v, rc))
	}

	out, err := doc.Render()
	if err != nil {
		return "", err
	}
	out = stripChannelPath(out, rc.Channel)
	if fragment {
		out = strayWrapperPattern.ReplaceAllString(out, "")
	}
	return out, nil
}

func rewriteStyle(style string, rc model.RewriteContext) string {
	return styleURLPattern.ReplaceAllStringFunc(style, func(m string) string {
		raw := styleURLPattern.FindStringSubmatch(m)[1]
		return `url("` + PackURL(rc, raw) + `")`
	})
}

// stripChannelPath removes "/s/<channel>" so links never expose the origin's
// channel preview prefix. The match stops at a username boundary.
func stripChannelPath(s, channel string) string {
	if channel == "" {
		return s
	}
	re := regexp.MustCompile(`/s/` + regexp.QuoteMeta(channel) + `\b`)
	return re.ReplaceAllString(s, "")
}

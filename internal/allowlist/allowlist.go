// Package allowlist validates candidate upstream URLs against the fixed set of
// hosts the proxy may fetch from.
package allowlist

import (
	"net/url"
	"regexp"
	"slices"
	"strings"

	"tgme-proxy-go/internal/model"
)

// Hosts the proxy may fetch from. Matching is exact and case-sensitive.
var (
	publicHosts   = []string{"telegram.org", "cdn4.telegram-cdn.org"}
	internalHosts = []string{"t.me"}
)

var hostnamePattern = regexp.MustCompile(`^(?i)[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)

// disallowedChars may not appear anywhere in a candidate URL.
const disallowedChars = " \t\r\n\\<>\"{}|^`"

// Validator checks candidate URLs. The zero value is ready to use.
type Validator struct{}

// New returns a Validator.
func New() *Validator {
	return &Validator{}
}

// Hosts returns the allowed hosts in order; internal calls get the extra hosts.
func (v *Validator) Hosts(internal bool) []string {
	hosts := slices.Clone(publicHosts)
	if internal {
		hosts = append(hosts, internalHosts...)
	}
	return hosts
}

// Allowed reports whether host (without port) may be fetched.
func (v *Validator) Allowed(host string, internal bool) bool {
	return slices.Contains(v.Hosts(internal), host)
}

// Check normalises raw and verifies it is a well-formed absolute URL on an
// allowed host. It returns the normalised URL. Failures are
// model.ErrValidation or model.ErrForbiddenHost. The host is checked before
// the scheme so a foreign host is always reported as forbidden.
func (v *Validator) Check(raw string, internal bool) (string, error) {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := parse(raw)
	if err != nil {
		return "", model.NewError(model.ErrValidation, raw, err)
	}

	host := u.Hostname()
	if !v.Allowed(host, internal) {
		return "", model.NewError(model.ErrForbiddenHost, host, nil)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", model.NewError(model.ErrValidation, raw, syntaxError("scheme must be http or https"))
	}
	return raw, nil
}

type syntaxError string

func (e syntaxError) Error() string { return string(e) }

func parse(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, syntaxError("empty URL")
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(disallowedChars, r) {
			return nil, syntaxError("disallowed character")
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch {
	case u.Scheme == "":
		return nil, syntaxError("missing scheme")
	case u.Opaque != "" || u.Host == "":
		return nil, syntaxError("missing //")
	case u.User != nil:
		return nil, syntaxError("userinfo not allowed")
	case u.Port() != "" || strings.HasSuffix(u.Host, ":"):
		return nil, syntaxError("explicit port not allowed")
	case !hostnamePattern.MatchString(u.Hostname()):
		return nil, syntaxError("invalid host")
	}
	return u, nil
}

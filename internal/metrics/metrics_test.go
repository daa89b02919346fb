package metrics

import (
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	// Verify our custom metrics exist by incrementing one and gathering again.
	m.RequestsTotal.WithLabelValues("GET", "200", "/").Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "tgme_proxy_http_requests_total" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected tgme_proxy_http_requests_total in gathered metrics")
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"X-CUSTOM", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/static/css/style.css", "/static"},
		{"/healthz", "/healthz"},
		{"/proxy/status", "/proxy/status"},
		{"/metrics", "/metrics"},
		{"/t.me/s/durov", "/t.me"},
		{"/telegram.org/js/widget.js", "/telegram.org"},
		{"/cdn4.telegram-cdn.org/file/a.jpg", "/cdn4.telegram-cdn.org"},
		{"/Zm9vYmFy.jpg", "token"},
		{"/staticx", "token"},
		{"/example.com/a", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"t.me", "t.me"},
		{"telegram.org", "telegram.org"},
		{"cdn4.telegram-cdn.org", "cdn4.telegram-cdn.org"},
		{"example.com", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		if got := NormalizeHost(tt.host); got != tt.want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestNew_DomainCounters(t *testing.T) {
	m := New()
	m.RewritesTotal.WithLabelValues("html").Inc()
	m.RejectionsTotal.WithLabelValues("forbidden_host").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"tgme_proxy_rewrites_total":   false,
		"tgme_proxy_rejections_total": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

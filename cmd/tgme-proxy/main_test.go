package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tgme-proxy-go/internal/codec"
	"tgme-proxy-go/internal/config"
	"tgme-proxy-go/internal/model"
)

const testKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

func writeConfig(t *testing.T, publicURL string) string {
	t.Helper()
	data := `
[server]
public_url = "` + publicURL + `"

[proxy]
channel_name = "durov"
cipher_key = "` + testKey + `"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEncode(t *testing.T) {
	cli := &config.CLI{Config: writeConfig(t, "https://proxy.example/")}
	cli.Encode.URL = "https://telegram.org/css/widget.css"

	var out bytes.Buffer
	if err := encode(cli, &out); err != nil {
		t.Fatalf("encode() error = %v", err)
	}

	line := strings.TrimSpace(out.String())
	token, ok := strings.CutPrefix(line, "https://proxy.example/")
	if !ok {
		t.Fatalf("output %q does not start with the public URL", line)
	}

	key, _ := hex.DecodeString(testKey)
	c, err := codec.New(key)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decode(token)
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", token, err)
	}
	if got != cli.Encode.URL {
		t.Errorf("decoded = %q, want %q", got, cli.Encode.URL)
	}
}

func TestEncode_RejectsForeignHost(t *testing.T) {
	cli := &config.CLI{Config: writeConfig(t, "")}
	cli.Encode.URL = "https://t.me/s/durov"

	var out bytes.Buffer
	err := encode(cli, &out)
	if !errors.Is(err, model.ErrForbiddenHost) {
		t.Fatalf("encode() error = %v, want ErrForbiddenHost", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "console"} {
		cfg := &config.Config{Log: config.LogConfig{Level: "debug", Format: format}}
		if l := newLogger(cfg); l == nil {
			t.Errorf("newLogger(%q) = nil", format)
		}
	}
}

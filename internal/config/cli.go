package config

import "github.com/alecthomas/kong"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Channel   string `kong:"help='Telegram channel name (overrides config).',env='CHANNEL_NAME'"`
	CipherKey string `kong:"help='Hex-encoded 32-byte URL cipher key (overrides config).',env='CIPHER_KEY'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Debug     bool   `kong:"help='Show error details in responses.',env='DEBUG'"`

	Version kong.VersionFlag `kong:"short='v',help='Print version and exit.'"`

	Serve  ServeCmd  `kong:"cmd,default='1',help='Run the proxy server.'"`
	Encode EncodeCmd `kong:"cmd,help='Encrypt an upstream URL into an opaque path token.'"`
}

// ServeCmd runs the HTTP server.
type ServeCmd struct{}

// EncodeCmd prints the opaque token for URL.
type EncodeCmd struct {
	URL string `kong:"arg,help='Upstream URL to encode.'"`
}

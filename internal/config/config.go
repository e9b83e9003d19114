// Package config loads configuration from environment variables for the
// lighthouse binaries. All variables are prefixed with LIGHTHOUSE_.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Server holds the reference server configuration.
type Server struct {
	HTTPPort     int    `envconfig:"HTTP_PORT" default:"8000"`
	DatabasePath string `envconfig:"DB_PATH" default:"lighthouse.db"`

	// Auth settings. The dev server mints its own tokens; a real
	// deployment fronts an external identity provider instead.
	RequireAuth     bool          `envconfig:"REQUIRE_AUTH" default:"true"`
	JWTSecret       string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	JWTIssuer       string        `envconfig:"JWT_ISSUER" default:"lighthouse"`
	JWTAudience     string        `envconfig:"JWT_AUDIENCE" default:"lighthouse-ui"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`
	DevUsername     string        `envconfig:"DEV_USERNAME" default:"admin"`
	DevPassword     string        `envconfig:"DEV_PASSWORD" default:"admin"`

	// WebSocket settings.
	PingInterval   time.Duration `envconfig:"WS_PING_INTERVAL" default:"30s"`
	WriteTimeout   time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	ReadTimeout    time.Duration `envconfig:"WS_READ_TIMEOUT" default:"60s"`
	MaxMessageSize int64         `envconfig:"WS_MAX_MESSAGE_SIZE" default:"65536"`
}

// Client holds the CLI / engine configuration.
type Client struct {
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8000"`
	// CredentialsPath overrides the default ~/.lighthouse/credentials.json.
	CredentialsPath string        `envconfig:"CREDENTIALS_PATH"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
}

// LoadServer reads server configuration from the environment.
func LoadServer() (*Server, error) {
	var cfg Server
	if err := envconfig.Process("lighthouse", &cfg); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	return &cfg, nil
}

// LoadClient reads client configuration from the environment.
func LoadClient() (*Client, error) {
	var cfg Client
	if err := envconfig.Process("lighthouse", &cfg); err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	return &cfg, nil
}

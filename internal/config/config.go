package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "SKILLMATE"

	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"

	defaultHTTPAddress        = "0.0.0.0:5000"
	defaultLogLevel           = "info"
	defaultStoreDriver        = StoreDriverMemory
	defaultDatabasePath       = "file::memory:?cache=shared"
	defaultCookieName         = "skillmate_session"
	defaultSessionTTLMinutes  = 7 * 24 * 60
	defaultAllowedOrigins     = "http://localhost:5000"
	defaultGoogleJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"
	defaultBcryptCost         = 12
	defaultRealtimeBufferSize = 16
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	LogLevel           string
	StoreDriver        string
	DatabasePath       string
	SessionCookieName  string
	SessionTTL         time.Duration
	SessionSecure      bool
	AllowedOrigins     []string
	GoogleClientID     string
	GoogleJWKSURL      string
	BcryptCost         int
	RealtimeBufferSize int
}

// GoogleTokenSignInEnabled reports whether ID-token verification is configured.
func (c AppConfig) GoogleTokenSignInEnabled() bool {
	return c.GoogleClientID != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("store.driver", defaultStoreDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("session.secure", false)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("google.client_id", "")
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("auth.bcrypt_cost", defaultBcryptCost)
	configViper.SetDefault("realtime.buffer_size", defaultRealtimeBufferSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        strings.TrimSpace(configViper.GetString("http.address")),
		LogLevel:           configViper.GetString("log.level"),
		StoreDriver:        strings.ToLower(strings.TrimSpace(configViper.GetString("store.driver"))),
		DatabasePath:       strings.TrimSpace(configViper.GetString("database.path")),
		SessionCookieName:  strings.TrimSpace(configViper.GetString("session.cookie_name")),
		SessionTTL:         time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		SessionSecure:      configViper.GetBool("session.secure"),
		AllowedOrigins:     splitList(configViper.GetString("cors.allowed_origins")),
		GoogleClientID:     strings.TrimSpace(configViper.GetString("google.client_id")),
		GoogleJWKSURL:      strings.TrimSpace(configViper.GetString("google.jwks_url")),
		BcryptCost:         configViper.GetInt("auth.bcrypt_cost"),
		RealtimeBufferSize: configViper.GetInt("realtime.buffer_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.StoreDriver)
	}
	if c.SessionCookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	if c.GoogleTokenSignInEnabled() && c.GoogleJWKSURL == "" {
		return fmt.Errorf("google.jwks_url is required when google.client_id is set")
	}
	if c.RealtimeBufferSize <= 0 {
		return fmt.Errorf("realtime.buffer_size must be positive")
	}
	return nil
}

// splitList accepts comma separated values as sent through the environment.
func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "FOLIO"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultBaseURL          = "http://localhost:8080"
	defaultDatabasePath     = "folio.db"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultCookieName       = "token"
	defaultIssuer           = "folio-site"
	defaultTokenTTLMinutes  = 1440
	defaultTemplatesGlob    = "web/templates/*.html"
	defaultHotListCacheSecs = 30
)

// AppConfig captures runtime configuration for the site.
type AppConfig struct {
	HTTPAddress     string
	BaseURL         string
	DatabasePath    string
	LogLevel        string
	LogFormat       string
	SigningSecret   string
	CookieName      string
	Issuer          string
	SecureCookies   bool
	TokenTTL        time.Duration
	TemplatesGlob   string
	HotListCacheTTL time.Duration
	RedisAddress    string
	AllowedOrigins  []string
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
	configViper.SetDefault("site.base_url", defaultBaseURL)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.secure_cookies", false)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("templates.glob", defaultTemplatesGlob)
	configViper.SetDefault("hotlist.cache_ttl_seconds", defaultHotListCacheSecs)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("cors.allowed_origins", []string{})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		BaseURL:         strings.TrimRight(configViper.GetString("site.base_url"), "/"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		LogFormat:       configViper.GetString("log.format"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		CookieName:      configViper.GetString("auth.cookie_name"),
		Issuer:          configViper.GetString("auth.issuer"),
		SecureCookies:   configViper.GetBool("auth.secure_cookies"),
		TokenTTL:        time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		TemplatesGlob:   configViper.GetString("templates.glob"),
		HotListCacheTTL: time.Duration(configViper.GetInt("hotlist.cache_ttl_seconds")) * time.Second,
		RedisAddress:    strings.TrimSpace(configViper.GetString("redis.address")),
		AllowedOrigins:  splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitOrigins accepts both list values and a single comma-separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.HotListCacheTTL < 0 {
		return fmt.Errorf("hotlist.cache_ttl_seconds must not be negative")
	}
	if strings.TrimSpace(c.TemplatesGlob) == "" {
		return fmt.Errorf("templates.glob is required")
	}
	return nil
}

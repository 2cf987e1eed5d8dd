package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "PORTFOLIO"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "portfolio.db"
	defaultLogLevel        = "info"
	defaultGoogleJWKSURL   = "https://www.googleapis.com/oauth2/v3/certs"
	defaultGitHubAPIURL    = "https://api.github.com"
	defaultWeb3FormsURL    = "https://api.web3forms.com/submit"
	defaultSessionTTL      = 12 * time.Hour
	defaultAMQPExchange    = "portfolio.events"
	defaultAMQPRoutingKey  = "changes"
	defaultLocalStatePath  = "portfolio-state.json"
	defaultAllowAllOrigins = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	GoogleClientID     string
	GoogleJWKSURL      string
	GitHubAPIURL       string
	SessionSigningKey  string
	SessionTTL         time.Duration
	Web3FormsURL       string
	Web3FormsAccessKey string
	AMQPURL            string
	AMQPExchange       string
	AMQPRoutingKey     string
	LocalStatePath     string
	AllowedOrigin      string
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
	configViper.SetDefault("http.allowed_origin", defaultAllowAllOrigins)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("github.api_url", defaultGitHubAPIURL)
	configViper.SetDefault("session.ttl_minutes", int(defaultSessionTTL.Minutes()))
	configViper.SetDefault("web3forms.url", defaultWeb3FormsURL)
	configViper.SetDefault("amqp.exchange", defaultAMQPExchange)
	configViper.SetDefault("amqp.routing_key", defaultAMQPRoutingKey)
	configViper.SetDefault("localstate.path", defaultLocalStatePath)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		AllowedOrigin:      configViper.GetString("http.allowed_origin"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		GoogleClientID:     configViper.GetString("google.client_id"),
		GoogleJWKSURL:      configViper.GetString("google.jwks_url"),
		GitHubAPIURL:       configViper.GetString("github.api_url"),
		SessionSigningKey:  configViper.GetString("session.signing_secret"),
		SessionTTL:         time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		Web3FormsURL:       configViper.GetString("web3forms.url"),
		Web3FormsAccessKey: configViper.GetString("web3forms.access_key"),
		AMQPURL:            configViper.GetString("amqp.url"),
		AMQPExchange:       configViper.GetString("amqp.exchange"),
		AMQPRoutingKey:     configViper.GetString("amqp.routing_key"),
		LocalStatePath:     configViper.GetString("localstate.path"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.GoogleClientID) == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	return nil
}

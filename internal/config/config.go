// Package config loads process configuration from the environment and optional .env files.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/hal9000y/sdr/internal/logger"
)

// ErrConfiguration indicates a required setting is missing or invalid.
var ErrConfiguration = errors.New("configuration error")

const (
	ProviderSendGrid = "sendgrid"
	ProviderGmail    = "gmail"
)

// AgentConfig holds the model and company context shared by every persona.
type AgentConfig struct {
	Model              string `envconfig:"SDR_MODEL" default:"gpt-4o-mini"`
	CompanyName        string `envconfig:"SDR_COMPANY_NAME" default:"ComplAI"`
	CompanyDescription string `envconfig:"SDR_COMPANY_DESCRIPTION" default:"a company that provides a SaaS tool for ensuring SOC2 compliance and preparing for audits, powered by AI"`
}

// CompanyContext is interpolated into persona instructions.
func (c AgentConfig) CompanyContext() string {
	return fmt.Sprintf("%s, %s", c.CompanyName, c.CompanyDescription)
}

// DefaultAgentConfig returns the built-in agent settings.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:              "gpt-4o-mini",
		CompanyName:        "ComplAI",
		CompanyDescription: "a company that provides a SaaS tool for ensuring SOC2 compliance and preparing for audits, powered by AI",
	}
}

// LoadAgentConfig applies environment overrides on top of the defaults. It never fails.
func LoadAgentConfig() AgentConfig {
	cfg := DefaultAgentConfig()
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Get().Debugw("agent config env ignored", "error", err)
		return DefaultAgentConfig()
	}
	return cfg
}

// EmailConfig holds transport credentials and the fixed sender/recipient pair.
type EmailConfig struct {
	Provider  string `envconfig:"EMAIL_PROVIDER" default:"sendgrid"`
	APIKey    string `envconfig:"SENDGRID_API_KEY"`
	FromEmail string `envconfig:"SENDGRID_FROM_EMAIL" default:"ed@edwarddonner.com"`
	ToEmail   string `envconfig:"SENDGRID_TO_EMAIL" default:"ed.donner@gmail.com"`
	BaseURL   string `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
}

// LoadEmailConfig reads email settings and fails fast when the provider secret is absent.
func LoadEmailConfig() (EmailConfig, error) {
	var cfg EmailConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EmailConfig{}, fmt.Errorf("%w: envconfig.Process failed: %w", ErrConfiguration, err)
	}

	switch cfg.Provider {
	case ProviderSendGrid:
		if cfg.APIKey == "" {
			return EmailConfig{}, fmt.Errorf("%w: SENDGRID_API_KEY environment variable is not set, please set it in your .env file", ErrConfiguration)
		}
	case ProviderGmail:
	default:
		return EmailConfig{}, fmt.Errorf("%w: unknown EMAIL_PROVIDER %q", ErrConfiguration, cfg.Provider)
	}

	return cfg, nil
}

// LLMConfig configures the chat completion backend.
type LLMConfig struct {
	APIKey   string        `envconfig:"OPENAI_API_KEY"`
	BaseURL  string        `envconfig:"OPENAI_BASE_URL"`
	MaxTurns int           `envconfig:"SDR_MAX_TURNS" default:"10"`
	Timeout  time.Duration `envconfig:"OPENAI_TIMEOUT" default:"0s"`
}

// LoadLLMConfig reads model backend settings. The API key is required.
func LoadLLMConfig() (LLMConfig, error) {
	var cfg LLMConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return LLMConfig{}, fmt.Errorf("%w: envconfig.Process failed: %w", ErrConfiguration, err)
	}
	if cfg.APIKey == "" {
		return LLMConfig{}, fmt.Errorf("%w: OPENAI_API_KEY environment variable is not set", ErrConfiguration)
	}
	return cfg, nil
}

// GmailConfig holds OAuth client credentials for the Gmail transport.
type GmailConfig struct {
	ClientID     string `envconfig:"OAUTH_GOOGLE_CLIENT_ID"`
	ClientSecret string `envconfig:"OAUTH_GOOGLE_CLIENT_SECRET"`
	TokenFile    string `envconfig:"GMAIL_TOKEN_FILE" default:"./data/gmail-token.json"`
}

// LoadGmailConfig reads Gmail OAuth settings.
func LoadGmailConfig() (GmailConfig, error) {
	var cfg GmailConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return GmailConfig{}, fmt.Errorf("%w: envconfig.Process failed: %w", ErrConfiguration, err)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return GmailConfig{}, fmt.Errorf("%w: OAUTH_GOOGLE_CLIENT_ID and OAUTH_GOOGLE_CLIENT_SECRET must be set", ErrConfiguration)
	}
	return cfg, nil
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	CABundle string `envconfig:"SDR_CA_BUNDLE"`
}

// LoadAppConfig reads process settings. SSL_CERT_FILE is used as the CA bundle when SDR_CA_BUNDLE is unset.
func LoadAppConfig() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("%w: envconfig.Process failed: %w", ErrConfiguration, err)
	}
	if cfg.CABundle == "" {
		cfg.CABundle = os.Getenv("SSL_CERT_FILE")
	}
	return cfg, nil
}

// LoadEnvFile loads variables from envFile, or from ./.env when envFile is empty.
// A missing default .env is not an error. Values from the file override the environment.
func LoadEnvFile(envFile string) error {
	if envFile == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		envFile = ".env"
	}
	if err := godotenv.Overload(envFile); err != nil {
		return fmt.Errorf("godotenv.Overload failed: %w", err)
	}
	return nil
}

// HTTPClient returns the client used for outbound HTTPS calls. When caBundle names a
// readable PEM file its certificates are trusted in addition to the system pool;
// any failure leaves the default trust store in place.
func HTTPClient(caBundle string, timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	if caBundle == "" {
		return client
	}

	pem, err := os.ReadFile(caBundle)
	if err != nil {
		logger.Get().Debugw("ca bundle ignored", "path", caBundle, "error", err)
		return client
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		logger.Get().Debugw("ca bundle has no certificates", "path", caBundle)
		return client
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	client.Transport = transport

	return client
}

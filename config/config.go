// Package config loads the tracker's operational knobs from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the tracker
type Config struct {
	// RepositoriesParameter names the parameter holding the semicolon
	// separated repository list.
	RepositoriesParameter string
	// CredentialsSecret names the secret holding the credential bundle.
	CredentialsSecret string
	// MetricNamespace is the namespace measurements are published under.
	MetricNamespace string
	// TrafficLogGroup is the audit trail log group.
	TrafficLogGroup string
	// GitHubAPIURL overrides the public API endpoint; empty selects the
	// default.
	GitHubAPIURL string

	HTTPTimeout      time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	WorkerCount      int
	LogLevel         string
}

// NewConfig creates a new Config instance
func NewConfig() *Config {
	return &Config{}
}

// Load reads configuration from environment variables, with an optional .env
// file for local runs. Every knob carries a default, so a bare environment
// loads cleanly.
func (c *Config) Load() error {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("REPOSITORIES_PARAMETER", "GitHubTrafficRepos")
	v.SetDefault("CREDENTIALS_SECRET", "GitHubTrafficAccessTokens")
	v.SetDefault("METRIC_NAMESPACE", "GitHubTrafficTracker")
	v.SetDefault("TRAFFIC_LOG_GROUP", "github-traffic-tracker")
	v.SetDefault("GITHUB_API_URL", "")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY", "500ms")
	v.SetDefault("WORKER_COUNT", 1)
	v.SetDefault("LOG_LEVEL", "info")

	// Read .env file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	c.RepositoriesParameter = v.GetString("REPOSITORIES_PARAMETER")
	c.CredentialsSecret = v.GetString("CREDENTIALS_SECRET")
	c.MetricNamespace = v.GetString("METRIC_NAMESPACE")
	c.TrafficLogGroup = v.GetString("TRAFFIC_LOG_GROUP")
	c.GitHubAPIURL = v.GetString("GITHUB_API_URL")
	c.HTTPTimeout = v.GetDuration("HTTP_TIMEOUT")
	c.RetryMaxAttempts = v.GetInt("RETRY_MAX_ATTEMPTS")
	c.RetryBaseDelay = v.GetDuration("RETRY_BASE_DELAY")
	c.WorkerCount = v.GetInt("WORKER_COUNT")
	c.LogLevel = v.GetString("LOG_LEVEL")

	return c.validate()
}

func (c *Config) validate() error {
	if c.RepositoriesParameter == "" {
		return fmt.Errorf("REPOSITORIES_PARAMETER is required")
	}
	if c.CredentialsSecret == "" {
		return fmt.Errorf("CREDENTIALS_SECRET is required")
	}
	if c.MetricNamespace == "" {
		return fmt.Errorf("METRIC_NAMESPACE is required")
	}
	if c.TrafficLogGroup == "" {
		return fmt.Errorf("TRAFFIC_LOG_GROUP is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be a positive duration")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be a positive duration")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	return nil
}

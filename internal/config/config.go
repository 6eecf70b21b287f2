package config

import (
	"errors"
	"fmt"
	"os"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type Config struct {
	port        string
	erpBaseURL  string
	erpAPIKey   string
	databaseURL string
	sentryDSN   string
	env         environment
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) ERPBaseURL() string {
	return c.erpBaseURL
}

func (c *Config) ERPAPIKey() string {
	return c.erpAPIKey
}

func (c *Config) DatabaseURL() string {
	return c.databaseURL
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf("Config{env: %s, port: %s, erpBaseURL: %s, ...}", string(c.env), c.port, c.erpBaseURL)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("PULSEBOARD_ENVIRONMENT")
	if !ok {
		return missingKey("PULSEBOARD_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: PULSEBOARD_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	erpBaseURL := os.Getenv("ERP_BASE_URL")
	erpAPIKey := os.Getenv("ERP_API_KEY")
	databaseURL := os.Getenv("DATABASE_URL")
	sentryDSN := os.Getenv("SENTRY_DSN")

	if env == production || env == staging {
		if erpBaseURL == "" {
			return missingKey("ERP_BASE_URL")
		}
		if erpAPIKey == "" {
			return missingKey("ERP_API_KEY")
		}
		if databaseURL == "" {
			return missingKey("DATABASE_URL")
		}
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}

	return Config{
		port:        port,
		erpBaseURL:  erpBaseURL,
		erpAPIKey:   erpAPIKey,
		databaseURL: databaseURL,
		sentryDSN:   sentryDSN,
		env:         env,
	}, nil
}

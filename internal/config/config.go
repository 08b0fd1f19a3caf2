// Package config loads application configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/avelasco/studyhub/internal/auth"
)

// Config is the full application configuration. Every value comes from the
// environment; defaults suit local development. JWT_SECRET has no default
// and must be set.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"data/studyhub.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret     string `env:"JWT_SECRET,required,notEmpty"`
	SecureCookies bool   `env:"SECURE_COOKIES" envDefault:"false"`

	// Public base URL used to derive OAuth callback URLs when the
	// per-provider callback is not set explicitly.
	BaseURL string `env:"BASE_URL"`

	Google   providerConfig `envPrefix:"GOOGLE_"`
	GitHub   providerConfig `envPrefix:"GITHUB_"`
	Facebook providerConfig `envPrefix:"FACEBOOK_"`
}

type providerConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Load parses the environment into a Config and fills in derived values.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	fillCallback(&cfg.Google, cfg.BaseURL, "google")
	fillCallback(&cfg.GitHub, cfg.BaseURL, "github")
	fillCallback(&cfg.Facebook, cfg.BaseURL, "facebook")

	return cfg, nil
}

func fillCallback(pc *providerConfig, baseURL, name string) {
	if pc.CallbackURL == "" {
		pc.CallbackURL = fmt.Sprintf("%s/auth/%s/callback", baseURL, name)
	}
}

// Credentials converts a provider section to the auth package's type.
func (p providerConfig) Credentials() auth.ProviderCredentials {
	return auth.ProviderCredentials{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		CallbackURL:  p.CallbackURL,
	}
}

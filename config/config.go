package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCountry        = "it"
	DefaultTimeout        = 30 * time.Second
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 1 * time.Second
	DefaultSweepAfter     = 1 * time.Hour
	DefaultLeadTimeout    = 10 * time.Second
)

type Retry struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"baseDelay"`
}

type RateLimit struct {
	Limit float64 `yaml:"limit"` // Requests per second; 0 disables pacing
	Burst int     `yaml:"burst"`
}

type API struct {
	BaseURL    string        `yaml:"baseUrl"`
	Country    string        `yaml:"country"`
	Timeout    time.Duration `yaml:"timeout"`
	SkipVerify bool          `yaml:"skipVerify"`
	Retry      Retry         `yaml:"retry"`
	RateLimit  RateLimit     `yaml:"rateLimit"`
}

type Auth struct {
	TokenURL string `yaml:"tokenUrl"`
	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Staging struct {
	Dir        string        `yaml:"dir"`
	SweepAfter time.Duration `yaml:"sweepAfter"`
}

type Leads struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	API     API     `yaml:"api"`
	Auth    Auth    `yaml:"auth"`
	Staging Staging `yaml:"staging"`
	Leads   Leads   `yaml:"leads"`
}

var (
	ErrConfigFileUnreadable     = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file is unmarshallable")
	ErrBaseURLMissing           = errors.New("api.baseUrl is missing in config")
	ErrTokenURLMissing          = errors.New("auth.tokenUrl is missing in config")
	ErrClientIDMissing          = errors.New("auth.clientId is missing in config")
	ErrUsernameMissing          = errors.New("auth.username is missing in config")
	ErrPasswordMissing          = errors.New("auth.password is missing in config")
)

// Load reads and validates a config file. Secrets may be left out of the file
// and supplied via the environment; ApplyEnv runs before validation so a
// missing required value is always a startup failure, never a runtime one.
func Load(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, ErrConfigFileUnreadable
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ErrConfigFileUnmarshallable
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays DEALERGATE_* environment variables onto the config.
// Environment always wins over file values so deployments can keep
// credentials out of the file entirely.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DEALERGATE_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("DEALERGATE_COUNTRY"); v != "" {
		c.API.Country = v
	}
	if v := os.Getenv("DEALERGATE_TOKEN_URL"); v != "" {
		c.Auth.TokenURL = v
	}
	if v := os.Getenv("DEALERGATE_CLIENT_ID"); v != "" {
		c.Auth.ClientID = v
	}
	if v := os.Getenv("DEALERGATE_USERNAME"); v != "" {
		c.Auth.Username = v
	}
	if v := os.Getenv("DEALERGATE_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.API.Country == "" {
		c.API.Country = DefaultCountry
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.Retry.Attempts == 0 {
		c.API.Retry.Attempts = DefaultRetryAttempts
	}
	if c.API.Retry.BaseDelay == 0 {
		c.API.Retry.BaseDelay = DefaultRetryBaseDelay
	}
	if c.Staging.SweepAfter == 0 {
		c.Staging.SweepAfter = DefaultSweepAfter
	}
	if c.Leads.Timeout == 0 {
		c.Leads.Timeout = DefaultLeadTimeout
	}
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return ErrBaseURLMissing
	}
	if c.Auth.TokenURL == "" {
		return ErrTokenURLMissing
	}
	if c.Auth.ClientID == "" {
		return ErrClientIDMissing
	}
	if c.Auth.Username == "" {
		return ErrUsernameMissing
	}
	if c.Auth.Password == "" {
		return ErrPasswordMissing
	}
	return nil
}

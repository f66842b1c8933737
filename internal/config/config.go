package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	DefaultProvider = "namecom"
	DefaultInterval = 60
	DefaultLogDir   = "./"
)

// Config holds everything the updater reads once at startup.
type Config struct {
	// Host is the label of the managed record relative to Domain; "" or "@" for the apex.
	Host   string `yaml:"host"`
	Domain string `yaml:"domain"`
	// Interval is the poll interval in seconds.
	Interval int `yaml:"interval"`
	// TestLoops bounds the number of ticks; 0 polls forever.
	TestLoops          int    `yaml:"testLoops"`
	Log                bool   `yaml:"log"`
	LogDir             string `yaml:"logDir"`
	IPCheckURL         string `yaml:"ipCheckURL"`
	StrictWrites       bool   `yaml:"strictWrites"`
	MetricsBindAddress string `yaml:"metricsBindAddress"`

	DNS ProviderConfig `yaml:"dns"`
}

// ProviderConfig selects the DNS provider and its connection settings.
type ProviderConfig struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`
}

// Default returns a Config with every optional field set.
func Default() *Config {
	return &Config{
		Interval:           DefaultInterval,
		LogDir:             DefaultLogDir,
		MetricsBindAddress: "0",
		DNS: ProviderConfig{
			Provider: DefaultProvider,
			Settings: map[string]string{},
		},
	}
}

// LoadFromPath reads a YAML config file on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.DNS.Provider == "" {
		cfg.DNS.Provider = DefaultProvider
	}
	if cfg.DNS.Settings == nil {
		cfg.DNS.Settings = map[string]string{}
	}

	// Expand ${ENV_VAR} references in setting values.
	for k, v := range cfg.DNS.Settings {
		cfg.DNS.Settings[k] = os.ExpandEnv(v)
	}

	return cfg, nil
}

// PollInterval returns Interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Domain == "" {
		errs = append(errs, fmt.Errorf("domain: required"))
	} else {
		for _, msg := range validation.IsDNS1123Subdomain(strings.ToLower(c.Domain)) {
			errs = append(errs, fmt.Errorf("domain %q: %s", c.Domain, msg))
		}
	}

	if c.Host != "" && c.Host != "@" {
		host := strings.TrimPrefix(strings.ToLower(c.Host), "*.")
		if host != "*" {
			for _, msg := range validation.IsDNS1123Subdomain(host) {
				errs = append(errs, fmt.Errorf("host %q: %s", c.Host, msg))
			}
		}
	}

	if c.Interval < 1 {
		errs = append(errs, fmt.Errorf("interval: must be at least 1 second, got %d", c.Interval))
	}
	if c.TestLoops < 0 {
		errs = append(errs, fmt.Errorf("testLoops: must not be negative, got %d", c.TestLoops))
	}
	if c.DNS.Provider == "" {
		errs = append(errs, fmt.Errorf("dns.provider: required"))
	}

	return utilerrors.NewAggregate(errs)
}

// ResolveCredentials returns the API credentials. When dns.settings already
// holds both username and token they are used and the environment is not
// consulted; otherwise both environment variables are required.
func (c *Config) ResolveCredentials() (*Credentials, error) {
	username, token := c.DNS.Settings["username"], c.DNS.Settings["token"]
	if username != "" && token != "" {
		return &Credentials{Username: username, Token: token}, nil
	}
	return LoadCredentials()
}

// ProviderSettings returns the provider settings with the credentials filled
// in where the config file did not set them.
func (c *Config) ProviderSettings(creds *Credentials) map[string]string {
	settings := make(map[string]string, len(c.DNS.Settings)+2)
	for k, v := range c.DNS.Settings {
		settings[k] = v
	}
	if creds != nil {
		if settings["username"] == "" {
			settings["username"] = creds.Username
		}
		if settings["token"] == "" {
			settings["token"] = creds.Token
		}
	}
	return settings
}

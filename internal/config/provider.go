package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// ProviderConfig holds the IPAM provider type and provider-specific
// connection settings.
type ProviderConfig struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`
}

// LoadProviderConfig reads the IPAM provider configuration from the path
// specified by the HOSTDB_PROVIDER_PATH environment variable, defaulting to
// "configs/ipam-provider.yaml".
func LoadProviderConfig() (*ProviderConfig, error) {
	path := os.Getenv("HOSTDB_PROVIDER_PATH")
	if path == "" {
		path = "configs/ipam-provider.yaml"
	}
	return LoadProviderConfigFromPath(path)
}

// LoadProviderConfigFromPath reads the IPAM provider configuration from the
// given file path.
func LoadProviderConfigFromPath(path string) (*ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider config file: %w", err)
	}

	var cfg ProviderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing provider config file: %w", err)
	}

	if cfg.Provider == "" {
		return nil, fmt.Errorf("provider config: missing required field 'provider'")
	}

	if cfg.Settings == nil {
		cfg.Settings = map[string]string{}
	}
	// Expand ${ENV_VAR} references in setting values.
	for k, v := range cfg.Settings {
		cfg.Settings[k] = os.ExpandEnv(v)
	}

	return &cfg, nil
}

// WithZoneDefaults sets the zone syntax settings a provider needs to render
// state the parser accepts, unless the provider config sets them already.
func (pc *ProviderConfig) WithZoneDefaults(c *Config) {
	opts := c.ParserOptions()
	if _, ok := pc.Settings["pool_prefix"]; !ok {
		pc.Settings["pool_prefix"] = opts.PoolPrefix
	}
	if _, ok := pc.Settings["comment_marker"]; !ok {
		pc.Settings["comment_marker"] = opts.CommentMarker
	}
}

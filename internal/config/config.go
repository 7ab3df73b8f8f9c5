package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/yuriy-kovalchuk/hostdb/internal/zone"
)

// Config holds zone file settings.
type Config struct {
	// Domain is appended to single-label names.
	Domain string `yaml:"domain"`
	// CommentMarker starts a trailing comment. Set to "none" to disable
	// comments.
	CommentMarker string `yaml:"comment_marker"`
	// DHCPPrefix marks host names that belong to a DHCP pool.
	DHCPPrefix    string   `yaml:"dhcp_prefix"`
	ReservedNames []string `yaml:"reserved_names"`
	// Zones are zone file paths or glob patterns, relative to the config
	// file's directory unless absolute.
	Zones []string `yaml:"zones"`

	dir string
}

// LoadConfig reads a YAML zone config and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Domain = strings.Trim(strings.ToLower(cfg.Domain), ".")
	if cfg.Domain == "" {
		return nil, fmt.Errorf("config: missing required field 'domain'")
	}

	defaults := zone.DefaultOptions(cfg.Domain)
	if cfg.CommentMarker == "" {
		cfg.CommentMarker = defaults.CommentMarker
	}
	if cfg.DHCPPrefix == "" {
		cfg.DHCPPrefix = defaults.PoolPrefix
	}
	if cfg.ReservedNames == nil {
		cfg.ReservedNames = defaults.ReservedNames
	}
	for i, n := range cfg.ReservedNames {
		cfg.ReservedNames[i] = strings.ToLower(n)
	}
	cfg.dir = filepath.Dir(path)

	return &cfg, nil
}

// ParserOptions returns the zone parser options for this config.
func (c *Config) ParserOptions() zone.Options {
	marker := c.CommentMarker
	if marker == "none" {
		marker = ""
	}
	return zone.Options{
		Domain:        c.Domain,
		CommentMarker: marker,
		PoolPrefix:    c.DHCPPrefix,
		ReservedNames: slices.Clone(c.ReservedNames),
	}
}

// ZoneFiles expands the configured zone patterns into file paths, in
// configuration order. A pattern that matches nothing is an error.
func (c *Config) ZoneFiles() ([]string, error) {
	if len(c.Zones) == 0 {
		return nil, fmt.Errorf("config: no zone files configured")
	}

	var files []string
	for _, pattern := range c.Zones {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(c.dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("config: zone pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("config: zone pattern %q matched no files", pattern)
		}
		for _, m := range matches {
			if !slices.Contains(files, m) {
				files = append(files, m)
			}
		}
	}
	return files, nil
}

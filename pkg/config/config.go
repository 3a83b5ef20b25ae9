// Package config loads emberkv's server configuration from a YAML file,
// in the same Options/DefaultOptions idiom the original cmd/ entrypoints
// used for their flag-derived engine.Options.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HTTPConfig configures the read-only HTTP status API.
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// MaintenanceConfig configures the periodic occupancy-logging job.
type MaintenanceConfig struct {
	// Schedule is a cron expression (github.com/robfig/cron/v3 syntax).
	Schedule string `yaml:"schedule"`
}

// Options is the top-level server configuration.
type Options struct {
	Address     string            `yaml:"address"`
	AdminToken  string            `yaml:"admin_token"`
	HTTP        HTTPConfig        `yaml:"http"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// DefaultOptions returns the configuration used when no file is supplied.
func DefaultOptions() *Options {
	return &Options{
		Address: ":4200",
		HTTP: HTTPConfig{
			Address: ":4280",
		},
		Maintenance: MaintenanceConfig{
			Schedule: "@every 1m",
		},
	}
}

// Load reads and parses a YAML configuration file over DefaultOptions:
// fields absent from the file keep their default value, while fields present
// in the file (even with an empty value) replace it.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return opts, nil
}

// Package bot assembles the timetable bot: configuration, collaborator
// clients, handlers, background jobs and the run options for the core
// runtime.
package bot

import (
	"fmt"
	"os"
	"strings"

	coreconfig "schedbot/core/config"
	coredatabase "schedbot/core/database"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ServicesConfig points at the collaborator HTTP services.
type ServicesConfig struct {
	// TimetableURL is the schedule service base URL. Required.
	TimetableURL string `yaml:"timetable_url" envconfig:"TIMETABLE_URL"`
	// RendererURL is the export renderer base URL. Exports are disabled
	// when empty.
	RendererURL string `yaml:"renderer_url" envconfig:"RENDERER_URL"`
}

// NotifyConfig tunes the background notification jobs.
type NotifyConfig struct {
	ChangeCheckMinutes int `yaml:"change_check_minutes" envconfig:"NOTIFY_CHANGE_CHECK_MINUTES"`
}

// Config is the full application configuration: the core sections plus
// the bot's own ones, all read from the same YAML file.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Services ServicesConfig      `yaml:"services"`
	Notify   NotifyConfig        `yaml:"notify"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Core }

// LoadConfig reads the YAML file, applies environment overrides and
// validates both the core and the bot sections.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Services.TimetableURL) == "" {
		return nil, fmt.Errorf("services.timetable_url is required")
	}
	if cfg.Notify.ChangeCheckMinutes < 0 {
		return nil, fmt.Errorf("notify.change_check_minutes must be >= 0")
	}
	return &cfg, nil
}

/*
Package factory provides JSON to Go monitor-configuration conversion.

PURPOSE:
  Converts JSON monitor definitions into typed configuration for the
  analysis layer. This enables ops tuning without code changes - the
  dashboard team can adjust expiration windows and payload field
  candidates in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify monitor settings
  - Easy integration with the admin UI
  - Version control for configuration
  - Database or file storage of configs

JSON SCHEMA:
  {
    "default_window_days": 30,
    "window_presets": [7, 30, 60, 90],
    "enabled_categories": ["model", "data", "app"],
    "extra_code_fields": ["entitlement_key"],
    "extra_start_date_fields": [],
    "extra_end_date_fields": [],
    "scheduler": {
      "enabled": true,
      "interval_minutes": 60
    }
  }

KEY FEATURES:
  - Validates structure and value ranges
  - Sets sensible defaults for absent fields
  - Validation errors name the offending field

USAGE:
  factory := NewConfigFactory()
  cfg, err := factory.ParseConfig(jsonStr)
  normalizer := entitlement.NewNormalizer(
      entitlement.WithExtraCodeFields(cfg.ExtraCodeFields...))

SEE ALSO:
  - entitlement/normalize.go: Consumes the extra candidate fields
  - api/scheduler.go: Consumes the scheduler settings
  - cmd/server/main.go: Loads the config file
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/meridian/deploy-assistant/entitlement"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigJSON is the JSON representation of the monitor configuration.
type ConfigJSON struct {
	DefaultWindowDays    *int           `json:"default_window_days,omitempty"`
	WindowPresets        []int          `json:"window_presets,omitempty"`
	EnabledCategories    []string       `json:"enabled_categories,omitempty"`
	ExtraCodeFields      []string       `json:"extra_code_fields,omitempty"`
	ExtraStartDateFields []string       `json:"extra_start_date_fields,omitempty"`
	ExtraEndDateFields   []string       `json:"extra_end_date_fields,omitempty"`
	Scheduler            *SchedulerJSON `json:"scheduler,omitempty"`
}

// SchedulerJSON represents background re-analysis settings.
type SchedulerJSON struct {
	Enabled         *bool `json:"enabled,omitempty"`
	IntervalMinutes int   `json:"interval_minutes,omitempty"`
}

// =============================================================================
// RESOLVED CONFIGURATION
// =============================================================================

// Config is the validated, defaulted monitor configuration.
type Config struct {
	DefaultWindowDays    int
	WindowPresets        []int
	EnabledCategories    []entitlement.Category
	ExtraCodeFields      []string
	ExtraStartDateFields []string
	ExtraEndDateFields   []string

	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

// Defaults returns the configuration used when no config file is given.
func Defaults() *Config {
	return &Config{
		DefaultWindowDays: 30,
		WindowPresets:     []int{7, 30, 60, 90},
		EnabledCategories: entitlement.Categories(),
		SchedulerEnabled:  true,
		SchedulerInterval: time.Hour,
	}
}

// Normalizer builds a payload normalizer honoring the configured extra
// candidate fields.
func (c *Config) Normalizer() *entitlement.Normalizer {
	return entitlement.NewNormalizer(
		entitlement.WithExtraCodeFields(c.ExtraCodeFields...),
		entitlement.WithExtraDateFields(c.ExtraStartDateFields, c.ExtraEndDateFields),
	)
}

// ValidWindow reports whether a requested window matches a preset.
func (c *Config) ValidWindow(days int) bool {
	for _, p := range c.WindowPresets {
		if p == days {
			return true
		}
	}
	return false
}

// =============================================================================
// CONFIG FACTORY
// =============================================================================

// ConfigFactory converts JSON monitor configs to Go structs.
type ConfigFactory struct{}

// NewConfigFactory creates a new config factory.
func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{}
}

// ParseConfig parses a JSON string into a validated Config.
func (f *ConfigFactory) ParseConfig(jsonStr string) (*Config, error) {
	var cj ConfigJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse monitor config JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// LoadFile reads and parses a config file.
func (f *ConfigFactory) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return f.ParseConfig(string(data))
}

// FromJSON converts ConfigJSON to a Config, applying defaults and
// validating ranges.
func (f *ConfigFactory) FromJSON(cj ConfigJSON) (*Config, error) {
	cfg := Defaults()

	if cj.DefaultWindowDays != nil {
		if *cj.DefaultWindowDays <= 0 {
			return nil, fmt.Errorf("default_window_days must be positive, got %d", *cj.DefaultWindowDays)
		}
		cfg.DefaultWindowDays = *cj.DefaultWindowDays
	}

	if len(cj.WindowPresets) > 0 {
		for _, p := range cj.WindowPresets {
			if p <= 0 {
				return nil, fmt.Errorf("window_presets must be positive, got %d", p)
			}
		}
		cfg.WindowPresets = cj.WindowPresets
	}

	if len(cj.EnabledCategories) > 0 {
		cats := make([]entitlement.Category, 0, len(cj.EnabledCategories))
		for _, raw := range cj.EnabledCategories {
			c := entitlement.Category(raw)
			if !c.Valid() {
				return nil, fmt.Errorf("enabled_categories contains unknown category %q", raw)
			}
			cats = append(cats, c)
		}
		cfg.EnabledCategories = cats
	}

	cfg.ExtraCodeFields = cj.ExtraCodeFields
	cfg.ExtraStartDateFields = cj.ExtraStartDateFields
	cfg.ExtraEndDateFields = cj.ExtraEndDateFields

	if cj.Scheduler != nil {
		if cj.Scheduler.Enabled != nil {
			cfg.SchedulerEnabled = *cj.Scheduler.Enabled
		}
		if cj.Scheduler.IntervalMinutes != 0 {
			if cj.Scheduler.IntervalMinutes < 0 {
				return nil, fmt.Errorf("scheduler.interval_minutes must be positive, got %d", cj.Scheduler.IntervalMinutes)
			}
			cfg.SchedulerInterval = time.Duration(cj.Scheduler.IntervalMinutes) * time.Minute
		}
	}

	// The default window must itself be reachable from the UI presets.
	if !cfg.ValidWindow(cfg.DefaultWindowDays) {
		cfg.WindowPresets = append(cfg.WindowPresets, cfg.DefaultWindowDays)
	}

	return cfg, nil
}

/*
Package factory builds runtime configuration from a JSON settings document.

PURPOSE:
  Converts the operator-facing JSON settings into the engine's typed
  configuration: the billing rate card and the auto-close sweep behavior.
  Keeping the conversion in one place means main, tests and scenario
  seeding all agree on defaults.

EXAMPLE DOCUMENT:
  {
    "water_rate_per_day": "5.00",
    "sweep_enabled": true,
    "sweep_interval": "1h"
  }
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// ConfigJSON is the operator-facing settings document.
type ConfigJSON struct {
	// WaterRatePerDay is a decimal string, e.g. "5.00".
	WaterRatePerDay string `json:"water_rate_per_day"`

	// SweepEnabled toggles the background auto-close sweep.
	SweepEnabled *bool `json:"sweep_enabled,omitempty"`

	// SweepInterval is a Go duration string, e.g. "1h", "15m".
	SweepInterval string `json:"sweep_interval,omitempty"`
}

// Config is the typed runtime configuration.
type Config struct {
	Rates         billing.Rates
	SweepEnabled  bool
	SweepInterval time.Duration
}

// Default returns the standard configuration: 5.00/day water, hourly sweep.
func Default() Config {
	return Config{
		Rates:         billing.DefaultRates(),
		SweepEnabled:  true,
		SweepInterval: time.Hour,
	}
}

// Parse converts a JSON settings document, filling omitted fields from
// Default.
func Parse(data []byte) (Config, error) {
	var cj ConfigJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return Config{}, fmt.Errorf("parse settings: %w", err)
	}
	return fromJSON(cj)
}

// Load reads a settings file. A missing file is not an error: the defaults
// apply.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	return Parse(data)
}

func fromJSON(cj ConfigJSON) (Config, error) {
	cfg := Default()

	if cj.WaterRatePerDay != "" {
		d, err := decimal.NewFromString(cj.WaterRatePerDay)
		if err != nil || d.IsNegative() {
			return Config{}, fmt.Errorf("invalid water_rate_per_day %q", cj.WaterRatePerDay)
		}
		cfg.Rates.WaterPerDay = billing.Money{Value: d}
	}
	if cj.SweepEnabled != nil {
		cfg.SweepEnabled = *cj.SweepEnabled
	}
	if cj.SweepInterval != "" {
		d, err := time.ParseDuration(cj.SweepInterval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid sweep_interval %q: %w", cj.SweepInterval, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("sweep_interval must be positive, got %q", cj.SweepInterval)
		}
		cfg.SweepInterval = d
	}
	return cfg, nil
}

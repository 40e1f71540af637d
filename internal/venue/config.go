package venue

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes one simulated venue in the universe file.
type Config struct {
	Name         string             `yaml:"name"`
	FeeBps       float64            `yaml:"fee_bps"`
	SpreadBps    float64            `yaml:"spread_bps"`
	DepthLevels  int                `yaml:"depth_levels"`
	LevelSize    float64            `yaml:"level_size"`
	LatencyMinMs int                `yaml:"latency_min_ms"`
	LatencyMaxMs int                `yaml:"latency_max_ms"`
	FailRate     float64            `yaml:"fail_rate"`
	RateLimit    float64            `yaml:"rate_limit"` // requests per second, 0 = unlimited
	BasePrices   map[string]float64 `yaml:"base_prices"`
}

// File is the top-level YAML structure.
type File struct {
	Venues []Config `yaml:"venues"`
}

// LoadConfig reads the venue universe from a YAML file.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse venue config: %w", err)
	}
	if len(file.Venues) == 0 {
		return nil, fmt.Errorf("venue config %s defines no venues", path)
	}
	for i := range file.Venues {
		applyDefaults(&file.Venues[i])
	}
	return file.Venues, nil
}

// DefaultUniverse is the built-in three-venue universe used when no config
// file is present.
func DefaultUniverse() []Config {
	base := map[string]float64{
		"BTC/USDT": 50000,
		"ETH/USDT": 3000,
		"SOL/USDT": 150,
	}
	venues := []Config{
		{Name: "alpha", FeeBps: 8, SpreadBps: 4, LatencyMinMs: 2, LatencyMaxMs: 8, BasePrices: base},
		{Name: "bravo", FeeBps: 10, SpreadBps: 6, LatencyMinMs: 5, LatencyMaxMs: 15, BasePrices: base},
		{Name: "gamma", FeeBps: 12, SpreadBps: 10, LatencyMinMs: 10, LatencyMaxMs: 40, BasePrices: base},
	}
	for i := range venues {
		applyDefaults(&venues[i])
	}
	return venues
}

func applyDefaults(c *Config) {
	if c.DepthLevels <= 0 {
		c.DepthLevels = 5
	}
	if c.LevelSize <= 0 {
		c.LevelSize = 2.0
	}
	if c.SpreadBps <= 0 {
		c.SpreadBps = 5
	}
	if c.LatencyMaxMs < c.LatencyMinMs {
		c.LatencyMinMs, c.LatencyMaxMs = c.LatencyMaxMs, c.LatencyMinMs
	}
}

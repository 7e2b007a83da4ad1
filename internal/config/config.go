package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config tunes the planners and the repair job. Every field has a working
// default; a missing file or empty section leaves the engine on defaults.
// Connection strings come from the environment (DATABASE_URL, REDIS_URL,
// PORT), not from this file.
type Config struct {
	Planner Planner `yaml:"planner"`
	VRP     VRP     `yaml:"vrp"`
	Repair  Repair  `yaml:"repair"`
}

type Planner struct {
	InitialRadiusM  float64 `yaml:"initial-radius-m"`
	MaxRadiusM      float64 `yaml:"max-radius-m"`
	MaxAttempts     int     `yaml:"max-attempts"`
	RiskThreshold   int     `yaml:"risk-threshold"`
	RiskPenalty     float64 `yaml:"risk-penalty"`
	DefaultSpeedKph float64 `yaml:"default-speed-kph"`
	SnapDistanceM   float64 `yaml:"snap-distance-m"` // max distance from query point to nearest node
}

type VRP struct {
	TimeBudgetMs int     `yaml:"time-budget-ms"`
	SpeedKph     float64 `yaml:"speed-kph"`
	InitialTemp  float64 `yaml:"initial-temp"`
	Cooling      float64 `yaml:"cooling"`
}

type Repair struct {
	BatchSize        int     `yaml:"batch-size"`
	MaxBatches       int     `yaml:"max-batches"`
	SnapToleranceM   float64 `yaml:"snap-tolerance-m"`
	AssocToleranceM  float64 `yaml:"assoc-tolerance-m"`
	BatchesPerSecond float64 `yaml:"batches-per-second"`
}

func Default() Config {
	return Config{
		Planner: Planner{
			InitialRadiusM:  3000,
			MaxRadiusM:      50000,
			MaxAttempts:     4,
			RiskThreshold:   4,
			RiskPenalty:     5.0,
			DefaultSpeedKph: 40,
			SnapDistanceM:   2000,
		},
		VRP: VRP{
			TimeBudgetMs: 2000,
			SpeedKph:     50,
			InitialTemp:  1.0,
			Cooling:      0.995,
		},
		Repair: Repair{
			BatchSize:        100,
			MaxBatches:       20,
			SnapToleranceM:   10,
			AssocToleranceM:  15,
			BatchesPerSecond: 2,
		},
	}
}

// Load reads a yaml config file over the defaults. A missing path is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	d := Default()
	if c.Planner.InitialRadiusM <= 0 {
		c.Planner.InitialRadiusM = d.Planner.InitialRadiusM
	}
	if c.Planner.MaxRadiusM <= 0 {
		c.Planner.MaxRadiusM = d.Planner.MaxRadiusM
	}
	if c.Planner.MaxAttempts <= 0 {
		c.Planner.MaxAttempts = d.Planner.MaxAttempts
	}
	if c.Planner.RiskThreshold <= 0 {
		c.Planner.RiskThreshold = d.Planner.RiskThreshold
	}
	if c.Planner.RiskPenalty <= 1 {
		c.Planner.RiskPenalty = d.Planner.RiskPenalty
	}
	if c.Planner.DefaultSpeedKph <= 0 {
		c.Planner.DefaultSpeedKph = d.Planner.DefaultSpeedKph
	}
	if c.Planner.SnapDistanceM <= 0 {
		c.Planner.SnapDistanceM = d.Planner.SnapDistanceM
	}
	if c.VRP.TimeBudgetMs <= 0 {
		c.VRP.TimeBudgetMs = d.VRP.TimeBudgetMs
	}
	if c.VRP.SpeedKph <= 0 {
		c.VRP.SpeedKph = d.VRP.SpeedKph
	}
	if c.Repair.BatchSize <= 0 {
		c.Repair.BatchSize = d.Repair.BatchSize
	}
	if c.Repair.MaxBatches <= 0 {
		c.Repair.MaxBatches = d.Repair.MaxBatches
	}
	if c.Repair.SnapToleranceM <= 0 {
		c.Repair.SnapToleranceM = d.Repair.SnapToleranceM
	}
	if c.Repair.AssocToleranceM <= 0 {
		c.Repair.AssocToleranceM = d.Repair.AssocToleranceM
	}
	if c.Repair.BatchesPerSecond <= 0 {
		c.Repair.BatchesPerSecond = d.Repair.BatchesPerSecond
	}
	return c
}

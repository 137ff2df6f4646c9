// Package config provides configuration loading and management for krigingpower.
// It handles loading configuration from YAML files, command-line overrides and
// provides the default scenario.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Position is a planar location in meters
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Geometry of the primary link, the secondary transmitter and the
	// measurement area
	Geometry struct {
		// Receiver is the primary receiver location where power is kriged
		Receiver Position `yaml:"receiver"`

		// PrimaryTx is the primary transmitter whose field is measured
		PrimaryTx Position `yaml:"primaryTx"`

		// SecondaryTx is the secondary transmitter whose power is limited
		SecondaryTx Position `yaml:"secondaryTx"`

		// Radius is the measurement radius around the receiver in meters
		Radius float64 `yaml:"radius"`

		// Layout is "disc" (uniform over the area) or "circle" (perimeter only)
		Layout string `yaml:"layout"`
	} `yaml:"geometry"`

	// Log-normal shadowing parameters
	Shadowing struct {
		// CorrelationDistance is the distance at which correlation drops to 0.5
		CorrelationDistance float64 `yaml:"correlationDistance"`

		// PrimaryStdDb is the shadowing standard deviation of the measured field
		PrimaryStdDb float64 `yaml:"primaryStdDb"`

		// SecondaryStdDb is the shadowing standard deviation of the secondary link
		SecondaryStdDb float64 `yaml:"secondaryStdDb"`
	} `yaml:"shadowing"`

	// Link budget parameters
	Link struct {
		// TransmitPowerDbm is the primary transmit power
		TransmitPowerDbm float64 `yaml:"transmitPowerDbm"`

		// PathLossExponent is eta in 10*eta*log10(d)
		PathLossExponent float64 `yaml:"pathLossExponent"`

		// ReferenceLossDb is added to every path loss
		ReferenceLossDb float64 `yaml:"referenceLossDb"`
	} `yaml:"link"`

	// Empirical semivariogram and model fit
	Semivariogram struct {
		MaxLag        float64 `yaml:"maxLag"`
		Bins          int     `yaml:"bins"`
		Family        string  `yaml:"family"`
		PairWeighting bool    `yaml:"pairWeighting"`
		MaxIterations int     `yaml:"maxIterations"`
	} `yaml:"semivariogram"`

	// Ordinary kriging
	Kriging struct {
		// Solver is "lu" or "qr"
		Solver string `yaml:"solver"`

		// MaxNeighbors limits each query to its nearest samples, 0 means all
		MaxNeighbors int `yaml:"maxNeighbors"`

		// ConditionLimit is the largest condition number accepted by the solver
		ConditionLimit float64 `yaml:"conditionLimit"`
	} `yaml:"kriging"`

	// Per-trial parameters of the power rule
	Trial struct {
		// Samples is the number of measurements per trial
		Samples int `yaml:"samples"`

		// TargetOutage is the tolerated outage probability of the primary link
		TargetOutage float64 `yaml:"targetOutage"`

		// SIRThresholdDb is the primary receiver's SIR requirement
		SIRThresholdDb float64 `yaml:"sirThresholdDb"`
	} `yaml:"trial"`

	// Monte-Carlo run parameters
	Run struct {
		Trials  int    `yaml:"trials"`
		Workers int    `yaml:"workers"`
		Seed    uint64 `yaml:"seed"`

		// FailurePolicy is "skip" or "abort"
		FailurePolicy string `yaml:"failurePolicy"`

		// MaxRetries bounds how often one trial is redrawn under "skip"
		MaxRetries int `yaml:"maxRetries"`
	} `yaml:"run"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// MapDir is where radio map images are written, empty disables them
		MapDir string `yaml:"mapDir"`

		// MapResolution is the number of grid cells per side of the radio map
		MapResolution int `yaml:"mapResolution"`
	} `yaml:"output"`
}

// DefaultConfig returns the reference scenario
func DefaultConfig() *Config {
	cfg := &Config{}

	const radius = 100.0
	cfg.Geometry.Receiver = Position{X: radius, Y: radius}
	cfg.Geometry.PrimaryTx = Position{X: -1000, Y: radius}
	cfg.Geometry.SecondaryTx = Position{X: 1000, Y: radius}
	cfg.Geometry.Radius = radius
	cfg.Geometry.Layout = "disc"

	cfg.Shadowing.CorrelationDistance = 20
	cfg.Shadowing.PrimaryStdDb = 8
	cfg.Shadowing.SecondaryStdDb = 8

	cfg.Link.TransmitPowerDbm = 30
	cfg.Link.PathLossExponent = 3.5

	cfg.Semivariogram.MaxLag = 2 * radius
	cfg.Semivariogram.Bins = 20
	cfg.Semivariogram.Family = "exponential"
	cfg.Semivariogram.MaxIterations = 5000

	cfg.Kriging.Solver = "lu"
	cfg.Kriging.ConditionLimit = 1e12

	cfg.Trial.Samples = 50
	cfg.Trial.TargetOutage = 0.1
	cfg.Trial.SIRThresholdDb = 10

	cfg.Run.Trials = 1000
	cfg.Run.Workers = runtime.NumCPU()
	cfg.Run.Seed = 1
	cfg.Run.FailurePolicy = "skip"
	cfg.Run.MaxRetries = 10

	cfg.Output.MapResolution = 64

	return cfg
}

// Validate checks value ranges that do not depend on other packages
func (c *Config) Validate() error {
	switch {
	case c.Geometry.Radius <= 0:
		return errors.Errorf("geometry.radius must be positive, got %v", c.Geometry.Radius)
	case c.Shadowing.CorrelationDistance <= 0:
		return errors.Errorf("shadowing.correlationDistance must be positive, got %v", c.Shadowing.CorrelationDistance)
	case c.Shadowing.PrimaryStdDb < 0 || c.Shadowing.SecondaryStdDb < 0:
		return errors.New("shadowing standard deviations must not be negative")
	case c.Semivariogram.MaxLag <= 0:
		return errors.Errorf("semivariogram.maxLag must be positive, got %v", c.Semivariogram.MaxLag)
	case c.Semivariogram.Bins < 1:
		return errors.Errorf("semivariogram.bins must be at least 1, got %d", c.Semivariogram.Bins)
	case c.Kriging.MaxNeighbors < 0:
		return errors.Errorf("kriging.maxNeighbors must not be negative, got %d", c.Kriging.MaxNeighbors)
	case c.Trial.Samples < 2:
		return errors.Errorf("trial.samples must be at least 2, got %d", c.Trial.Samples)
	case c.Run.Trials < 1:
		return errors.Errorf("run.trials must be at least 1, got %d", c.Run.Trials)
	case c.Run.Workers < 0:
		return errors.Errorf("run.workers must not be negative, got %d", c.Run.Workers)
	case c.Run.MaxRetries < 0:
		return errors.Errorf("run.maxRetries must not be negative, got %d", c.Run.MaxRetries)
	case c.Run.FailurePolicy != "skip" && c.Run.FailurePolicy != "abort":
		return errors.Errorf("run.failurePolicy must be skip or abort, got %q", c.Run.FailurePolicy)
	case c.Output.MapResolution < 2:
		return errors.Errorf("output.mapResolution must be at least 2, got %d", c.Output.MapResolution)
	}
	return nil
}

// ApplyOverrides sets fields from dotted keys such as "trial.samples" or
// "geometry.receiver.x". Keys follow the YAML names, case-insensitively;
// values are converted with weak typing so "30" sets an int and "true" a bool.
func (c *Config) ApplyOverrides(overrides map[string]string) error {
	if len(overrides) == 0 {
		return nil
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tree := map[string]interface{}{}
	for _, key := range keys {
		parts := strings.Split(strings.TrimSpace(key), ".")
		node := tree
		for i, part := range parts {
			if part == "" {
				return errors.Errorf("invalid override key %q", key)
			}
			if i == len(parts)-1 {
				if _, exists := node[part]; exists {
					return errors.Errorf("override %q conflicts with another key", key)
				}
				node[part] = strings.TrimSpace(overrides[key])
				break
			}
			child, ok := node[part].(map[string]interface{})
			if !ok {
				if _, exists := node[part]; exists {
					return errors.Errorf("override %q conflicts with another key", key)
				}
				child = map[string]interface{}{}
				node[part] = child
			}
			node = child
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           c,
	})
	if err != nil {
		return errors.Wrap(err, "error creating override decoder")
	}
	if err := dec.Decode(tree); err != nil {
		return errors.Wrap(err, "error applying overrides")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

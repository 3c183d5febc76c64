// Package config provides configuration loading and management for svinterp.
// It handles loading configuration from YAML files, applies SVINTERP_*
// environment overrides and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"svinterp/internal/models"
	"svinterp/pkg/interpolation"
	"svinterp/pkg/processing"
	"svinterp/pkg/regrid"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers bounds how many channels are processed concurrently
		Workers int `yaml:"workers" env:"SVINTERP_WORKERS"`
	} `yaml:"processing"`

	// Gap interpolation parameters
	Interpolation struct {
		// Target is the decibel variable to fill
		Target string `yaml:"target"`

		// Dim is the dimension interpolated along
		Dim string `yaml:"dim"`

		// Method is "linear" or "nearest"
		Method string `yaml:"method" env:"SVINTERP_METHOD"`

		// EdgeFill extends edge values into leading and trailing gaps
		EdgeFill bool `yaml:"edgeFill" env:"SVINTERP_EDGE_FILL"`

		// MaskTypes restricts which masks are applied; empty applies all
		MaskTypes []string `yaml:"maskTypes"`
	} `yaml:"interpolation"`

	// Range regridding parameters
	Regrid struct {
		// SpacingPolicy is "finest", "coarsest" or "fixed"
		SpacingPolicy string `yaml:"spacingPolicy" env:"SVINTERP_SPACING_POLICY"`

		// Spacing is the grid step in meters for the fixed policy
		Spacing float64 `yaml:"spacing"`

		// Method is "linear" or "nearest"
		Method string `yaml:"method"`

		// PowerVariables are resampled in linear power
		PowerVariables []string `yaml:"powerVariables"`
	} `yaml:"regrid"`

	// Output parameters
	Output struct {
		// LogLevel is debug, info, warn or error
		LogLevel string `yaml:"logLevel" env:"SVINTERP_LOG_LEVEL"`

		// LogFormat is text or json
		LogFormat string `yaml:"logFormat" env:"SVINTERP_LOG_FORMAT"`

		// PlotDir receives echogram images when set
		PlotDir string `yaml:"plotDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()

	cfg.Interpolation.Target = models.SvVar
	cfg.Interpolation.Dim = models.PingTimeDim
	cfg.Interpolation.Method = interpolation.Linear.String()
	cfg.Interpolation.EdgeFill = false

	cfg.Regrid.SpacingPolicy = regrid.Finest.String()
	cfg.Regrid.Method = interpolation.Linear.String()
	cfg.Regrid.PowerVariables = append([]string(nil), regrid.DefaultPowerVariables...)

	cfg.Output.LogLevel = "info"
	cfg.Output.LogFormat = "text"

	return cfg
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, the defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// ApplyEnv overwrites every field tagged with env whose variable is set
// and non-empty.
func (c *Config) ApplyEnv() error {
	return applyEnv(reflect.ValueOf(c).Elem())
}

func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if !fieldVal.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := applyEnv(fieldVal); err != nil {
				return err
			}
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			continue
		}
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Processing.Workers < 0 {
		errs = append(errs, fmt.Sprintf("processing.workers (%d) must be non-negative", c.Processing.Workers))
	}
	if _, err := interpolation.ParseMethod(c.Interpolation.Method); err != nil {
		errs = append(errs, fmt.Sprintf("interpolation.method: %v", err))
	}
	if c.Interpolation.Dim == models.ChannelDim {
		errs = append(errs, "interpolation.dim must not be channel")
	}
	policy, err := regrid.ParseSpacingPolicy(c.Regrid.SpacingPolicy)
	if err != nil {
		errs = append(errs, fmt.Sprintf("regrid.spacingPolicy: %v", err))
	}
	if err == nil && policy == regrid.Fixed && !(c.Regrid.Spacing > 0) {
		errs = append(errs, "regrid.spacing must be positive with the fixed policy")
	}
	if _, err := interpolation.ParseMethod(c.Regrid.Method); err != nil {
		errs = append(errs, fmt.Sprintf("regrid.method: %v", err))
	}
	switch strings.ToLower(c.Output.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("output.logFormat %q must be text or json", c.Output.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// InterpolationParams maps the configuration onto processing parameters.
// The logger and progress callback are left for the caller.
func (c *Config) InterpolationParams() (processing.Params, error) {
	method, err := interpolation.ParseMethod(c.Interpolation.Method)
	if err != nil {
		return processing.Params{}, err
	}
	params := processing.DefaultParams()
	if c.Interpolation.Target != "" {
		params.Target = c.Interpolation.Target
	}
	if c.Interpolation.Dim != "" {
		params.Dim = c.Interpolation.Dim
	}
	params.Method = method
	params.EdgeFill = c.Interpolation.EdgeFill
	params.MaskTypes = append([]string(nil), c.Interpolation.MaskTypes...)
	params.Workers = c.Processing.Workers
	return params, nil
}

// RegridParams maps the configuration onto regrid parameters.
func (c *Config) RegridParams() (processing.RegridParams, error) {
	policy, err := regrid.ParseSpacingPolicy(c.Regrid.SpacingPolicy)
	if err != nil {
		return processing.RegridParams{}, err
	}
	method, err := interpolation.ParseMethod(c.Regrid.Method)
	if err != nil {
		return processing.RegridParams{}, err
	}
	params := processing.DefaultRegridParams()
	params.Policy = policy
	params.Spacing = c.Regrid.Spacing
	params.Method = method
	params.Workers = c.Processing.Workers
	if c.Regrid.PowerVariables != nil {
		params.PowerVariables = append([]string(nil), c.Regrid.PowerVariables...)
	}
	return params, nil
}

// Package linconfig carries the analyzer's immutable configuration value.
// It is the single place the six tunables named in the specification's
// external-interfaces table (plus two supplemental physical-layer
// tolerances) are defined, defaulted, and validated. The type itself has no
// I/O; LoadYAML is the only function that touches the filesystem.
package linconfig

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the immutable, validated configuration threaded through the
// analyzer's constructor. There is no global/process-wide configuration
// state anywhere in this codebase.
type Config struct {
	BitRateHz               float64
	BitRateTolerance        float64
	GatewayTimeWindowS      float64
	ScheduleToleranceS      float64
	MaxJitterS              float64
	BusLoadWindowS          float64
	FrameDurationTolerance  float64
	IfsMinBits              int
}

// Default returns the configuration with every value at its specification
// default.
func Default() Config {
	return Config{
		BitRateHz:              19200,
		BitRateTolerance:       0.005,
		GatewayTimeWindowS:     0.010,
		ScheduleToleranceS:     0.0005,
		MaxJitterS:             0.001,
		BusLoadWindowS:         0.100,
		FrameDurationTolerance: 0.02,
		IfsMinBits:             3,
	}
}

// Option mutates a Config under construction. New takes a variadic list of
// Options so library callers and tests can override only what they need.
type Option func(*Config)

func WithBitRate(hz float64) Option                   { return func(c *Config) { c.BitRateHz = hz } }
func WithBitRateTolerance(frac float64) Option         { return func(c *Config) { c.BitRateTolerance = frac } }
func WithGatewayTimeWindow(s float64) Option           { return func(c *Config) { c.GatewayTimeWindowS = s } }
func WithScheduleTolerance(s float64) Option           { return func(c *Config) { c.ScheduleToleranceS = s } }
func WithMaxJitter(s float64) Option                   { return func(c *Config) { c.MaxJitterS = s } }
func WithBusLoadWindow(s float64) Option               { return func(c *Config) { c.BusLoadWindowS = s } }
func WithFrameDurationTolerance(frac float64) Option   { return func(c *Config) { c.FrameDurationTolerance = frac } }
func WithIfsMinBits(bits int) Option                   { return func(c *Config) { c.IfsMinBits = bits } }

// New builds a Config from the specification defaults with the given
// options applied, then validates it.
func New(opts ...Option) (Config, error) {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports a ConfigError-class error (per the specification's hard
// failure taxonomy) when any tolerance is non-finite or negative, or the
// bit rate is non-positive.
func (c Config) Validate() error {
	fields := map[string]float64{
		"bit_rate":                c.BitRateHz,
		"bit_rate_tolerance":      c.BitRateTolerance,
		"gateway_time_window":     c.GatewayTimeWindowS,
		"schedule_tolerance":      c.ScheduleToleranceS,
		"max_jitter":              c.MaxJitterS,
		"bus_load_window":         c.BusLoadWindowS,
		"frame_duration_tolerance": c.FrameDurationTolerance,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("linconfig: %s is not finite: %v", name, v)
		}
		if v < 0 {
			return fmt.Errorf("linconfig: %s must not be negative: %v", name, v)
		}
	}
	if c.BitRateHz == 0 {
		return fmt.Errorf("linconfig: bit_rate must be positive")
	}
	if c.IfsMinBits < 0 {
		return fmt.Errorf("linconfig: ifs_min_bits must not be negative: %d", c.IfsMinBits)
	}
	return nil
}

// yamlDocument mirrors the on-disk YAML shape; field names match the
// specification's external-interfaces table verbatim so a hand-written
// config file reads the same as the table.
type yamlDocument struct {
	BitRate                float64 `yaml:"bit_rate"`
	BitRateTolerance       float64 `yaml:"bit_rate_tolerance"`
	GatewayTimeWindow      float64 `yaml:"gateway_time_window"`
	ScheduleTolerance      float64 `yaml:"schedule_tolerance"`
	MaxJitter              float64 `yaml:"max_jitter"`
	BusLoadWindow          float64 `yaml:"bus_load_window"`
	FrameDurationTolerance float64 `yaml:"frame_duration_tolerance"`
	IfsMinBits             int     `yaml:"ifs_min_bits"`
}

// LoadYAML reads a YAML config document from path, applying the
// specification defaults for any key it omits.
func LoadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("linconfig: reading %s: %w", path, err)
	}
	doc := yamlDocument{}
	def := Default()
	doc.BitRate = def.BitRateHz
	doc.BitRateTolerance = def.BitRateTolerance
	doc.GatewayTimeWindow = def.GatewayTimeWindowS
	doc.ScheduleTolerance = def.ScheduleToleranceS
	doc.MaxJitter = def.MaxJitterS
	doc.BusLoadWindow = def.BusLoadWindowS
	doc.FrameDurationTolerance = def.FrameDurationTolerance
	doc.IfsMinBits = def.IfsMinBits

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("linconfig: parsing %s: %w", path, err)
	}
	c := Config{
		BitRateHz:              doc.BitRate,
		BitRateTolerance:       doc.BitRateTolerance,
		GatewayTimeWindowS:     doc.GatewayTimeWindow,
		ScheduleToleranceS:     doc.ScheduleTolerance,
		MaxJitterS:             doc.MaxJitter,
		BusLoadWindowS:         doc.BusLoadWindow,
		FrameDurationTolerance: doc.FrameDurationTolerance,
		IfsMinBits:             doc.IfsMinBits,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

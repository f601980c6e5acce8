package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/menta2k/screen-locator/pkg/action"
	"github.com/menta2k/screen-locator/pkg/grid"
	"github.com/menta2k/screen-locator/pkg/locator"
	"github.com/menta2k/screen-locator/pkg/oracle"
	"github.com/menta2k/screen-locator/pkg/processing"
)

// EnvPrefix prefixes environment overrides, e.g. LOCATOR_ORACLE_MODEL
const EnvPrefix = "LOCATOR"

// Oracle backends
const (
	BackendOllama   = "ollama"
	BackendLlamaCPP = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Locator   LocatorConfig   `json:"locator" mapstructure:"locator"`
	Oracle    OracleConfig    `json:"oracle" mapstructure:"oracle"`
	Device    DeviceConfig    `json:"device" mapstructure:"device"`
	Artifacts ArtifactsConfig `json:"artifacts" mapstructure:"artifacts"`
	Action    ActionConfig    `json:"action" mapstructure:"action"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// LocatorConfig holds the grid and zoom parameters
type LocatorConfig struct {
	Sides       int     `json:"sides" mapstructure:"sides"`
	Upscale     int     `json:"upscale" mapstructure:"upscale"`
	MaxDepth    int     `json:"max_depth" mapstructure:"max_depth"`
	Opacity     float64 `json:"opacity" mapstructure:"opacity"`
	MarkerColor string  `json:"marker_color" mapstructure:"marker_color"`
	LabelColor  string  `json:"label_color" mapstructure:"label_color"`
	MinFontSize int     `json:"min_font_size" mapstructure:"min_font_size"`
}

// OracleConfig selects and tunes the vision model backend
type OracleConfig struct {
	Backend     string        `json:"backend" mapstructure:"backend"`
	URL         string        `json:"url" mapstructure:"url"`
	Model       string        `json:"model" mapstructure:"model"`
	Retries     int           `json:"retries" mapstructure:"retries"`
	RetryDelay  time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
	ImageFormat string        `json:"image_format" mapstructure:"image_format"`
}

// DeviceConfig points at the desktop agent
type DeviceConfig struct {
	URL         string        `json:"url" mapstructure:"url"`
	SettleDelay time.Duration `json:"settle_delay" mapstructure:"settle_delay"`
}

// ArtifactsConfig controls where intermediate images are written
type ArtifactsConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	DataPath string `json:"data_path" mapstructure:"data_path"`
	Format   string `json:"format" mapstructure:"format"`
}

// ActionConfig is the retry budget of a whole click
type ActionConfig struct {
	Attempts uint          `json:"attempts" mapstructure:"attempts"`
	Delay    time.Duration `json:"delay" mapstructure:"delay"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	lc := locator.DefaultConfig()
	oc := oracle.DefaultConfig()
	ac := action.DefaultConfig()
	return &Config{
		Locator: LocatorConfig{
			Sides:       lc.Sides,
			Upscale:     lc.Upscale,
			MaxDepth:    lc.MaxDepth,
			Opacity:     lc.Opacity,
			MarkerColor: lc.MarkerColor,
			LabelColor:  lc.LabelColor,
			MinFontSize: lc.MinFontSize,
		},
		Oracle: OracleConfig{
			Backend:     BackendOllama,
			URL:         "http://localhost:11434",
			Model:       "qwen2.5vl:7b",
			Retries:     oc.Retries,
			RetryDelay:  oc.RetryDelay,
			ImageFormat: oc.ImageFormat,
		},
		Device: DeviceConfig{
			URL:         "http://localhost:8000",
			SettleDelay: 2 * time.Second,
		},
		Artifacts: ArtifactsConfig{
			Enabled:  true,
			DataPath: "./.data",
			Format:   processing.FormatPNG,
		},
		Action: ActionConfig{
			Attempts: ac.Attempts,
			Delay:    ac.Delay,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// setDefaults registers every leaf key so environment overrides resolve
// for keys that are absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("locator.sides", d.Locator.Sides)
	v.SetDefault("locator.upscale", d.Locator.Upscale)
	v.SetDefault("locator.max_depth", d.Locator.MaxDepth)
	v.SetDefault("locator.opacity", d.Locator.Opacity)
	v.SetDefault("locator.marker_color", d.Locator.MarkerColor)
	v.SetDefault("locator.label_color", d.Locator.LabelColor)
	v.SetDefault("locator.min_font_size", d.Locator.MinFontSize)

	v.SetDefault("oracle.backend", d.Oracle.Backend)
	v.SetDefault("oracle.url", d.Oracle.URL)
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.retries", d.Oracle.Retries)
	v.SetDefault("oracle.retry_delay", d.Oracle.RetryDelay)
	v.SetDefault("oracle.image_format", d.Oracle.ImageFormat)

	v.SetDefault("device.url", d.Device.URL)
	v.SetDefault("device.settle_delay", d.Device.SettleDelay)

	v.SetDefault("artifacts.enabled", d.Artifacts.Enabled)
	v.SetDefault("artifacts.data_path", d.Artifacts.DataPath)
	v.SetDefault("artifacts.format", d.Artifacts.Format)

	v.SetDefault("action.attempts", d.Action.Attempts)
	v.SetDefault("action.delay", d.Action.Delay)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads configuration from path (or config.json in the working
// directory and the default config directory when path is empty), applies
// LOCATOR_ environment overrides and validates the result. A missing
// default config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Dir(GetConfigPath()))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.LocatorConfig().Validate(); err != nil {
		return fmt.Errorf("locator: %w", err)
	}

	switch c.Oracle.Backend {
	case BackendOllama, BackendLlamaCPP:
	default:
		return fmt.Errorf("oracle.backend must be %q or %q", BackendOllama, BackendLlamaCPP)
	}
	if c.Oracle.URL == "" {
		return fmt.Errorf("oracle.url cannot be empty")
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model cannot be empty")
	}
	if c.Oracle.Retries < 0 {
		return fmt.Errorf("oracle.retries cannot be negative")
	}
	if !validFormat(c.Oracle.ImageFormat) {
		return fmt.Errorf("oracle.image_format must be png, jpeg or webp")
	}

	if c.Device.SettleDelay < 0 {
		return fmt.Errorf("device.settle_delay cannot be negative")
	}

	if c.Artifacts.Enabled && c.Artifacts.DataPath == "" {
		return fmt.Errorf("artifacts.data_path cannot be empty")
	}
	if !validFormat(c.Artifacts.Format) {
		return fmt.Errorf("artifacts.format must be png, jpeg or webp")
	}

	if c.Action.Attempts < 1 {
		return fmt.Errorf("action.attempts must be at least 1")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}

	return nil
}

func validFormat(format string) bool {
	switch strings.ToLower(format) {
	case "png", "jpg", "jpeg", "webp":
		return true
	}
	return false
}

// LocatorConfig converts the locator section
func (c *Config) LocatorConfig() locator.Config {
	return locator.Config{
		Sides:       c.Locator.Sides,
		Upscale:     c.Locator.Upscale,
		MaxDepth:    c.Locator.MaxDepth,
		Opacity:     c.Locator.Opacity,
		MarkerColor: c.Locator.MarkerColor,
		LabelColor:  c.Locator.LabelColor,
		MinFontSize: c.Locator.MinFontSize,
	}
}

// OracleConfig converts the oracle section
func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		Model:       c.Oracle.Model,
		Namespace:   oracle.DefaultNamespace,
		Retries:     c.Oracle.Retries,
		RetryDelay:  c.Oracle.RetryDelay,
		ImageFormat: processing.NormalizeFormat(c.Oracle.ImageFormat),
	}
}

// ActionConfig converts the action section
func (c *Config) ActionConfig() action.Config {
	return action.Config{Attempts: c.Action.Attempts, Delay: c.Action.Delay}
}

// GridConfig returns the overlay renderer settings
func (c *Config) GridConfig() (grid.Config, error) {
	marker, err := grid.ParseColor(c.Locator.MarkerColor)
	if err != nil {
		return grid.Config{}, err
	}
	label, err := grid.ParseColor(c.Locator.LabelColor)
	if err != nil {
		return grid.Config{}, err
	}
	return grid.Config{MarkerColor: marker, LabelColor: label, MinFontSize: c.Locator.MinFontSize}, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "screen-locator", "config.json")
}

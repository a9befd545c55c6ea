// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Emulation EmulationConfig `mapstructure:"emulation" yaml:"emulation"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output (rotated by lumberjack). Empty disables file logging.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls how the browser process is launched or attached.
type BrowserConfig struct {
	// RemoteURL attaches to an already-running browser's debugging endpoint
	// (ws:// or http://) instead of launching a local process.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`

	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache    bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	ProxyServer     string   `mapstructure:"proxy_server" yaml:"proxy_server"`
	WindowWidth     int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int      `mapstructure:"window_height" yaml:"window_height"`
	Args            []string `mapstructure:"args" yaml:"args"`

	// LaunchTimeout bounds the startup responsiveness probe.
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// NetworkConfig controls navigation and waiting behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	IdleQuietPeriod   time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	CaptureBodies     bool          `mapstructure:"capture_bodies" yaml:"capture_bodies"`
}

// CaptureConfig controls screenshot and PDF output.
type CaptureConfig struct {
	Format    string  `mapstructure:"format" yaml:"format"` // png, jpeg, webp
	Quality   int     `mapstructure:"quality" yaml:"quality"`
	FullPage  bool    `mapstructure:"full_page" yaml:"full_page"`
	OutputDir string  `mapstructure:"output_dir" yaml:"output_dir"`
	PDFScale  float64 `mapstructure:"pdf_scale" yaml:"pdf_scale"`
}

// EmulationConfig describes a default device emulation applied to new sessions.
// An empty Device with zero Width/Height means no emulation.
type EmulationConfig struct {
	Device    string  `mapstructure:"device" yaml:"device"`
	Width     int64   `mapstructure:"width" yaml:"width"`
	Height    int64   `mapstructure:"height" yaml:"height"`
	Scale     float64 `mapstructure:"scale" yaml:"scale"`
	Mobile    bool    `mapstructure:"mobile" yaml:"mobile"`
	Touch     bool    `mapstructure:"touch" yaml:"touch"`
	Landscape bool    `mapstructure:"landscape" yaml:"landscape"`
}

// NewDefaultConfig returns a Config populated with sane defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "puppetry",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Browser: BrowserConfig{
			Headless:      true,
			WindowWidth:   1280,
			WindowHeight:  800,
			LaunchTimeout: 30 * time.Second,
		},
		Network: NetworkConfig{
			NavigationTimeout: 45 * time.Second,
			ActionTimeout:     15 * time.Second,
			PostLoadWait:      500 * time.Millisecond,
			IdleQuietPeriod:   1500 * time.Millisecond,
		},
		Capture: CaptureConfig{
			Format:    "png",
			Quality:   90,
			OutputDir: ".",
			PDFScale:  1.0,
		},
		Emulation: EmulationConfig{
			Scale: 1.0,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.Logger.Format)
	}

	switch strings.ToLower(c.Capture.Format) {
	case "png", "jpeg", "webp":
	default:
		return fmt.Errorf("capture.format must be png, jpeg or webp, got %q", c.Capture.Format)
	}
	if c.Capture.Quality < 0 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture.quality must be within [0, 100], got %d", c.Capture.Quality)
	}
	if c.Capture.PDFScale <= 0 {
		return fmt.Errorf("capture.pdf_scale must be positive, got %v", c.Capture.PDFScale)
	}

	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be positive")
	}
	if c.Network.ActionTimeout <= 0 {
		return fmt.Errorf("network.action_timeout must be positive")
	}

	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive")
	}

	if (c.Emulation.Width != 0) != (c.Emulation.Height != 0) {
		return fmt.Errorf("emulation.width and emulation.height must be set together")
	}
	if c.Emulation.Scale <= 0 {
		return fmt.Errorf("emulation.scale must be positive, got %v", c.Emulation.Scale)
	}

	return nil
}

// SetDefaults registers the default values on the given viper instance so
// that partial config files and env overrides merge cleanly.
func SetDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.service_name", d.Logger.ServiceName)
	v.SetDefault("logger.max_size", d.Logger.MaxSize)
	v.SetDefault("logger.max_backups", d.Logger.MaxBackups)
	v.SetDefault("logger.max_age", d.Logger.MaxAge)

	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.window_width", d.Browser.WindowWidth)
	v.SetDefault("browser.window_height", d.Browser.WindowHeight)
	v.SetDefault("browser.launch_timeout", d.Browser.LaunchTimeout)

	v.SetDefault("network.navigation_timeout", d.Network.NavigationTimeout)
	v.SetDefault("network.action_timeout", d.Network.ActionTimeout)
	v.SetDefault("network.post_load_wait", d.Network.PostLoadWait)
	v.SetDefault("network.idle_quiet_period", d.Network.IdleQuietPeriod)

	v.SetDefault("capture.format", d.Capture.Format)
	v.SetDefault("capture.quality", d.Capture.Quality)
	v.SetDefault("capture.output_dir", d.Capture.OutputDir)
	v.SetDefault("capture.pdf_scale", d.Capture.PDFScale)

	v.SetDefault("emulation.scale", d.Emulation.Scale)
}

// Load unmarshals and validates the configuration from a prepared viper
// instance.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

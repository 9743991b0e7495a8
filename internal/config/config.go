// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Navigator NavigatorConfig `mapstructure:"navigator" yaml:"navigator"`
	Extract   ExtractConfig   `mapstructure:"extract" yaml:"extract"`
	Vision    VisionConfig    `mapstructure:"vision" yaml:"vision"`
	RunLog    RunLogConfig    `mapstructure:"runlog" yaml:"runlog"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for each log level on the console.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserDriver selects the automation backend behind the action executor.
type BrowserDriver string

const (
	DriverChromedp   BrowserDriver = "chromedp"
	DriverPlaywright BrowserDriver = "playwright"
)

// BrowserConfig holds settings for the browser instance driven by the navigator.
type BrowserConfig struct {
	Driver            BrowserDriver `mapstructure:"driver" yaml:"driver"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	BlockResources    bool          `mapstructure:"block_resources" yaml:"block_resources"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// NavigatorConfig tunes the observe/classify/act loop.
type NavigatorConfig struct {
	StartURL          string        `mapstructure:"start_url" yaml:"start_url"`
	Host              string        `mapstructure:"host" yaml:"host"`
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	MinConfidence     float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
	ActionDelay       time.Duration `mapstructure:"action_delay" yaml:"action_delay"`
	ScreenshotTimeout time.Duration `mapstructure:"screenshot_timeout" yaml:"screenshot_timeout"`
}

// ExtractConfig tunes the extraction pipeline.
type ExtractConfig struct {
	ZoomOut             float64 `mapstructure:"zoom_out" yaml:"zoom_out"`
	LocateMinConfidence float64 `mapstructure:"locate_min_confidence" yaml:"locate_min_confidence"`
	MaxTextChars        int     `mapstructure:"max_text_chars" yaml:"max_text_chars"`
	DefaultQuestion     string  `mapstructure:"default_question" yaml:"default_question"`
}

// VisionProvider defines the supported vision model providers.
type VisionProvider string

const (
	ProviderGemini    VisionProvider = "gemini"
	ProviderOpenAI    VisionProvider = "openai"
	ProviderAnthropic VisionProvider = "anthropic"
	ProviderStub      VisionProvider = "stub"
)

// VisionConfig defines the model used for page classification and extraction.
type VisionConfig struct {
	Provider    VisionProvider `mapstructure:"provider" yaml:"provider"`
	Model       string         `mapstructure:"model" yaml:"model"`
	APIKey      string         `mapstructure:"api_key" yaml:"-"`
	Endpoint    string         `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration  `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32        `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int            `mapstructure:"max_tokens" yaml:"max_tokens"`

	// KeylessFallback is set when a model provider was configured without a
	// key and the stub was substituted.
	KeylessFallback bool `mapstructure:"-" yaml:"-"`
}

// RunLogConfig controls the on-disk record of each run.
type RunLogConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir             string `mapstructure:"dir" yaml:"dir"`
	SaveScreenshots bool   `mapstructure:"save_screenshots" yaml:"save_screenshots"`
}

// apiKeyEnv maps each provider to the environment variable its SDK conventionally reads.
var apiKeyEnv = map[VisionProvider]string{
	ProviderGemini:    "GEMINI_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "relscout")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", string(DriverChromedp))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.block_resources", true)
	v.SetDefault("browser.viewport_width", 1440)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")

	// -- Navigator --
	v.SetDefault("navigator.start_url", "https://github.com")
	v.SetDefault("navigator.host", "github.com")
	v.SetDefault("navigator.max_steps", 15)
	v.SetDefault("navigator.min_confidence", 0.5)
	v.SetDefault("navigator.action_delay", "1s")
	v.SetDefault("navigator.screenshot_timeout", "8s")

	// -- Extract --
	v.SetDefault("extract.zoom_out", 0.5)
	v.SetDefault("extract.locate_min_confidence", 0.5)
	v.SetDefault("extract.max_text_chars", 12000)
	v.SetDefault("extract.default_question", "What is visible on this page?")

	// -- Vision --
	v.SetDefault("vision.provider", string(ProviderGemini))
	v.SetDefault("vision.model", "gemini-2.5-flash")
	v.SetDefault("vision.api_timeout", "60s")
	v.SetDefault("vision.temperature", 0.2)
	v.SetDefault("vision.max_tokens", 4096)

	// -- Run log --
	v.SetDefault("runlog.enabled", true)
	v.SetDefault("runlog.dir", "runs")
	v.SetDefault("runlog.save_screenshots", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The generic key wins over the provider-specific variable.
	v.BindEnv("vision.api_key", "RELSCOUT_VISION_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Vision.APIKey == "" {
		if env, ok := apiKeyEnv[cfg.Vision.Provider]; ok {
			cfg.Vision.APIKey = os.Getenv(env)
		}
	}
	// Without a key the run degrades to heuristic-only navigation.
	if _, known := apiKeyEnv[cfg.Vision.Provider]; known && cfg.Vision.APIKey == "" {
		cfg.Vision.Provider = ProviderStub
		cfg.Vision.KeylessFallback = true
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	dir, err := homedir.Expand(c.RunLog.Dir)
	if err != nil {
		return fmt.Errorf("failed to expand runlog.dir: %w", err)
	}
	c.RunLog.Dir = dir

	if c.Logger.LogFile != "" {
		logFile, err := homedir.Expand(c.Logger.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		c.Logger.LogFile = logFile
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Navigator.Validate(); err != nil {
		return fmt.Errorf("navigator configuration invalid: %w", err)
	}
	if err := c.Extract.Validate(); err != nil {
		return fmt.Errorf("extract configuration invalid: %w", err)
	}
	if err := c.Vision.Validate(); err != nil {
		return fmt.Errorf("vision configuration invalid: %w", err)
	}
	if c.RunLog.Enabled && strings.TrimSpace(c.RunLog.Dir) == "" {
		return fmt.Errorf("runlog.dir is required when runlog.enabled is true")
	}
	return nil
}

// Validate checks the BrowserConfig settings.
func (b *BrowserConfig) Validate() error {
	switch b.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		return fmt.Errorf("unsupported driver '%s'. Supported: [%s, %s]", b.Driver, DriverChromedp, DriverPlaywright)
	}
	if b.ViewportWidth <= 0 || b.ViewportHeight <= 0 {
		return fmt.Errorf("viewport dimensions must be positive")
	}
	if b.NavigationTimeout <= 0 || b.ActionTimeout <= 0 {
		return fmt.Errorf("navigation_timeout and action_timeout must be positive durations")
	}
	return nil
}

// Validate checks the NavigatorConfig settings.
func (n *NavigatorConfig) Validate() error {
	if n.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be greater than 0")
	}
	if n.MinConfidence < 0.0 || n.MinConfidence > 1.0 {
		return fmt.Errorf("min_confidence must be between 0.0 and 1.0")
	}
	if n.ActionDelay < 0 {
		return fmt.Errorf("action_delay must not be negative")
	}
	if n.ScreenshotTimeout <= 0 {
		return fmt.Errorf("screenshot_timeout must be a positive duration")
	}
	u, err := url.Parse(n.StartURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("start_url must be an absolute URL, got '%s'", n.StartURL)
	}
	if n.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// Validate checks the ExtractConfig settings.
func (e *ExtractConfig) Validate() error {
	if e.ZoomOut < 0.25 || e.ZoomOut > 2.0 {
		return fmt.Errorf("zoom_out must be between 0.25 and 2.0")
	}
	if e.LocateMinConfidence < 0.0 || e.LocateMinConfidence > 1.0 {
		return fmt.Errorf("locate_min_confidence must be between 0.0 and 1.0")
	}
	if e.MaxTextChars <= 0 {
		return fmt.Errorf("max_text_chars must be greater than 0")
	}
	return nil
}

// Validate checks the VisionConfig settings.
func (vc *VisionConfig) Validate() error {
	switch vc.Provider {
	case ProviderStub:
		return nil
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown or unsupported provider '%s'. Supported: [%s, %s, %s, %s]",
			vc.Provider, ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderStub)
	}
	if vc.Model == "" {
		return fmt.Errorf("model is required for provider '%s'", vc.Provider)
	}
	if vc.APIKey == "" {
		return fmt.Errorf("API key is required but not found. Set RELSCOUT_VISION_API_KEY or %s", apiKeyEnv[vc.Provider])
	}
	if vc.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	return nil
}

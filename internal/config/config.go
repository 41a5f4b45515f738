// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/xoflow/internal/eligibility"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Checkout() CheckoutConfig
	Browser() BrowserConfig
	Host() HostConfig

	// Checkout Setters
	SetCheckoutForceIneligible(bool)
	SetCheckoutPollInterval(time.Duration)

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserUserAgent(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	CheckoutCfg CheckoutConfig `mapstructure:"checkout" yaml:"checkout"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	HostCfg     HostConfig     `mapstructure:"host" yaml:"host"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Checkout() CheckoutConfig { return c.CheckoutCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Host() HostConfig         { return c.HostCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetCheckoutForceIneligible(b bool) { c.CheckoutCfg.ForceIneligible = b }
func (c *Config) SetCheckoutPollInterval(d time.Duration) {
	c.CheckoutCfg.PollInterval = d
}
func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserUserAgent(ua string) { c.BrowserCfg.UserAgent = ua }

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

// ColorConfig names the console color per level. Fatal also covers panics.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// CheckoutConfig is the resolved merchant configuration the flow controller consumes.
type CheckoutConfig struct {
	// PopupURL is the popup base; tokens are appended as ?token=<t>.
	PopupURL string `mapstructure:"popup_url" yaml:"popup_url"`
	// CheckoutURL is the full-page redirect base for ineligible clients.
	CheckoutURL string `mapstructure:"checkout_url" yaml:"checkout_url"`
	// PollInterval is the fragment watcher period.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// ForceIneligible sends every client down the redirect path.
	ForceIneligible bool `mapstructure:"force_ineligible" yaml:"force_ineligible"`
	// IneligibleUserAgents are regular expressions; any match denies the popup.
	IneligibleUserAgents []string `mapstructure:"ineligible_user_agents" yaml:"ineligible_user_agents"`
}

// BrowserConfig holds settings for the headless browser that hosts the page.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	FlowTimeout       time.Duration `mapstructure:"flow_timeout" yaml:"flow_timeout"`
}

// HostConfig configures the local stand-in for the remote payment host.
type HostConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	PayerID       string `mapstructure:"payer_id" yaml:"payer_id"`
	RedirectToken string `mapstructure:"redirect_token" yaml:"redirect_token"`
	RedirectHash  string `mapstructure:"redirect_hash" yaml:"redirect_hash"`
	// RateLimit caps requests per second across the host; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "xoflow")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Checkout --
	v.SetDefault("checkout.popup_url", "/checkoutnow")
	v.SetDefault("checkout.checkout_url", "/checkout/fullpage")
	v.SetDefault("checkout.poll_interval", "10ms")
	v.SetDefault("checkout.force_ineligible", false)
	v.SetDefault("checkout.ineligible_user_agents", eligibility.DefaultDenylist)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.flow_timeout", "60s")

	// -- Host --
	v.SetDefault("host.addr", "127.0.0.1:8089")
	v.SetDefault("host.payer_id", "YYYYYYYYYYYYY")
	v.SetDefault("host.redirect_token", "EC-XXXXXXXXXXXXXXXXX")
	v.SetDefault("host.redirect_hash", "redirectHash")
	v.SetDefault("host.rate_limit", 50)
	v.SetDefault("host.rate_burst", 20)
}

// EnvPrefix scopes environment overrides, e.g. XOFLOW_CHECKOUT_POPUP_URL.
const EnvPrefix = "XOFLOW"

// BindEnv enables environment variable overrides for every known key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.CheckoutCfg.Validate(); err != nil {
		return fmt.Errorf("checkout configuration invalid: %w", err)
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return errors.New("browser.navigation_timeout must be a positive duration")
	}
	if c.BrowserCfg.FlowTimeout <= 0 {
		return errors.New("browser.flow_timeout must be a positive duration")
	}
	if c.HostCfg.RateLimit < 0 || (c.HostCfg.RateLimit > 0 && c.HostCfg.RateBurst < 1) {
		return errors.New("host.rate_limit must be >= 0 and host.rate_burst >= 1 when limiting")
	}
	return nil
}

// Validate checks the checkout configuration.
func (c *CheckoutConfig) Validate() error {
	if c.PopupURL == "" {
		return errors.New("popup_url is required")
	}
	if c.CheckoutURL == "" {
		return errors.New("checkout_url is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be a positive duration")
	}
	if _, err := eligibility.PatternPredicate(c.IneligibleUserAgents); err != nil {
		return err
	}
	return nil
}

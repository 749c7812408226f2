// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the complete runtime configuration, unmarshalled once at startup
// and handed into components. Nothing below this layer reads the environment.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Readiness ReadinessConfig `mapstructure:"readiness" yaml:"readiness"`
}

// LoggerConfig controls the global zap logger.
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

// ColorConfig maps log levels to console color names.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ViewportConfig is the browser context viewport.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig controls the Playwright driver and engine launch.
type BrowserConfig struct {
	Engine         string         `mapstructure:"engine" yaml:"engine"`
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	AutoInstall    bool           `mapstructure:"auto_install" yaml:"auto_install"`
	InstallTimeout time.Duration  `mapstructure:"install_timeout" yaml:"install_timeout"`
	LaunchTimeout  time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	SlowMo         float64        `mapstructure:"slow_mo" yaml:"slow_mo"`
	UserAgent      string         `mapstructure:"user_agent" yaml:"user_agent"`
	Viewport       ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
}

// NetworkConfig bounds navigation and load settling.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	LoadStateTimeout  time.Duration `mapstructure:"load_state_timeout" yaml:"load_state_timeout"`
	PostSubmitWait    time.Duration `mapstructure:"post_submit_wait" yaml:"post_submit_wait"`
}

// AuthConfig drives the session bootstrapper. HostMarker and SigninMarker
// feed the URL predicate that is the sole source of truth for "logged in".
type AuthConfig struct {
	Credentials  string        `mapstructure:"credentials" yaml:"credentials"`
	AppURL       string        `mapstructure:"app_url" yaml:"app_url"`
	HostMarker   string        `mapstructure:"host_marker" yaml:"host_marker"`
	SigninMarker string        `mapstructure:"signin_marker" yaml:"signin_marker"`
	CookieFile   string        `mapstructure:"cookie_file" yaml:"cookie_file"`
	PasswordWait time.Duration `mapstructure:"password_wait" yaml:"password_wait"`
	ChooserWait  time.Duration `mapstructure:"chooser_wait" yaml:"chooser_wait"`
}

// ReadinessConfig drives the readiness poller. The frame constants default to
// the workspace preview chain the tool was built against and stay configurable
// because the inner frame name is workspace specific.
type ReadinessConfig struct {
	MaxReloadAttempts    int           `mapstructure:"max_reload_attempts" yaml:"max_reload_attempts"`
	TotalBudget          time.Duration `mapstructure:"total_budget" yaml:"total_budget"`
	PollInterval         time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WebButtonText        string        `mapstructure:"web_button_text" yaml:"web_button_text"`
	WebButtonSettle      time.Duration `mapstructure:"web_button_settle" yaml:"web_button_settle"`
	FrameContainer       string        `mapstructure:"frame_container" yaml:"frame_container"`
	PreviewFrameName     string        `mapstructure:"preview_frame_name" yaml:"preview_frame_name"`
	PreviewFrameTitle    string        `mapstructure:"preview_frame_title" yaml:"preview_frame_title"`
	PreviewFrameSelector string        `mapstructure:"preview_frame_selector" yaml:"preview_frame_selector"`
	ServerHeading        string        `mapstructure:"server_heading" yaml:"server_heading"`
	ServerCheckDelay     time.Duration `mapstructure:"server_check_delay" yaml:"server_check_delay"`
	SuccessHold          time.Duration `mapstructure:"success_hold" yaml:"success_hold"`
}

// Credential is the identifier/secret pair submitted to the remote login form.
type Credential struct {
	Identifier string
	Secret     string
}

// CredentialGuidance is printed when no usable credential is configured. The
// run must not touch the browser in that case.
const CredentialGuidance = `No usable credential configured.
Set IDXWAKE_AUTH_CREDENTIALS (or the legacy GOOGLE_PW) to "identifier password",
split on the first space. For example:

  export IDXWAKE_AUTH_CREDENTIALS='your.email@gmail.com your_password'`

// ParseCredential splits raw on the first space into identifier and secret.
// Both halves must be non-empty; the secret keeps any further spaces.
func ParseCredential(raw string) (Credential, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Credential{}, fmt.Errorf("credential is empty")
	}
	identifier, secret, found := strings.Cut(trimmed, " ")
	if !found || identifier == "" || strings.TrimSpace(secret) == "" {
		return Credential{}, fmt.Errorf("credential must be %q separated by a single space", "identifier password")
	}
	return Credential{Identifier: identifier, Secret: secret}, nil
}

// Credential parses the configured credential string.
func (a AuthConfig) Credential() (Credential, error) {
	return ParseCredential(a.Credentials)
}

// SetDefaults registers every configuration default on the given viper
// instance. Values mirror the workspace the tool was tuned against.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "idxwake")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.engine", "firefox")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.auto_install", true)
	v.SetDefault("browser.install_timeout", "5m")
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.slow_mo", 0)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.load_state_timeout", "60s")
	v.SetDefault("network.post_submit_wait", "5s")

	// -- Auth --
	v.SetDefault("auth.credentials", "")
	v.SetDefault("auth.app_url", "https://idx.google.com/app-43646734")
	v.SetDefault("auth.host_marker", "idx.google.com")
	v.SetDefault("auth.signin_marker", "signin")
	v.SetDefault("auth.cookie_file", "google_cookies.json")
	v.SetDefault("auth.password_wait", "20s")
	v.SetDefault("auth.chooser_wait", "10s")

	// -- Readiness --
	v.SetDefault("readiness.max_reload_attempts", 5)
	v.SetDefault("readiness.total_budget", "120s")
	v.SetDefault("readiness.poll_interval", "5s")
	v.SetDefault("readiness.web_button_text", "Web")
	v.SetDefault("readiness.web_button_settle", "20s")
	v.SetDefault("readiness.frame_container", "#iframe-container")
	v.SetDefault("readiness.preview_frame_name", "ded0e382-bedf-478d-a870-33bb6cadac6f")
	v.SetDefault("readiness.preview_frame_title", "Web")
	v.SetDefault("readiness.preview_frame_selector", "#previewFrame")
	v.SetDefault("readiness.server_heading", "Starting server")
	v.SetDefault("readiness.server_check_delay", "3s")
	v.SetDefault("readiness.success_hold", "20s")
}

// NewConfigFromViper unmarshals, normalizes and validates a Config from the
// given viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind the secret and its legacy aliases. AutomaticEnv only covers the
	// prefixed forms.
	_ = v.BindEnv("auth.credentials", "IDXWAKE_AUTH_CREDENTIALS", "GOOGLE_PW")
	_ = v.BindEnv("auth.app_url", "IDXWAKE_AUTH_APP_URL", "APP_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig builds a Config carrying only the defaults.
func NewDefaultConfig() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	return NewConfigFromViper(v)
}

// normalize expands user-relative paths once so no component deals with "~".
func (c *Config) normalize() error {
	expanded, err := homedir.Expand(c.Auth.CookieFile)
	if err != nil {
		return fmt.Errorf("expanding auth.cookie_file: %w", err)
	}
	c.Auth.CookieFile = expanded

	if c.Logger.LogFile != "" {
		expanded, err = homedir.Expand(c.Logger.LogFile)
		if err != nil {
			return fmt.Errorf("expanding logger.log_file: %w", err)
		}
		c.Logger.LogFile = expanded
	}
	return nil
}

// Validate rejects configurations the run could not act on. The credential is
// deliberately not validated here; its absence is handled by the command with
// operator guidance instead of a config error.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be %q or %q", "console", "json")
	}

	switch c.Browser.Engine {
	case "firefox", "chromium", "webkit":
	default:
		return fmt.Errorf("browser.engine must be one of firefox, chromium, webkit")
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	if c.Browser.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be positive")
	}

	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be positive")
	}
	if c.Network.LoadStateTimeout <= 0 {
		return fmt.Errorf("network.load_state_timeout must be positive")
	}

	if c.Auth.AppURL == "" {
		return fmt.Errorf("auth.app_url is required")
	}
	if c.Auth.HostMarker == "" {
		return fmt.Errorf("auth.host_marker is required")
	}
	if c.Auth.SigninMarker == "" {
		return fmt.Errorf("auth.signin_marker is required")
	}
	if c.Auth.CookieFile == "" {
		return fmt.Errorf("auth.cookie_file is required")
	}

	if c.Readiness.MaxReloadAttempts < 1 {
		return fmt.Errorf("readiness.max_reload_attempts must be at least 1")
	}
	if c.Readiness.TotalBudget < 0 {
		return fmt.Errorf("readiness.total_budget must not be negative")
	}
	return nil
}

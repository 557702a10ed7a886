package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/puffnotes/internal/autosave"
	"github.com/starford/puffnotes/internal/export"
	"github.com/starford/puffnotes/internal/llm"
	"github.com/starford/puffnotes/internal/rewrite"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// FallbackKeyEnv names the environment variable holding the owner's
// rewrite key when no config file sets one.
const FallbackKeyEnv = "PUFFNOTES_FALLBACK_KEY"

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Auth     AuthConfig        `yaml:"auth"`
	Storage  StorageConfig     `yaml:"storage"`
	Autosave AutosaveConfig    `yaml:"autosave"`
	Rewrite  RewriteConfig     `yaml:"rewrite"`
	Export   ExportConfig      `yaml:"export"`
	Prefs    PrefsConfig       `yaml:"prefs"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Auth, &c.Storage, &c.Autosave, &c.Rewrite, &c.Export, &c.Prefs,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// StorageConfig optionally pre-grants a notes folder. When Directory is
// empty the last granted folder is restored from preferences.
type StorageConfig struct {
	Directory     string        `yaml:"directory"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	)
}

// AutosaveConfig holds the quiet period before an automatic write.
type AutosaveConfig struct {
	Interval time.Duration `yaml:"interval"`
}

func (c *AutosaveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// RewriteConfig configures the chat-completion endpoint.
type RewriteConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	FallbackKey       string        `yaml:"fallback_key"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

func (c *RewriteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	)
}

// ExportConfig holds page geometry and the default theme.
type ExportConfig struct {
	PageSize   string  `yaml:"page_size"`
	MarginMM   float64 `yaml:"margin_mm"`
	Oversample int     `yaml:"oversample"`
	Header     string  `yaml:"header"`
	Theme      string  `yaml:"theme"`
}

func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Required, validation.In("A4", "A5", "Letter", "Legal")),
		validation.Field(&c.MarginMM, validation.Required, validation.Min(1.0), validation.Max(60.0)),
		validation.Field(&c.Oversample, validation.Required, validation.Min(1), validation.Max(4)),
		validation.Field(&c.Theme, validation.By(func(v interface{}) error {
			if _, ok := export.ThemeByName(v.(string)); !ok {
				return fmt.Errorf("unknown theme %q", v)
			}
			return nil
		})),
	)
}

// Options converts the section into exporter options.
func (c *ExportConfig) Options() export.Options {
	opts := export.DefaultOptions()
	opts.PageSize = c.PageSize
	opts.MarginMM = c.MarginMM
	opts.Oversample = c.Oversample
	opts.HeaderText = c.Header
	return opts
}

// PrefsConfig holds the preferences database location.
type PrefsConfig struct {
	Path string `yaml:"path"`
}

func (c *PrefsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	opts := export.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Autosave: AutosaveConfig{
			Interval: autosave.DefaultInterval,
		},
		Rewrite: RewriteConfig{
			Endpoint:    llm.DefaultEndpoint,
			Model:       llm.DefaultModel,
			Temperature: llm.DefaultTemperature,
			Timeout:     rewrite.DefaultTimeout,
			FallbackKey: os.Getenv(FallbackKeyEnv),
		},
		Export: ExportConfig{
			PageSize:   opts.PageSize,
			MarginMM:   opts.MarginMM,
			Oversample: opts.Oversample,
			Header:     opts.HeaderText,
			Theme:      export.Default.Name,
		},
		Prefs: PrefsConfig{
			Path: "./puffnotes.db",
		},
	}
}

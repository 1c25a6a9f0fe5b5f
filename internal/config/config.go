package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted on top of the YAML file.
const (
	EnvUser       = "HEIMBAS_USER"
	EnvPass       = "HEIMBAS_PASS"
	EnvWebhookURL = "HEIMBAS_WEBHOOK_URL"
)

const (
	DefaultBaseURL        = "https://homecare.hbweb.myneva.cloud/apps/cg_homecare_1017"
	DefaultRefreshCron    = "*/30 * * * *"
	DefaultListen         = "127.0.0.1:8080"
	DefaultLogLevel       = "info"
	DefaultOutput         = "dienstplan.ics"
	DefaultUserLabel      = "default"
	DefaultWebhookTimeout = 15 * time.Second
	DefaultCaptureTimeout = 2 * time.Minute
)

// ErrMissingCredentials is returned when a user has no username or password
// from any source.
var ErrMissingCredentials = errors.New("config: credentials missing")

var labelRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// WebhookConfig is the optional destination for forwarded records.
type WebhookConfig struct {
	// URL receives one POST per entry. Empty disables forwarding.
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// UserConfig is one portal account whose schedule is synchronized.
type UserConfig struct {
	// Label names the user in logs, webhook records and /calendar/<label>.ics.
	Label string `yaml:"label" json:"label"`

	// Username/Password are used as-is when set. Otherwise the variables named
	// by UsernameEnv/PasswordEnv are read, then HEIMBAS_USER/HEIMBAS_PASS.
	Username    string `yaml:"username,omitempty" json:"-"`
	Password    string `yaml:"password,omitempty" json:"-"`
	UsernameEnv string `yaml:"username_env,omitempty" json:"username_env,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty" json:"password_env,omitempty"`

	// Output is the ICS file path written for this user.
	Output string `yaml:"output" json:"output"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// BaseURL is the portal start page used for login.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// RefreshCron is the standard 5-field cron schedule of watch mode,
	// evaluated in Europe/Berlin.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen is the HTTP listen address used in watch mode.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`

	Users []UserConfig `yaml:"users" json:"users"`

	// CaptureTimeout bounds one browser session.
	CaptureTimeout time.Duration `yaml:"capture_timeout" json:"capture_timeout"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration with a single user
// whose credentials come from HEIMBAS_USER/HEIMBAS_PASS.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		RefreshCron: DefaultRefreshCron,
		Listen:      DefaultListen,
		LogLevel:    DefaultLogLevel,
		Webhook: WebhookConfig{
			Timeout: DefaultWebhookTimeout,
		},
		Users: []UserConfig{
			{Label: DefaultUserLabel, Output: DefaultOutput},
		},
		CaptureTimeout: DefaultCaptureTimeout,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = DefaultWebhookTimeout
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = DefaultCaptureTimeout
	}
	if len(c.Users) == 0 {
		c.Users = []UserConfig{{Label: DefaultUserLabel, Output: DefaultOutput}}
	}
	for i := range c.Users {
		u := &c.Users[i]
		u.Label = strings.TrimSpace(u.Label)
		if u.Label == "" {
			u.Label = fmt.Sprintf("user%d", i+1)
		}
		if u.Output == "" {
			if u.Label == DefaultUserLabel {
				u.Output = DefaultOutput
			} else {
				u.Output = "dienstplan-" + u.Label + ".ics"
			}
		}
	}
}

// Validate reports configuration errors that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err))
	}

	seenLabel := make(map[string]bool, len(c.Users))
	seenOutput := make(map[string]string, len(c.Users))
	for _, u := range c.Users {
		if !labelRe.MatchString(u.Label) {
			errs = append(errs, fmt.Errorf("config: user label %q must match %s", u.Label, labelRe))
		}
		if seenLabel[u.Label] {
			errs = append(errs, fmt.Errorf("config: duplicate user label %q", u.Label))
		}
		seenLabel[u.Label] = true

		out := filepath.Clean(u.Output)
		if other, ok := seenOutput[out]; ok {
			errs = append(errs, fmt.Errorf("config: users %q and %q share output %s", other, u.Label, u.Output))
		}
		seenOutput[out] = u.Label
	}
	return errors.Join(errs...)
}

// User returns the user with the given label.
func (c *Config) User(label string) (UserConfig, bool) {
	for _, u := range c.Users {
		if u.Label == label {
			return u, true
		}
	}
	return UserConfig{}, false
}

// Credentials resolves the username and password for u.
func (u UserConfig) Credentials() (username, password string, err error) {
	username = firstNonEmpty(u.Username, lookupEnv(u.UsernameEnv), lookupEnv(EnvUser))
	password = firstNonEmpty(u.Password, lookupEnv(u.PasswordEnv), lookupEnv(EnvPass))
	if username == "" || password == "" {
		return "", "", fmt.Errorf("%w for user %q: set username/password, %s/%s or %s/%s",
			ErrMissingCredentials, u.Label, orDash(u.UsernameEnv), orDash(u.PasswordEnv), EnvUser, EnvPass)
	}
	return username, password, nil
}

// ApplyEnv overlays environment overrides onto c.
func (c *Config) ApplyEnv() {
	if v := lookupEnv(EnvWebhookURL); v != "" {
		c.Webhook.URL = v
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
//
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".heimbas-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

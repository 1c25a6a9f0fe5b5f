package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	t.Setenv(EnvWebhookURL, "")
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	require.Len(t, cfg.Users, 1)
	assert.Equal(t, DefaultOutput, cfg.Users[0].Output)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	t.Setenv(EnvWebhookURL, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
base_url: https://portal.example/app/
webhook:
  url: https://hooks.example/plan
  timeout: 5s
users:
  - label: anna
    username_env: ANNA_USER
    password_env: ANNA_PASS
  - label: ben
    output: /tmp/ben.ics
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example/app", cfg.BaseURL)
	assert.Equal(t, DefaultRefreshCron, cfg.RefreshCron)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "https://hooks.example/plan", cfg.Webhook.URL)
	assert.Equal(t, DefaultCaptureTimeout, cfg.CaptureTimeout)
	assert.Equal(t, "dienstplan-anna.ics", cfg.Users[0].Output)
	assert.Equal(t, "/tmp/ben.ics", cfg.Users[1].Output)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesWebhookOverride(t *testing.T) {
	t.Setenv(EnvWebhookURL, "https://override.example/hook")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("webhook:\n  url: https://file.example\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://override.example/hook", cfg.Webhook.URL)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvWebhookURL, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Users = append(cfg.Users, UserConfig{Label: "ben", Output: "ben.ics"})
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshCron = "every now and then"
	cfg.Users = []UserConfig{
		{Label: "anna", Output: "a.ics"},
		{Label: "anna", Output: "b.ics"},
		{Label: "ben/x", Output: "a.ics"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh")
	assert.Contains(t, err.Error(), `duplicate user label "anna"`)
	assert.Contains(t, err.Error(), `"ben/x"`)
	assert.Contains(t, err.Error(), "share output")

	assert.NoError(t, DefaultConfig().Validate())
}

func TestCredentialsPrecedence(t *testing.T) {
	t.Setenv(EnvUser, "global-user")
	t.Setenv(EnvPass, "global-pass")
	t.Setenv("ANNA_USER", "anna-env")
	t.Setenv("ANNA_PASS", "")

	u := UserConfig{Label: "anna", UsernameEnv: "ANNA_USER", PasswordEnv: "ANNA_PASS"}
	user, pass, err := u.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "anna-env", user)
	assert.Equal(t, "global-pass", pass)

	u.Username, u.Password = "inline", "secret"
	user, pass, err = u.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "inline", user)
	assert.Equal(t, "secret", pass)
}

func TestCredentialsMissing(t *testing.T) {
	t.Setenv(EnvUser, "")
	t.Setenv(EnvPass, "")

	_, _, err := UserConfig{Label: "anna"}.Credentials()
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("HEIMBAS_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("HEIMBAS_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("HEIMBAS_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("HEIMBAS_TEST_DOTENV"))
}

func TestUserLookup(t *testing.T) {
	cfg := DefaultConfig()
	u, ok := cfg.User(DefaultUserLabel)
	assert.True(t, ok)
	assert.Equal(t, DefaultOutput, u.Output)

	_, ok = cfg.User("nobody")
	assert.False(t, ok)
}

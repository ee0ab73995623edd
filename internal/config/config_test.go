package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envMap turns a map into a lookup function so tests never touch the real
// process environment.
func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/users.db", cfg.DBPath)
	assert.Equal(t, "user_data", cfg.DataDir)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Assistant.Model)
	assert.Equal(t, 100*time.Millisecond, cfg.Assistant.TypingDelay)
	assert.Equal(t, MailProviderMailerSend, cfg.Mail.Provider)
	assert.Equal(t, "https://api.mailersend.com/v1/email", cfg.Mail.Endpoint)
	assert.Empty(t, cfg.Assistant.APIKey)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
port: 9000
data_dir: /var/lib/jokebot
assistant:
  model: gpt-4o-mini
  typing_delay: 50ms
mail:
  provider: SMTP
  smtp:
    host: smtp.example.com
`)

	cfg, err := load(path, envMap(map[string]string{
		"PORT":           "9100",
		"OPENAI_API_KEY": "sk-test",
		"SMTP_PORT":      "2525",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "env overrides YAML")
	assert.Equal(t, "/var/lib/jokebot", cfg.DataDir)
	assert.Equal(t, "gpt-4o-mini", cfg.Assistant.Model)
	assert.Equal(t, 50*time.Millisecond, cfg.Assistant.TypingDelay)
	assert.Equal(t, "sk-test", cfg.Assistant.APIKey)
	assert.Equal(t, MailProviderSMTP, cfg.Mail.Provider, "provider is normalised to lower case")
	assert.Equal(t, "smtp.example.com", cfg.Mail.SMTP.Host)
	assert.Equal(t, 2525, cfg.Mail.SMTP.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "non-numeric port", env: map[string]string{"PORT": "eighty"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
		{name: "bad duration", env: map[string]string{"TYPING_DELAY": "fast"}},
		{name: "negative delay", env: map[string]string{"TYPING_DELAY": "-1s"}},
		{name: "unknown provider", env: map[string]string{"MAIL_PROVIDER": "pigeon"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "bad bool", env: map[string]string{"SECURE_COOKIES": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load("", envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil))
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "JOKEBOT_TEST_MODEL_KEY=from-dotenv\n")
	t.Setenv("JOKEBOT_TEST_MODEL_KEY", "")
	os.Unsetenv("JOKEBOT_TEST_MODEL_KEY")

	_, err := Load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", os.Getenv("JOKEBOT_TEST_MODEL_KEY"))
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestRandomSecret(t *testing.T) {
	a, err := RandomSecret()
	require.NoError(t, err)
	b, _ := RandomSecret()

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

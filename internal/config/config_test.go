package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rsclarke/botgate/internal/auth"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("BOTGATE_PORT", "8443")
	t.Setenv("BOTGATE_AUTH_ENABLED", "true")
	t.Setenv("BOTGATE_AUTH_ISSUER", "https://sso.example.com/realms/bots/")
	t.Setenv("BOTGATE_AUTH_FAILURE_POLICY", "fail_closed")
	t.Setenv("BOTGATE_INTEGRATIONS_TIMEOUT", "500ms")
	t.Setenv("BOTGATE_CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 8443, cfg.Port)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "https://sso.example.com/realms/bots/protocol/openid-connect/userinfo", cfg.Auth.UserInfoURL)
	assert.Equal(t, auth.FailClosed, cfg.Auth.FailurePolicy)
	assert.Equal(t, 500*time.Millisecond, cfg.IntegrationTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botgate.yaml")
	content := `
port: 4000
db: /var/lib/botgate/registry.db
tls:
  mode: manual
  cert: /etc/botgate/cert.pem
  key: /etc/botgate/key.pem
auth:
  admin_role: operator
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "/var/lib/botgate/registry.db", cfg.DBPath)
	assert.Equal(t, TLSManual, cfg.TLS.Mode)
	assert.Equal(t, "/etc/botgate/key.pem", cfg.TLS.Key)
	assert.Equal(t, "operator", cfg.Auth.AdminRole)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestBindFlags(t *testing.T) {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.Int("port", 3000, "")
	flags.String("tls-mode", "none", "")
	flags.String("unrelated", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "9000", "--tls-mode", "self-signed"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, TLSSelfSigned, cfg.TLS.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"empty db", func(c *Config) { c.DBPath = "" }},
		{"unknown tls mode", func(c *Config) { c.TLS.Mode = "magic" }},
		{"manual without files", func(c *Config) { c.TLS.Mode = TLSManual }},
		{"acme without domain", func(c *Config) { c.TLS.Mode = TLSACME }},
		{"auth without endpoint", func(c *Config) { c.Auth.Enabled = true }},
		{"empty admin role", func(c *Config) { c.Auth.AdminRole = "" }},
		{"zero fan-out timeout", func(c *Config) { c.IntegrationTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadBadFailurePolicy(t *testing.T) {
	t.Setenv("BOTGATE_AUTH_FAILURE_POLICY", "sometimes")
	_, err := Load(New(), "")
	assert.Error(t, err)
}

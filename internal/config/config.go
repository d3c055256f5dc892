// Package config loads the gateway configuration from defaults, an optional
// config file, BOTGATE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rsclarke/botgate/internal/auth"
	"github.com/rsclarke/botgate/internal/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores (auth.client_id becomes BOTGATE_AUTH_CLIENT_ID).
const EnvPrefix = "BOTGATE"

// TLS modes.
const (
	TLSNone       = "none"
	TLSManual     = "manual"
	TLSSelfSigned = "self-signed"
	TLSACME       = "acme"
)

type TLSConfig struct {
	Mode  string
	Cert  string
	Key   string
	Hosts []string
}

type ACMEConfig struct {
	Domain  string
	Email   string
	Staging bool
}

type AuthConfig struct {
	Enabled       bool
	Issuer        string
	UserInfoURL   string
	ClientID      string
	AdminRole     string
	FailurePolicy auth.FailurePolicy
}

type Config struct {
	Port               int
	DBPath             string
	Log                logging.Config
	TLS                TLSConfig
	ACME               ACMEConfig
	Auth               AuthConfig
	IntegrationTimeout time.Duration
	BackendTimeout     time.Duration
	CORSOrigins        []string
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:   3000,
		DBPath: "botgate.db",
		Log:    logging.Config{Level: "info", Format: "json"},
		TLS:    TLSConfig{Mode: TLSNone, Hosts: []string{"localhost"}},
		Auth: AuthConfig{
			ClientID:      "botgate",
			AdminRole:     auth.DefaultAdminRole,
			FailurePolicy: auth.FailOpen,
		},
		IntegrationTimeout: 2 * time.Second,
		BackendTimeout:     30 * time.Second,
		CORSOrigins:        []string{"*"},
	}
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	d := Default()
	v := viper.New()

	v.SetDefault("port", d.Port)
	v.SetDefault("db", d.DBPath)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tls.mode", d.TLS.Mode)
	v.SetDefault("tls.cert", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("tls.hosts", d.TLS.Hosts)
	v.SetDefault("acme.domain", "")
	v.SetDefault("acme.email", "")
	v.SetDefault("acme.staging", false)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.userinfo_url", "")
	v.SetDefault("auth.client_id", d.Auth.ClientID)
	v.SetDefault("auth.admin_role", d.Auth.AdminRole)
	v.SetDefault("auth.failure_policy", string(d.Auth.FailurePolicy))
	v.SetDefault("integrations.timeout", d.IntegrationTimeout)
	v.SetDefault("backend.timeout", d.BackendTimeout)
	v.SetDefault("cors.allowed_origins", d.CORSOrigins)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds the known flags in flags to their config keys. Flag names
// use dashes where keys use dots and underscores, e.g. --tls-mode for
// tls.mode.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

var flagKeys = map[string]string{
	"db":                   "db",
	"port":                 "port",
	"log-level":            "log.level",
	"log-format":           "log.format",
	"tls-mode":             "tls.mode",
	"tls-cert":             "tls.cert",
	"tls-key":              "tls.key",
	"tls-hosts":            "tls.hosts",
	"acme-domain":          "acme.domain",
	"acme-email":           "acme.email",
	"acme-staging":         "acme.staging",
	"auth":                 "auth.enabled",
	"auth-issuer":          "auth.issuer",
	"auth-userinfo-url":    "auth.userinfo_url",
	"auth-client-id":       "auth.client_id",
	"auth-admin-role":      "auth.admin_role",
	"auth-failure-policy":  "auth.failure_policy",
	"integrations-timeout": "integrations.timeout",
	"backend-timeout":      "backend.timeout",
	"cors-origins":         "cors.allowed_origins",
}

// Load reads the optional config file and returns the merged configuration.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	policy, err := auth.ParseFailurePolicy(v.GetString("auth.failure_policy"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:   v.GetInt("port"),
		DBPath: v.GetString("db"),
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		TLS: TLSConfig{
			Mode:  strings.ToLower(v.GetString("tls.mode")),
			Cert:  v.GetString("tls.cert"),
			Key:   v.GetString("tls.key"),
			Hosts: splitList(v.GetStringSlice("tls.hosts")),
		},
		ACME: ACMEConfig{
			Domain:  v.GetString("acme.domain"),
			Email:   v.GetString("acme.email"),
			Staging: v.GetBool("acme.staging"),
		},
		Auth: AuthConfig{
			Enabled:       v.GetBool("auth.enabled"),
			Issuer:        strings.TrimSuffix(v.GetString("auth.issuer"), "/"),
			UserInfoURL:   v.GetString("auth.userinfo_url"),
			ClientID:      v.GetString("auth.client_id"),
			AdminRole:     v.GetString("auth.admin_role"),
			FailurePolicy: policy,
		},
		IntegrationTimeout: v.GetDuration("integrations.timeout"),
		BackendTimeout:     v.GetDuration("backend.timeout"),
		CORSOrigins:        splitList(v.GetStringSlice("cors.allowed_origins")),
	}
	if cfg.Auth.UserInfoURL == "" && cfg.Auth.Issuer != "" {
		cfg.Auth.UserInfoURL = auth.UserInfoURL(cfg.Auth.Issuer)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option combinations.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db path is required")
	}
	switch c.TLS.Mode {
	case TLSNone, TLSSelfSigned:
	case TLSManual:
		if c.TLS.Cert == "" || c.TLS.Key == "" {
			return errors.New("tls mode manual requires tls.cert and tls.key")
		}
	case TLSACME:
		if c.ACME.Domain == "" {
			return errors.New("tls mode acme requires acme.domain")
		}
	default:
		return fmt.Errorf("unknown tls mode %q (want none, manual, self-signed or acme)", c.TLS.Mode)
	}
	if c.Auth.Enabled && c.Auth.UserInfoURL == "" {
		return errors.New("auth enabled requires auth.issuer or auth.userinfo_url")
	}
	if c.Auth.AdminRole == "" {
		return errors.New("auth.admin_role must not be empty")
	}
	if c.IntegrationTimeout <= 0 {
		return errors.New("integrations.timeout must be positive")
	}
	if c.BackendTimeout < 0 {
		return errors.New("backend.timeout must not be negative")
	}
	return nil
}

// splitList flattens comma separated entries, which is how list values
// arrive from environment variables.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

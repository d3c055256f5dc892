package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsclarke/botgate/internal/acme"
	"github.com/rsclarke/botgate/internal/auth"
	"github.com/rsclarke/botgate/internal/backend"
	"github.com/rsclarke/botgate/internal/config"
	"github.com/rsclarke/botgate/internal/db"
	"github.com/rsclarke/botgate/internal/history"
	"github.com/rsclarke/botgate/internal/integrations"
	"github.com/rsclarke/botgate/internal/logging"
	"github.com/rsclarke/botgate/internal/proxy"
	"github.com/rsclarke/botgate/internal/server"
	"github.com/rsclarke/botgate/internal/tlsconf"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serverFlags struct {
	configFile string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the gateway API",
	Long: `Start the gateway API listener.

Settings come from, in increasing precedence: built-in defaults, the
--config file, BOTGATE_* environment variables and flags. Nested keys map
to environment variables with underscores, e.g. auth.client_id is read
from BOTGATE_AUTH_CLIENT_ID.

TLS Modes:
  --tls-mode none         → plain HTTP (default)
  --tls-mode manual       → use --tls-cert and --tls-key
  --tls-mode self-signed  → generate a certificate for --tls-hosts at startup
  --tls-mode acme         → obtain a certificate for --acme-domain using the
                            TLS-ALPN challenge (the API port must be reachable
                            as port 443)

Notes:
  ACME certificates are stored in the gateway database.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	d := config.Default()
	f := serverCmd.Flags()
	f.StringVar(&serverFlags.configFile, "config", os.Getenv("BOTGATE_CONFIG"), "config file (yaml, json or toml)")
	f.Int("port", d.Port, "API port to listen on")
	f.String("db", d.DBPath, "database path")
	f.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	f.String("log-format", d.Log.Format, "log format (json or console)")
	f.String("tls-mode", d.TLS.Mode, "TLS mode (none, manual, self-signed, acme)")
	f.String("tls-cert", "", "path to TLS certificate file (manual mode)")
	f.String("tls-key", "", "path to TLS key file (manual mode)")
	f.StringSlice("tls-hosts", d.TLS.Hosts, "hostnames and IPs for the self-signed certificate")
	f.String("acme-domain", "", "domain to obtain a certificate for (acme mode)")
	f.String("acme-email", "", "email for ACME account notifications")
	f.Bool("acme-staging", false, "use Let's Encrypt staging CA")
	f.Bool("auth", false, "enable bearer token authorization")
	f.String("auth-issuer", "", "identity provider realm URL")
	f.String("auth-userinfo-url", "", "userinfo endpoint (derived from --auth-issuer when empty)")
	f.String("auth-client-id", d.Auth.ClientID, "client whose roles are read from tokens")
	f.String("auth-admin-role", d.Auth.AdminRole, "role required to manage bots and integrations")
	f.String("auth-failure-policy", string(d.Auth.FailurePolicy), "what to do when a token cannot be verified (fail_open or fail_closed)")
	f.Duration("integrations-timeout", d.IntegrationTimeout, "per-integration timeout when aggregating settings")
	f.Duration("backend-timeout", d.BackendTimeout, "timeout for calls to bot and integration backends")
	f.StringSlice("cors-origins", d.CORSOrigins, "allowed CORS origins (empty disables CORS)")
}

func runServer(cmd *cobra.Command, args []string) error {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v, serverFlags.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err = logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	store := db.NewStore(database)
	bc := backend.NewClient(cfg.BackendTimeout)
	recorder := history.NewRecorder(store, logger.Named("history"))

	apiSrv := &server.APIServer{
		Store:        store,
		Proxy:        proxy.New(store, bc, recorder, logger.Named("proxy")),
		Integrations: integrations.New(store, bc, cfg.IntegrationTimeout, logger.Named("integrations")),
		History:      recorder,
		Resolver: &auth.Resolver{
			Enabled:  cfg.Auth.Enabled,
			ClientID: cfg.Auth.ClientID,
			Provider: auth.NewUserInfoClient(cfg.Auth.UserInfoURL, 10*time.Second),
			OnError:  cfg.Auth.FailurePolicy,
		},
		Policy: auth.Policy{
			Enabled:   cfg.Auth.Enabled,
			AdminRole: cfg.Auth.AdminRole,
		},
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger.Named("api"),
	}
	if cfg.Auth.Enabled {
		logger.Info("authorization enabled",
			logging.URL(cfg.Auth.UserInfoURL),
			zap.String("client_id", cfg.Auth.ClientID),
			zap.String("failure_policy", string(cfg.Auth.FailurePolicy)))
	} else {
		logger.Info("authorization disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tlsConfig, err := serverTLS(ctx, cfg, database)
	if err != nil {
		return err
	}

	srvCfg := server.DefaultServerConfig(fmt.Sprintf(":%d", cfg.Port), apiSrv.Handler(), logger.Named("api"))
	srvCfg.TLSConfig = tlsConfig
	if cfg.BackendTimeout > 0 && srvCfg.WriteTimeout <= cfg.BackendTimeout {
		srvCfg.WriteTimeout = cfg.BackendTimeout + 10*time.Second
	}
	api := server.NewManagedServer("api", srvCfg)
	if err := api.Start(); err != nil {
		return err
	}
	logger.Info("gateway started", logging.Port(cfg.Port), logging.TLSMode(cfg.TLS.Mode))

	select {
	case <-ctx.Done():
	case err := <-api.Done():
		if err != nil {
			logger.Error("api server stopped", zap.Error(err))
		}
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	api.Shutdown(shutdownCtx)

	return nil
}

func serverTLS(ctx context.Context, cfg *config.Config, database *sql.DB) (*tls.Config, error) {
	switch cfg.TLS.Mode {
	case config.TLSManual:
		tlsConfig, err := tlsconf.Manual(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			return nil, fmt.Errorf("load TLS certificate: %w", err)
		}
		return tlsConfig, nil

	case config.TLSSelfSigned:
		tlsConfig, err := tlsconf.SelfSigned(cfg.TLS.Hosts)
		if err != nil {
			return nil, fmt.Errorf("generate self-signed certificate: %w", err)
		}
		logger.Warn("using self-signed certificate", zap.Strings("hosts", cfg.TLS.Hosts))
		return tlsConfig, nil

	case config.TLSACME:
		manager := acme.NewManager(cfg.ACME.Domain, cfg.ACME.Email, database, cfg.ACME.Staging, logger.Named("certmagic"))
		logger.Info("starting acme certificate management", logging.Domain(cfg.ACME.Domain), zap.Bool("staging", cfg.ACME.Staging))
		if err := manager.Manage(ctx); err != nil {
			return nil, fmt.Errorf("ACME certificate management: %w", err)
		}
		return manager.TLSConfig(), nil
	}
	return nil, nil
}

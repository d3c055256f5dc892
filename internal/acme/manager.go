// Package acme obtains and renews the gateway's certificate via ACME.
package acme

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"os"

	"github.com/caddyserver/certmagic"
	certmagicsqlite "github.com/rsclarke/certmagic-sqlite"
	"github.com/rsclarke/botgate/internal/logging"
	"go.uber.org/zap"
)

// Manager handles certificate acquisition and renewal for the gateway's
// domain using the TLS-ALPN-01 challenge, answered on the gateway's own
// TLS listener. Certificates live in the registry database.
type Manager struct {
	Domain  string
	Email   string
	Staging bool
	// CA overrides the directory URL, e.g. for a private ACME server.
	CA     string
	DB     *sql.DB
	Logger *zap.Logger

	config *certmagic.Config
}

// NewManager creates a new ACME manager.
func NewManager(domain, email string, db *sql.DB, staging bool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	// certmagic logs through its package defaults before a config exists.
	certmagic.Default.Logger = logger
	certmagic.DefaultACME.Logger = logger

	return &Manager{
		Domain:  domain,
		Email:   email,
		Staging: staging,
		DB:      db,
		Logger:  logger,
	}
}

// CAURL returns the ACME directory in use.
func (m *Manager) CAURL() string {
	switch {
	case m.CA != "":
		return m.CA
	case m.Staging:
		return certmagic.LetsEncryptStagingCA
	default:
		return certmagic.LetsEncryptProductionCA
	}
}

// Manage prepares storage and starts managing the domain's certificate in
// the background. The TLS listener must be started with TLSConfig for the
// challenge to succeed.
func (m *Manager) Manage(ctx context.Context) error {
	hostname, _ := os.Hostname()
	storage, err := certmagicsqlite.NewWithDB(m.DB, certmagicsqlite.WithOwnerID(hostname))
	if err != nil {
		return fmt.Errorf("create certmagic storage: %w", err)
	}

	cfg := certmagic.NewDefault()
	cfg.Storage = storage
	cfg.Logger = m.Logger

	issuer := certmagic.NewACMEIssuer(cfg, certmagic.ACMEIssuer{
		CA:                   m.CAURL(),
		Email:                m.Email,
		Agreed:               true,
		DisableHTTPChallenge: true,
		Logger:               m.Logger,
	})
	cfg.Issuers = []certmagic.Issuer{issuer}
	m.config = cfg

	m.Logger.Info("managing certificate",
		logging.Domain(m.Domain),
		zap.String("ca", m.CAURL()),
	)
	if err := cfg.ManageAsync(ctx, []string{m.Domain}); err != nil {
		return fmt.Errorf("manage certificate for %s: %w", m.Domain, err)
	}
	return nil
}

// TLSConfig returns a TLS configuration serving the managed certificate and
// answering TLS-ALPN challenges. It is nil until Manage succeeds.
func (m *Manager) TLSConfig() *tls.Config {
	if m.config == nil {
		return nil
	}
	tlsCfg := m.config.TLSConfig()
	tlsCfg.NextProtos = append([]string{"h2", "http/1.1"}, tlsCfg.NextProtos...)
	return tlsCfg
}

// Package integrations queries registered integration backends, either all
// of them at once for their settings or one of them by name.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rsclarke/botgate/internal/backend"
	"github.com/rsclarke/botgate/internal/db"
	"github.com/rsclarke/botgate/internal/logging"
	"github.com/rsclarke/botgate/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds each settings call during List.
const DefaultTimeout = 2 * time.Second

// Store reads integration registrations.
type Store interface {
	GetIntegration(ctx context.Context, name string) (*models.Integration, error)
	ListVisibleIntegrations(ctx context.Context, bot string) ([]models.Integration, error)
}

// Settings is one integration's entry in the aggregate view.
type Settings struct {
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings"`
}

// Op is an operation invoked on a single integration.
type Op string

// Supported single-integration operations.
const (
	OpSettings Op = "settings"
	OpExecute  Op = "execute"
	OpResource Op = "resource"
)

// Aggregator fans out to integration backends.
type Aggregator struct {
	store   Store
	client  *backend.Client
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an Aggregator. A zero timeout selects DefaultTimeout.
func New(store Store, client *backend.Client, timeout time.Duration, logger *zap.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, client: client, timeout: timeout, logger: logger}
}

// List fetches the settings of every integration visible to bot in
// parallel. Each call runs under its own timeout; failed integrations are
// logged and left out. The result follows registry order.
func (a *Aggregator) List(ctx context.Context, bot string) ([]Settings, error) {
	visible, err := a.store.ListVisibleIntegrations(ctx, bot)
	if err != nil {
		return nil, err
	}

	results := make([]*Settings, len(visible))
	var g errgroup.Group
	for i := range visible {
		integ := visible[i]
		g.Go(func() error {
			results[i] = a.fetchSettings(ctx, integ, bot)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Settings, 0, len(visible))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (a *Aggregator) fetchSettings(ctx context.Context, integ models.Integration, bot string) *Settings {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var query url.Values
	if bot != "" {
		query = url.Values{"bot": {bot}}
	}
	target, err := backend.JoinURL(integ.URL, "/settings", query)
	if err != nil {
		a.logger.Warn("integration url invalid", logging.Integration(integ.Name), zap.Error(err))
		return nil
	}

	start := time.Now()
	resp, err := a.client.Do(ctx, http.MethodGet, target, nil)
	if err != nil {
		a.logger.Warn("integration settings failed",
			logging.Integration(integ.Name),
			logging.Duration(time.Since(start)),
			zap.Error(err),
		)
		return nil
	}
	if !json.Valid(resp.Body) {
		a.logger.Warn("integration settings not json", logging.Integration(integ.Name))
		return nil
	}
	return &Settings{Name: integ.Name, Settings: json.RawMessage(resp.Body)}
}

// Invoke resolves one integration by name and forwards op to it. An
// integration owned by a different bot than bot is reported as not found.
func (a *Aggregator) Invoke(ctx context.Context, name, bot string, op Op, payload any) (*backend.Response, error) {
	integ, err := a.store.GetIntegration(ctx, name)
	if err != nil {
		return nil, err
	}
	if !integ.VisibleTo(bot) {
		return nil, fmt.Errorf("integration %s for bot %q: %w", name, bot, db.ErrNotFound)
	}

	var (
		method string
		path   string
		query  url.Values
	)
	switch op {
	case OpSettings:
		method, path = http.MethodPost, "/settings"
	case OpExecute:
		method, path = http.MethodPost, "/execute"
	case OpResource:
		method, path = http.MethodGet, "/resource"
		payload = nil
		if bot != "" {
			query = url.Values{"bot": {bot}}
		}
	default:
		return nil, fmt.Errorf("unsupported integration operation %q", op)
	}

	target, err := backend.JoinURL(integ.URL, path, query)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(ctx, method, target, payload)
	if err != nil {
		a.logger.Warn("integration call failed",
			logging.Integration(name),
			logging.Operation(string(op)),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

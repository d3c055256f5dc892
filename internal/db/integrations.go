package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rsclarke/botgate/internal/models"
)

// RegisterOutcome describes what RegisterIntegration did.
type RegisterOutcome int

const (
	// Registered means a new row was inserted.
	Registered RegisterOutcome = iota
	// Upgraded means an existing row had its url replaced.
	Upgraded
	// AlreadyRegistered means the name already pointed at the same url.
	AlreadyRegistered
)

func (o RegisterOutcome) String() string {
	switch o {
	case Registered:
		return "registered"
	case Upgraded:
		return "upgraded"
	case AlreadyRegistered:
		return "already registered"
	}
	return fmt.Sprintf("RegisterOutcome(%d)", int(o))
}

const integrationColumns = "id, name, url, bot, created_at"

// RegisterIntegration inserts an integration, or updates the url in place when
// the name exists with a different url. The same name and url is a no-op that
// keeps the row id and created_at.
func RegisterIntegration(ctx context.Context, d *sql.DB, name, url string, bot *string) (RegisterOutcome, error) {
	existing, err := GetIntegrationByName(ctx, d, name)
	switch {
	case errors.Is(err, ErrNotFound):
		_, err := d.ExecContext(ctx,
			"INSERT INTO integrations (name, url, bot, created_at) VALUES (?, ?, ?, ?)",
			name, url, bot, time.Now().Unix(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				// Lost a race with a concurrent registration of the same name.
				return RegisterIntegration(ctx, d, name, url, bot)
			}
			return 0, err
		}
		return Registered, nil
	case err != nil:
		return 0, err
	}

	if existing.URL == url {
		return AlreadyRegistered, nil
	}

	if _, err := d.ExecContext(ctx, "UPDATE integrations SET url = ? WHERE id = ?", url, existing.ID); err != nil {
		return 0, err
	}
	return Upgraded, nil
}

// GetIntegrationByName retrieves an integration by its unique name.
func GetIntegrationByName(ctx context.Context, d *sql.DB, name string) (*models.Integration, error) {
	row := d.QueryRowContext(ctx, "SELECT "+integrationColumns+" FROM integrations WHERE name = ?", name)
	i, err := scanIntegration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("integration %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

// ListVisibleIntegrations returns the global integrations plus, when bot is
// non-empty, the integrations owned by that bot.
func ListVisibleIntegrations(ctx context.Context, d *sql.DB, bot string) ([]models.Integration, error) {
	if bot == "" {
		return queryIntegrations(ctx, d,
			"SELECT "+integrationColumns+" FROM integrations WHERE bot IS NULL ORDER BY name")
	}
	return queryIntegrations(ctx, d,
		"SELECT "+integrationColumns+" FROM integrations WHERE bot IS NULL OR bot = ? ORDER BY name", bot)
}

// UpdateIntegration changes the url and/or owning bot of an integration.
// A nil url leaves it unchanged; setBot controls whether bot is written
// (a nil bot with setBot makes the integration global).
func UpdateIntegration(ctx context.Context, d *sql.DB, name string, url *string, bot *string, setBot bool) error {
	current, err := GetIntegrationByName(ctx, d, name)
	if err != nil {
		return err
	}
	if url != nil {
		current.URL = *url
	}
	if setBot {
		current.Bot = bot
	}
	_, err = d.ExecContext(ctx, "UPDATE integrations SET url = ?, bot = ? WHERE id = ?", current.URL, current.Bot, current.ID)
	return err
}

// DeleteIntegration removes an integration by name.
func DeleteIntegration(ctx context.Context, d *sql.DB, name string) error {
	result, err := d.ExecContext(ctx, "DELETE FROM integrations WHERE name = ?", name)
	if err != nil {
		return err
	}
	return expectRow(result, "integration", name)
}

func queryIntegrations(ctx context.Context, d *sql.DB, query string, args ...any) ([]models.Integration, error) {
	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

func scanIntegration(s scanner) (*models.Integration, error) {
	var i models.Integration
	var bot sql.NullString
	if err := s.Scan(&i.ID, &i.Name, &i.URL, &bot, &i.CreatedAt); err != nil {
		return nil, err
	}
	if bot.Valid {
		i.Bot = &bot.String
	}
	return &i, nil
}

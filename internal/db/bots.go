package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rsclarke/botgate/internal/models"
)

const botColumns = "id, name, host, port, kind, created_at"

// CreateBot inserts a bot and returns its ID. A duplicate name yields ErrConflict
// and leaves the existing row untouched.
func CreateBot(ctx context.Context, d *sql.DB, name, host string, port int, kind models.BotKind) (int64, error) {
	result, err := d.ExecContext(ctx,
		"INSERT INTO bots (name, host, port, kind, created_at) VALUES (?, ?, ?, ?, ?)",
		name, host, port, string(kind), time.Now().Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("bot %q: %w", name, ErrConflict)
		}
		return 0, err
	}
	return result.LastInsertId()
}

// GetBotByName retrieves a bot by its unique name.
func GetBotByName(ctx context.Context, d *sql.DB, name string) (*models.Bot, error) {
	row := d.QueryRowContext(ctx, "SELECT "+botColumns+" FROM bots WHERE name = ?", name)
	b, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bot %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBots returns every registered bot ordered by name.
func ListBots(ctx context.Context, d *sql.DB) ([]models.Bot, error) {
	rows, err := d.QueryContext(ctx, "SELECT "+botColumns+" FROM bots ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []models.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, *b)
	}
	return bots, rows.Err()
}

// UpdateBot applies a partial host/port update. An empty update does not touch
// the database.
func UpdateBot(ctx context.Context, d *sql.DB, name string, u models.BotUpdate) error {
	if u.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if u.Host != nil {
		sets = append(sets, "host = ?")
		args = append(args, *u.Host)
	}
	if u.Port != nil {
		sets = append(sets, "port = ?")
		args = append(args, *u.Port)
	}
	args = append(args, name)

	result, err := d.ExecContext(ctx, "UPDATE bots SET "+strings.Join(sets, ", ")+" WHERE name = ?", args...)
	if err != nil {
		return err
	}
	return expectRow(result, "bot", name)
}

// DeleteBot removes a bot by name.
func DeleteBot(ctx context.Context, d *sql.DB, name string) error {
	result, err := d.ExecContext(ctx, "DELETE FROM bots WHERE name = ?", name)
	if err != nil {
		return err
	}
	return expectRow(result, "bot", name)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBot(s scanner) (*models.Bot, error) {
	var b models.Bot
	var kind string
	if err := s.Scan(&b.ID, &b.Name, &b.Host, &b.Port, &kind, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Kind = models.BotKind(kind)
	return &b, nil
}

func expectRow(result sql.Result, kind, name string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/rsclarke/botgate/internal/models"
)

// CreateInteraction appends a handled query to the history and returns its ID.
func CreateInteraction(ctx context.Context, d *sql.DB, query, intent, bot string, confidence float64) (int64, error) {
	result, err := d.ExecContext(ctx,
		"INSERT INTO history (query, intent, bot, confidence, created_at) VALUES (?, ?, ?, ?, ?)",
		query, intent, bot, confidence, time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetInteractionsByBot retrieves the history of a bot, oldest first.
func GetInteractionsByBot(ctx context.Context, d *sql.DB, bot string) ([]models.Interaction, error) {
	rows, err := d.QueryContext(ctx,
		"SELECT id, query, intent, bot, confidence, created_at FROM history WHERE bot = ? ORDER BY created_at ASC, id ASC",
		bot,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var i models.Interaction
		if err := rows.Scan(&i.ID, &i.Query, &i.Intent, &i.Bot, &i.Confidence, &i.CreatedAt); err != nil {
			return nil, err
		}
		interactions = append(interactions, i)
	}
	return interactions, rows.Err()
}

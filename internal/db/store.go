package db

import (
	"context"
	"database/sql"

	"github.com/rsclarke/botgate/internal/models"
)

// Store exposes the registry functions as methods so consumers can depend on
// narrow interfaces instead of *sql.DB.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database.
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

// GetBot looks up a bot by name.
func (s *Store) GetBot(ctx context.Context, name string) (*models.Bot, error) {
	return GetBotByName(ctx, s.db, name)
}

// ListBots returns all bots.
func (s *Store) ListBots(ctx context.Context) ([]models.Bot, error) {
	return ListBots(ctx, s.db)
}

// CreateBot registers a new bot.
func (s *Store) CreateBot(ctx context.Context, b models.Bot) error {
	_, err := CreateBot(ctx, s.db, b.Name, b.Host, b.Port, b.Kind)
	return err
}

// UpdateBot applies a partial update to a bot.
func (s *Store) UpdateBot(ctx context.Context, name string, u models.BotUpdate) error {
	return UpdateBot(ctx, s.db, name, u)
}

// DeleteBot removes a bot.
func (s *Store) DeleteBot(ctx context.Context, name string) error {
	return DeleteBot(ctx, s.db, name)
}

// GetIntegration looks up an integration by name.
func (s *Store) GetIntegration(ctx context.Context, name string) (*models.Integration, error) {
	return GetIntegrationByName(ctx, s.db, name)
}

// ListVisibleIntegrations returns integrations visible to bot.
func (s *Store) ListVisibleIntegrations(ctx context.Context, bot string) ([]models.Integration, error) {
	return ListVisibleIntegrations(ctx, s.db, bot)
}

// RegisterIntegration inserts or upgrades an integration.
func (s *Store) RegisterIntegration(ctx context.Context, name, url string, bot *string) (RegisterOutcome, error) {
	return RegisterIntegration(ctx, s.db, name, url, bot)
}

// UpdateIntegration changes an integration's url and/or owner.
func (s *Store) UpdateIntegration(ctx context.Context, name string, url, bot *string, setBot bool) error {
	return UpdateIntegration(ctx, s.db, name, url, bot, setBot)
}

// DeleteIntegration removes an integration.
func (s *Store) DeleteIntegration(ctx context.Context, name string) error {
	return DeleteIntegration(ctx, s.db, name)
}

// AppendInteraction records a handled query.
func (s *Store) AppendInteraction(ctx context.Context, i models.Interaction) error {
	_, err := CreateInteraction(ctx, s.db, i.Query, i.Intent, i.Bot, i.Confidence)
	return err
}

// ListInteractions returns a bot's history, oldest first.
func (s *Store) ListInteractions(ctx context.Context, bot string) ([]models.Interaction, error) {
	return GetInteractionsByBot(ctx, s.db, bot)
}

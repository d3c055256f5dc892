// Package history records handled queries and the intent a bot resolved
// them to.
package history

import (
	"context"

	"github.com/rsclarke/botgate/internal/logging"
	"github.com/rsclarke/botgate/internal/models"
	"go.uber.org/zap"
)

// Store persists interaction records.
type Store interface {
	AppendInteraction(ctx context.Context, i models.Interaction) error
	ListInteractions(ctx context.Context, bot string) ([]models.Interaction, error)
}

// Recorder appends interaction records without ever failing its caller.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// Record appends one interaction. Failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, query, intent, bot string, confidence float64) {
	err := r.store.AppendInteraction(ctx, models.Interaction{
		Query:      query,
		Intent:     intent,
		Bot:        bot,
		Confidence: confidence,
	})
	if err != nil {
		r.logger.Warn("record interaction failed", logging.Bot(bot), zap.String("intent", intent), zap.Error(err))
		return
	}
	r.logger.Debug("interaction recorded", logging.Bot(bot), zap.String("intent", intent), zap.Float64("confidence", confidence))
}

// History returns the bot's interactions, oldest first.
func (r *Recorder) History(ctx context.Context, bot string) ([]models.Interaction, error) {
	return r.store.ListInteractions(ctx, bot)
}

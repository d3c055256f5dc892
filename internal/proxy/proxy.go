// Package proxy forwards logical bot operations to the backend registered
// under a bot name.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rsclarke/botgate/internal/backend"
	"github.com/rsclarke/botgate/internal/logging"
	"github.com/rsclarke/botgate/internal/models"
	"go.uber.org/zap"
)

// BotStore resolves bot names to their registration.
type BotStore interface {
	GetBot(ctx context.Context, name string) (*models.Bot, error)
}

// Recorder stores handled queries.
type Recorder interface {
	Record(ctx context.Context, query, intent, bot string, confidence float64)
}

// BotProxy resolves a bot and calls its backend. Registrations are read
// from the store on every call.
type BotProxy struct {
	store    BotStore
	client   *backend.Client
	recorder Recorder
	logger   *zap.Logger
}

// New creates a BotProxy. recorder may be nil, in which case handled
// queries are not recorded.
func New(store BotStore, client *backend.Client, recorder Recorder, logger *zap.Logger) *BotProxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotProxy{store: store, client: client, recorder: recorder, logger: logger}
}

// Bot looks up a bot and validates its backend address.
func (p *BotProxy) Bot(ctx context.Context, name string) (*models.Bot, backend.Address, error) {
	bot, err := p.store.GetBot(ctx, name)
	if err != nil {
		return nil, backend.Address{}, err
	}
	addr, err := backend.NewAddress(bot.Host, bot.Port)
	if err != nil {
		return nil, backend.Address{}, fmt.Errorf("bot %s: %w", name, err)
	}
	return bot, addr, nil
}

// Forward performs op against the named bot and returns the raw reply.
func (p *BotProxy) Forward(ctx context.Context, name string, op Operation, payload any) (*backend.Response, error) {
	_, addr, err := p.Bot(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.call(ctx, name, addr, op, payload)
}

func (p *BotProxy) call(ctx context.Context, name string, addr backend.Address, op Operation, payload any) (*backend.Response, error) {
	target := addr.URL(op.Path, op.Query)
	resp, err := p.client.Do(ctx, op.Method, target, payload)
	if err != nil {
		p.logger.Warn("bot call failed",
			logging.Bot(name),
			logging.Operation(op.Name),
			logging.URL(target),
			zap.Error(err),
		)
		return nil, err
	}
	p.logger.Debug("bot call",
		logging.Bot(name),
		logging.Operation(op.Name),
		logging.Status(resp.Status),
	)
	return resp, nil
}

// Intents returns the distinct intent names the bot has examples for. The
// backend replies with an example-to-intent map or a plain list.
func (p *BotProxy) Intents(ctx context.Context, name string) ([]string, error) {
	resp, err := p.Forward(ctx, name, ExampleMap, nil)
	if err != nil {
		return nil, err
	}

	var values []string
	var byExample map[string]string
	if err := resp.Decode(&byExample); err == nil {
		for _, intent := range byExample {
			values = append(values, intent)
		}
	} else if err := resp.Decode(&values); err != nil {
		return nil, &backend.Error{Status: resp.Status, Message: "unexpected intents payload", Err: err}
	}

	seen := make(map[string]struct{}, len(values))
	intents := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		intents = append(intents, v)
	}
	sort.Strings(intents)
	return intents, nil
}

// Explanation is the bot's reading of a query.
type Explanation struct {
	Intent     string
	Confidence float64
}

// UnmarshalJSON accepts either a confidence or a probability field.
func (e *Explanation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Intent      string   `json:"intent"`
		Confidence  *float64 `json:"confidence"`
		Probability *float64 `json:"probability"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Intent = raw.Intent
	switch {
	case raw.Confidence != nil:
		e.Confidence = *raw.Confidence
	case raw.Probability != nil:
		e.Confidence = *raw.Probability
	default:
		e.Confidence = 0
	}
	return nil
}

type handleRequest struct {
	Identifier string `json:"identifier"`
	Query      string `json:"query"`
}

// Handle forwards a user query and returns the bot's answer. The query is
// then explained and recorded; failures there are logged and never change
// the answer.
func (p *BotProxy) Handle(ctx context.Context, name, identifier, query string) (*backend.Response, error) {
	_, addr, err := p.Bot(ctx, name)
	if err != nil {
		return nil, err
	}
	answer, err := p.call(ctx, name, addr, Handle, handleRequest{Identifier: identifier, Query: query})
	if err != nil {
		return nil, err
	}

	if p.recorder != nil {
		p.record(ctx, name, addr, query)
	}
	return answer, nil
}

func (p *BotProxy) record(ctx context.Context, name string, addr backend.Address, query string) {
	resp, err := p.call(ctx, name, addr, Explain(query), nil)
	if err != nil {
		p.logger.Warn("explain failed, interaction not recorded", logging.Bot(name), zap.Error(err))
		return
	}
	var ex Explanation
	if err := resp.Decode(&ex); err != nil || ex.Intent == "" {
		p.logger.Warn("explain returned no intent, interaction not recorded", logging.Bot(name), zap.Error(err))
		return
	}
	p.recorder.Record(ctx, query, ex.Intent, name, ex.Confidence)
}

type explainRequest struct {
	Query string `json:"query"`
}

// Explain posts query to the bot's explain endpoint and returns the reply
// as sent by the backend.
func (p *BotProxy) Explain(ctx context.Context, name, query string) (*backend.Response, error) {
	return p.Forward(ctx, name, AskExplain, explainRequest{Query: query})
}

type actionRequest struct {
	Name     string         `json:"name"`
	Intent   string         `json:"intent"`
	Settings map[string]any `json:"settings"`
}

type exampleRequest struct {
	Example string `json:"example"`
	Intent  string `json:"intent"`
}

// CreateIntent pushes an action for intent and then each example. Only the
// bot lookup can fail the call; individual pushes are logged and skipped.
func (p *BotProxy) CreateIntent(ctx context.Context, name, intent, action string, examples []string) error {
	_, addr, err := p.Bot(ctx, name)
	if err != nil {
		return err
	}

	if _, err := p.call(ctx, name, addr, AddAction, actionRequest{Name: action, Intent: intent, Settings: map[string]any{}}); err != nil {
		p.logger.Warn("push action failed", logging.Bot(name), zap.String("intent", intent), zap.Error(err))
	}
	for _, ex := range examples {
		if _, err := p.call(ctx, name, addr, AddExample, exampleRequest{Example: ex, Intent: intent}); err != nil {
			p.logger.Warn("push example failed", logging.Bot(name), zap.String("intent", intent), zap.Error(err))
		}
	}
	return nil
}

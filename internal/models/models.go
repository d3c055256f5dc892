// Package models defines the database entity types.
package models

import "strings"

// BotKind identifies which backend implementation a bot runs.
type BotKind string

// Supported bot kinds.
const (
	KindCharlotte BotKind = "charlotte"
	KindRobert    BotKind = "robert"
)

// ParseBotKind normalizes a kind string. The second result is false for
// anything that is not a supported kind.
func ParseBotKind(s string) (BotKind, bool) {
	switch BotKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCharlotte:
		return KindCharlotte, true
	case KindRobert:
		return KindRobert, true
	}
	return "", false
}

// Bot represents a registered bot backend.
type Bot struct {
	ID        int64
	Name      string
	Host      string
	Port      int
	Kind      BotKind
	CreatedAt int64
}

// BotUpdate carries the mutable fields of a bot. Nil fields are left untouched.
type BotUpdate struct {
	Host *string
	Port *int
}

// Empty reports whether the update would change nothing.
func (u BotUpdate) Empty() bool {
	return u.Host == nil && u.Port == nil
}

// Integration represents a registered integration backend.
type Integration struct {
	ID        int64
	Name      string
	URL       string
	Bot       *string
	CreatedAt int64
}

// Global reports whether the integration is visible to every bot.
func (i *Integration) Global() bool {
	return i.Bot == nil
}

// VisibleTo reports whether the integration may be used on behalf of bot.
// An empty bot name only sees global integrations.
func (i *Integration) VisibleTo(bot string) bool {
	if i.Bot == nil {
		return true
	}
	return bot != "" && *i.Bot == bot
}

// Interaction is one handled query together with the bot's explanation.
type Interaction struct {
	ID         int64
	Query      string
	Intent     string
	Bot        string
	Confidence float64
	CreatedAt  int64
}

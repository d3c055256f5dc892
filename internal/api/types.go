// Package api defines the JSON request and response bodies of the gateway.
package api

import "encoding/json"

type BotResponse struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

// RegisterBotRequest registers a bot. Type is accepted as an older spelling
// of Kind.
type RegisterBotRequest struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
	Kind string `json:"kind,omitempty"`
	Type string `json:"type,omitempty"`
}

type UpdateBotRequest struct {
	Name string  `json:"name"`
	Host *string `json:"host,omitempty"`
	Port *int    `json:"port,omitempty"`
}

type DeleteBotRequest struct {
	Name string `json:"name"`
}

// BotSettingsResponse carries the bot's language settings. Host, Port and
// Kind are only present for callers allowed to configure the bot.
type BotSettingsResponse struct {
	Name     string          `json:"name"`
	Host     string          `json:"host,omitempty"`
	Port     int             `json:"port,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	Language json.RawMessage `json:"language"`
}

type Phrase struct {
	Text   string `json:"text"`
	Intent string `json:"intent"`
}

type AddPhrasesRequest struct {
	Bot     string   `json:"bot"`
	Phrases []Phrase `json:"phrases"`
}

type DeletePhraseRequest struct {
	Bot    string `json:"bot"`
	Intent string `json:"intent"`
	Text   string `json:"text"`
}

// PhrasesPayload is the body sent to a bot's /phrases endpoint.
type PhrasesPayload struct {
	Phrases []Phrase `json:"phrases"`
}

type CreateIntentRequest struct {
	Bot      string   `json:"bot"`
	Intent   string   `json:"intent"`
	Action   string   `json:"action"`
	Examples []string `json:"examples,omitempty"`
}

type AddExampleRequest struct {
	Bot     string `json:"bot"`
	Intent  string `json:"intent"`
	Example string `json:"example"`
}

type DeleteExampleRequest struct {
	Bot     string `json:"bot"`
	Example string `json:"example"`
}

type SetLanguageRequest struct {
	Bot         string `json:"bot"`
	CountryCode string `json:"country_code"`
}

type HandleRequest struct {
	Bot        string `json:"bot"`
	Identifier string `json:"identifier"`
	Query      string `json:"query"`
}

type ExplainRequest struct {
	Bot   string `json:"bot"`
	Query string `json:"query"`
}

type InteractionResponse struct {
	ID         int64   `json:"id"`
	Query      string  `json:"query"`
	Intent     string  `json:"intent"`
	Bot        string  `json:"bot"`
	Confidence float64 `json:"confidence"`
	CreatedAt  string  `json:"created_at"`
}

type RegisterIntegrationRequest struct {
	Name string  `json:"name"`
	URL  string  `json:"url"`
	Bot  *string `json:"bot,omitempty"`
}

// UpdateIntegrationRequest changes an integration. A Bot of "" makes the
// integration global; a missing Bot leaves the owner unchanged.
type UpdateIntegrationRequest struct {
	Name string  `json:"name"`
	URL  *string `json:"url,omitempty"`
	Bot  *string `json:"bot,omitempty"`
}

type DeleteIntegrationRequest struct {
	Name string `json:"name"`
}

type RegisterIntegrationResponse struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
}

type IntegrationSettings struct {
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings"`
}

type IntegrationSettingsRequest struct {
	Bot      string          `json:"bot"`
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings"`
}

type IntegrationExecuteRequest struct {
	Bot     string          `json:"bot"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

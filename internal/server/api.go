// Package server implements the gateway HTTP API and its listener lifecycle.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rsclarke/botgate/internal/api"
	"github.com/rsclarke/botgate/internal/auth"
	"github.com/rsclarke/botgate/internal/backend"
	"github.com/rsclarke/botgate/internal/db"
	"github.com/rsclarke/botgate/internal/history"
	"github.com/rsclarke/botgate/internal/integrations"
	"github.com/rsclarke/botgate/internal/logging"
	"github.com/rsclarke/botgate/internal/models"
	"github.com/rsclarke/botgate/internal/proxy"
	"go.uber.org/zap"
)

const (
	maxBodyBytes = 1 << 20
	banner       = "botgate: one front door for every bot"
)

// APIServer routes gateway requests to the registry, bot backends and
// integration backends.
type APIServer struct {
	Store        *db.Store
	Proxy        *proxy.BotProxy
	Integrations *integrations.Aggregator
	History      *history.Recorder
	Resolver     *auth.Resolver
	Policy       auth.Policy
	CORSOrigins  []string
	Logger       *zap.Logger
}

// principalHandler is a handler that receives the caller's identity. The
// principal is nil for anonymous callers and when authorization is off.
type principalHandler func(w http.ResponseWriter, r *http.Request, p *auth.Principal)

// Handler returns the HTTP handler for the gateway API.
func (s *APIServer) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleBanner)
	mux.HandleFunc("GET /alive", s.handleAlive)

	mux.HandleFunc("GET /bots", s.handleListBots)
	mux.HandleFunc("POST /bot", s.withPrincipal(s.handleRegisterBot))
	mux.HandleFunc("PUT /bot", s.withPrincipal(s.handleUpdateBot))
	mux.HandleFunc("DELETE /bot", s.withPrincipal(s.handleDeleteBot))

	mux.HandleFunc("GET /bot/{name}/status", s.handleBotStatus)
	mux.HandleFunc("GET /bot/{name}/settings", s.withPrincipal(s.handleBotSettings))
	mux.HandleFunc("GET /bot/{name}/actions", s.withPrincipal(s.handleBotActions))
	mux.HandleFunc("GET /bot/{name}/phrases", s.withPrincipal(s.handleBotPhrases))
	mux.HandleFunc("GET /bot/{name}/intents", s.withPrincipal(s.handleBotIntents))
	mux.HandleFunc("GET /bot/{name}/history", s.withPrincipal(s.handleBotHistory))
	mux.HandleFunc("GET /intent/{intent}/bot/{name}/examples", s.withPrincipal(s.handleIntentExamples))

	mux.HandleFunc("POST /phrases", s.withPrincipal(s.handleAddPhrases))
	mux.HandleFunc("DELETE /phrase", s.withPrincipal(s.handleDeletePhrase))
	mux.HandleFunc("POST /intent", s.withPrincipal(s.handleCreateIntent))
	mux.HandleFunc("POST /example", s.withPrincipal(s.handleAddExample))
	mux.HandleFunc("DELETE /example", s.withPrincipal(s.handleDeleteExample))
	mux.HandleFunc("POST /language", s.withPrincipal(s.handleSetLanguage))

	mux.HandleFunc("POST /handle", s.handleQuery)
	mux.HandleFunc("POST /explain", s.handleExplain)

	mux.HandleFunc("POST /integration", s.withPrincipal(s.handleRegisterIntegration))
	mux.HandleFunc("PUT /integration", s.withPrincipal(s.handleUpdateIntegration))
	mux.HandleFunc("DELETE /integration", s.withPrincipal(s.handleDeleteIntegration))
	mux.HandleFunc("GET /integrations", s.handleListIntegrations)
	mux.HandleFunc("GET /integration/{name}/resource", s.handleIntegrationResource)
	mux.HandleFunc("POST /integration/settings", s.withPrincipal(s.handleIntegrationSettings))
	mux.HandleFunc("POST /integration/execute", s.withPrincipal(s.handleIntegrationExecute))

	return withRequestID(withAccessLog(s.Logger, withCORS(s.CORSOrigins, mux)))
}

// withPrincipal resolves the caller before h runs. Verification failures
// either degrade to an anonymous caller or end the request with 401,
// depending on the resolver's failure policy.
func (s *APIServer) withPrincipal(h principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p *auth.Principal
		if s.Resolver != nil {
			var err error
			p, err = s.Resolver.Resolve(r)
			if err != nil {
				if !s.Resolver.FailOpen() {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
				s.Logger.Warn("identity verification failed, continuing anonymously",
					logging.RequestID(RequestID(r.Context())),
					zap.Error(err),
				)
				p = nil
			}
		}
		h(w, r, p)
	}
}

// authorize writes 401 and returns false when p lacks role.
func (s *APIServer) authorize(w http.ResponseWriter, r *http.Request, p *auth.Principal, role string) bool {
	if s.Policy.Allowed(p, role) {
		return true
	}
	fields := []zap.Field{zap.String("role", role), logging.Path(r.URL.Path)}
	if p != nil {
		fields = append(fields, logging.Subject(p.Subject), zap.Strings("roles", p.RoleList()))
	}
	s.Logger.Info("access denied", fields...)
	writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
	return false
}

func (s *APIServer) handleBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, banner)
}

func (s *APIServer) handleAlive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.Store.ListBots(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]api.BotResponse, 0, len(bots))
	for _, b := range bots {
		resp = append(resp, botResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleRegisterBot(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if !s.authorize(w, r, p, s.Policy.Admin()) {
		return
	}
	var req api.RegisterBotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kindName := req.Kind
	if kindName == "" {
		kindName = req.Type
	}
	if req.Name == "" || req.Host == "" || req.Port == 0 || kindName == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name, host, port and kind are required"))
		return
	}
	kind, ok := models.ParseBotKind(kindName)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("kind must be charlotte or robert"))
		return
	}
	if _, err := backend.NewAddress(req.Host, req.Port); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	bot := models.Bot{Name: req.Name, Host: req.Host, Port: req.Port, Kind: kind}
	if err := s.Store.CreateBot(r.Context(), bot); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("bot registered", logging.Bot(bot.Name), zap.String("kind", string(kind)))

	created, err := s.Store.GetBot(r.Context(), bot.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, botResponse(*created))
}

func (s *APIServer) handleUpdateBot(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if !s.authorize(w, r, p, s.Policy.Admin()) {
		return
	}
	var req api.UpdateBotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if req.Host != nil && strings.TrimSpace(*req.Host) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("host must not be empty"))
		return
	}
	if req.Port != nil && (*req.Port < 1 || *req.Port > 65535) {
		writeJSON(w, http.StatusBadRequest, errorBody("port out of range"))
		return
	}

	update := models.BotUpdate{Host: req.Host, Port: req.Port}
	if update.Empty() {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Validate the address the row will hold after the update.
	current, err := s.Store.GetBot(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	host, port := current.Host, current.Port
	if req.Host != nil {
		host = *req.Host
	}
	if req.Port != nil {
		port = *req.Port
	}
	if _, err := backend.NewAddress(host, port); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := s.Store.UpdateBot(r.Context(), req.Name, update); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("bot updated", logging.Bot(req.Name))
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleDeleteBot(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if !s.authorize(w, r, p, s.Policy.Admin()) {
		return
	}
	var req api.DeleteBotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if err := s.Store.DeleteBot(r.Context(), req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("bot deleted", logging.Bot(req.Name))
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Proxy.Forward(r.Context(), r.PathValue("name"), proxy.Status, nil); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleBotSettings(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	name := r.PathValue("name")
	bot, _, err := s.Proxy.Bot(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.Proxy.Forward(r.Context(), name, proxy.Language, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	settings := api.BotSettingsResponse{Name: bot.Name, Language: rawOrString(resp.Body)}
	if s.Policy.Allowed(p, auth.WriteRole(name)) {
		settings.Host = bot.Host
		settings.Port = bot.Port
		settings.Kind = string(bot.Kind)
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *APIServer) handleBotActions(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	s.forwardNamed(w, r, p, proxy.Actions)
}

func (s *APIServer) handleBotPhrases(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	s.forwardNamed(w, r, p, proxy.Phrases)
}

func (s *APIServer) handleIntentExamples(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	s.forwardNamed(w, r, p, proxy.Examples(r.PathValue("intent")))
}

// forwardNamed proxies op to the bot named in the path after checking the
// caller may configure it.
func (s *APIServer) forwardNamed(w http.ResponseWriter, r *http.Request, p *auth.Principal, op proxy.Operation) {
	name := r.PathValue("name")
	if !s.authorize(w, r, p, auth.WriteRole(name)) {
		return
	}
	resp, err := s.Proxy.Forward(r.Context(), name, op, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeBackend(w, resp)
}

func (s *APIServer) handleBotIntents(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	name := r.PathValue("name")
	if !s.authorize(w, r, p, auth.WriteRole(name)) {
		return
	}
	intents, err := s.Proxy.Intents(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intents)
}

func (s *APIServer) handleBotHistory(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	name := r.PathValue("name")
	if !s.authorize(w, r, p, auth.WriteRole(name)) {
		return
	}
	if _, err := s.Store.GetBot(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.History.History(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]api.InteractionResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, api.InteractionResponse{
			ID:         rec.ID,
			Query:      rec.Query,
			Intent:     rec.Intent,
			Bot:        rec.Bot,
			Confidence: rec.Confidence,
			CreatedAt:  formatTime(rec.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleAddPhrases(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req api.AddPhrasesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Bot == "" || len(req.Phrases) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("bot and phrases are required"))
		return
	}
	s.forwardBody(w, r, p, req.Bot, proxy.AddPhrases, api.PhrasesPayload{Phrases: req.Phrases})
}

func (s *APIServer) handleDeletePhrase(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req api.DeletePhraseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Bot == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bot and text are required"))
		return
	}
	payload := api.PhrasesPayload{Phrases: []api.Phrase{{Text: req.Text, Intent: req.Intent}}}
	s.forwardBody(w, r, p, req.Bot, proxy.DeletePhrases, payload)
}

func (s *APIServer) handleAddExample(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req api.AddExampleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Bot == "" || req.Intent == "" || req.Example == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bot, intent and example are required"))
		return
	}
	payload := struct {
		Example string `json:"example"`
		Intent  string `json:"intent"`
	}{req.Example, req.Intent}
	s.forwardBody(w, r, p, req.Bot, proxy.AddExample, payload)
}

func (s *APIServer) handleDeleteExample(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req api.DeleteExampleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Bot == "" || req.Example == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bot and example are required"))
		return
	}
	payload := struct {
		Example string `json:"example"`
	}{req.Example}
	s.forwardBody(w, r, p, req.Bot, proxy.DeleteExample, payload)
}

func (s *APIServer) handleSetLanguage(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req api.SetLanguageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Bot == "" || req.CountryCode == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bot and country_code are required"))
		return
	}
	payload := struct {
		CountryCode string `json:"country_code"`
	}{req.CountryCode}
	s.forwardBody(w, r, p, req.Bot, proxy.SetLanguage, payload)
}

// forwardBody proxies a configuration change to bot and replies with an
// empty 200 on success.
func (s *APIServer) forwardBody(w http.ResponseWriter, r *http.Request, p *auth.Principal, bot string, op proxy.Operation, payload any) {
	if !s.authorize(w, r, p, auth.WriteRole(bot)) {
		return
	}
	if _, err := s.Proxy.Forward(r.Context(), bot, op, payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleCreateIntent(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req api.CreateIntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Bot == "" || req.Intent == "" || req.Action == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bot, intent and action are required"))
		return
	}
	if !s.authorize(w, r, p, auth.WriteRole(req.Bot)) {
		return
	}
	if err := s.Proxy.CreateIntent(r.Context(), req.Bot, req.Intent, req.Action, req.Examples); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req api.HandleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Bot == "" || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bot and query are required"))
		return
	}
	resp, err := s.Proxy.Handle(r.Context(), req.Bot, req.Identifier, req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeBackend(w, resp)
}

func (s *APIServer) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req api.ExplainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Bot == "" || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bot and query are required"))
		return
	}
	resp, err := s.Proxy.Explain(r.Context(), req.Bot, req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeBackend(w, resp)
}

func (s *APIServer) handleRegisterIntegration(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if !s.authorize(w, r, p, s.Policy.Admin()) {
		return
	}
	var req api.RegisterIntegrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name and url are required"))
		return
	}
	if _, err := backend.ParseBaseURL(req.URL); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.Bot != nil && *req.Bot == "" {
		req.Bot = nil
	}

	outcome, err := s.Store.RegisterIntegration(r.Context(), req.Name, req.URL, req.Bot)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("integration registered", logging.Integration(req.Name), zap.Stringer("outcome", outcome))

	switch outcome {
	case db.Upgraded:
		w.WriteHeader(http.StatusNoContent)
	case db.AlreadyRegistered:
		writeJSON(w, http.StatusSeeOther, api.RegisterIntegrationResponse{Name: req.Name, Outcome: outcome.String()})
	default:
		writeJSON(w, http.StatusOK, api.RegisterIntegrationResponse{Name: req.Name, Outcome: outcome.String()})
	}
}

func (s *APIServer) handleUpdateIntegration(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if !s.authorize(w, r, p, s.Policy.Admin()) {
		return
	}
	var req api.UpdateIntegrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if req.URL != nil {
		if _, err := backend.ParseBaseURL(*req.URL); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}

	setBot := req.Bot != nil
	bot := req.Bot
	if setBot && *bot == "" {
		bot = nil
	}
	if err := s.Store.UpdateIntegration(r.Context(), req.Name, req.URL, bot, setBot); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("integration updated", logging.Integration(req.Name))
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleDeleteIntegration(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if !s.authorize(w, r, p, s.Policy.Admin()) {
		return
	}
	var req api.DeleteIntegrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if err := s.Store.DeleteIntegration(r.Context(), req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("integration deleted", logging.Integration(req.Name))
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Integrations.List(r.Context(), r.URL.Query().Get("bot"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]api.IntegrationSettings, 0, len(settings))
	for _, st := range settings {
		resp = append(resp, api.IntegrationSettings{Name: st.Name, Settings: st.Settings})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleIntegrationResource(w http.ResponseWriter, r *http.Request) {
	resp, err := s.Integrations.Invoke(r.Context(), r.PathValue("name"), r.URL.Query().Get("bot"), integrations.OpResource, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeBackend(w, resp)
}

func (s *APIServer) handleIntegrationSettings(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req api.IntegrationSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.invokeIntegration(w, r, p, req.Bot, req.Name, integrations.OpSettings, req.Settings)
}

func (s *APIServer) handleIntegrationExecute(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req api.IntegrationExecuteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.invokeIntegration(w, r, p, req.Bot, req.Name, integrations.OpExecute, req.Payload)
}

func (s *APIServer) invokeIntegration(w http.ResponseWriter, r *http.Request, p *auth.Principal, bot, name string, op integrations.Op, payload json.RawMessage) {
	if bot == "" || name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bot and name are required"))
		return
	}
	if !s.authorize(w, r, p, auth.WriteRole(bot)) {
		return
	}
	var body any
	if len(payload) > 0 {
		body = payload
	}
	resp, err := s.Integrations.Invoke(r.Context(), name, bot, op, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeBackend(w, resp)
}

// writeError maps a failure to its HTTP status. Storage errors are logged
// and reported without detail.
func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var be *backend.Error
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, db.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.As(err, &be):
		writeJSON(w, http.StatusInternalServerError, errorBody(be.Error()))
	case errors.Is(err, backend.ErrInvalidAddress):
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	default:
		s.Logger.Error("storage error",
			logging.Path(r.URL.Path),
			logging.RequestID(RequestID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody("database error"))
	}
}

// decodeJSON reads a single JSON object from the request body. It writes
// the error response itself and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("request body required"))
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
		case errors.Is(err, io.EOF):
			writeJSON(w, http.StatusBadRequest, errorBody("request body required"))
		default:
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		}
		return false
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		writeJSON(w, http.StatusBadRequest, errorBody("unexpected trailing data"))
		return false
	}
	return true
}

// writeBackend relays a backend reply with its status and content type.
func writeBackend(w http.ResponseWriter, resp *backend.Response) {
	ct := resp.ContentType()
	if ct == "" && len(resp.Body) > 0 {
		ct = "application/json"
	}
	if ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// rawOrString keeps a JSON body as-is and quotes anything else.
func rawOrString(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(trimmed))
	return quoted
}

func botResponse(b models.Bot) api.BotResponse {
	return api.BotResponse{
		Name:      b.Name,
		Host:      b.Host,
		Port:      b.Port,
		Kind:      string(b.Kind),
		CreatedAt: formatTime(b.CreatedAt),
	}
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

func errorBody(msg string) api.ErrorResponse {
	return api.ErrorResponse{Error: msg}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

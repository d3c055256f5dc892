package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rsclarke/botgate/internal/api"
	"github.com/rsclarke/botgate/internal/auth"
	"github.com/rsclarke/botgate/internal/backend"
	"github.com/rsclarke/botgate/internal/db"
	"github.com/rsclarke/botgate/internal/history"
	"github.com/rsclarke/botgate/internal/integrations"
	"github.com/rsclarke/botgate/internal/models"
	"github.com/rsclarke/botgate/internal/proxy"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeBot is a bot backend with a fixed script of replies.
type fakeBot struct {
	mu          sync.Mutex
	explainFail bool
	calls       []string
	explainBody string
}

func (f *fakeBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	explainFail := f.explainFail
	if r.Method == http.MethodPost && r.URL.Path == "/explain" {
		f.explainBody = string(body)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method + " " + r.URL.Path {
	case "GET /":
		w.WriteHeader(http.StatusOK)
	case "GET /language":
		_, _ = w.Write([]byte(`{"country_code":"en"}`))
	case "GET /actions":
		_, _ = w.Write([]byte(`[{"name":"shout"}]`))
	case "GET /example":
		_, _ = w.Write([]byte(`{"hi":"greet","hello":"greet","bye":"farewell"}`))
	case "POST /handle":
		_, _ = w.Write([]byte(`{"answer":"hello human"}`))
	case "GET /explain", "POST /explain":
		if explainFail {
			http.Error(w, "explain unavailable", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"intent":"greet","confidence":0.93}`))
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeBot) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

// fakeIdentity accepts any token and reports a fixed subject.
type fakeIdentity struct {
	err error
}

func (f fakeIdentity) UserInfo(_ context.Context, _ string) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"sub": "user-1", "preferred_username": "ada"}, nil
}

type testEnv struct {
	srv     *APIServer
	handler http.Handler
	store   *db.Store
	bot     *fakeBot
	botHost string
	botPort int
}

func setupTestAPIServer(t *testing.T, resolver *auth.Resolver, policy auth.Policy) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	store := db.NewStore(database)

	bot := &fakeBot{}
	botSrv := httptest.NewServer(bot)
	t.Cleanup(botSrv.Close)
	u, _ := url.Parse(botSrv.URL)
	port, _ := strconv.Atoi(u.Port())

	client := backend.NewClient(5 * time.Second)
	recorder := history.NewRecorder(store, nil)
	srv := &APIServer{
		Store:        store,
		Proxy:        proxy.New(store, client, recorder, nil),
		Integrations: integrations.New(store, client, 100*time.Millisecond, nil),
		History:      recorder,
		Resolver:     resolver,
		Policy:       policy,
	}

	return &testEnv{
		srv:     srv,
		handler: srv.Handler(),
		store:   store,
		bot:     bot,
		botHost: u.Hostname(),
		botPort: port,
	}
}

func (e *testEnv) registerBot(t *testing.T, name string) {
	t.Helper()
	err := e.store.CreateBot(context.Background(), models.Bot{Name: name, Host: e.botHost, Port: e.botPort, Kind: models.KindRobert})
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func signedToken(t *testing.T, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"resource_access": map[string]any{
			"botgate": map[string]any{"roles": roles},
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func authEnabled(onError auth.FailurePolicy, provider auth.IdentityProvider) (*auth.Resolver, auth.Policy) {
	return &auth.Resolver{Enabled: true, ClientID: "botgate", Provider: provider, OnError: onError},
		auth.Policy{Enabled: true, AdminRole: "admin"}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

func TestBannerAndAlive(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})

	w := env.do(t, "GET", "/", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "botgate") {
		t.Errorf("banner: got %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}

	w = env.do(t, "GET", "/alive", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("alive: got %d", w.Code)
	}
}

func TestRegisterBot(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})

	req := api.RegisterBotRequest{Name: "alice", Host: env.botHost, Port: env.botPort, Kind: "Charlotte"}
	w := env.do(t, "POST", "/bot", req, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var created api.BotResponse
	_ = json.NewDecoder(w.Body).Decode(&created)
	if created.Kind != "charlotte" {
		t.Errorf("kind = %q, want charlotte", created.Kind)
	}

	dup := api.RegisterBotRequest{Name: "alice", Host: "elsewhere", Port: 9999, Type: "robert"}
	w = env.do(t, "POST", "/bot", dup, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", w.Code)
	}

	bot, err := env.store.GetBot(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get bot: %v", err)
	}
	if bot.Host != env.botHost || bot.Port != env.botPort || bot.Kind != models.KindCharlotte {
		t.Errorf("original row changed: %+v", bot)
	}
}

func TestRegisterBotValidation(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})

	tests := []struct {
		name string
		body any
	}{
		{"missing name", api.RegisterBotRequest{Host: "localhost", Port: 5000, Kind: "robert"}},
		{"missing kind", api.RegisterBotRequest{Name: "a", Host: "localhost", Port: 5000}},
		{"unknown kind", api.RegisterBotRequest{Name: "a", Host: "localhost", Port: 5000, Kind: "hal"}},
		{"host with path", api.RegisterBotRequest{Name: "a", Host: "localhost/x", Port: 5000, Kind: "robert"}},
		{"port out of range", api.RegisterBotRequest{Name: "a", Host: "localhost", Port: 70000, Kind: "robert"}},
		{"not json", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/bot", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	bots, _ := env.store.ListBots(context.Background())
	if len(bots) != 0 {
		t.Errorf("expected no bots, got %d", len(bots))
	}
}

func TestUpdateBot(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	env.registerBot(t, "alice")
	ctx := context.Background()

	host := "10.1.2.3"
	w := env.do(t, "PUT", "/bot", api.UpdateBotRequest{Name: "alice", Host: &host}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	bot, _ := env.store.GetBot(ctx, "alice")
	if bot.Host != host || bot.Port != env.botPort {
		t.Errorf("host-only update: got %s:%d", bot.Host, bot.Port)
	}

	w = env.do(t, "PUT", "/bot", api.UpdateBotRequest{Name: "alice"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("no-op update: expected 200, got %d", w.Code)
	}
	after, _ := env.store.GetBot(ctx, "alice")
	if *after != *bot {
		t.Errorf("no-op update changed row: %+v -> %+v", bot, after)
	}

	w = env.do(t, "PUT", "/bot", api.UpdateBotRequest{Name: "ghost", Host: &host}, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown bot: expected 404, got %d", w.Code)
	}

	w = env.do(t, "PUT", "/bot", api.UpdateBotRequest{Host: &host}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing name: expected 400, got %d", w.Code)
	}

	for _, bad := range []string{"evil.example/path?x", "user:pw@evil.example", "evil.example:8080"} {
		w = env.do(t, "PUT", "/bot", api.UpdateBotRequest{Name: "alice", Host: &bad}, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("host %q: expected 400, got %d", bad, w.Code)
		}
	}
	kept, _ := env.store.GetBot(ctx, "alice")
	if kept.Host != host {
		t.Errorf("malformed host was stored: %q", kept.Host)
	}

	port := 6000
	w = env.do(t, "PUT", "/bot", api.UpdateBotRequest{Name: "alice", Port: &port}, "")
	if w.Code != http.StatusOK {
		t.Errorf("port-only update: expected 200, got %d", w.Code)
	}
}

func TestDeleteBot(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	env.registerBot(t, "alice")

	w := env.do(t, "DELETE", "/bot", api.DeleteBotRequest{Name: "alice"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = env.do(t, "DELETE", "/bot", api.DeleteBotRequest{Name: "alice"}, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
}

func TestListBots(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})

	w := env.do(t, "GET", "/bots", nil, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty list: got %d %q", w.Code, w.Body.String())
	}

	env.registerBot(t, "bob")
	env.registerBot(t, "alice")
	w = env.do(t, "GET", "/bots", nil, "")
	var bots []api.BotResponse
	_ = json.NewDecoder(w.Body).Decode(&bots)
	if len(bots) != 2 || bots[0].Name != "alice" || bots[1].Name != "bob" {
		t.Errorf("unexpected bots: %+v", bots)
	}
}

func TestBotProxyRoutes(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	env.registerBot(t, "alice")

	w := env.do(t, "GET", "/bot/alice/status", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}

	w = env.do(t, "GET", "/bot/alice/actions", nil, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `[{"name":"shout"}]` {
		t.Errorf("actions: got %d %q", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/bot/alice/intents", nil, "")
	var intents []string
	_ = json.NewDecoder(w.Body).Decode(&intents)
	if len(intents) != 2 || intents[0] != "farewell" || intents[1] != "greet" {
		t.Errorf("intents: got %v", intents)
	}

	w = env.do(t, "POST", "/language", api.SetLanguageRequest{Bot: "alice", CountryCode: "de"}, "")
	if w.Code != http.StatusOK || !env.bot.called("POST /language") {
		t.Errorf("language: got %d", w.Code)
	}

	w = env.do(t, "DELETE", "/phrase", api.DeletePhraseRequest{Bot: "alice", Intent: "greet", Text: "yo"}, "")
	if w.Code != http.StatusOK || !env.bot.called("DELETE /phrases") {
		t.Errorf("delete phrase: got %d", w.Code)
	}

	w = env.do(t, "GET", "/intent/greet/bot/alice/examples", nil, "")
	if w.Code != http.StatusOK || !env.bot.called("GET /example/greet") {
		t.Errorf("examples: got %d", w.Code)
	}

	w = env.do(t, "POST", "/intent", api.CreateIntentRequest{Bot: "alice", Intent: "greet", Action: "shout", Examples: []string{"hey"}}, "")
	if w.Code != http.StatusOK || !env.bot.called("POST /actions") || !env.bot.called("POST /example") {
		t.Errorf("create intent: got %d", w.Code)
	}
}

func TestBotNotFoundAndUnreachable(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})

	w := env.do(t, "GET", "/bot/nobody/status", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown bot: expected 404, got %d", w.Code)
	}

	err := env.store.CreateBot(context.Background(), models.Bot{Name: "down", Host: "127.0.0.1", Port: 1, Kind: models.KindRobert})
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	w = env.do(t, "GET", "/bot/down/status", nil, "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unreachable bot: expected 500, got %d", w.Code)
	}
	if msg := decodeError(t, w); !strings.Contains(msg, "backend unavailable") {
		t.Errorf("error = %q, want backend message", msg)
	}
}

func TestHandleRecordsHistory(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	env.registerBot(t, "alice")

	w := env.do(t, "POST", "/handle", api.HandleRequest{Bot: "alice", Identifier: "u1", Query: "hi"}, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"answer":"hello human"}` {
		t.Fatalf("handle: got %d %q", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/bot/alice/history", nil, "")
	var records []api.InteractionResponse
	_ = json.NewDecoder(w.Body).Decode(&records)
	if len(records) != 1 || records[0].Intent != "greet" || records[0].Confidence != 0.93 {
		t.Errorf("history: %+v", records)
	}
}

func TestHandleWithFailingExplain(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	env.registerBot(t, "alice")
	env.bot.mu.Lock()
	env.bot.explainFail = true
	env.bot.mu.Unlock()

	w := env.do(t, "POST", "/handle", api.HandleRequest{Bot: "alice", Identifier: "u1", Query: "hi"}, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"answer":"hello human"}` {
		t.Fatalf("handle: got %d %q", w.Code, w.Body.String())
	}

	records, err := env.store.ListInteractions(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list interactions: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no history rows, got %d", len(records))
	}

	w = env.do(t, "POST", "/explain", api.ExplainRequest{Bot: "alice", Query: "hi"}, "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("explain: expected 500, got %d", w.Code)
	}
}

func TestExplainPostsQueryToBot(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	env.registerBot(t, "alice")

	w := env.do(t, "POST", "/explain", api.ExplainRequest{Bot: "alice", Query: "hi there"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("explain: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !env.bot.called("POST /explain") || env.bot.called("GET /explain") {
		t.Errorf("expected a single POST /explain, got %v", env.bot.calls)
	}
	env.bot.mu.Lock()
	body := env.bot.explainBody
	env.bot.mu.Unlock()
	if strings.TrimSpace(body) != `{"query":"hi there"}` {
		t.Errorf("explain body = %q", body)
	}
}

func TestAuthDisabledAllowsEverything(t *testing.T) {
	env := setupTestAPIServer(t, &auth.Resolver{Enabled: false}, auth.Policy{Enabled: false})
	env.registerBot(t, "alice")

	w := env.do(t, "GET", "/bot/alice/actions", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("actions: expected 200, got %d", w.Code)
	}
	w = env.do(t, "DELETE", "/bot", api.DeleteBotRequest{Name: "alice"}, "garbage-token")
	if w.Code != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", w.Code)
	}
}

func TestAuthEnabledAnonymous(t *testing.T) {
	resolver, policy := authEnabled(auth.FailOpen, fakeIdentity{})
	env := setupTestAPIServer(t, resolver, policy)
	env.registerBot(t, "alice")

	denied := []struct {
		method, path string
		body         any
	}{
		{"POST", "/bot", api.RegisterBotRequest{Name: "bob", Host: "localhost", Port: 5000, Kind: "robert"}},
		{"DELETE", "/bot", api.DeleteBotRequest{Name: "alice"}},
		{"GET", "/bot/alice/actions", nil},
		{"GET", "/bot/alice/intents", nil},
		{"GET", "/bot/alice/history", nil},
		{"POST", "/example", api.AddExampleRequest{Bot: "alice", Intent: "greet", Example: "yo"}},
		{"POST", "/integration", api.RegisterIntegrationRequest{Name: "w", URL: "http://weather:8080"}},
	}
	for _, tt := range denied {
		w := env.do(t, tt.method, tt.path, tt.body, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tt.method, tt.path, w.Code)
		}
	}
	if env.bot.called("POST /example") {
		t.Error("backend called despite missing authorization")
	}

	public := []struct {
		method, path string
		body         any
	}{
		{"GET", "/bots", nil},
		{"GET", "/alive", nil},
		{"GET", "/bot/alice/status", nil},
		{"GET", "/bot/alice/settings", nil},
		{"GET", "/integrations", nil},
		{"POST", "/handle", api.HandleRequest{Bot: "alice", Query: "hi"}},
	}
	for _, tt := range public {
		w := env.do(t, tt.method, tt.path, tt.body, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s %s: expected 200, got %d", tt.method, tt.path, w.Code)
		}
	}
}

func TestAdminRoutesCheckRoleBeforeBody(t *testing.T) {
	resolver, policy := authEnabled(auth.FailOpen, fakeIdentity{})
	env := setupTestAPIServer(t, resolver, policy)

	routes := []struct{ method, path string }{
		{"POST", "/bot"},
		{"PUT", "/bot"},
		{"DELETE", "/bot"},
		{"POST", "/integration"},
		{"PUT", "/integration"},
		{"DELETE", "/integration"},
	}
	for _, rt := range routes {
		for _, body := range []any{"{{{", map[string]any{}} {
			w := env.do(t, rt.method, rt.path, body, "")
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s with %v: expected 401, got %d", rt.method, rt.path, body, w.Code)
			}
		}
	}

	w := env.do(t, "POST", "/bot", map[string]any{}, signedToken(t, "admin"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("admin with empty body: expected 400, got %d", w.Code)
	}
}

func TestAccessDeniedLogsRoles(t *testing.T) {
	resolver, policy := authEnabled(auth.FailOpen, fakeIdentity{})
	env := setupTestAPIServer(t, resolver, policy)
	env.registerBot(t, "alice")

	core, logs := observer.New(zap.InfoLevel)
	env.srv.Logger = zap.New(core)
	env.handler = env.srv.Handler()

	w := env.do(t, "GET", "/bot/alice/actions", nil, signedToken(t, "bob-write", "alice-read"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	entries := logs.FilterMessage("access denied").All()
	if len(entries) != 1 {
		t.Fatalf("expected one denial entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["role"] != "alice-write" || fields["subject"] != "user-1" {
		t.Errorf("unexpected fields: %+v", fields)
	}
	roles, _ := fields["roles"].([]interface{})
	if len(roles) != 2 || roles[0] != "alice-read" || roles[1] != "bob-write" {
		t.Errorf("roles = %v", fields["roles"])
	}
}

func TestAuthEnabledWithRoles(t *testing.T) {
	resolver, policy := authEnabled(auth.FailOpen, fakeIdentity{})
	env := setupTestAPIServer(t, resolver, policy)
	env.registerBot(t, "alice")
	env.registerBot(t, "bob")

	writer := signedToken(t, "alice-write")

	w := env.do(t, "GET", "/bot/alice/actions", nil, writer)
	if w.Code != http.StatusOK {
		t.Errorf("own bot: expected 200, got %d", w.Code)
	}
	w = env.do(t, "GET", "/bot/bob/actions", nil, writer)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("other bot: expected 401, got %d", w.Code)
	}
	w = env.do(t, "POST", "/bot", api.RegisterBotRequest{Name: "carol", Host: "localhost", Port: 5000, Kind: "robert"}, writer)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("admin route: expected 401, got %d", w.Code)
	}
	w = env.do(t, "POST", "/bot", api.RegisterBotRequest{Name: "carol", Host: "localhost", Port: 5000, Kind: "robert"}, signedToken(t, "admin"))
	if w.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", w.Code)
	}
}

func TestBotSettingsRedaction(t *testing.T) {
	resolver, policy := authEnabled(auth.FailOpen, fakeIdentity{})
	env := setupTestAPIServer(t, resolver, policy)
	env.registerBot(t, "alice")

	var anon api.BotSettingsResponse
	w := env.do(t, "GET", "/bot/alice/settings", nil, "")
	_ = json.NewDecoder(w.Body).Decode(&anon)
	if anon.Host != "" || anon.Port != 0 || anon.Kind != "" {
		t.Errorf("anonymous settings leaked connection info: %+v", anon)
	}
	if string(anon.Language) != `{"country_code":"en"}` {
		t.Errorf("language = %s", anon.Language)
	}

	var full api.BotSettingsResponse
	w = env.do(t, "GET", "/bot/alice/settings", nil, signedToken(t, "alice-write"))
	_ = json.NewDecoder(w.Body).Decode(&full)
	if full.Host != env.botHost || full.Port != env.botPort || full.Kind != "robert" {
		t.Errorf("writer settings missing connection info: %+v", full)
	}
}

func TestAuthFailurePolicy(t *testing.T) {
	broken := fakeIdentity{err: errors.New("idp down")}

	resolver, policy := authEnabled(auth.FailClosed, broken)
	env := setupTestAPIServer(t, resolver, policy)
	env.registerBot(t, "alice")
	w := env.do(t, "GET", "/bot/alice/settings", nil, signedToken(t, "alice-write"))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("fail closed: expected 401, got %d", w.Code)
	}

	resolver, policy = authEnabled(auth.FailOpen, broken)
	env = setupTestAPIServer(t, resolver, policy)
	env.registerBot(t, "alice")
	w = env.do(t, "GET", "/bot/alice/settings", nil, signedToken(t, "alice-write"))
	if w.Code != http.StatusOK {
		t.Fatalf("fail open: expected 200, got %d", w.Code)
	}
	var settings api.BotSettingsResponse
	_ = json.NewDecoder(w.Body).Decode(&settings)
	if settings.Host != "" {
		t.Error("fail open should continue anonymously")
	}
}

func TestRegisterIntegrationOutcomes(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})

	req := api.RegisterIntegrationRequest{Name: "weather", URL: "http://weather:8080"}
	if w := env.do(t, "POST", "/integration", req, ""); w.Code != http.StatusOK {
		t.Fatalf("insert: expected 200, got %d", w.Code)
	}
	before, _ := env.store.GetIntegration(context.Background(), "weather")

	if w := env.do(t, "POST", "/integration", req, ""); w.Code != http.StatusSeeOther {
		t.Errorf("same url: expected 303, got %d", w.Code)
	}
	same, _ := env.store.GetIntegration(context.Background(), "weather")
	if same.ID != before.ID || same.CreatedAt != before.CreatedAt {
		t.Errorf("no-op changed identity: %+v -> %+v", before, same)
	}

	req.URL = "http://weather-v2:8080"
	if w := env.do(t, "POST", "/integration", req, ""); w.Code != http.StatusNoContent {
		t.Errorf("new url: expected 204, got %d", w.Code)
	}

	bad := api.RegisterIntegrationRequest{Name: "broken", URL: "weather:8080"}
	if w := env.do(t, "POST", "/integration", bad, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad url: expected 400, got %d", w.Code)
	}

	if w := env.do(t, "PUT", "/integration", api.UpdateIntegrationRequest{Name: "nope"}, ""); w.Code != http.StatusNotFound {
		t.Errorf("update unknown: expected 404, got %d", w.Code)
	}
	if w := env.do(t, "DELETE", "/integration", api.DeleteIntegrationRequest{Name: "weather"}, ""); w.Code != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", w.Code)
	}
}

func TestListIntegrationsPartialFailure(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	ctx := context.Background()

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"units":"metric"}`))
	}))
	defer ok.Close()
	stop := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-stop:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(stop)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	for name, u := range map[string]string{"weather": ok.URL, "slow": slow.URL, "dead": deadURL} {
		if _, err := env.store.RegisterIntegration(ctx, name, u, nil); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	w := env.do(t, "GET", "/integrations", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []api.IntegrationSettings
	_ = json.NewDecoder(w.Body).Decode(&got)
	if len(got) != 1 || got[0].Name != "weather" {
		t.Fatalf("expected only weather, got %+v", got)
	}
	if strings.Contains(w.Body.String(), ok.URL) {
		t.Error("integration url leaked into response")
	}
}

func TestIntegrationInvoke(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	ctx := context.Background()

	integ := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/resource":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<div>widget</div>"))
		case "/execute":
			_, _ = w.Write([]byte(`{"done":true}`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer integ.Close()
	bot := "alice"
	if _, err := env.store.RegisterIntegration(ctx, "widget", integ.URL, &bot); err != nil {
		t.Fatalf("register: %v", err)
	}

	w := env.do(t, "GET", "/integration/widget/resource?bot=alice", nil, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/html" || w.Body.String() != "<div>widget</div>" {
		t.Errorf("resource: got %d %q %q", w.Code, w.Header().Get("Content-Type"), w.Body.String())
	}

	w = env.do(t, "POST", "/integration/execute", api.IntegrationExecuteRequest{Bot: "alice", Name: "widget", Payload: json.RawMessage(`{"go":1}`)}, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"done":true`) {
		t.Errorf("execute: got %d %q", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/integration/execute", api.IntegrationExecuteRequest{Bot: "bob", Name: "widget"}, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign bot: expected 404, got %d", w.Code)
	}

	w = env.do(t, "POST", "/integration/settings", api.IntegrationSettingsRequest{Name: "widget"}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing bot: expected 400, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestAPIServer(t, nil, auth.Policy{})
	env.srv.CORSOrigins = []string{"https://console.example.com"}
	handler := env.srv.Handler()

	req := httptest.NewRequest("OPTIONS", "/bots", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xjonsson/kin-api-server/internal/auth"
	"github.com/xjonsson/kin-api-server/internal/config"
	"github.com/xjonsson/kin-api-server/internal/crypto"
	"github.com/xjonsson/kin-api-server/internal/metrics"
	"github.com/xjonsson/kin-api-server/internal/model"
	"github.com/xjonsson/kin-api-server/internal/providers"
	"github.com/xjonsson/kin-api-server/internal/source"
	"github.com/xjonsson/kin-api-server/internal/store"
)

type staticSecrets map[string]string

func (s staticSecrets) Get(name string) string { return s[name] }

type testAPI struct {
	*API
	handler http.Handler
	st      *store.Store
	svc     *source.Service
}

func newTestAPI(t *testing.T, secrets staticSecrets) *testAPI {
	t.Helper()
	st := store.New(store.NewMemoryClient(), crypto.NewMockEncryptor())
	reg := providers.NewRegistry(secrets)
	promReg := prometheus.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := source.NewService(st, reg, metrics.NewCollector(promReg), log)
	sessions := auth.NewSessions("test-signing-key")
	cfg := &config.Config{
		BaseURL:            "http://localhost:8080",
		StaticURL:          "https://calendar.example.com",
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
	a := New(cfg, st, svc, reg, secrets, sessions, promReg, log)
	t.Cleanup(a.Close)
	return &testAPI{API: a, handler: a.Router(), st: st, svc: svc}
}

// seedUser creates a user logged in through a facebook account and returns
// a session token for it.
func (a *testAPI) seedUser(t *testing.T, accountID string) string {
	t.Helper()
	profile := model.Profile{
		Provider:    "facebook",
		ID:          accountID,
		DisplayName: "Ada Lovelace",
		Emails:      []string{"ada@example.com"},
	}
	u, err := a.svc.SaveToken(context.Background(), profile, "fb-access-token", "")
	if err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	token, err := a.sessions.CreateToken(u.ID())
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return token
}

func (a *testAPI) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRequiresSession(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})

	w := a.request(t, http.MethodGet, "/1.0/user", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != float64(model.CodeUnauthenticated) {
		t.Errorf("code = %v, want %d", body["code"], model.CodeUnauthenticated)
	}
}

func TestRouteNotFound(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})

	w := a.request(t, http.MethodGet, "/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != float64(model.CodeRouteNotFound) {
		t.Errorf("code = %v, want %d", body["code"], model.CodeRouteNotFound)
	}
}

func TestGetUser(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})
	token := a.seedUser(t, "123")

	w := a.request(t, http.MethodGet, "/1.0/user", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["id"] != "facebook-123" {
		t.Errorf("id = %v", body["id"])
	}
	if body["display_name"] != "Ada Lovelace" {
		t.Errorf("display_name = %v", body["display_name"])
	}
}

func TestPatchUserPersistsValidFieldsOnly(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})
	token := a.seedUser(t, "123")

	w := a.request(t, http.MethodPatch, "/1.0/user", token,
		`{"timezone":"Europe/Paris","first_day":9,"default_view":"week"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	u, err := a.st.Load(context.Background(), "facebook-123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.Timezone() != "Europe/Paris" {
		t.Errorf("timezone = %q, want Europe/Paris", u.Timezone())
	}
	if u.DefaultView() != "week" {
		t.Errorf("default view = %q, want week", u.DefaultView())
	}
	// 9 is not a weekday; the patch ignores it instead of failing.
	if u.FirstDay() == 9 {
		t.Error("invalid first_day was persisted")
	}
}

func TestListSourcesStripsCredentials(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})
	token := a.seedUser(t, "123")

	w := a.request(t, http.MethodGet, "/1.0/sources", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "fb-access-token") {
		t.Fatalf("response leaks the access token: %s", w.Body.String())
	}
	body := decodeBody(t, w)
	sources := body["sources"].(map[string]any)
	src := sources["facebook-123"].(map[string]any)
	if src["status"] != "connected" {
		t.Errorf("status = %v", src["status"])
	}
	if _, ok := src["access_token"]; ok {
		t.Error("access_token present in source payload")
	}
}

func TestListSourceLayers(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})
	token := a.seedUser(t, "123")

	w := a.request(t, http.MethodGet, "/1.0/sources/facebook-123/layers", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	layers := body["layers"].([]any)
	if len(layers) != 5 {
		t.Fatalf("got %d layers, want 5", len(layers))
	}

	w = a.request(t, http.MethodGet, "/1.0/sources/google-999/layers", token, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown source status = %d, want 404", w.Code)
	}
}

func TestToggleLayerPersists(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})
	token := a.seedUser(t, "123")

	layerID := "facebook-123:events_attending"
	w := a.request(t, http.MethodPatch, "/1.0/layers/"+layerID, token, `{"selected":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["selected"] != false {
		t.Errorf("selected = %v, want false", body["selected"])
	}

	u, err := a.st.Load(context.Background(), "facebook-123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.IsLayerSelected(layerID) {
		t.Error("deselection was not persisted")
	}

	w = a.request(t, http.MethodPatch, "/1.0/layers/"+layerID, token, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing selected: status = %d, want 400", w.Code)
	}
}

func TestDeleteSource(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})
	token := a.seedUser(t, "123")

	w := a.request(t, http.MethodDelete, "/1.0/sources/facebook-123", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	u, err := a.st.Load(context.Background(), "facebook-123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.GetSource("facebook-123") != nil {
		t.Error("source still attached after delete")
	}

	w = a.request(t, http.MethodDelete, "/1.0/sources/facebook-123", token, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", w.Code)
	}
}

func TestConnectTokenLogsIn(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})

	w := a.request(t, http.MethodPost, "/connect/eventbrite", "",
		`{"access_token":"eb-token","profile":{"id":"55","display_name":"Grace Hopper","emails":["grace@example.com"]}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no session token in response")
	}
	user := body["user"].(map[string]any)
	if user["id"] != "eventbrite-55" {
		t.Errorf("user id = %v", user["id"])
	}

	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_token" && c.Value == token {
			found = true
		}
	}
	if !found {
		t.Error("session cookie not set")
	}

	w = a.request(t, http.MethodGet, "/1.0/user", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("token rejected: status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestConnectTokenLinksSource(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})
	token := a.seedUser(t, "123")

	w := a.request(t, http.MethodPost, "/connect/meetup", token,
		`{"access_token":"mu-token","refresh_token":"mu-refresh","profile":{"id":"77","display_name":"Ada Lovelace"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	u, err := a.st.Load(context.Background(), "facebook-123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.GetSource("meetup-77") == nil {
		t.Fatal("meetup source not attached to the logged-in user")
	}
	// Meetup's single layer comes selected.
	if !u.IsLayerSelected("meetup-77:events_attending") {
		t.Error("meetup layer not auto-selected")
	}
}

func TestConnectTokenRejectsUnknownProvider(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})

	w := a.request(t, http.MethodPost, "/connect/nacl", "",
		`{"access_token":"x","profile":{"id":"1"}}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestConnectRedirect(t *testing.T) {
	a := newTestAPI(t, staticSecrets{
		"GOOGLE_CLIENT_ID":     "gid",
		"GOOGLE_CLIENT_SECRET": "gsecret",
	})

	w := a.request(t, http.MethodGet, "/connect/google", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	redirect, _ := body["redirect"].(string)
	if !strings.Contains(redirect, "accounts.google.com") {
		t.Errorf("redirect = %q, want a google authorization URL", redirect)
	}
	if !strings.Contains(redirect, "client_id=gid") {
		t.Errorf("redirect = %q missing client id", redirect)
	}

	// Trello is not an OAuth 2.0 provider; the redirect route refuses it
	// with the action-not-supported envelope rather than a 500.
	w = a.request(t, http.MethodGet, "/connect/trello", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("trello redirect: status = %d, want 400", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != float64(model.CodeActionNotSupported) {
		t.Errorf("trello redirect code = %v, want %d", body["code"], model.CodeActionNotSupported)
	}
}

func TestRateLimit(t *testing.T) {
	a := newTestAPI(t, staticSecrets{})
	a.limiter.Stop()
	a.limiter = newRateLimiter(1, 2)
	t.Cleanup(a.limiter.Stop)
	handler := a.Router()

	limited := false
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/connect/nacl", nil)
		req.RemoteAddr = "10.0.0.1:4242"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("burst of requests was never rate limited")
	}
}

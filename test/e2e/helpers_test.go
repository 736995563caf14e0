package e2e_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/txmon-auth/internal/auth"
	"github.com/alexjbarnes/txmon-auth/internal/hashing"
	"github.com/alexjbarnes/txmon-auth/internal/metrics"
	"github.com/alexjbarnes/txmon-auth/internal/server"
	"github.com/alexjbarnes/txmon-auth/internal/state"
	"github.com/alexjbarnes/txmon-auth/internal/tokens"
)

const (
	adminUser     = "admin"
	adminPassword = "admin-password"
	analystUser   = "analyst"
	analystPass   = "analyst-password"
	testClientID  = "e2e-test-client"
	testSecret    = "e2e-test-secret-value"
)

// harness holds the full e2e test stack: a real HTTP server backed by
// the grant, session and registry services with bbolt persistence.
type harness struct {
	URL       string
	Registry  *auth.ClientRegistry
	State     *state.State
	StatePath string
	Issuer    *tokens.Issuer
	Client    *http.Client
}

func newHasher(t *testing.T) *hashing.Hasher {
	t.Helper()
	h, err := hashing.New(hashing.MinIterations)
	require.NoError(t, err)
	return h
}

// newHarness wires the full HTTP stack via server.NewMux and starts an
// httptest server. One client and two users are seeded.
func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith is newHarness with a hook to adjust the mux config
// before the server starts.
func newHarnessWith(t *testing.T, configure func(*server.MuxConfig)) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	statePath := filepath.Join(t.TempDir(), "state.db")

	st, err := state.LoadAt(statePath)
	require.NoError(t, err)

	hasher := newHasher(t)

	issuer, err := tokens.NewIssuer(tokens.IssuerConfig{
		SigningKey: []byte("e2e-signing-key-0123456789abcdef"),
		Issuer:     "txmon-auth",
		Audience:   "txmon-api",
		AccessTTL:  15 * time.Minute,
		ClockSkew:  5 * time.Minute,
	})
	require.NoError(t, err)

	refresh, err := tokens.NewMemoryRefreshStore(7 * 24 * time.Hour)
	require.NoError(t, err)

	registry := auth.NewClientRegistry(hasher, st, logger)
	_, _, err = registry.Create(context.Background(), auth.ClientSpec{
		ClientID: testClientID,
		Secret:   testSecret,
		Name:     "E2E",
		Scopes:   []string{"read", "write"},
	})
	require.NoError(t, err)

	users := auth.NewMemoryUsers(hasher)
	_, err = users.Add(context.Background(), auth.UserSpec{
		Username: adminUser, Password: adminPassword, Email: "admin@example.com", Role: server.AdminRole,
	})
	require.NoError(t, err)
	_, err = users.Add(context.Background(), auth.UserSpec{
		Username: analystUser, Password: analystPass, Email: "analyst@example.com", Role: "Analyst",
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	muxCfg := server.MuxConfig{
		Grants:    auth.NewGrantService(registry, hasher, issuer, logger),
		Sessions:  auth.NewSessionService(users, hasher, issuer, refresh, logger),
		Registry:  registry,
		Tokens:    issuer,
		Logger:    logger,
		Issuer:    "txmon-auth",
		ServerURL: "https://auth.example.com",
		Gatherer:  reg,
	}
	if configure != nil {
		configure(&muxCfg)
	}

	srv := httptest.NewServer(server.NewMux(muxCfg))
	t.Cleanup(srv.Close)

	h := &harness{
		URL:       srv.URL,
		Registry:  registry,
		State:     st,
		StatePath: statePath,
		Issuer:    issuer,
		Client:    srv.Client(),
	}
	t.Cleanup(func() { h.State.Close() })

	return h
}

// response is a read-back HTTP response.
type response struct {
	Status int
	Header http.Header
	Body   string
}

func (r response) Get(path string) gjson.Result {
	return gjson.Get(r.Body, path)
}

func (h *harness) do(t *testing.T, req *http.Request) response {
	t.Helper()

	resp, err := h.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return response{Status: resp.StatusCode, Header: resp.Header, Body: string(body)}
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, h.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return h.do(t, req)
}

func (h *harness) postJSON(t *testing.T, path, body, bearer string) response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, h.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return h.do(t, req)
}

func (h *harness) get(t *testing.T, path, bearer string) response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, h.URL+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return h.do(t, req)
}

// failedLogin posts a wrong password for the admin user with extra
// headers and returns the response status.
func (h *harness) failedLogin(t *testing.T, headers map[string]string) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, h.URL+"/api/auth/login",
		strings.NewReader(`{"username":"`+adminUser+`","password":"wrong"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return h.do(t, req).Status
}

// clientCredentialsToken runs the client credentials grant and returns
// the access token, failing the test on any error.
func (h *harness) clientCredentialsToken(t *testing.T, clientID, secret, scope string) string {
	t.Helper()

	resp := h.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {secret},
		"scope":         {scope},
	})
	require.Equal(t, http.StatusOK, resp.Status, resp.Body)

	return resp.Get("access_token").String()
}

// login returns the access and refresh tokens for a user.
func (h *harness) login(t *testing.T, username, password string) (string, string) {
	t.Helper()

	resp := h.postJSON(t, "/api/auth/login", `{"username":"`+username+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, resp.Status, resp.Body)

	return resp.Get("accessToken").String(), resp.Get("refreshToken").String()
}

// ABOUTME: Tests for the server orchestrator and its HTTP API
// ABOUTME: Runs against an in-memory SQLite store behind httptest

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/store"
)

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Auth:     config.AuthConfig{JWTSecret: strings.Repeat("s", 32), TokenTTL: time.Hour},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

type testServer struct {
	*Server
	http *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	srv, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return &testServer{Server: srv, http: ts}
}

func (ts *testServer) user(t *testing.T, name string) (*store.User, string) {
	t.Helper()
	u := &store.User{ID: "id-" + name, Username: name, IsActive: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, ts.store.CreateUser(context.Background(), u))
	token, err := ts.verifier.Generate(u.ID, time.Hour)
	require.NoError(t, err)
	return u, token
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(ts.http.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "parley_connections_active")
}

func TestNew_RejectsWeakSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "short"
	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = addr
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/conversations", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	resp, _ = ts.do(t, http.MethodGet, "/api/stats", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_ResolveDirectConversationIsReused(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.user(t, "alice")
	bob, bobToken := ts.user(t, "bob")

	resp, first := ts.do(t, http.MethodPost, "/api/conversations", aliceToken,
		`{"participant_ids":["`+bob.ID+`"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, false, first["is_existing"])
	assert.ElementsMatch(t, []any{alice.ID, bob.ID}, first["participants"])

	resp, second := ts.do(t, http.MethodPost, "/api/conversations", aliceToken,
		`{"participant_ids":["`+bob.ID+`"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["is_existing"])
	assert.Equal(t, first["id"], second["id"])

	resp, reverse := ts.do(t, http.MethodPost, "/api/conversations", bobToken,
		`{"participant_ids":["`+alice.ID+`"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first["id"], reverse["id"])
}

func TestAPI_ResolveGroupAlwaysCreates(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.user(t, "alice")
	bob, _ := ts.user(t, "bob")

	body := `{"name":"team","is_group":true,"participant_ids":["` + bob.ID + `"]}`
	resp, first := ts.do(t, http.MethodPost, "/api/conversations", aliceToken, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, second := ts.do(t, http.MethodPost, "/api/conversations", aliceToken, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.NotEqual(t, first["id"], second["id"])
	assert.Equal(t, "team", first["name"])
}

func TestAPI_ResolveRejectsBadJSON(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user(t, "alice")

	resp, body := ts.do(t, http.MethodPost, "/api/conversations", token, `{"participant_ids":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON body", body["error"])
}

func TestAPI_UnreadHistoryAndMarkRead(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.user(t, "alice")
	bob, _ := ts.user(t, "bob")
	_, carolToken := ts.user(t, "carol")

	resp, conv := ts.do(t, http.MethodPost, "/api/conversations", aliceToken,
		`{"participant_ids":["`+bob.ID+`"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	convID := conv["id"].(string)

	ctx := context.Background()
	for _, content := range []string{"one", "two", "three"} {
		_, err := ts.conversations.PostMessage(ctx, convID, bob, content)
		require.NoError(t, err)
	}
	_, err := ts.conversations.PostMessage(ctx, convID, alice, "mine")
	require.NoError(t, err)

	resp, unread := ts.do(t, http.MethodGet, "/api/conversations/"+convID+"/unread", aliceToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), unread["unread_count"])

	resp, page := ts.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages?limit=2", aliceToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := page["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "mine", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "three", msgs[1].(map[string]any)["content"])
	cursor := page["next_cursor"].(string)
	require.NotEmpty(t, cursor)

	resp, page = ts.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages?limit=2&cursor="+cursor, aliceToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs = page["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "one", msgs[1].(map[string]any)["content"])
	assert.Nil(t, page["next_cursor"])

	resp, read := ts.do(t, http.MethodPost, "/api/conversations/"+convID+"/read", aliceToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), read["unread_count"])

	resp, stats := ts.do(t, http.MethodGet, "/api/stats", aliceToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), stats["total_conversations"])
	assert.Equal(t, float64(1), stats["total_messages_sent"])
	assert.Equal(t, float64(0), stats["total_unread"])

	for _, path := range []string{"/unread", "/messages"} {
		resp, _ = ts.do(t, http.MethodGet, "/api/conversations/"+convID+path, carolToken, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}
	resp, _ = ts.do(t, http.MethodPost, "/api/conversations/"+convID+"/read", carolToken, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_MessagesRejectsBadParams(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.user(t, "alice")
	bob, _ := ts.user(t, "bob")

	_, conv := ts.do(t, http.MethodPost, "/api/conversations", aliceToken,
		`{"participant_ids":["`+bob.ID+`"]}`)
	convID := conv["id"].(string)

	resp, body := ts.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages?limit=zero", aliceToken, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "limit must be a positive integer", body["error"])

	resp, body = ts.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages?cursor=0OIl", aliceToken, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid cursor", body["error"])
}

func TestChatSocketIsMounted(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.user(t, "alice")
	bob, _ := ts.user(t, "bob")

	_, conv := ts.do(t, http.MethodPost, "/api/conversations", aliceToken,
		`{"participant_ids":["`+bob.ID+`"]}`)
	convID := conv["id"].(string)

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws/chat/" + convID + "/?token=" + aliceToken
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, c.ReadJSON(&frame))
	assert.Equal(t, "user_status", frame["type"])
	assert.Equal(t, alice.ID, frame["user_id"])
	assert.Equal(t, true, frame["is_online"])
}

func TestShutdown_MarksConnectedUsersOffline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "parley.db")
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)
	ts := &testServer{Server: srv, http: httptest.NewServer(srv.Handler())}
	defer ts.http.Close()

	alice, aliceToken := ts.user(t, "alice")
	bob, bobToken := ts.user(t, "bob")
	_, conv := ts.do(t, http.MethodPost, "/api/conversations", aliceToken,
		`{"participant_ids":["`+bob.ID+`"]}`)
	convID := conv["id"].(string)

	for _, token := range []string{aliceToken, bobToken} {
		url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws/chat/" + convID + "/?token=" + token
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer c.Close()
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame map[string]any
		require.NoError(t, c.ReadJSON(&frame))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	reopened, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)
	defer reopened.Close()
	for _, u := range []*store.User{alice, bob} {
		got, err := reopened.GetUser(context.Background(), u.ID)
		require.NoError(t, err)
		assert.False(t, got.IsOnline, "%s still online after shutdown", u.Username)
	}
}

package server

import (
	"bytes"
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

	"github.com/iudanet/boardsync/internal/config"
	"github.com/iudanet/boardsync/internal/cvr"
	"github.com/iudanet/boardsync/pkg/api"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "boardsync.db")
	cfg.CVR.Backend = backend
	cfg.CVR.Path = filepath.Join(dir, "cvr.db")
	cfg.JWT.Secret = "0123456789abcdef"
	return cfg
}

func newTestServer(t *testing.T, backend string) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(context.Background(), testConfig(t, backend), logger, "test")
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		assert.NoError(t, s.Close())
	})
	return s, ts
}

func doJSON(t *testing.T, ts *httptest.Server, path, token string, body, out any) int {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func login(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()
	return loginUser(t, ts, username).AccessToken
}

func loginUser(t *testing.T, ts *httptest.Server, username string) api.TokenResponse {
	t.Helper()
	creds := api.RegisterRequest{Username: username, Password: "password123"}
	require.Equal(t, http.StatusCreated, doJSON(t, ts, "/api/v1/auth/register", "", creds, nil))

	var tok api.TokenResponse
	require.Equal(t, http.StatusOK, doJSON(t, ts, "/api/v1/auth/login", "",
		api.LoginRequest{Username: username, Password: "password123"}, &tok))
	return tok
}

func TestServer_SyncRoundTrip(t *testing.T) {
	for _, backend := range []string{config.CVRBackendSQLite, config.CVRBackendBolt} {
		t.Run(backend, func(t *testing.T) {
			_, ts := newTestServer(t, backend)
			token := login(t, ts, "alice")

			push := api.PushRequest{
				ClientGroupID: "g1",
				Mutations: []api.Mutation{{
					ClientID: "c1",
					ID:       1,
					Name:     "board",
					Args:     json.RawMessage(`[{"_op":"create","id":"b1","name":"Roadmap","order":1}]`),
				}},
			}
			require.Equal(t, http.StatusOK, doJSON(t, ts, "/api/v1/push", token, push, nil))

			var first api.PullResponse
			require.Equal(t, http.StatusOK, doJSON(t, ts, "/api/v1/pull", token,
				api.PullRequest{ClientGroupID: "g1"}, &first))

			require.NotNil(t, first.Cookie)
			assert.Equal(t, int64(1), first.LastMutationIDChanges["c1"])
			require.NotEmpty(t, first.Patch)
			assert.Equal(t, api.PatchOpClear, first.Patch[0].Op)

			var keys []string
			for _, op := range first.Patch[1:] {
				keys = append(keys, op.Key)
			}
			assert.Contains(t, keys, "board/b1")

			// повторный pull без изменений
			var second api.PullResponse
			require.Equal(t, http.StatusOK, doJSON(t, ts, "/api/v1/pull", token,
				api.PullRequest{ClientGroupID: "g1", Cookie: first.Cookie}, &second))
			assert.Equal(t, first.Cookie, second.Cookie)
			assert.Empty(t, second.Patch)
			assert.Empty(t, second.LastMutationIDChanges)
		})
	}
}

func TestServer_ErrorStatuses(t *testing.T) {
	_, ts := newTestServer(t, config.CVRBackendSQLite)
	alice := login(t, ts, "alice")
	bob := login(t, ts, "bob_1")

	assert.Equal(t, http.StatusUnauthorized, doJSON(t, ts, "/api/v1/pull", "",
		api.PullRequest{ClientGroupID: "g1"}, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, ts, "/api/v1/pull", alice,
		api.PullRequest{}, nil))

	require.Equal(t, http.StatusOK, doJSON(t, ts, "/api/v1/pull", alice,
		api.PullRequest{ClientGroupID: "g1"}, &api.PullResponse{}))
	// группа принадлежит alice
	assert.Equal(t, http.StatusForbidden, doJSON(t, ts, "/api/v1/pull", bob,
		api.PullRequest{ClientGroupID: "g1"}, nil))

	gap := api.PushRequest{
		ClientGroupID: "g1",
		Mutations: []api.Mutation{{
			ClientID: "c1", ID: 5, Name: "board", Args: json.RawMessage(`[]`),
		}},
	}
	assert.Equal(t, http.StatusConflict, doJSON(t, ts, "/api/v1/push", alice, gap, nil))

	assert.Equal(t, http.StatusConflict, doJSON(t, ts, "/api/v1/auth/register", "",
		api.RegisterRequest{Username: "alice", Password: "password123"}, nil))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, config.CVRBackendSQLite)

	resp, err := ts.Client().Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token := login(t, ts, "alice")
	require.Equal(t, http.StatusOK, doJSON(t, ts, "/api/v1/pull", token,
		api.PullRequest{ClientGroupID: "g1"}, &api.PullResponse{}))

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "boardsync_pulls_total")
}

func TestServer_PokeAfterPush(t *testing.T) {
	s, ts := newTestServer(t, config.CVRBackendSQLite)
	user := loginUser(t, ts, "alice")
	token := user.AccessToken

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/poke"
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	resp.Body.Close()

	// подписка регистрируется асинхронно после upgrade
	require.Eventually(t, func() bool {
		return s.hub.Subscribers(user.UserID) == 1
	}, time.Second, 10*time.Millisecond)

	push := api.PushRequest{
		ClientGroupID: "g1",
		Mutations: []api.Mutation{{
			ClientID: "c1", ID: 1, Name: "list",
			Args: json.RawMessage(`[{"_op":"create","id":"l1","name":"Groceries","order":0}]`),
		}},
	}
	require.Equal(t, http.StatusOK, doJSON(t, ts, "/api/v1/push", token, push, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg api.PokeMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, api.PokeTypePoke, msg.Type)
}

func TestServer_SweepOnce(t *testing.T) {
	s, _ := newTestServer(t, config.CVRBackendBolt)
	ctx := context.Background()

	require.NoError(t, s.cvrs.PutCVR(ctx, "g1", "cvr-old", 1, cvr.CVR{}))

	// запись только что создана: TTL еще не истек
	assert.Equal(t, 0, s.sweepOnce(ctx, time.Now()))
	assert.Equal(t, 1, s.sweepOnce(ctx, time.Now().Add(30*24*time.Hour)))

	_, err := s.cvrs.GetCVR(ctx, "g1", "cvr-old", 1)
	assert.Error(t, err)
}

func TestServer_Run(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(context.Background(), testConfig(t, config.CVRBackendSQLite), logger, "test")
	require.NoError(t, err)
	defer s.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *StartRequest) {
	t.Helper()
	var got StartRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Health{Status: "healthy", Service: "crawlpost", Version: "1"})
	})
	mux.HandleFunc("/crawler/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(StartResponse{Status: "accepted", ClientJobID: got.ClientJobID, PID: 7})
	})
	mux.HandleFunc("/crawler/stop", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Detail: "no crawler is running"})
	})
	mux.HandleFunc("/crawler/logs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"logs":[{"id":1,"level":"info","message":"a"},{"id":2,"level":"error","message":"b"}]}`))
	})
	mux.HandleFunc("/crawler/login-status/xhs", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hasValidLogin":true,"platform":"xhs","cookiesFound":["a1"],"recommendation":"headless"}`))
	})
	mux.HandleFunc("/login/init", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(LoginSession{SessionID: "s1", Platform: body["platform"], AccountName: body["accountName"]})
	})
	mux.HandleFunc("/login/status/s1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(LoginSession{SessionID: "s1", Status: "waiting_scan", Messages: []string{"qrcode"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestClientRoundTrips(t *testing.T) {
	srv, got := newTestServer(t)
	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, c.IsReachable(ctx))

	resp, err := c.StartCrawler(ctx, StartRequest{Platform: "xhs", Keywords: "go", ClientJobID: "j1"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, 7, resp.PID)
	assert.Equal(t, "go", got.Keywords)

	logs, err := c.CrawlerLogs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "error", logs[1].Level)

	st, err := c.LoginState(ctx, "xhs")
	require.NoError(t, err)
	assert.True(t, st.HasValidLogin)

	sess, err := c.InitLogin(ctx, "douyin", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.AccountName)

	sess, err = c.LoginStatus(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "waiting_scan", sess.Status)
}

func TestClientAPIError(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(Config{BaseURL: srv.URL})

	err := c.StopCrawler(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "no crawler is running", apiErr.Detail)

	err = c.CancelLogin(context.Background(), "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClientUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	assert.False(t, c.IsReachable(context.Background()))
}

func TestSetupClientTLS(t *testing.T) {
	cfg, err := setupClientTLS(Config{Insecure: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = setupClientTLS(Config{TLS: &TLSClientConfig{CACert: "/no/such/ca.pem"}})
	assert.Error(t, err)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-relay/src/activity"
	"trading-relay/src/codec"
	"trading-relay/src/config"
	"trading-relay/src/gateway"
	"trading-relay/src/helpers"
	"trading-relay/src/hub"
	"trading-relay/src/logger"
	"trading-relay/src/models"
	"trading-relay/src/state"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLink is an unauthorized link that records subscription calls.
type stubLink struct {
	mu       sync.Mutex
	subs     map[string]string // symbol -> owner
	released []string
}

func (l *stubLink) Request(context.Context, codec.Request) (codec.Frame, error) {
	return codec.Frame{}, helpers.ErrNotConnected
}
func (l *stubLink) State() string                    { return "connecting" }
func (l *stubLink) IsConnected() bool                { return false }
func (l *stubLink) IsAuthorized() bool               { return false }
func (l *stubLink) SwitchCredential(models.Credential) {}
func (l *stubLink) Subscribe(owner, symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[symbol] = owner
}
func (l *stubLink) Unsubscribe(_, symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, symbol)
}
func (l *stubLink) ReleaseOwner(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, owner)
}

func (l *stubLink) ownerOf(symbol string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subs[symbol]
}

func (l *stubLink) releasedOwners() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.released...)
}

// -----------------------------------------------------------------------------

type testServer struct {
	srv   *RelayServer
	hub   *hub.Hub
	link  *stubLink
	store *state.StateStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{MConfig: &models.MConfig{LogLevel: "ERROR"}}
	cfg.ApplyDefaults()

	log := logger.NewNopLogger()
	store := state.NewStateStore(10, 500, nil)
	h := hub.NewHub(16, hub.StoreBootstrap(store, 10, 50), log)
	rec := activity.NewRecorder(store, h, log, nil)
	link := &stubLink{subs: make(map[string]string)}

	gw, err := gateway.NewGateway(gateway.Options{AwaitFill: true}, link, store, rec, h,
		[]models.Credential{{ID: "cred-a", Label: "demo", Token: "tok-a"}}, log)
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	srv := NewRelayServer(cfg, gw, h, link, store, log)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return &testServer{srv: srv, hub: h, link: link, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)

	out := map[string]interface{}{}
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// -----------------------------------------------------------------------------

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["isAuthorized"])
	assert.Equal(t, "connecting", body["linkState"])
	assert.Equal(t, "R_100", body["symbol"])
}

func TestToggleStartWhileUnauthorizedIs400(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.do(t, http.MethodPost, "/api/toggle", gin.H{"command": "start"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, false, body["isRunning"])
	assert.Equal(t, string(helpers.KindNotAuthorized), body["kind"])

	w, body = ts.do(t, http.MethodPost, "/api/toggle", gin.H{"command": "stop"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["isRunning"])
}

func TestTradeEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodPost, "/api/trade", gin.H{"symbol": "R_100", "amount": 1, "duration": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["message"], "contract_type")

	w, _ = ts.do(t, http.MethodPost, "/api/trade", gin.H{"symbol": "R_100", "contract_type": "CALL", "amount": 1, "duration": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unauthorized link")

	w, body = ts.do(t, http.MethodPost, "/api/trade/close", gin.H{"contract_id": 77})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(helpers.KindPositionNotFound), body["kind"])

	req := httptest.NewRequest(http.MethodPost, "/api/trade", strings.NewReader("{not json"))
	rw := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestSettingsAndLogs(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodPost, "/api/settings", gin.H{"gridSize": 12})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 12, body["gridSize"])

	_, body = ts.do(t, http.MethodGet, "/api/settings", nil)
	assert.EqualValues(t, 12, body["gridSize"])
	assert.EqualValues(t, 5, body["maxOpenTrades"])

	w, _ = ts.do(t, http.MethodPost, "/api/settings", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/logs?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []models.MLogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Message, "settings updated")

	w, _ = ts.do(t, http.MethodGet, "/api/logs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPost, "/api/accounts/select?accountId=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/accounts/add", gin.H{"token": "", "appId": "1089"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/accounts/add", gin.H{"token": "tok-b", "label": "second"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/accounts", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "tok-")
	assert.Contains(t, w.Body.String(), "second")
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AppendTick(models.NewTick("R_100", 1, 1.1, 1700000000))

	w, body := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["connections"])
	assert.EqualValues(t, 1700000000, body["latest_tick"])

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rw := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusNoContent, rw.Code)
	assert.Equal(t, "http://localhost:5173", rw.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusForKinds(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(helpers.KindValidation))
	assert.Equal(t, http.StatusNotFound, statusFor(helpers.KindAccountNotFound))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(helpers.KindTimeout))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(helpers.KindLinkDown))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(helpers.KindRiskRejected))
	assert.Equal(t, http.StatusInternalServerError, statusFor(helpers.KindStorage))
}

// -----------------------------------------------------------------------------
// Push channel
// -----------------------------------------------------------------------------

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestPushChannelBootstrapLiveAndRelease(t *testing.T) {
	ts := newTestServer(t)
	ts.store.SetAccount(models.MAccount{ID: "VRTC9", Balance: 50, Currency: "USD"})

	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	assert.Equal(t, models.EventAccount, readEvent(t, conn)["type"])
	assert.Equal(t, models.EventBalance, readEvent(t, conn)["type"])
	assert.Equal(t, models.EventPositions, readEvent(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(gin.H{"command": "subscribe", "symbols": []string{"R_25"}}))
	assert.Eventually(t, func() bool {
		return strings.HasPrefix(ts.link.ownerOf("R_25"), "client:")
	}, 2*time.Second, 5*time.Millisecond)

	ts.hub.Publish(models.MEvent{Type: models.EventTick, Data: models.NewTick("R_25", 10, 10.2, 1700000001)})
	evt := readEvent(t, conn)
	assert.Equal(t, models.EventTick, evt["type"])
	assert.Equal(t, "R_25", evt["data"].(map[string]interface{})["symbol"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return ts.hub.Count() == 0 && len(ts.link.releasedOwners()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, strings.HasPrefix(ts.link.releasedOwners()[0], "client:"))
}

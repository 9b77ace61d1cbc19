package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callforge/switchboard/internal/auth"
	"github.com/callforge/switchboard/internal/broadcast"
	"github.com/callforge/switchboard/internal/callcontrol"
	"github.com/callforge/switchboard/internal/callstore"
	"github.com/callforge/switchboard/internal/config"
	"github.com/callforge/switchboard/internal/logging"
	"github.com/callforge/switchboard/internal/registry"
)

const (
	testSecret = "test-secret-abcdef"
	testIssuer = "switchboard"
)

type nopPersister struct{}

func (nopPersister) Insert(callstore.Record)                {}
func (nopPersister) MarkAnswered(string, time.Time)         {}
func (nopPersister) MarkCompleted(string, time.Time, int64) {}

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Auth.Secret = testSecret

	log := logging.New(nil, "silent", "json")
	verifier, err := auth.NewVerifier(testSecret, testIssuer)
	require.NoError(t, err)

	sessions := registry.New(log)
	hub := broadcast.NewHub(log)
	calls := callcontrol.New(sessions, hub, nopPersister{}, log,
		callcontrol.WithRingingDelay(time.Hour))

	srv := New(cfg, verifier, hub, calls, sessions, log)

	mux := http.NewServeMux()
	srv.registerHTTPRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

func agentToken(t *testing.T, agentID string) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, testIssuer, auth.Identity{
		UserID:   "u-" + agentID,
		TenantID: "t1",
		AgentID:  agentID,
		Role:     auth.RoleAgent,
	}, time.Now(), time.Hour)
	require.NoError(t, err)
	return tok
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// authenticatedConn returns a WebSocket connection that has completed the
// handshake as agent a1.
func authenticatedConn(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn := dialWS(t, ts)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	connectReq, _ := NewRequest("auth-req", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux"},
		Token:       agentToken(t, "a1"),
	})
	require.NoError(t, conn.WriteJSON(connectReq))

	var helloResp Frame
	require.NoError(t, conn.ReadJSON(&helloResp))
	require.NotNil(t, helloResp.OK)
	require.True(t, *helloResp.OK, "handshake should succeed")

	return conn
}

// rpc sends a request and reads frames until the matching response,
// discarding interleaved events.
func rpc(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == FrameTypeResponse && frame.ID == id {
			return frame
		}
	}
	t.Fatalf("no response for %s within deadline", method)
	return Frame{}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	// Public endpoint only returns status
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketHandshakeSuccess(t *testing.T) {
	_, ts := testServer(t)
	conn := dialWS(t, ts)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, "connect.challenge", challenge.Event)

	connectReq, err := NewRequest("req-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux"},
		Token:       agentToken(t, "a1"),
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(connectReq))

	var helloResp Frame
	require.NoError(t, conn.ReadJSON(&helloResp))
	assert.Equal(t, FrameTypeResponse, helloResp.Type)
	assert.Equal(t, "req-1", helloResp.ID)
	require.NotNil(t, helloResp.OK)
	assert.True(t, *helloResp.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(helloResp.Payload, &hello))
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, "t1", hello.Identity.TenantID)
	assert.Equal(t, "a1", hello.Identity.AgentID)
	assert.Contains(t, hello.Features.Methods, "call.dial")
}

func TestWebSocketHandshakeBadToken(t *testing.T) {
	_, ts := testServer(t)
	conn := dialWS(t, ts)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	connectReq, _ := NewRequest("req-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0"},
		Token:       "not-a-jwt",
	})
	require.NoError(t, conn.WriteJSON(connectReq))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, FrameTypeResponse, errResp.Type)
	require.NotNil(t, errResp.OK)
	assert.False(t, *errResp.OK)
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "unauthorized", errResp.Error.Code)
}

func TestWebSocketRPCHealth(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "req-2", "health", nil)
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
}

func TestWebSocketRPCUnknownMethod(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "req-3", "nonexistent.method", nil)
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestCallLifecycleOverWebSocket(t *testing.T) {
	srv, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "d-1", "call.dial", DialRequest{PhoneNumber: "+15550100"})
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK)

	var dialResult map[string]string
	require.NoError(t, json.Unmarshal(resp.Payload, &dialResult))
	callID := dialResult["callId"]
	require.NotEmpty(t, callID)
	assert.Equal(t, 1, srv.sessions.Len())

	resp = rpc(t, conn, "a-1", "call.answer", CallActionRequest{CallID: callID})
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	resp = rpc(t, conn, "h-1", "call.hangup", CallActionRequest{CallID: callID})
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)
	assert.Equal(t, 0, srv.sessions.Len())
}

func TestCallActionUnknownCall(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "a-1", "call.answer", CallActionRequest{CallID: "missing"})
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestCallActionInvalidState(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "d-1", "call.dial", DialRequest{PhoneNumber: "+15550100"})
	var dialResult map[string]string
	require.NoError(t, json.Unmarshal(resp.Payload, &dialResult))

	// Holding a call that was never answered
	resp = rpc(t, conn, "h-1", "call.hold", CallActionRequest{CallID: dialResult["callId"]})
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "invalid_state", resp.Error.Code)
}

func TestDialRequiresPhoneNumber(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "d-1", "call.dial", DialRequest{})
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "invalid_params", resp.Error.Code)
}

func TestRoomJoinAndLeave(t *testing.T) {
	srv, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "r-1", "room.join", RoomRequest{Room: "queue:sales"})
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)
	assert.Equal(t, 1, srv.hub.RoomSize("queue:sales"))

	resp = rpc(t, conn, "r-2", "room.leave", RoomRequest{Room: "queue:sales"})
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)
	assert.Equal(t, 0, srv.hub.RoomSize("queue:sales"))
}

func TestRoomJoinOtherTenantForbidden(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "r-1", "room.join", RoomRequest{Room: "tenant:other"})
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "forbidden", resp.Error.Code)

	resp = rpc(t, conn, "r-2", "room.join", RoomRequest{Room: "dashboard:other"})
	assert.False(t, *resp.OK)
	assert.Equal(t, "forbidden", resp.Error.Code)
}

func TestRoomLeaveTenantRefused(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	resp := rpc(t, conn, "r-1", "room.leave", RoomRequest{Room: "tenant:t1"})
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "forbidden", resp.Error.Code)
}

func TestCallEventsReachTenantRoom(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticatedConn(t, ts)

	req, _ := NewRequest("d-1", "call.dial", DialRequest{PhoneNumber: "+15550100"})
	require.NoError(t, conn.WriteJSON(req))

	// The dial produces a response plus call:started and
	// agent:state-changed events on the tenant room.
	seen := map[string]bool{}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && (!seen["call:started"] || !seen["agent:state-changed"]) {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == FrameTypeEvent {
			seen[frame.Event] = true
		}
	}
	assert.True(t, seen["call:started"])
	assert.True(t, seen["agent:state-changed"])
}

func TestDisconnectAnnouncesAgentLogout(t *testing.T) {
	srv, ts := testServer(t)

	watcher := authenticatedConn(t, ts)

	agentConn := authenticatedConn(t, ts)
	agentConn.Close()

	deadline := time.Now().Add(5 * time.Second)
	var logout Frame
	for time.Now().Before(deadline) {
		var frame Frame
		require.NoError(t, watcher.ReadJSON(&frame))
		if frame.Type == FrameTypeEvent && frame.Event == "agent:logout" {
			logout = frame
			break
		}
	}
	require.Equal(t, "agent:logout", logout.Event)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(logout.Payload, &payload))
	assert.Equal(t, "a1", payload["agentId"])

	assert.Eventually(t, func() bool {
		return srv.clients.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		bind string
		port int
		want string
	}{
		{"loopback", 18790, "127.0.0.1:18790"},
		{"lan", 9999, "0.0.0.0:9999"},
		{"custom", 3000, "0.0.0.0:3000"},
		{"unknown", 5000, "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.bind, func(t *testing.T) {
			addr := resolveBindAddr(config.GatewayConfig{Bind: tt.bind, Port: tt.port})
			assert.Equal(t, tt.want, addr)
		})
	}
}

func TestAuthRateLimiter(t *testing.T) {
	l := newAuthRateLimiter()
	addr := "10.0.0.1:52000"

	for i := 0; i < authRateMaxFails; i++ {
		assert.True(t, l.allow(addr))
		l.recordFailure(addr)
	}
	assert.False(t, l.allow(addr))

	// A different host is unaffected
	assert.True(t, l.allow("10.0.0.2:52000"))
}

func TestServerStart(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Port = 0 // let OS pick a port
	cfg.Auth.Secret = testSecret

	log := logging.New(nil, "silent", "json")
	verifier, err := auth.NewVerifier(testSecret, testIssuer)
	require.NoError(t, err)

	sessions := registry.New(log)
	hub := broadcast.NewHub(log)
	calls := callcontrol.New(sessions, hub, nopPersister{}, log)

	srv := New(cfg, verifier, hub, calls, sessions, log)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	err = <-errCh
	assert.NoError(t, err)
}

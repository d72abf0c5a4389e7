package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/link"
)

const peerSecret = "panel-secret"

func serverConfig() config.SocketConfig {
	return config.SocketConfig{
		Name:         "panel",
		Role:         config.RoleServer,
		Path:         "/ws/panel",
		Framing:      config.FramingEnvelope,
		Channel:      "panel",
		KeepAlive:    time.Second,
		IdleTimeout:  3 * time.Second,
		CloseTimeout: time.Second,
		Auth:         config.SocketAuthConfig{Required: true, Secret: peerSecret},
	}
}

// dialServer connects to a server-role link and returns the HTTP status
// of the upgrade (101 on success).
func dialServer(t *testing.T, url, token string) (*ws.Conn, int) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := ws.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		require.NotNil(t, resp, "dial error without response: %v", err)
		return nil, resp.StatusCode
	}
	t.Cleanup(func() { conn.Close() })
	return conn, resp.StatusCode
}

// attach dials until the link is listening.
func attach(t *testing.T, url, token string) *ws.Conn {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if conn, status := dialServer(t, url, token); status == http.StatusSwitchingProtocols {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("link never accepted the peer")
	return nil
}

func newServerLink(t *testing.T) (*SocketLink, string) {
	t.Helper()
	sl, _ := newLink(t, serverConfig(), nil)
	srv := httptest.NewServer(sl)
	t.Cleanup(srv.Close)
	return sl, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestServer_RejectsWhenNotListening(t *testing.T) {
	_, url := newServerLink(t)
	token, err := GeneratePeerToken("panel", peerSecret, time.Minute)
	require.NoError(t, err)

	_, status := dialServer(t, url, token)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestServer_Authentication(t *testing.T) {
	sl, url := newServerLink(t)
	start(t, sl)

	otherLink, err := GeneratePeerToken("dashboard", peerSecret, time.Minute)
	require.NoError(t, err)
	wrongSecret, err := GeneratePeerToken("panel", "other", time.Minute)
	require.NoError(t, err)
	expired, err := GeneratePeerToken("panel", peerSecret, -time.Minute)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing":      "",
		"other link":   otherLink,
		"wrong secret": wrongSecret,
		"expired":      expired,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, status := dialServer(t, url, token)
			assert.Equal(t, http.StatusUnauthorized, status)
		})
	}
}

func TestServer_SinglePeer(t *testing.T) {
	sl, url := newServerLink(t)
	start(t, sl)
	token, err := GeneratePeerToken("panel", peerSecret, time.Minute)
	require.NoError(t, err)

	first := attach(t, url, token)
	require.Eventually(t, func() bool { return sl.State() == link.StateConnected }, waitFor, 10*time.Millisecond)

	_, status := dialServer(t, url, token)
	assert.Equal(t, http.StatusConflict, status, "a second peer is refused")

	require.NoError(t, sl.Send("alerts", []byte(`"door open"`)))
	assert.JSONEq(t, `{"channel":"alerts","payload":"door open"}`, readFrame(t, first))

	// Once the first peer leaves, another may attach.
	msg := ws.FormatCloseMessage(ws.CloseGoingAway, "")
	require.NoError(t, first.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second)))
	second := attach(t, url, token)

	require.NoError(t, sl.Send("alerts", []byte(`1`)))
	assert.JSONEq(t, `{"channel":"alerts","payload":1}`, readFrame(t, second))
}

func TestServer_AcceptsNextPeerWithoutBackoff(t *testing.T) {
	sl, err := New(Options{
		Config: serverConfig(),
		Retry:  link.RetryConfig{InitialDelay: time.Hour, MaxDelay: time.Hour, StableAfter: time.Hour},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(sl)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	start(t, sl)
	token, err := GeneratePeerToken("panel", peerSecret, time.Minute)
	require.NoError(t, err)

	for range 3 {
		conn := attach(t, url, token)
		require.Eventually(t, func() bool { return sl.State() == link.StateConnected }, waitFor, 10*time.Millisecond)
		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
		require.NoError(t, conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second)))
		require.Eventually(t, func() bool { return sl.State() != link.StateConnected }, waitFor, 10*time.Millisecond)
	}
}

func TestServer_OpenWithoutAuth(t *testing.T) {
	cfg := serverConfig()
	cfg.Auth = config.SocketAuthConfig{}
	sl, inbox := newLink(t, cfg, nil)
	srv := httptest.NewServer(sl)
	t.Cleanup(srv.Close)
	start(t, sl)

	conn := attach(t, "ws"+strings.TrimPrefix(srv.URL, "http"), "")
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"channel":"panel","payload":{"button":1}}`)))
	require.Eventually(t, func() bool { return inbox.Len() == 1 }, waitFor, 10*time.Millisecond)
}

func TestPeerToken(t *testing.T) {
	token, err := GeneratePeerToken("panel", peerSecret, time.Minute)
	require.NoError(t, err)

	claims, err := ParsePeerToken(token, "panel", peerSecret)
	require.NoError(t, err)
	assert.Equal(t, "panel", claims.Link)
	assert.NotEmpty(t, claims.ID)

	_, err = ParsePeerToken(token, "dashboard", peerSecret)
	assert.ErrorIs(t, err, ErrUnauthorized)

	r := httptest.NewRequest(http.MethodGet, "/ws/panel?access_token=abc", nil)
	assert.Equal(t, "abc", peerToken(r))
	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", peerToken(r))
}

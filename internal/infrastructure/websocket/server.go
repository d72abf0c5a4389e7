package websocket

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-relay/internal/link"
)

// upgrader configures the server-role WebSocket upgrader.
var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Peers are authenticated by token, not by origin.
		return true
	},
}

// PeerClaims are the claims carried by a peer token.
type PeerClaims struct {
	jwt.RegisteredClaims
	Link string `json:"link"`
}

// GeneratePeerToken signs an HS256 token that admits a peer to the named
// server-role link.
func GeneratePeerToken(linkName, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := PeerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   linkName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Link: linkName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing peer token: %w", err)
	}
	return signed, nil
}

// ParsePeerToken validates a peer token for the named link.
func ParsePeerToken(tokenString, linkName, secret string) (*PeerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PeerClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*PeerClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	if claims.Link != linkName {
		return nil, fmt.Errorf("%w: token is for link %q", ErrUnauthorized, claims.Link)
	}
	return claims, nil
}

// ServeHTTP admits a peer to a server-role link.
//
// Responses:
//   - 401 when auth is required and the token is missing or invalid
//   - 409 when a peer is already attached
//   - 503 when the link is not waiting for a peer (starting or shutting down)
func (l *SocketLink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if l.cfg.Auth.Required {
		if _, err := ParsePeerToken(peerToken(r), l.name, l.cfg.Auth.Secret); err != nil {
			l.logger.Warn("socket peer rejected", "link", l.name, "remote", r.RemoteAddr, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	l.mu.Lock()
	switch {
	case l.peer:
		l.mu.Unlock()
		http.Error(w, "link already has a peer", http.StatusConflict)
		return
	case !l.listening:
		l.mu.Unlock()
		http.Error(w, "link not accepting peers", http.StatusServiceUnavailable)
		return
	}
	l.peer = true
	l.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		l.releasePeer()
		l.logger.Warn("websocket upgrade failed", "link", l.name, "error", err)
		return
	}

	l.mu.Lock()
	if !l.listening {
		l.peer = false
		l.mu.Unlock()
		conn.Close()
		return
	}
	l.accepted <- conn
	l.mu.Unlock()

	l.logger.Info("socket peer attached", "link", l.name, "remote", r.RemoteAddr)
}

// accept waits for ServeHTTP to hand over a peer.
func (l *SocketLink) accept(ctx context.Context) (link.Session, error) {
	l.mu.Lock()
	l.listening = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.listening = false
		// A peer upgraded after ctx was cancelled.
		select {
		case conn := <-l.accepted:
			conn.Close()
			l.peer = false
		default:
		}
		l.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case conn := <-l.accepted:
		return l.newSession(conn), nil
	}
}

// peerToken extracts a bearer token from the Authorization header or the
// access_token query parameter, for browsers that cannot set headers.
func peerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

package websocket

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/link"
)

const (
	// handshakeTimeout bounds the HTTP upgrade and any application handshake.
	handshakeTimeout = 10 * time.Second

	tlsMinVersion = tls.VersionTLS12
)

// invalidator is implemented by providers that cache tokens.
type invalidator interface {
	Invalidate()
}

// newDialer builds the gorilla dialer for a client-role link.
func newDialer(cfg config.SocketConfig) (*ws.Dialer, error) {
	d := &ws.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	if cfg.TLS.CAFile != "" || cfg.TLS.InsecureSkipVerify {
		tlsCfg := &tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // Explicit opt-in for self-signed peers
		}
		if cfg.TLS.CAFile != "" {
			pem, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("%w: reading CA file: %w", ErrDialFailed, err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("%w: no certificates in CA file %s", ErrDialFailed, cfg.TLS.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
		d.TLSClientConfig = tlsCfg
	} else {
		d.TLSClientConfig = &tls.Config{MinVersion: tlsMinVersion}
	}

	return d, nil
}

// connect dials the peer, performs the optional application handshake and
// returns the session.
func (l *SocketLink) connect(ctx context.Context) (link.Session, error) {
	token, err := l.token(ctx)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if token != "" && l.cfg.Handshake != config.HandshakeHomeAssistant {
		header.Set("Authorization", "Bearer "+token)
	}

	l.logger.Debug("dialing socket peer", "link", l.name, "url", l.cfg.URL)
	conn, resp, err := l.dialer.DialContext(ctx, l.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			l.invalidateToken()
			return nil, fmt.Errorf("%w: peer answered %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	if l.cfg.Handshake == config.HandshakeHomeAssistant {
		if err := l.homeAssistantHandshake(ctx, conn, token); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return l.newSession(conn), nil
}

// token resolves the bearer for this attempt. A provider is consulted on
// every attempt so rotated credentials are picked up on reconnect.
func (l *SocketLink) token(ctx context.Context) (string, error) {
	switch l.cfg.Auth.Source {
	case config.TokenSourceStatic:
		if l.cfg.Auth.Token == "" {
			return "", fmt.Errorf("%w: no static token", ErrUnauthorized)
		}
		return l.cfg.Auth.Token, nil
	case config.TokenSourceCredentials:
		if l.creds == nil {
			return "", fmt.Errorf("%w: no credentials provider", ErrUnauthorized)
		}
		token, err := l.creds.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return token, nil
	default:
		return "", nil
	}
}

func (l *SocketLink) invalidateToken() {
	if inv, ok := l.creds.(invalidator); ok && l.cfg.Auth.Source == config.TokenSourceCredentials {
		inv.Invalidate()
	}
}

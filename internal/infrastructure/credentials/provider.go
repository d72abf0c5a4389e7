// Package credentials supplies bearer tokens to client-role socket links.
//
// A Provider is consulted once per connection attempt. Three
// implementations exist: a static token, an environment variable read at
// every call, and a REST token endpoint whose answer is cached until it
// expires and which sits behind a circuit breaker.
package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Provider returns a bearer token for an outgoing connection.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f ProviderFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Logger is the logging interface used by the HTTP provider.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// Static always returns the same token.
type Static string

// Token returns the static token.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Env reads the token from an environment variable on every call, so a
// rotated value is picked up on the next reconnect.
type Env struct {
	Var string
}

// Token returns the variable's current value.
func (e Env) Token(context.Context) (string, error) {
	v := os.Getenv(e.Var)
	if v == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNoToken, e.Var)
	}
	return v, nil
}

// New builds the provider selected by cfg.Type. It returns a nil Provider
// and no error when no provider is configured.
func New(cfg config.CredentialsConfig, logger Logger) (Provider, error) {
	switch cfg.Type {
	case config.CredentialsNone:
		return nil, nil //nolint:nilnil // no provider configured
	case config.CredentialsStatic:
		return Static(cfg.Token), nil
	case config.CredentialsEnv:
		return Env{Var: cfg.EnvVar}, nil
	case config.CredentialsHTTP:
		return NewHTTP(cfg, nil, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
}

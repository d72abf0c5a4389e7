package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// validConfig returns a minimal configuration that passes Validate.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.MQTT.Broker.Host = "localhost"
	cfg.Sockets = []SocketConfig{{Name: "dashboard", URL: "ws://localhost:9000/ws"}}
	cfg.Routes.BrokerToSocket = []RouteConfig{{
		From: "sensors/#",
		To:   []RouteTarget{{Link: "dashboard"}},
	}}
	applyDerivedDefaults(cfg)
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
gateway:
  id: "gw-7"
mqtt:
  broker:
    host: "broker.local"
    tls: true
  topic: "openiotai/gw"
credentials:
  type: env
sockets:
  - name: homeassistant
    url: "wss://ha.local/api/websocket"
    handshake: homeassistant
    auth:
      source: credentials
    keepalive: 20s
    idle_timeout: 1m
  - name: panel
    role: server
routes:
  broker_to_socket:
    - from: "commands/+"
      to:
        - link: panel
          channel: commands
  socket_to_broker:
    - from: "*"
      link: homeassistant
      transform: ha_state
      to:
        - channel: ""
reconnect:
  initial_delay: 500ms
  max_delay: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gw-7", cfg.Gateway.ID)
	assert.Equal(t, 8883, cfg.MQTT.Broker.Port, "TLS brokers default to 8883")
	assert.Equal(t, "graylogic/relay/gw-7/status", cfg.MQTT.StatusTopic)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)

	ha, ok := cfg.Socket("homeassistant")
	require.True(t, ok)
	assert.Equal(t, RoleClient, ha.Role)
	assert.Equal(t, FramingRaw, ha.Framing, "the homeassistant handshake implies raw framing")
	assert.Equal(t, 20*time.Second, ha.KeepAlive)
	assert.Equal(t, time.Minute, ha.IdleTimeout)
	assert.Equal(t, cfg.Queue.Capacity, ha.QueueCapacity)

	panel, ok := cfg.Socket("panel")
	require.True(t, ok)
	assert.Equal(t, FramingEnvelope, panel.Framing)
	assert.Equal(t, "/ws/panel", panel.Path)
	assert.Equal(t, "panel", panel.Channel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/relay.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, `
sockets:
  - name: dashboard
    url: "ws://localhost/ws"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt.broker.host is required")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: "mqtt.broker.host is required",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos must be 0, 1, or 2",
		},
		{
			name:    "no sockets",
			mutate:  func(c *Config) { c.Sockets = nil; c.Routes = RoutesConfig{} },
			wantErr: "at least one socket link is required",
		},
		{
			name: "duplicate socket names",
			mutate: func(c *Config) {
				c.Sockets = append(c.Sockets, c.Sockets[0])
			},
			wantErr: `"dashboard" is not unique`,
		},
		{
			name:    "invalid role",
			mutate:  func(c *Config) { c.Sockets[0].Role = "peer" },
			wantErr: `role "peer" must be client or server`,
		},
		{
			name:    "client without ws scheme",
			mutate:  func(c *Config) { c.Sockets[0].URL = "http://localhost" },
			wantErr: "must use ws:// or wss://",
		},
		{
			name: "route to unknown link",
			mutate: func(c *Config) {
				c.Routes.BrokerToSocket[0].To[0].Link = "ghost"
			},
			wantErr: `"ghost" does not name a socket link`,
		},
		{
			name: "socket route to socket link",
			mutate: func(c *Config) {
				c.Routes.SocketToBroker = []RouteConfig{{From: "x", To: []RouteTarget{{Link: "dashboard"}}}}
			},
			wantErr: `must be empty or "broker"`,
		},
		{
			name: "unknown transform",
			mutate: func(c *Config) {
				c.Routes.SocketToBroker = []RouteConfig{{From: "x", Transform: "upper", To: []RouteTarget{{Channel: "y"}}}}
			},
			wantErr: `transform "upper" is not supported`,
		},
		{
			name: "idle timeout not above keepalive",
			mutate: func(c *Config) {
				c.Sockets[0].IdleTimeout = c.Sockets[0].KeepAlive
			},
			wantErr: "idle_timeout must be greater than keepalive",
		},
		{
			name: "server auth without secret",
			mutate: func(c *Config) {
				c.Sockets[0].Role = RoleServer
				c.Sockets[0].Path = "/ws/dashboard"
				c.Sockets[0].Auth.Required = true
			},
			wantErr: "auth.secret is required",
		},
		{
			name: "credentials source without provider",
			mutate: func(c *Config) {
				c.Sockets[0].Auth.Source = TokenSourceCredentials
			},
			wantErr: "no credentials provider is configured",
		},
		{
			name: "heartbeat without topic",
			mutate: func(c *Config) {
				c.Heartbeat.Enabled = true
			},
			wantErr: "heartbeat.topic or mqtt.topic is required",
		},
		{
			name:    "wildcard mqtt topic",
			mutate:  func(c *Config) { c.MQTT.Topic = "a/+" },
			wantErr: `mqtt.topic "a/+" must not contain wildcards`,
		},
		{
			name:    "wildcard health topic",
			mutate:  func(c *Config) { c.Health.Topic = "relay/#" },
			wantErr: `health.topic "relay/#" must not contain wildcards`,
		},
		{
			name: "wildcard route target channel",
			mutate: func(c *Config) {
				c.Routes.SocketToBroker = []RouteConfig{{From: "button", To: []RouteTarget{{Channel: "panel/+/button"}}}}
			},
			wantErr: `routes.socket_to_broker[0].to[0].channel "panel/+/button" must not contain wildcards`,
		},
		{
			name: "wildcard socket channel published as topic",
			mutate: func(c *Config) {
				c.Routes.SocketToBroker = []RouteConfig{{From: "panel/#", To: []RouteTarget{{}}}}
			},
			wantErr: `routes.socket_to_broker[0].from "panel/#" must not contain wildcards`,
		},
		{
			name: "wildcard socket channel rewritten by mqtt.topic",
			mutate: func(c *Config) {
				c.MQTT.Topic = "openiotai/gw"
				c.Routes.SocketToBroker = []RouteConfig{{From: "panel/#", To: []RouteTarget{{}}}}
			},
		},
		{
			name:    "invalid jitter",
			mutate:  func(c *Config) { c.Reconnect.Jitter = 1.5 },
			wantErr: "reconnect.jitter must be between 0 and 1",
		},
		{
			name: "http credentials without url",
			mutate: func(c *Config) {
				c.Credentials.Type = CredentialsHTTP
			},
			wantErr: "credentials.url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Broker.Host = ""
	cfg.MQTT.QoS = 5
	cfg.Queue.Capacity = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt.broker.host")
	assert.Contains(t, err.Error(), "mqtt.qos")
	assert.Contains(t, err.Error(), "queue.capacity")
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
	}

	assert.Equal(t, 30*time.Second, cfg.GetReadTimeout())
	assert.Equal(t, 45*time.Second, cfg.GetWriteTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetIdleTimeout())
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()
	cfg.Sockets = []SocketConfig{
		{Name: "ha", Role: RoleClient, Auth: SocketAuthConfig{Source: TokenSourceStatic}},
		{Name: "panel", Role: RoleServer, Auth: SocketAuthConfig{Required: true}},
		{Name: "open", Role: RoleServer},
	}

	t.Setenv("GRAYLOGIC_RELAY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_RELAY_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_RELAY_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_RELAY_MQTT_TOPIC", "openiotai/gw")
	t.Setenv("GRAYLOGIC_RELAY_SOCKET_TOKEN", "socket-token")
	t.Setenv("GRAYLOGIC_RELAY_AUTH_SECRET", "peer-secret")
	t.Setenv("GRAYLOGIC_RELAY_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	assert.Equal(t, "mqtt.example.com", cfg.MQTT.Broker.Host)
	assert.Equal(t, "testuser", cfg.MQTT.Auth.Username)
	assert.Equal(t, "testpass", cfg.MQTT.Auth.Password)
	assert.Equal(t, "openiotai/gw", cfg.MQTT.Topic)
	assert.Equal(t, "socket-token", cfg.Sockets[0].Auth.Token)
	assert.Equal(t, "peer-secret", cfg.Sockets[1].Auth.Secret)
	assert.Empty(t, cfg.Sockets[2].Auth.Secret, "sockets without auth keep no secret")
	assert.Equal(t, "secret-token", cfg.InfluxDB.Token)
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.NotEmpty(t, cfg.Gateway.ID)
	assert.Equal(t, DefaultBrokerName, cfg.BrokerName())
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 15*time.Second, cfg.Heartbeat.Interval)

	applyDerivedDefaults(cfg)
	assert.Equal(t, 1883, cfg.MQTT.Broker.Port)
}

func TestHeartbeatTopicFallsBackToMQTTTopic(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.Topic = "openiotai/gw"
	assert.Equal(t, "openiotai/gw", cfg.HeartbeatTopic())

	cfg.Heartbeat.Topic = "gw/heartbeat"
	assert.Equal(t, "gw/heartbeat", cfg.HeartbeatTopic())
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Socket roles.
const (
	RoleClient = "client"
	RoleServer = "server"
)

// Socket frame codecs.
const (
	FramingEnvelope = "envelope"
	FramingRaw      = "raw"
)

// Optional client handshakes.
const (
	HandshakeNone          = ""
	HandshakeHomeAssistant = "homeassistant"
)

// Socket token sources.
const (
	TokenSourceNone        = ""
	TokenSourceStatic      = "static"
	TokenSourceCredentials = "credentials"
)

// Credential provider types.
const (
	CredentialsNone   = ""
	CredentialsStatic = "static"
	CredentialsEnv    = "env"
	CredentialsHTTP   = "http"
)

// Route transforms.
const (
	TransformNone    = ""
	TransformHAState = "ha_state"
)

// DefaultBrokerName is the link name used for the MQTT side when mqtt.name is unset.
const DefaultBrokerName = "broker"

// Config is the root configuration structure for Gray Logic Relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Sockets     []SocketConfig    `yaml:"sockets"`
	Routes      RoutesConfig      `yaml:"routes"`
	Queue       QueueConfig       `yaml:"queue"`
	Reconnect   ReconnectConfig   `yaml:"reconnect"`
	Health      HealthConfig      `yaml:"health"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Journal     JournalConfig     `yaml:"journal"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// GatewayConfig identifies this relay instance.
type GatewayConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// CloseTimeout bounds the graceful close of every link on shutdown.
	CloseTimeout time.Duration `yaml:"close_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Name         string           `yaml:"name"`
	Broker       MQTTBrokerConfig `yaml:"broker"`
	Auth         MQTTAuthConfig   `yaml:"auth"`
	QoS          int              `yaml:"qos"`
	KeepAlive    int              `yaml:"keepalive"`
	CleanSession bool             `yaml:"clean_session"`

	// Topic is the default publish topic for socket routes without an explicit target.
	Topic string `yaml:"topic"`

	// StatusTopic carries the retained online/offline payloads and the LWT.
	StatusTopic string `yaml:"status_topic"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	TLS                bool   `yaml:"tls"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	ClientID           string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SocketConfig describes one WebSocket link.
type SocketConfig struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`

	// URL is dialled in the client role.
	URL string `yaml:"url"`

	// Path is served on the API listener in the server role.
	Path string `yaml:"path"`

	Framing   string `yaml:"framing"`
	Channel   string `yaml:"channel"`
	Handshake string `yaml:"handshake"`

	KeepAlive      time.Duration `yaml:"keepalive"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	CloseTimeout   time.Duration `yaml:"close_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	QueueCapacity  int           `yaml:"queue_capacity"`

	Auth SocketAuthConfig `yaml:"auth"`
	TLS  SocketTLSConfig  `yaml:"tls"`
}

// SocketAuthConfig configures bearer tokens.
//
// In the client role Source selects where the outgoing token comes from.
// In the server role Required enables HS256 validation of the peer's token
// against Secret.
type SocketAuthConfig struct {
	Source   string `yaml:"source"`
	Token    string `yaml:"token"`
	Required bool   `yaml:"required"`
	Secret   string `yaml:"secret"`
}

// SocketTLSConfig contains client-side TLS settings for wss:// URLs.
type SocketTLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// RoutesConfig holds both independent routing tables.
type RoutesConfig struct {
	BrokerToSocket []RouteConfig `yaml:"broker_to_socket"`
	SocketToBroker []RouteConfig `yaml:"socket_to_broker"`
}

// RouteConfig maps one source channel to one or more targets.
type RouteConfig struct {
	// From is an MQTT topic filter for broker routes, or a channel name
	// (or "*") for socket routes.
	From string `yaml:"from"`

	// Link restricts a socket route to messages from one socket link.
	Link string `yaml:"link"`

	To        []RouteTarget `yaml:"to"`
	Transform string        `yaml:"transform"`

	// QoS and Retain apply to broker publishes produced by socket routes.
	QoS    *int `yaml:"qos"`
	Retain bool `yaml:"retain"`
}

// RouteTarget names a destination link and an optional channel rewrite.
type RouteTarget struct {
	Link    string `yaml:"link"`
	Channel string `yaml:"channel"`
}

// QueueConfig bounds every PendingQueue and the bridge inbox.
type QueueConfig struct {
	Capacity      int           `yaml:"capacity"`
	TTL           time.Duration `yaml:"ttl"`
	InboxCapacity int           `yaml:"inbox_capacity"`
	LedgerSize    int           `yaml:"ledger_size"`
}

// ReconnectConfig is the backoff policy shared by all links.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
	StableAfter  time.Duration `yaml:"stable_after"`
}

// HealthConfig contains health monitor settings.
type HealthConfig struct {
	Interval       time.Duration `yaml:"interval"`
	UnhealthyAfter time.Duration `yaml:"unhealthy_after"`

	// Topic enables retained health publishes when set.
	Topic string `yaml:"topic"`
}

// HeartbeatConfig contains the gateway heartbeat settings.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`

	// Topic defaults to mqtt.topic.
	Topic string `yaml:"topic"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CredentialsConfig selects the token provider used by client sockets.
type CredentialsConfig struct {
	Type  string `yaml:"type"`
	Token string `yaml:"token"`

	// EnvVar is read by the env provider.
	EnvVar string `yaml:"env_var"`

	// URL, ClientID and ClientSecret configure the http provider.
	URL          string        `yaml:"url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`

	// CacheTTL is used when the token endpoint does not return expires_in.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around the token endpoint.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// JournalConfig contains the SQLite event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	WALMode       bool          `yaml:"wal_mode"`
	BusyTimeout   int           `yaml:"busy_timeout"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Derived defaults (per-socket values, topics, broker port)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_RELAY_SECTION_KEY
// For example: GRAYLOGIC_RELAY_MQTT_HOST, GRAYLOGIC_RELAY_SOCKET_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDerivedDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ID:           "relay-01",
			Name:         "Gray Logic Relay",
			CloseTimeout: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			Name: DefaultBrokerName,
			Broker: MQTTBrokerConfig{
				ClientID: "graylogic-relay",
			},
			QoS:            1,
			KeepAlive:      60,
			CleanSession:   true,
			ConnectTimeout: 10 * time.Second,
		},
		Queue: QueueConfig{
			Capacity:      1000,
			InboxCapacity: 4096,
			LedgerSize:    8192,
		},
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2,
			Jitter:       0.2,
			StableAfter:  10 * time.Second,
		},
		Health: HealthConfig{
			Interval:       10 * time.Second,
			UnhealthyAfter: 60 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 15 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Credentials: CredentialsConfig{
			EnvVar:   "SUPERVISOR_TOKEN",
			Timeout:  10 * time.Second,
			CacheTTL: 5 * time.Minute,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Journal: JournalConfig{
			Path:          "./data/relay.db",
			WALMode:       true,
			BusyTimeout:   5,
			Retention:     7 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    100,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyDerivedDefaults fills values that depend on other settings or live
// inside list entries, which YAML decoding cannot pre-populate.
func applyDerivedDefaults(cfg *Config) {
	if cfg.MQTT.Broker.Port == 0 {
		cfg.MQTT.Broker.Port = 1883
		if cfg.MQTT.Broker.TLS {
			cfg.MQTT.Broker.Port = 8883
		}
	}
	if cfg.MQTT.StatusTopic == "" && cfg.Gateway.ID != "" {
		cfg.MQTT.StatusTopic = fmt.Sprintf("graylogic/relay/%s/status", cfg.Gateway.ID)
	}

	for i := range cfg.Sockets {
		s := &cfg.Sockets[i]
		if s.Role == "" {
			s.Role = RoleClient
		}
		if s.Framing == "" {
			s.Framing = FramingEnvelope
			if s.Handshake == HandshakeHomeAssistant {
				s.Framing = FramingRaw
			}
		}
		if s.Channel == "" {
			s.Channel = s.Name
		}
		if s.Role == RoleServer && s.Path == "" {
			s.Path = "/ws/" + s.Name
		}
		if s.KeepAlive == 0 {
			s.KeepAlive = 30 * time.Second
		}
		if s.IdleTimeout == 0 {
			s.IdleTimeout = 90 * time.Second
		}
		if s.CloseTimeout == 0 {
			s.CloseTimeout = cfg.Gateway.CloseTimeout
		}
		if s.MaxMessageSize == 0 {
			s.MaxMessageSize = 1 << 20
		}
		if s.QueueCapacity == 0 {
			s.QueueCapacity = cfg.Queue.Capacity
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_RELAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("GRAYLOGIC_RELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_RELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_RELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("GRAYLOGIC_RELAY_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}

	// Sockets - tokens and secrets only fill entries that asked for them
	if v := os.Getenv("GRAYLOGIC_RELAY_SOCKET_TOKEN"); v != "" {
		for i := range cfg.Sockets {
			s := &cfg.Sockets[i]
			if s.Role == RoleClient && s.Auth.Source == TokenSourceStatic && s.Auth.Token == "" {
				s.Auth.Token = v
			}
		}
	}
	if v := os.Getenv("GRAYLOGIC_RELAY_AUTH_SECRET"); v != "" {
		for i := range cfg.Sockets {
			s := &cfg.Sockets[i]
			if s.Role == RoleServer && s.Auth.Required && s.Auth.Secret == "" {
				s.Auth.Secret = v
			}
		}
	}

	// API
	if v := os.Getenv("GRAYLOGIC_RELAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_RELAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Journal
	if v := os.Getenv("GRAYLOGIC_RELAY_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
}

// Validate checks the configuration and reports every problem at once.
//
// Returns:
//   - error: Description of validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set GRAYLOGIC_RELAY_MQTT_HOST environment variable)")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if !validQoS(c.MQTT.QoS) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keepalive must not be negative")
	}

	errs = append(errs, c.validatePublishTopics()...)

	links := c.linkNames()
	errs = append(errs, c.validateSockets()...)
	errs = append(errs, c.validateRoutes(links)...)

	// Queue validation
	if c.Queue.Capacity < 1 {
		errs = append(errs, "queue.capacity must be at least 1")
	}
	if c.Queue.InboxCapacity < 1 {
		errs = append(errs, "queue.inbox_capacity must be at least 1")
	}
	if c.Queue.TTL < 0 {
		errs = append(errs, "queue.ttl must not be negative")
	}

	// Reconnect validation
	if c.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "reconnect.initial_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		errs = append(errs, "reconnect.max_delay must not be less than reconnect.initial_delay")
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, "reconnect.multiplier must be at least 1")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		errs = append(errs, "reconnect.jitter must be between 0 and 1")
	}

	if c.Health.Interval <= 0 {
		errs = append(errs, "health.interval must be positive")
	}
	if c.Heartbeat.Enabled {
		if c.Heartbeat.Interval <= 0 {
			errs = append(errs, "heartbeat.interval must be positive")
		}
		if c.HeartbeatTopic() == "" {
			errs = append(errs, "heartbeat.topic or mqtt.topic is required when heartbeat is enabled")
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	errs = append(errs, c.validateCredentials()...)

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateSockets() []string {
	var errs []string

	if len(c.Sockets) == 0 {
		errs = append(errs, "at least one socket link is required")
	}

	seen := make(map[string]bool, len(c.Sockets))
	paths := make(map[string]string)
	for i, s := range c.Sockets {
		field := fmt.Sprintf("sockets[%d]", i)
		if s.Name == "" {
			errs = append(errs, field+".name is required")
		} else {
			if seen[s.Name] {
				errs = append(errs, fmt.Sprintf("%s.name %q is not unique", field, s.Name))
			}
			if s.Name == c.BrokerName() {
				errs = append(errs, fmt.Sprintf("%s.name %q collides with the broker link name", field, s.Name))
			}
			seen[s.Name] = true
		}

		switch s.Role {
		case RoleClient:
			if s.URL == "" {
				errs = append(errs, field+".url is required for client sockets")
			} else if !strings.HasPrefix(s.URL, "ws://") && !strings.HasPrefix(s.URL, "wss://") {
				errs = append(errs, field+".url must use ws:// or wss://")
			}
			switch s.Auth.Source {
			case TokenSourceNone:
			case TokenSourceStatic:
				if s.Auth.Token == "" {
					errs = append(errs, field+".auth.token is required for static tokens (set GRAYLOGIC_RELAY_SOCKET_TOKEN)")
				}
			case TokenSourceCredentials:
				if c.Credentials.Type == CredentialsNone {
					errs = append(errs, field+".auth.source is credentials but no credentials provider is configured")
				}
			default:
				errs = append(errs, fmt.Sprintf("%s.auth.source %q is not one of static, credentials", field, s.Auth.Source))
			}
		case RoleServer:
			if !c.API.Enabled {
				errs = append(errs, field+" uses the server role but the api listener is disabled")
			}
			if !strings.HasPrefix(s.Path, "/") {
				errs = append(errs, field+".path must start with /")
			} else if other, dup := paths[s.Path]; dup {
				errs = append(errs, fmt.Sprintf("%s.path %q is already used by %q", field, s.Path, other))
			}
			paths[s.Path] = s.Name
			if s.Auth.Required && s.Auth.Secret == "" {
				errs = append(errs, field+".auth.secret is required when auth is required (set GRAYLOGIC_RELAY_AUTH_SECRET)")
			}
			if s.Handshake != HandshakeNone {
				errs = append(errs, field+".handshake is only supported for client sockets")
			}
		default:
			errs = append(errs, fmt.Sprintf("%s.role %q must be client or server", field, s.Role))
		}

		if s.Framing != FramingEnvelope && s.Framing != FramingRaw {
			errs = append(errs, fmt.Sprintf("%s.framing %q must be envelope or raw", field, s.Framing))
		}
		if s.Handshake != HandshakeNone && s.Handshake != HandshakeHomeAssistant {
			errs = append(errs, fmt.Sprintf("%s.handshake %q is not supported", field, s.Handshake))
		}
		if s.Handshake == HandshakeHomeAssistant {
			if s.Framing != FramingRaw {
				errs = append(errs, field+".framing must be raw with the homeassistant handshake")
			}
			if s.Auth.Source == TokenSourceNone {
				errs = append(errs, field+".auth.source is required with the homeassistant handshake")
			}
		}
		if s.KeepAlive <= 0 || s.IdleTimeout <= 0 {
			errs = append(errs, field+".keepalive and idle_timeout must be positive")
		} else if s.IdleTimeout <= s.KeepAlive {
			errs = append(errs, field+".idle_timeout must be greater than keepalive")
		}
		if s.QueueCapacity < 1 {
			errs = append(errs, field+".queue_capacity must be at least 1")
		}
	}

	return errs
}

func (c *Config) validateRoutes(links map[string]bool) []string {
	var errs []string
	broker := c.BrokerName()

	for i, r := range c.Routes.BrokerToSocket {
		field := fmt.Sprintf("routes.broker_to_socket[%d]", i)
		if r.From == "" {
			errs = append(errs, field+".from is required")
		}
		if len(r.To) == 0 {
			errs = append(errs, field+".to needs at least one target")
		}
		for j, t := range r.To {
			if t.Link == "" || t.Link == broker || !links[t.Link] {
				errs = append(errs, fmt.Sprintf("%s.to[%d].link %q does not name a socket link", field, j, t.Link))
			}
		}
		if r.Transform != TransformNone {
			errs = append(errs, field+".transform is only supported on socket_to_broker routes")
		}
	}

	for i, r := range c.Routes.SocketToBroker {
		field := fmt.Sprintf("routes.socket_to_broker[%d]", i)
		if r.From == "" {
			errs = append(errs, field+".from is required")
		}
		if r.Link != "" && (r.Link == broker || !links[r.Link]) {
			errs = append(errs, fmt.Sprintf("%s.link %q does not name a socket link", field, r.Link))
		}
		if len(r.To) == 0 {
			errs = append(errs, field+".to needs at least one target")
		}
		for j, t := range r.To {
			if t.Link != "" && t.Link != broker {
				errs = append(errs, fmt.Sprintf("%s.to[%d].link %q must be empty or %q", field, j, t.Link, broker))
			}
			if t.Channel == "" && c.MQTT.Topic == "" && r.From == "*" {
				errs = append(errs, fmt.Sprintf("%s.to[%d].channel is required for wildcard sources without mqtt.topic", field, j))
			}
		}
		if r.QoS != nil && !validQoS(*r.QoS) {
			errs = append(errs, field+".qos must be 0, 1, or 2")
		}
		if r.Transform != TransformNone && r.Transform != TransformHAState {
			errs = append(errs, fmt.Sprintf("%s.transform %q is not supported", field, r.Transform))
		}
	}

	return errs
}

func (c *Config) validateCredentials() []string {
	var errs []string

	switch c.Credentials.Type {
	case CredentialsNone:
	case CredentialsStatic:
		if c.Credentials.Token == "" {
			errs = append(errs, "credentials.token is required for the static provider")
		}
	case CredentialsEnv:
		if c.Credentials.EnvVar == "" {
			errs = append(errs, "credentials.env_var is required for the env provider")
		}
	case CredentialsHTTP:
		if c.Credentials.URL == "" {
			errs = append(errs, "credentials.url is required for the http provider")
		}
		if c.Credentials.Timeout <= 0 {
			errs = append(errs, "credentials.timeout must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("credentials.type %q must be static, env, or http", c.Credentials.Type))
	}

	return errs
}

// validatePublishTopics checks every topic the relay publishes to. A
// wildcard in a PUBLISH is a protocol violation that brokers answer by
// closing the connection.
func (c *Config) validatePublishTopics() []string {
	var errs []string
	check := func(field, topic string) {
		if strings.ContainsAny(topic, "+#\x00") {
			errs = append(errs, fmt.Sprintf("%s %q must not contain wildcards", field, topic))
		}
	}

	check("mqtt.topic", c.MQTT.Topic)
	check("mqtt.status_topic", c.MQTT.StatusTopic)
	check("health.topic", c.Health.Topic)
	check("heartbeat.topic", c.Heartbeat.Topic)

	// A target without a channel publishes to mqtt.topic, or to the
	// incoming socket channel when mqtt.topic is unset.
	for i, r := range c.Routes.SocketToBroker {
		field := fmt.Sprintf("routes.socket_to_broker[%d]", i)
		for j, t := range r.To {
			switch {
			case t.Channel != "":
				check(fmt.Sprintf("%s.to[%d].channel", field, j), t.Channel)
			case c.MQTT.Topic == "" && r.From != "*":
				check(field+".from", r.From)
			}
		}
	}

	return errs
}

func (c *Config) linkNames() map[string]bool {
	names := map[string]bool{c.BrokerName(): true}
	for _, s := range c.Sockets {
		if s.Name != "" {
			names[s.Name] = true
		}
	}
	return names
}

func validQoS(q int) bool {
	return q >= 0 && q <= 2
}

// BrokerName returns the link name used for the MQTT side.
func (c *Config) BrokerName() string {
	if c.MQTT.Name == "" {
		return DefaultBrokerName
	}
	return c.MQTT.Name
}

// Socket returns the socket link with the given name.
func (c *Config) Socket(name string) (SocketConfig, bool) {
	for _, s := range c.Sockets {
		if s.Name == name {
			return s, true
		}
	}
	return SocketConfig{}, false
}

// HeartbeatTopic returns the heartbeat topic, falling back to mqtt.topic.
func (c *Config) HeartbeatTopic() string {
	if c.Heartbeat.Topic != "" {
		return c.Heartbeat.Topic
	}
	return c.MQTT.Topic
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

package config

import "time"

// AgentConfig is the root configuration for a geolink agent.
type AgentConfig struct {
	Link    LinkConfig    `yaml:"link"`
	Auth    AuthConfig    `yaml:"auth"`
	Network NetworkConfig `yaml:"network"`
	Journal JournalConfig `yaml:"journal"`
	Status  StatusConfig  `yaml:"status"`
	Log     LogConfig     `yaml:"log"`
}

// LinkConfig holds the persistent connection settings.
type LinkConfig struct {
	URL                  string        `yaml:"url"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMultiplier  float64       `yaml:"reconnect_multiplier"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	JitterMin            float64       `yaml:"jitter_min"`
	JitterMax            float64       `yaml:"jitter_max"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	SendBuffer           int           `yaml:"send_buffer"`
}

// AuthConfig holds handshake signing credentials. Both fields or neither.
type AuthConfig struct {
	KeyID          string `yaml:"key_id"`           // GEOLINK-ACCESS-KEY header value
	PrivateKeyPath string `yaml:"private_key_path"` // Path to RSA private key PEM file
}

// Enabled reports whether handshake signing is configured.
func (a AuthConfig) Enabled() bool {
	return a.KeyID != "" || a.PrivateKeyPath != ""
}

// NetworkConfig configures the reachability probe.
type NetworkConfig struct {
	ProbeAddress  string        `yaml:"probe_address"` // host:port; empty derives it from link.url
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// JournalConfig holds the inbound message journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StatusConfig holds the HTTP status server settings.
type StatusConfig struct {
	Port int `yaml:"port"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

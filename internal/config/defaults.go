package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPingInterval         = 10 * time.Second
	DefaultReconnectBaseDelay   = 3 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultReconnectMultiplier  = 1.5
	DefaultMaxReconnectAttempts = 5
	DefaultJitterMin            = 0.8
	DefaultJitterMax            = 1.2
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultSendBuffer           = 256
	DefaultProbeInterval        = 5 * time.Second
	DefaultProbeTimeout         = 2 * time.Second
	DefaultBatchSize            = 100
	DefaultFlushInterval        = 2 * time.Second
	DefaultBufferSize           = 1024
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultStatusPort           = 8090
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

func (c *AgentConfig) applyDefaults() {
	// Link defaults
	if c.Link.PingInterval == 0 {
		c.Link.PingInterval = DefaultPingInterval
	}
	if c.Link.ReconnectBaseDelay == 0 {
		c.Link.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Link.ReconnectMaxDelay == 0 {
		c.Link.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Link.ReconnectMultiplier == 0 {
		c.Link.ReconnectMultiplier = DefaultReconnectMultiplier
	}
	if c.Link.MaxReconnectAttempts == 0 {
		c.Link.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Link.JitterMin == 0 && c.Link.JitterMax == 0 {
		c.Link.JitterMin = DefaultJitterMin
		c.Link.JitterMax = DefaultJitterMax
	}
	if c.Link.HandshakeTimeout == 0 {
		c.Link.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Link.WriteTimeout == 0 {
		c.Link.WriteTimeout = DefaultWriteTimeout
	}
	if c.Link.SendBuffer == 0 {
		c.Link.SendBuffer = DefaultSendBuffer
	}

	// Network defaults
	if c.Network.ProbeInterval == 0 {
		c.Network.ProbeInterval = DefaultProbeInterval
	}
	if c.Network.ProbeTimeout == 0 {
		c.Network.ProbeTimeout = DefaultProbeTimeout
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Journal.Database)

	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

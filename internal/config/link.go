package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/rickgao/geolink/internal/connection"
)

// ManagerConfig converts the link section into connection.ManagerConfig.
func (l LinkConfig) ManagerConfig() connection.ManagerConfig {
	cfg := connection.DefaultManagerConfig()
	cfg.URL = l.URL
	cfg.PingInterval = l.PingInterval
	cfg.MaxAttempts = l.MaxReconnectAttempts
	cfg.Backoff = connection.Backoff{
		Base:       l.ReconnectBaseDelay,
		Max:        l.ReconnectMaxDelay,
		Multiplier: l.ReconnectMultiplier,
		JitterMin:  l.JitterMin,
		JitterMax:  l.JitterMax,
	}
	if l.HandshakeTimeout > 0 {
		cfg.ConnectTimeout = l.HandshakeTimeout
	}
	return cfg
}

// WebsocketConfig converts the link section into connection.WebsocketConfig.
// Handshake headers are attached by the caller.
func (l LinkConfig) WebsocketConfig() connection.WebsocketConfig {
	return connection.WebsocketConfig{
		HandshakeTimeout: l.HandshakeTimeout,
		WriteTimeout:     l.WriteTimeout,
		SendBuffer:       l.SendBuffer,
	}
}

// ProbeTarget returns the address the reachability probe dials: network.probe_address,
// or the host of link.url with the scheme's default port.
func (c *AgentConfig) ProbeTarget() (string, error) {
	if c.Network.ProbeAddress != "" {
		return c.Network.ProbeAddress, nil
	}

	u, err := url.Parse(c.Link.URL)
	if err != nil {
		return "", fmt.Errorf("link.url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("link.url has no host: %q", c.Link.URL)
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "wss" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// ParseLevel maps a log.level value to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}

package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *AgentConfig) Validate() error {
	if err := c.Link.validate(); err != nil {
		return err
	}

	if (c.Auth.KeyID == "") != (c.Auth.PrivateKeyPath == "") {
		return errors.New("auth.key_id and auth.private_key_path must be set together")
	}

	if c.Network.ProbeInterval <= 0 {
		return errors.New("network.probe_interval must be > 0")
	}
	if c.Network.ProbeTimeout <= 0 {
		return errors.New("network.probe_timeout must be > 0")
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
	}

	if c.Status.Port < 1 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func (l *LinkConfig) validate() error {
	if l.URL == "" {
		return errors.New("link.url is required")
	}
	u, err := url.Parse(l.URL)
	if err != nil {
		return fmt.Errorf("link.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("link.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if l.ReconnectBaseDelay <= 0 {
		return errors.New("link.reconnect_base_delay must be > 0")
	}
	if l.ReconnectMaxDelay < l.ReconnectBaseDelay {
		return fmt.Errorf("link.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			l.ReconnectMaxDelay, l.ReconnectBaseDelay)
	}
	if l.ReconnectMultiplier < 1 {
		return errors.New("link.reconnect_multiplier must be >= 1")
	}
	if l.MaxReconnectAttempts < 0 {
		return errors.New("link.max_reconnect_attempts must be >= 0")
	}
	if l.JitterMin <= 0 || l.JitterMax < l.JitterMin {
		return fmt.Errorf("link jitter range [%v, %v) is invalid", l.JitterMin, l.JitterMax)
	}
	if l.SendBuffer < 1 {
		return errors.New("link.send_buffer must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

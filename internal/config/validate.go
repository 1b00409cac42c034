package config

import (
	"errors"
	"fmt"
	"net/url"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoints[%d].name is required", i)
		}
		if seen[ep.Name] {
			return fmt.Errorf("endpoints[%d].name %q is duplicated", i, ep.Name)
		}
		seen[ep.Name] = true

		u, err := url.Parse(ep.URL)
		if err != nil {
			return fmt.Errorf("endpoints[%d].url: %w", i, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("endpoints[%d].url must use ws or wss, got %q", i, u.Scheme)
		}
	}

	if c.Pool.MaxRetries < 0 {
		return errors.New("pool.max_retries must be >= 0")
	}
	if c.Pool.ReconnectBaseDelay <= 0 {
		return errors.New("pool.reconnect_base_delay must be > 0")
	}
	if c.Pool.ReconnectMaxDelay < c.Pool.ReconnectBaseDelay {
		return fmt.Errorf("pool.reconnect_max_delay (%v) cannot be below reconnect_base_delay (%v)",
			c.Pool.ReconnectMaxDelay, c.Pool.ReconnectBaseDelay)
	}
	if c.Pool.HandshakeTimeout <= 0 {
		return errors.New("pool.handshake_timeout must be > 0")
	}
	if c.Pool.WriteTimeout <= 0 {
		return errors.New("pool.write_timeout must be > 0")
	}
	if c.Pool.PingInterval <= 0 {
		return errors.New("pool.ping_interval must be > 0")
	}
	if c.Pool.PingTimeout <= 0 {
		return errors.New("pool.ping_timeout must be > 0")
	}
	if c.Pool.BufferSize < 1 {
		return errors.New("pool.buffer_size must be >= 1")
	}

	if c.Console.BufferSize < 1 {
		return errors.New("console.buffer_size must be >= 1")
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}

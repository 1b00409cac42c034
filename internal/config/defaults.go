package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultMaxRetries         = 5
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultBufferSize         = 1000
	DefaultConsoleBufferSize  = 1024
	DefaultLogLevel           = "info"
)

func (c *Config) applyDefaults() {
	if c.Pool.MaxRetries == 0 {
		c.Pool.MaxRetries = DefaultMaxRetries
	}
	if c.Pool.ReconnectBaseDelay == 0 {
		c.Pool.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Pool.ReconnectMaxDelay == 0 {
		c.Pool.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Pool.HandshakeTimeout == 0 {
		c.Pool.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Pool.WriteTimeout == 0 {
		c.Pool.WriteTimeout = DefaultWriteTimeout
	}
	if c.Pool.PingInterval == 0 {
		c.Pool.PingInterval = DefaultPingInterval
	}
	if c.Pool.PingTimeout == 0 {
		c.Pool.PingTimeout = DefaultPingTimeout
	}
	if c.Pool.BufferSize == 0 {
		c.Pool.BufferSize = DefaultBufferSize
	}

	if c.Console.BufferSize == 0 {
		c.Console.BufferSize = DefaultConsoleBufferSize
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

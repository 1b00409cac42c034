package config

import "time"

// Config is the root configuration for wstap.
type Config struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Auth      AuthConfig       `yaml:"auth"`
	Pool      PoolConfig       `yaml:"pool"`
	Console   ConsoleConfig    `yaml:"console"`
	Log       LogConfig        `yaml:"log"`
}

// EndpointConfig is one event stream to tail. Name doubles as the
// pool's connection category.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// AuthConfig holds the bearer token sent on every handshake.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// PoolConfig holds connection pool and transport settings.
type PoolConfig struct {
	MaxRetries         int           `yaml:"max_retries"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// ConsoleConfig holds console entry buffering settings.
type ConsoleConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

package config

import "time"

// Config is the root configuration for the switchboard coordinator.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Auth     AuthConfig     `yaml:"auth,omitempty"`
	Sessions SessionsConfig `yaml:"sessions,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// GatewayConfig controls the WebSocket gateway server.
type GatewayConfig struct {
	Port           int       `yaml:"port,omitempty"`
	Bind           string    `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string    `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string  `yaml:"allowedOrigins,omitempty"`
	TLS            TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig configures TLS for the gateway.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// AuthConfig configures identity-token verification.
type AuthConfig struct {
	Secret string `yaml:"secret,omitempty"` // supports ${ENV_VAR}
	Issuer string `yaml:"issuer,omitempty"`
}

// SessionsConfig controls session lifetime and the ringing timer.
type SessionsConfig struct {
	MaxLifetimeMinutes   int `yaml:"maxLifetimeMinutes,omitempty"`
	SweepIntervalSeconds int `yaml:"sweepIntervalSeconds,omitempty"`
	RingingDelayMs       int `yaml:"ringingDelayMs,omitempty"`
}

// MaxLifetime returns the maximum session lifetime as a duration.
func (s SessionsConfig) MaxLifetime() time.Duration {
	return time.Duration(s.MaxLifetimeMinutes) * time.Minute
}

// SweepInterval returns the reaper sweep interval as a duration.
func (s SessionsConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// RingingDelay returns the dial→ringing delay as a duration.
func (s SessionsConfig) RingingDelay() time.Duration {
	return time.Duration(s.RingingDelayMs) * time.Millisecond
}

// StorageConfig controls the durable call-record store.
type StorageConfig struct {
	Path string `yaml:"path,omitempty"` // SQLite database path; ":memory:" for tests
}

// RedisConfig configures the optional presence mirror. Presence is
// disabled when Addr is empty.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"` // supports ${ENV_VAR}
	DB       int    `yaml:"db,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}

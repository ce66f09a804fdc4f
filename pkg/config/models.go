package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Presence  PresenceConfig
	Database  DatabaseConfig
	Queue     QueueConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address        string
	Auth           AuthConfig
	DuplicateLogin DuplicateLoginConfig `mapstructure:"duplicateLogin"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwtSecret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DuplicateLoginConfig controls what happens when a user who is already
// online opens a second connection.
type DuplicateLoginConfig struct {
	Mode string `mapstructure:"mode"` // "replace" or "reject"
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

type PresenceConfig struct {
	// Window during which repeated typing events for the same room are
	// suppressed server-side.
	TypingThrottle time.Duration `mapstructure:"typingThrottle"`
	// Upper bound on the best-effort durable status write.
	StatusWriteTimeout time.Duration `mapstructure:"statusWriteTimeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type QueueConfig struct {
	RedisAddr   string `mapstructure:"redisAddr"`
	Concurrency int    `mapstructure:"concurrency"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	DuplicateLoginReplace = "replace"
	DuplicateLoginReject  = "reject"
)

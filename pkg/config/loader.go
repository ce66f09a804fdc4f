package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("server.auth.timeout", "5s")
	v.SetDefault("server.duplicateLogin.mode", DuplicateLoginReplace)
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.writeTimeout", "10s")
	v.SetDefault("presence.typingThrottle", "2s")
	v.SetDefault("presence.statusWriteTimeout", "3s")
	v.SetDefault("database.dsn", "connect:connect@tcp(127.0.0.1:3306)/connect?parseTime=true")
	v.SetDefault("queue.redisAddr", "127.0.0.1:6379")
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("log.level", "info")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("CONNECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch cfg.Server.DuplicateLogin.Mode {
	case DuplicateLoginReplace, DuplicateLoginReject:
	default:
		return nil, fmt.Errorf("invalid server.duplicateLogin.mode '%s'", cfg.Server.DuplicateLogin.Mode)
	}

	return &cfg, nil
}

package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Chat      ChatConfig
	Store     StoreConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerIP int    `mapstructure:"maxPerIP"`
	Mode     string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	SendBuffer   int           `mapstructure:"sendBuffer"`
}

type ChatConfig struct {
	MaxMessageLength int             `mapstructure:"maxMessageLength"`
	BlockedWords     []string        `mapstructure:"blockedWords"`
	TypingTTL        time.Duration   `mapstructure:"typingTTL"`
	JanitorInterval  time.Duration   `mapstructure:"janitorInterval"`
	RateLimit        RateLimitConfig `mapstructure:"rateLimit"`
}

type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refillInterval"`
}

type StoreConfig struct {
	// PostgresDSN enables the durable message store when non-empty.
	PostgresDSN string `mapstructure:"postgresDSN"`
	// RedisAddr enables the presence mirror when non-empty.
	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Addr            string        `env:"CHAT_ADDR,default=:8080"`
	StoreDriver     string        `env:"STORE_DRIVER,default=postgres" validate:"oneof=postgres mongo memory"`
	DatabaseDSN     string        `env:"DB_DSN" validate:"required_if=StoreDriver postgres"`
	MongoURI        string        `env:"MONGO_URI" validate:"required_if=StoreDriver mongo"`
	MongoDatabase   string        `env:"MONGO_DATABASE,default=chat"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL,default=5m" validate:"gte=0"`
	JWTSecret       string        `env:"JWT_SECRET,required=true" validate:"required"`
	MaxBodyLength   int           `env:"MAX_BODY_LENGTH,default=2000" validate:"gt=0"`
	PersistTimeout  time.Duration `env:"PERSIST_TIMEOUT,default=5s" validate:"gt=0"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

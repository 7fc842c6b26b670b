package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
	MockConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetPort() string
}

type mainConfig struct {
	EnvVars
	API
	Storage
	Mock
}

var _ Config = mainConfig{}

// New loads an optional .env file and parses the environment into a Config.
func New() (Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config.New] parse environment: %w", err)
	}
	return c, nil
}

// MustNew is New for program start-up.
func MustNew() Config {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

package config

import (
	"fmt"
	"strings"
)

type EnvVars struct {
	AppName  string `env:"APP_NAME" envDefault:"Tenant Session"`
	Env      string `env:"ENV" envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Port     string `env:"PORT" envDefault:"8000"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return strings.ToLower(e.LogLevel)
}

// GetPort returns the listen address, always prefixed with ':'
func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8000"
	}
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

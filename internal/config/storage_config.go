package config

import "strings"

// Storage backends for the token store
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

type StorageConfig interface {
	GetStorageBackend() string
	GetStorageFile() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
}

type Storage struct {
	Backend       string `env:"STORAGE_BACKEND" envDefault:"file"`
	File          string `env:"STORAGE_FILE" envDefault:"./data/session.json"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"tenant-session"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() string {
	return strings.ToLower(s.Backend)
}

func (s Storage) GetStorageFile() string {
	return s.File
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Storage) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Storage) GetRedisDB() int {
	return s.RedisDB
}

func (s Storage) GetRedisPrefix() string {
	return s.RedisPrefix
}

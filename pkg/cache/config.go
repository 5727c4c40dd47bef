package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the connection part of the redis config block.
type RedisConfig struct {
	Addr         string        `yaml:"addr" default:"localhost:6379" validate:"hostname_port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	PoolSize     int           `yaml:"pool_size" default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	// Prefix namespaces every key, so several symbols can share one db.
	Prefix string `yaml:"prefix" default:"liqpool"`
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		PoolTimeout:  c.PoolTimeout,
		MinIdleConns: c.MinIdleConns,
	}
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize caps the number of keys; the least recently read key is
// evicted first.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(mc *MemoryCache) { mc.maxSize = size }
}

// WithMemoryCleanup sets the janitor interval. Zero disables the janitor and
// expired keys are then dropped lazily on read.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(mc *MemoryCache) { mc.cleanup = interval }
}

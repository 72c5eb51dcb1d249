package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/RajVeer36399/tmdb-proxy/pkg/cache"
	"github.com/RajVeer36399/tmdb-proxy/pkg/client"
	"github.com/RajVeer36399/tmdb-proxy/pkg/config"
	"github.com/RajVeer36399/tmdb-proxy/pkg/logging"
	"github.com/RajVeer36399/tmdb-proxy/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// environment is the process surface the commands read from.
type environment struct {
	getenv    func(string) string
	logOutput io.Writer
}

func osEnvironment() *environment {
	return &environment{getenv: os.Getenv, logOutput: os.Stderr}
}

type commandContext struct {
	env     *environment
	envFile *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(env *environment, envFile *string) *commandContext {
	return &commandContext{env: env, envFile: envFile}
}

// ensureConfig loads the env file and the configuration once per process.
func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		if c.envFile != nil {
			if err := config.LoadEnvFile(strings.TrimSpace(*c.envFile)); err != nil {
				c.configErr = err
				return
			}
		}
		c.config, c.configErr = config.Load(c.env.getenv)
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cfg config.Config, component string) zerolog.Logger {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: c.env.logOutput,
	})
	return logging.NewLogger(component)
}

// openStore opens the configured backend. With lock set, the file backend is
// guarded by the fetch lock for the lifetime of the store. The returned
// close function must always be called.
func openStore(ctx context.Context, cfg config.Config, lock bool) (cache.Store, func() error, error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		return cache.NewRedisStore(rdb, cache.DefaultRedisPrefix), rdb.Close, nil

	default:
		store, err := cache.NewFileStore(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		if !lock {
			return store, func() error { return nil }, nil
		}
		l, err := cache.TryLock(store.Dir())
		if err != nil {
			return nil, nil, err
		}
		return store, l.Unlock, nil
	}
}

// redisOptions accepts either a host:port address or a redis:// URL.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

func newTMDbClient(cfg config.Config) (*client.Client, error) {
	clientCfg := client.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.Language = cfg.Language
	clientCfg.Timeout = cfg.HTTPTimeout
	clientCfg.Limiter = ratelimit.NewLimiter(cfg.RateLimitRPS)
	return client.New(clientCfg)
}

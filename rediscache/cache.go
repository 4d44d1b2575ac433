// Package rediscache keeps the latest telemetry record in redis and
// publishes every record on a channel.
package rediscache

import (
	"context"
	"encoding/json"
	"github.com/go-redis/redis/v8"
	"github.com/jd3nn1s/seanboard"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync"
	"time"
)

const (
	DefaultPrefix  = "seanboard"
	DefaultTTL     = 5 * time.Second
	DefaultTimeout = 200 * time.Millisecond
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	Timeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// to allow testing
var newClient = func(opts *redis.Options) redisClient {
	return redis.NewClient(opts)
}

type Cache struct {
	cfg    Config
	client redisClient

	mu     sync.Mutex
	closed bool
}

// New connects to redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	cfg.applyDefaults()
	client := newClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "unable to connect to redis at %s", cfg.Addr)
	}
	log.WithField("addr", cfg.Addr).Info("connected to redis")

	return &Cache{cfg: cfg, client: client}, nil
}

func (c *Cache) LatestKey() string {
	return c.cfg.Prefix + ":latest"
}

func (c *Cache) UpdatesChannel() string {
	return c.cfg.Prefix + ":updates"
}

func (c *Cache) Name() string {
	return "redis"
}

func (c *Cache) Push(rec seanboard.TelemetryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Wrap(seanboard.ErrDisconnected, "redis cache closed")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "unable to encode record")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	if err := c.client.Set(ctx, c.LatestKey(), data, c.cfg.TTL).Err(); err != nil {
		return errors.Wrapf(err, "unable to store %s", c.LatestKey())
	}
	if err := c.client.Publish(ctx, c.UpdatesChannel(), data).Err(); err != nil {
		return errors.Wrapf(err, "unable to publish on %s", c.UpdatesChannel())
	}
	return nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

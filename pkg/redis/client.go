// Package redis provides the cross-process window lock.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

// Config holds Redis connection configuration. An empty Host disables locking.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c Config) Enabled() bool {
	return c.Host != ""
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is the connection the Locker runs its scripts on.
type Client struct {
	rdb    *redis.Client
	addr   string
	logger ectologger.Logger
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: connectTimeout,
	})
	c := Wrap(rdb, logger)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	logger.WithContext(ctx).WithField("db", cfg.DB).Infof("Connected to Redis at %s", c.addr)
	return c, nil
}

// Wrap uses an existing go-redis client.
func Wrap(rdb *redis.Client, logger ectologger.Logger) *Client {
	return &Client{
		rdb:    rdb,
		addr:   rdb.Options().Addr,
		logger: logger,
	}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks that Redis answers; it backs the optional health check.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis at %s unreachable: %w", c.addr, err)
	}
	return nil
}

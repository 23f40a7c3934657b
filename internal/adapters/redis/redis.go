// Package redis implements the optional distributed mirror tier for the
// Entity Cache (C2), grounded on the teacher's mredis.RedisConnection
// lazy-connect pattern.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/access-control/acs-core/internal/domain/entity"
	"github.com/access-control/acs-core/internal/telemetry"
)

// Connection is a hub which deals with a single redis connection.
type Connection struct {
	URL    string
	Logger telemetry.Logger

	client    *goredis.Client
	Connected bool
}

// Connect opens and pings the redis client, keeping it as a singleton.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to redis...")

	opts, err := goredis.ParseURL(c.URL)
	if err != nil {
		return err
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return err
	}

	c.client = client
	c.Connected = true

	c.Logger.Info("connected to redis")

	return nil
}

// GetClient returns the client, connecting lazily if necessary.
func (c *Connection) GetClient(ctx context.Context) (*goredis.Client, error) {
	if c.client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client, nil
}

// Mirror implements cache.Mirror over a redis.Client, keyed by
// "acs:principal:<id>" per tenant process.
type Mirror struct {
	conn *Connection
}

// NewMirror returns a Mirror bound to conn.
func NewMirror(conn *Connection) *Mirror {
	return &Mirror{conn: conn}
}

// Set writes principal to redis with the given TTL, best-effort.
func (m *Mirror) Set(principal *entity.Principal, ttl time.Duration) error {
	client, err := m.conn.GetClient(context.Background())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(principal)
	if err != nil {
		return err
	}

	return client.Set(context.Background(), key(principal.ID), payload, ttl).Err()
}

// Invalidate deletes the mirrored entry for id.
func (m *Mirror) Invalidate(id int64) error {
	client, err := m.conn.GetClient(context.Background())
	if err != nil {
		return err
	}

	return client.Del(context.Background(), key(id)).Err()
}

func key(id int64) string {
	return "acs:principal:" + strconv.FormatInt(id, 10)
}

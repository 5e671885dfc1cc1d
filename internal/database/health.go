package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Health reports the reachability of the backing stores.
type Health struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// OK reports whether every store answered.
func (h Health) OK() bool {
	return h.Postgres == StatusUp && h.Redis == StatusUp
}

// Check pings PostgreSQL and Redis with a short timeout each.
func Check(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client) Health {
	h := Health{Postgres: StatusDown, Redis: StatusDown}

	pgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if pool != nil && pool.Ping(pgCtx) == nil {
		h.Postgres = StatusUp
	}

	rCtx, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	if rdb != nil && rdb.Ping(rCtx).Err() == nil {
		h.Redis = StatusUp
	}
	return h
}

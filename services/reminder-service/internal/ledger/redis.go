package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores one SET NX key per entry. Keys expire after ttl so a missed
// reset cannot suppress reminders forever.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "reminders:ledger"
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) redisKey(appointmentID, label string) string {
	return r.prefix + ":" + key(appointmentID, label)
}

func (r *Redis) Claim(ctx context.Context, appointmentID, label string) (bool, error) {
	return r.rdb.SetNX(ctx, r.redisKey(appointmentID, label), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
}

func (r *Redis) Contains(ctx context.Context, appointmentID, label string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.redisKey(appointmentID, label)).Result()
	return n > 0, err
}

func (r *Redis) Reset(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+":*", 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.rdb.Unlink(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.rdb.Unlink(ctx, batch...).Err()
	}
	return nil
}

func (r *Redis) ReadyCheck() func(context.Context) error {
	return func(ctx context.Context) error {
		return r.rdb.Ping(ctx).Err()
	}
}

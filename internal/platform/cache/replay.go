package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/logger"
)

const keyPrefix = "attendance:replay:"

// Redis は冪等キー -> 台帳結果 のキャッシュ。台帳(DB)が正で、ここは読み取りの近道
type Redis struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedis(log *logger.Logger, addr string, ttl time.Duration) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{log: log.With("service", "ReplayCache"), rdb: rdb, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// 壊れた値は捨てて台帳を見に行かせる
		r.log.Warn("drop undecodable replay entry", "key", key, "error", err)
		_ = r.rdb.Del(ctx, keyPrefix+key).Err()
		return false, nil
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, keyPrefix+key, raw, r.ttl).Err()
}

func (r *Redis) Close() error { return r.rdb.Close() }

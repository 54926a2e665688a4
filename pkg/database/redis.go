package database

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// InitRedis connects to the Redis server at url. It returns nil when url is
// empty or the server cannot be reached, and callers fall back to in-process
// state.
func InitRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("invalid REDIS_URL, continuing without redis: %v", err)
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis unreachable at %s, continuing without redis: %v", opts.Addr, err)
		_ = client.Close()
		return nil
	}
	log.Printf("connected to redis at %s", opts.Addr)
	return client
}

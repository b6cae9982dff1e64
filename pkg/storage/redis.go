package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/gridcast/pkg/features"
)

const redisPushChunk = 500

// swapScript renames the staging keys over the target keys in one step.
// KEYS: staging meta, staging rows, target meta, target rows.
var swapScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return redis.error_reply('staging table does not exist')
end
redis.call('DEL', KEYS[3], KEYS[4])
redis.call('RENAME', KEYS[1], KEYS[3])
if redis.call('EXISTS', KEYS[2]) == 1 then
  redis.call('RENAME', KEYS[2], KEYS[4])
end
return 1
`)

// RedisSink stores each table as a list of JSON documents under
// "{prefix}:table:{name}:rows", with a marker key "{prefix}:table:{name}:meta"
// recording that the table exists.
type RedisSink struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
}

// NewRedisSink connects to Redis and verifies the connection.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - prefix: key prefix (empty uses "gridcast")
func NewRedisSink(ctx context.Context, addr, password string, db int, prefix string) (*RedisSink, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	return newRedisSink(ctx, &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}, prefix)
}

func newRedisSink(ctx context.Context, opts *redis.Options, prefix string) (*RedisSink, error) {
	if prefix == "" {
		prefix = "gridcast"
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 10 * time.Second
	opts.WriteTimeout = 10 * time.Second
	opts.PoolSize = 10

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisSink{client: client, prefix: prefix}, nil
}

// newRedisFromConfig accepts either "url" (redis:// or rediss://) or
// "addr"/"password"/"db", plus an optional "prefix".
func newRedisFromConfig(ctx context.Context, config map[string]string) (*RedisSink, error) {
	if u := config["url"]; u != "" {
		opts, err := redis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return newRedisSink(ctx, opts, config["prefix"])
	}

	db := 0
	if v := config["db"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q: %w", v, err)
		}
		db = n
	}
	addr := config["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}
	return NewRedisSink(ctx, addr, config["password"], db, config["prefix"])
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) metaKey(name string) string {
	return fmt.Sprintf("%s:table:%s:meta", r.prefix, name)
}

func (r *RedisSink) rowsKey(name string) string {
	return fmt.Sprintf("%s:table:%s:rows", r.prefix, name)
}

func (r *RedisSink) DropIfExists(ctx context.Context, name string) error {
	if err := validTableName(name); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.metaKey(name), r.rowsKey(name)).Err(); err != nil {
		return fmt.Errorf("failed to drop table %q: %w", name, err)
	}
	return nil
}

func (r *RedisSink) Create(ctx context.Context, name string) error {
	if err := validTableName(name); err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.metaKey(name), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create table %q: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("table %q already exists", name)
	}
	return nil
}

func (r *RedisSink) InsertBatch(ctx context.Context, name string, recs []features.Record) error {
	if len(recs) == 0 {
		return nil
	}
	n, err := r.client.Exists(ctx, r.metaKey(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to check table %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("table %q does not exist", name)
	}

	key := r.rowsKey(name)
	for start := 0; start < len(recs); start += redisPushChunk {
		end := min(start+redisPushChunk, len(recs))
		values := make([]any, 0, end-start)
		for i := start; i < end; i++ {
			data, err := json.Marshal(recs[i].Document())
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			values = append(values, data)
		}
		if err := r.client.RPush(ctx, key, values...).Err(); err != nil {
			return fmt.Errorf("failed to insert into table %q: %w", name, err)
		}
	}
	return nil
}

// Swap atomically replaces target with staging using a Lua script.
func (r *RedisSink) Swap(ctx context.Context, staging, target string) error {
	keys := []string{r.metaKey(staging), r.rowsKey(staging), r.metaKey(target), r.rowsKey(target)}
	if err := swapScript.Run(ctx, r.client, keys).Err(); err != nil {
		return fmt.Errorf("failed to swap %q into %q: %w", staging, target, err)
	}
	return nil
}

func (r *RedisSink) Rows(ctx context.Context, name string) ([]map[string]any, error) {
	n, err := r.client.Exists(ctx, r.metaKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check table %q: %w", name, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("table %q does not exist", name)
	}

	raw, err := r.client.LRange(ctx, r.rowsKey(name), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read table %q: %w", name, err)
	}
	rows := make([]map[string]any, 0, len(raw))
	for _, s := range raw {
		var doc map[string]any
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row: %w", err)
		}
		rows = append(rows, doc)
	}
	return rows, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Ping checks the Redis connection health.
func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

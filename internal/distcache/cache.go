package distcache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache is the Redis-backed distributed key-value cache from spec.md
// §4.11: namespace-prefixed keys, optional gzip, and atomic
// read-modify-write ops implemented as Lua scripts so concurrent
// callers across the cluster never race each other, the same
// discipline internal/rategovernor.DistributedGovernor's admitScript
// already uses.
type Cache struct {
	client    goredis.UniversalClient
	namespace string
	format    Format
}

func New(client goredis.UniversalClient, namespace string, format Format) *Cache {
	if format == "" {
		format = FormatJSON
	}
	return &Cache{client: client, namespace: namespace, format: format}
}

func (c *Cache) key(k string) string {
	return fmt.Sprintf("%s:%s", c.namespace, k)
}

func (c *Cache) Get(ctx context.Context, key string, out any) (bool, *CacheError) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	if cerr := unmarshal(c.format, raw, out); cerr != nil {
		return false, cerr
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) *CacheError {
	raw, cerr := marshal(c.format, value)
	if cerr != nil {
		return cerr
	}
	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) *CacheError {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, *CacheError) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return n > 0, nil
}

func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, *CacheError) {
	ttl, err := c.client.TTL(ctx, c.key(key)).Result()
	if err != nil {
		return 0, &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return ttl, nil
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) *CacheError {
	ok, err := c.client.Expire(ctx, c.key(key), ttl).Result()
	if err != nil {
		return &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	if !ok {
		return &CacheError{Message: "key not found", Cause: ErrCauseNotFound}
	}
	return nil
}

// MGet batches several Get calls into a single MGET round-trip, per
// spec.md §4.11's "mget". Keys with no stored value are omitted from
// the returned map, and each value is the raw stored bytes (possibly
// gzip-compressed), not decoded.
func (c *Cache) MGet(ctx context.Context, keys []string) (map[string][]byte, *CacheError) {
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = c.key(k)
	}
	values, err := c.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}

	out := make(map[string][]byte, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

// msetScript atomically sets every key with its own TTL, per spec.md
// §4.11's "mset(ttl) (atomic batch with per-key expiry)". A plain
// Redis MSET has no per-key TTL, so this has to be a script.
var msetScript = goredis.NewScript(`
local n = #KEYS
for i = 1, n do
	if ARGV[i*2] == "0" then
		redis.call("SET", KEYS[i], ARGV[i*2-1])
	else
		redis.call("SET", KEYS[i], ARGV[i*2-1], "PX", ARGV[i*2])
	end
end
return n
`)

type MSetEntry struct {
	Key   string
	Value any
	TTL   time.Duration
}

func (c *Cache) MSet(ctx context.Context, entries []MSetEntry) *CacheError {
	if len(entries) == 0 {
		return nil
	}
	keys := make([]string, len(entries))
	argv := make([]any, 0, len(entries)*2)
	for i, e := range entries {
		raw, cerr := marshal(c.format, e.Value)
		if cerr != nil {
			return cerr
		}
		keys[i] = c.key(e.Key)
		argv = append(argv, raw, e.TTL.Milliseconds())
	}
	if err := msetScript.Run(ctx, c.client, keys, argv...).Err(); err != nil {
		return &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return nil
}

// incrScript atomically increments a counter and applies the TTL only
// while the key has no expiry (on first creation, or after a call that
// passed no TTL), so repeated Incr calls don't keep resetting an
// already-running expiry window.
var incrScript = goredis.NewScript(`
local v = redis.call("INCRBY", KEYS[1], ARGV[1])
if tonumber(redis.call("TTL", KEYS[1])) < 0 and tonumber(ARGV[2]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return v
`)

func (c *Cache) Incr(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, *CacheError) {
	v, err := incrScript.Run(ctx, c.client, []string{c.key(key)}, amount, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return v, nil
}

// getExtendScript atomically reads a value and extends its TTL by a
// fixed amount in one round-trip, per spec.md §4.11's
// "get_extend_ttl(key, extend_by)". A key with no expiry gets
// extendBy as its TTL.
var getExtendScript = goredis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v then
	local ttl = redis.call("PTTL", KEYS[1])
	if ttl < 0 then
		ttl = 0
	end
	redis.call("PEXPIRE", KEYS[1], ttl + tonumber(ARGV[1]))
end
return v
`)

func (c *Cache) GetExtendTTL(ctx context.Context, key string, extendBy time.Duration, out any) (bool, *CacheError) {
	res, err := getExtendScript.Run(ctx, c.client, []string{c.key(key)}, extendBy.Milliseconds()).Result()
	if err == goredis.Nil || res == nil {
		return false, nil
	}
	if err != nil {
		return false, &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	s, ok := res.(string)
	if !ok {
		return false, nil
	}
	if cerr := unmarshal(c.format, []byte(s), out); cerr != nil {
		return false, cerr
	}
	return true, nil
}

// Clear implements spec.md §4.11's clear(pattern): iterates the
// keyspace with a cursor in batches instead of KEYS, so it never
// blocks the server on a large namespace.
func (c *Cache) Clear(ctx context.Context, pattern string) (int, *CacheError) {
	var cursor uint64
	var deleted int
	match := c.key(pattern)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return deleted, &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, &CacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

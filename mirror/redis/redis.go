// Package redis implements a mirror adapter invalidating entries in a
// Redis database which caches responses under the same keys.
//
// To be able to use it, add an anonymous import to your main package:
//
//	import _ "github.com/digineo/purged/mirror/redis"
//
// This registers the "redis://" and "rediss://" adapters. See New()
// for options.
package redis

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/digineo/purged/mirror"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is prepended to cache keys.
const DefaultKeyPrefix = "purged/"

// OpTimeout bounds a single Invalidate or Flush call.
const OpTimeout = 10 * time.Second

// scanCount is the COUNT hint for SCAN during Flush.
const scanCount = 256

func init() {
	mirror.RegisterAdapter("redis", New)
	mirror.RegisterAdapter("rediss", New)
}

type client interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

type invalidator struct {
	client    client
	keyPrefix string
}

// New configures a Redis invalidator. The DSN follows the format
// understood by redis.ParseURL, e.g. "redis://:secret@localhost:6379/2",
// plus one extra parameter:
//
//   - key_prefix=<string> is prepended to every key, by default
//     "purged/". Flush only removes keys carrying this prefix, so it must
//     not be empty.
func New(config *url.URL) (mirror.Invalidator, error) {
	u := *config
	q := u.Query()

	prefix := DefaultKeyPrefix
	if v, ok := q["key_prefix"]; ok {
		if v[0] == "" {
			return nil, fmt.Errorf("redis: key_prefix parameter must not be empty")
		}
		prefix = v[0]
		q.Del("key_prefix")
		u.RawQuery = q.Encode()
	}

	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, err
	}

	return &invalidator{
		client:    redis.NewClient(opts),
		keyPrefix: prefix,
	}, nil
}

func (inv *invalidator) Invalidate(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), OpTimeout)
	defer cancel()

	if err := inv.client.Del(ctx, inv.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete key: %w", err)
	}
	return nil
}

// Flush deletes all keys with the configured prefix. Other keys in the
// same database are left alone.
func (inv *invalidator) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), OpTimeout)
	defer cancel()

	match := escapeGlob(inv.keyPrefix) + "*"
	var cursor uint64
	for {
		keys, next, err := inv.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return fmt.Errorf("redis: failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err = inv.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: failed to delete keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

// Package memcached implements a mirror adapter invalidating entries in
// a Memcached pool which caches responses under the same keys.
//
// To be able to use it, add an anonymous import to your main package:
//
//	import _ "github.com/digineo/purged/mirror/memcached"
//
// This registers the "memcached://" adapter. See New() for options.
package memcached

import (
	"crypto/md5" //nolint:gosec // key shortening only
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/digineo/purged/mirror"
)

// Defaults copied from github.com/bradfitz/gomemcache/memcache for clarity
const (
	DefaultMaxIdleConns = memcache.DefaultMaxIdleConns
	DefaultTimeout      = memcache.DefaultTimeout
)

// DefaultKeyPrefix is prepended to cache keys.
const DefaultKeyPrefix = "purged/"

// maxKeyLength is the Memcached protocol limit.
const maxKeyLength = 250

func init() {
	mirror.RegisterAdapter("memcached", New)
}

type invalidator struct {
	client    client
	keyPrefix string
}

// New configures a Memcached invalidator.
//
// The following URI parameters are understood:
//
//   - addr=<host> adds an additional server to the pool. This option can
//     be specified multiple times.
//   - timeout=<duration> to specify the read/write timeout. Values < 0 are
//     invalid, the zero value is substituted with a default (100ms).
//   - max_idle_conns=<num> specifies the maximum number of idle connections
//     per address. Negative values are invalid, the zero value is
//     substituted with a default (2).
//   - key_prefix=<string> is prepended to every key, by default "purged/".
//
// Keys which are too long or contain characters Memcached does not accept
// (whitespace, control characters) are replaced by their hex encoded MD5
// sum, following the prefix.
func New(config *url.URL) (mirror.Invalidator, error) {
	q := config.Query()

	client, err := newClient(config.Host, q)
	if err != nil {
		return nil, fmt.Errorf("memcached: %w", err)
	}

	inv := &invalidator{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
	}

	if v, ok := q["key_prefix"]; ok {
		if maxLen := maxKeyLength - 2*md5.Size; len(v[0]) > maxLen {
			return nil, fmt.Errorf("memcached: key_prefix parameter must be <= %d characters", maxLen)
		}
		inv.keyPrefix = v[0]
	}

	return inv, nil
}

func (inv *invalidator) Invalidate(key string) error {
	err := inv.client.Delete(inv.key(key))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcached: failed to delete key: %w", err)
	}
	return nil
}

func (inv *invalidator) Flush() error {
	if err := inv.client.FlushAll(); err != nil {
		return fmt.Errorf("memcached: failed to flush: %w", err)
	}
	return nil
}

func (inv *invalidator) key(key string) string {
	k := inv.keyPrefix + key
	if len(k) <= maxKeyLength && legalKey(k) {
		return k
	}
	sum := md5.Sum([]byte(key)) //nolint:gosec
	return inv.keyPrefix + hex.EncodeToString(sum[:])
}

func legalKey(key string) bool {
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

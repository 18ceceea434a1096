package memcached

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

type client interface {
	Delete(key string) error
	FlushAll() error
}

func newClient(host string, params url.Values) (client, error) {
	var hosts []string
	if host != "" {
		hosts = append(hosts, host)
	}
	hosts = append(hosts, params["addr"]...)
	if len(hosts) == 0 {
		return nil, errors.New("no server(s) configured")
	}
	client := memcache.New(hosts...)

	if v := params.Get("timeout"); v != "" {
		t, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout parameter: %w", err)
		}
		if t < 0 {
			return nil, errors.New("negative timeout parameter")
		}
		client.Timeout = t
	} else {
		client.Timeout = DefaultTimeout
	}

	if v := params.Get("max_idle_conns"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid max_idle_conns parameter: %w", err)
		}
		if n < 0 {
			return nil, errors.New("negative max_idle_conns parameter")
		}
		client.MaxIdleConns = n
	} else {
		client.MaxIdleConns = DefaultMaxIdleConns
	}

	return client, nil
}

func parseDuration(s string) (time.Duration, error) {
	// try plain number conversion first
	if val, err := strconv.Atoi(s); err == nil {
		return time.Duration(val) * time.Second, nil
	}
	return time.ParseDuration(s)
}

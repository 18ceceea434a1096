// Package config reads the YAML configuration file describing cache
// zones and purge locations.
//
// Example:
//
//	mirror: memcached://127.0.0.1:11211?key_prefix=www/
//	zones:
//	  - name: www
//	    path: /var/cache/nginx/www
//	    levels: "1:2"
//	    max_size: 10g
//	    async_reads: true
//	    load_on_start: true
//	locations:
//	  - path: /purge
//	    zone: www
//	    key: $scheme$host$1$is_args$args
//	    allow: [127.0.0.1, "::1", 10.0.0.0/8]
//	  - path: /purge-all
//	    zone: www
//	    mode: purge-all
//	    response_type: json
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/digineo/purged/cache"
	"github.com/docker/go-units"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Location modes.
const (
	ModeSingleKey = "single-key"
	ModePurgeAll  = "purge-all"
)

// DefaultKey is used for locations without key template.
const DefaultKey = "$scheme$host$1$is_args$args"

// DefaultMethods are accepted by locations without explicit methods.
var DefaultMethods = []string{"PURGE"}

// Config is the root of the configuration file.
type Config struct {
	Listen    string     `yaml:"listen"`
	Mirror    string     `yaml:"mirror"`
	Zones     []Zone     `yaml:"zones"`
	Locations []Location `yaml:"locations"`
}

// Zone describes a cache storage tree.
type Zone struct {
	Name            string `yaml:"name"`
	Path            string `yaml:"path"`
	Levels          string `yaml:"levels"`
	BlockSize       Size   `yaml:"block_size"`
	MaxSize         Size   `yaml:"max_size"`
	MaxEntries      int    `yaml:"max_entries"`
	AsyncReads      bool   `yaml:"async_reads"`
	ReadConcurrency int64  `yaml:"read_concurrency"`
	LoadOnStart     bool   `yaml:"load_on_start"`
}

// Location describes a purge endpoint.
type Location struct {
	Path         string   `yaml:"path"`
	Zone         string   `yaml:"zone"`
	Key          string   `yaml:"key"`
	Mode         string   `yaml:"mode"`
	Methods      []string `yaml:"methods"`
	Allow        []string `yaml:"allow"`
	ResponseType string   `yaml:"response_type"`
}

// Size is a byte size, written either as plain number or with a unit
// suffix ("512k", "10m", "1g"). Units are binary.
type Size int64

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	n, err := units.RAMInBytes(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = Size(n)
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return units.BytesSize(float64(s)), nil
}

// Load parses and validates a configuration. Unknown fields are
// rejected.
func Load(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Config
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("config: empty configuration")
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads the configuration from path.
func LoadFile(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Load(bytes.NewReader(data))
}

func (c *Config) setDefaults() {
	for i := range c.Locations {
		l := &c.Locations[i]
		if l.Key == "" {
			l.Key = DefaultKey
		}
		if l.Mode == "" {
			l.Mode = ModeSingleKey
		}
		if len(l.Methods) == 0 {
			l.Methods = DefaultMethods
		}
		for j, m := range l.Methods {
			l.Methods[j] = strings.ToUpper(m)
		}
	}
}

// Validate checks the configuration for consistency. It reports all
// problems found, not just the first.
func (c *Config) Validate() (err error) {
	fail := func(format string, args ...interface{}) {
		err = multierr.Append(err, fmt.Errorf("config: "+format, args...))
	}

	if len(c.Zones) == 0 {
		fail("no zones defined")
	}
	zones := make(map[string]bool, len(c.Zones))
	for i, z := range c.Zones {
		switch {
		case z.Name == "":
			fail("zones[%d].name: must not be empty", i)
		case zones[z.Name]:
			fail("zones[%d].name: duplicate zone %q", i, z.Name)
		}
		zones[z.Name] = true

		if z.Path == "" {
			fail("zones[%d].path: must not be empty", i)
		}
		if _, lerr := cache.ParseLevels(z.Levels); lerr != nil {
			fail("zones[%d].levels: %v", i, lerr)
		}
		if z.BlockSize < 0 || z.MaxSize < 0 || z.MaxEntries < 0 || z.ReadConcurrency < 0 {
			fail("zones[%d]: sizes and limits must not be negative", i)
		}
	}

	if len(c.Locations) == 0 {
		fail("no locations defined")
	}
	paths := make(map[string]bool, len(c.Locations))
	for i, l := range c.Locations {
		switch {
		case !strings.HasPrefix(l.Path, "/"):
			fail("locations[%d].path: must start with '/'", i)
		case paths[l.Path]:
			fail("locations[%d].path: duplicate path %q", i, l.Path)
		}
		paths[l.Path] = true

		if !zones[l.Zone] {
			fail("locations[%d].zone: unknown zone %q", i, l.Zone)
		}
		if l.Mode != ModeSingleKey && l.Mode != ModePurgeAll {
			fail("locations[%d].mode: must be %q or %q", i, ModeSingleKey, ModePurgeAll)
		}
		for _, m := range l.Methods {
			if m == "" || strings.ContainsAny(m, " \t/") {
				fail("locations[%d].methods: invalid method %q", i, m)
			}
			if m == http.MethodOptions || m == http.MethodConnect {
				fail("locations[%d].methods: method %s cannot be used for purging", i, m)
			}
		}
	}
	return err
}

package config

import (
	"fmt"
	"strings"

	"github.com/digineo/purged/acl"
	"github.com/digineo/purged/cache"
	"github.com/digineo/purged/internal"
	"github.com/digineo/purged/keytpl"
	"github.com/digineo/purged/mirror"
	"github.com/digineo/purged/purge"
	"github.com/digineo/purged/render"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Route binds a URL path prefix to a purge location.
type Route struct {
	Path     string
	Methods  []string
	Allow    *acl.List
	Response render.Type
	Purge    *purge.Location
}

// Setup holds the runtime objects constructed from a Config.
type Setup struct {
	Zones  []*cache.Zone
	Routes []Route
	Mirror mirror.Invalidator
}

// Build creates zones, routes and the mirror. Zone directories are
// created if missing and must be writable. Zones with load_on_start are
// populated from disk before Build returns.
func (c *Config) Build(fsys afero.Fs, log *zap.Logger) (*Setup, error) {
	s := &Setup{}

	if c.Mirror != "" {
		m, err := mirror.New(c.Mirror)
		if err != nil {
			return nil, fmt.Errorf("config: mirror: %w", err)
		}
		s.Mirror = m
	}

	zones := make(map[string]*cache.Zone, len(c.Zones))
	for _, zc := range c.Zones {
		z, err := zc.build(fsys, log)
		if err != nil {
			return nil, err
		}
		zones[zc.Name] = z
		s.Zones = append(s.Zones, z)
	}

	for i, lc := range c.Locations {
		r, err := lc.build(zones[lc.Zone], s.Mirror, log)
		if err != nil {
			return nil, fmt.Errorf("config: locations[%d]: %w", i, err)
		}
		s.Routes = append(s.Routes, r)
	}
	return s, nil
}

func (zc Zone) build(fsys afero.Fs, log *zap.Logger) (*cache.Zone, error) {
	levels, err := cache.ParseLevels(zc.Levels)
	if err != nil {
		return nil, fmt.Errorf("config: zone %s: %w", zc.Name, err)
	}
	if err = fsys.MkdirAll(zc.Path, 0o700); err != nil {
		return nil, fmt.Errorf("config: zone %s: %w", zc.Name, err)
	}
	if err = internal.EnsureWritable(fsys, zc.Path); err != nil {
		return nil, fmt.Errorf("config: zone %s: %w", zc.Name, err)
	}

	z, err := cache.NewZone(cache.Options{
		Name:            zc.Name,
		Root:            zc.Path,
		Levels:          levels,
		BlockSize:       int64(zc.BlockSize),
		MaxEntries:      zc.MaxEntries,
		MaxSize:         int64(zc.MaxSize),
		AsyncReads:      zc.AsyncReads,
		ReadConcurrency: zc.ReadConcurrency,
		Fs:              fsys,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("config: zone %s: %w", zc.Name, err)
	}

	if zc.LoadOnStart {
		if _, err = z.Load(); err != nil {
			return nil, fmt.Errorf("config: zone %s: %w", zc.Name, err)
		}
	}
	return z, nil
}

func (lc Location) build(z *cache.Zone, m mirror.Invalidator, log *zap.Logger) (Route, error) {
	tpl, err := keytpl.Compile(lc.Key)
	if err != nil {
		return Route{}, err
	}
	allow, err := acl.Parse(lc.Allow)
	if err != nil {
		return Route{}, err
	}
	rt, err := render.ParseType(strings.ToLower(lc.ResponseType))
	if err != nil {
		return Route{}, err
	}

	return Route{
		Path:     lc.Path,
		Methods:  lc.Methods,
		Allow:    allow,
		Response: rt,
		Purge: &purge.Location{
			Cache:    z,
			Key:      tpl,
			PurgeAll: lc.Mode == ModePurgeAll,
			Mirror:   m,
			Log:      log.With(zap.String("location", lc.Path)),
		},
	}, nil
}

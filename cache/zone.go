// Package cache implements an on-disk response cache zone: a storage tree
// of artifact files plus an in-memory index accounting for them.
//
// The zone is the collaborator the purge engine works against. It offers
// lookups (which may read artifact headers from disk, optionally in the
// background), the index commit point for purges (TryMarkAbsent), and
// the normal caching path (Put) used to populate entries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/digineo/purged/internal"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultBlockSize is the allocation unit used for size accounting.
const DefaultBlockSize = 4096

// DefaultReadConcurrency limits parallel background header reads.
const DefaultReadConcurrency = 16

// Status is the outcome of a zone lookup.
type Status uint8

const (
	StatusFound Status = iota
	StatusStale
	StatusUpdating
	StatusNotFound
	StatusPending
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusStale:
		return "stale"
	case StatusUpdating:
		return "updating"
	case StatusNotFound:
		return "not found"
	case StatusPending:
		return "pending"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Hit reports whether s refers to an existing entry.
func (s Status) Hit() bool {
	return s == StatusFound || s == StatusStale || s == StatusUpdating
}

// Lookup is the result of Zone.Open. Node is set for hits, Pending for
// StatusPending and Err for StatusError.
type Lookup struct {
	Status  Status
	Node    *Node
	Pending *Pending
	Err     error
}

// Pending tracks a background header read.
type Pending struct {
	done chan struct{}
	res  Lookup
}

// Ready is closed once the read has completed.
func (p *Pending) Ready() <-chan struct{} { return p.done }

// Result blocks until the read has completed and returns its outcome.
func (p *Pending) Result() Lookup {
	<-p.done
	return p.res
}

// Options configure a Zone.
type Options struct {
	Name            string
	Root            string
	Levels          Levels
	BlockSize       int64
	MaxEntries      int
	MaxSize         int64 // bytes, <= 0 means unlimited
	AsyncReads      bool
	ReadConcurrency int64

	Fs    afero.Fs       // defaults to afero.OsFs
	Clock internal.Clock // defaults to internal.SystemClock
}

// Zone is a cache storage tree with its index.
type Zone struct {
	name   string
	root   string
	levels Levels
	bsize  int64
	async  bool

	fs    afero.Fs
	clock internal.Clock
	log   *zap.Logger
	index *Index

	reads singleflight.Group
	sem   *semaphore.Weighted
}

// NewZone creates a zone. It does not touch the storage tree, use Load
// to discover existing artifacts.
func NewZone(opts Options, log *zap.Logger) (*Zone, error) {
	if opts.Root == "" {
		return nil, errors.New("cache: zone root must not be empty")
	}
	if len(opts.Levels) > MaxLevels {
		return nil, fmt.Errorf("cache: too many levels: %v", opts.Levels)
	}
	if log == nil {
		log = zap.NewNop()
	}

	z := &Zone{
		name:   opts.Name,
		root:   filepath.Clean(opts.Root),
		levels: opts.Levels,
		bsize:  opts.BlockSize,
		async:  opts.AsyncReads,
		fs:     opts.Fs,
		clock:  opts.Clock,
		log:    log.With(zap.String("zone", opts.Name)),
	}
	if z.bsize <= 0 {
		z.bsize = DefaultBlockSize
	}
	if z.fs == nil {
		z.fs = afero.OsFs{}
	}
	if z.clock == nil {
		z.clock = internal.SystemClock{}
	}

	var maxBlocks int64
	if opts.MaxSize > 0 {
		maxBlocks = z.blocks(opts.MaxSize)
	}
	z.index = NewIndex(opts.MaxEntries, maxBlocks)

	conc := opts.ReadConcurrency
	if conc <= 0 {
		conc = DefaultReadConcurrency
	}
	z.sem = semaphore.NewWeighted(conc)
	return z, nil
}

// Name returns the zone's name.
func (z *Zone) Name() string { return z.name }

// Root returns the storage root.
func (z *Zone) Root() string { return z.root }

// Fs returns the file system holding the storage tree.
func (z *Zone) Fs() afero.Fs { return z.fs }

// Index exposes the zone's index.
func (z *Zone) Index() *Index { return z.index }

// PathFor returns the backing file path for key.
func (z *Zone) PathFor(key string) string {
	return z.levels.Path(z.root, HashKey(key))
}

// Open looks up key. Known and validated entries are answered from the
// index (after checking that their backing file is still present), other
// entries require reading the artifact header. With AsyncReads enabled,
// that read happens in the background and Open returns StatusPending.
func (z *Zone) Open(key string) Lookup {
	h := HashKey(key)

	if n := z.index.Lookup(h); n != nil {
		st := z.index.Snapshot(n)
		switch {
		case st.Validated && !st.Exists:
			return Lookup{Status: StatusNotFound}
		case st.Validated:
			if st.Key != key {
				return Lookup{Status: StatusNotFound}
			}
			return z.checkPresent(n, st)
		}
	}

	if !z.async {
		return z.load(key, h)
	}
	return z.loadAsync(key, h)
}

// checkPresent verifies n's backing file still exists. Bulk and prefix
// purges remove files without touching the index, the first lookup after
// such a purge marks the node absent.
func (z *Zone) checkPresent(n *Node, st NodeState) Lookup {
	if _, err := z.fs.Stat(n.Path()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if _, ok := z.index.TryMarkAbsent(n); ok {
				z.log.Debug("backing file vanished, node marked absent",
					zap.String("path", n.Path()))
			}
			return Lookup{Status: StatusNotFound}
		}
		return Lookup{Status: StatusError, Err: err}
	}
	return Lookup{Status: z.status(st), Node: n}
}

func (z *Zone) status(st NodeState) Status {
	switch {
	case st.Updating:
		return StatusUpdating
	case internal.Expired(z.clock, st.ValidUntil):
		return StatusStale
	default:
		return StatusFound
	}
}

func (z *Zone) loadAsync(key string, h Hash) Lookup {
	p := &Pending{done: make(chan struct{})}
	ch := z.reads.DoChan(h.String(), func() (interface{}, error) {
		if err := z.sem.Acquire(context.Background(), 1); err != nil {
			return nil, err
		}
		defer z.sem.Release(1)
		return z.load(key, h), nil
	})

	go func() {
		defer close(p.done)
		res := <-ch
		switch {
		case res.Err != nil:
			p.res = Lookup{Status: StatusError, Err: res.Err}
		default:
			p.res = res.Val.(Lookup)
			if p.res.Status.Hit() && z.index.Snapshot(p.res.Node).Key != key {
				// a concurrent read for a colliding key won the flight
				p.res = Lookup{Status: StatusNotFound}
			}
		}
	}()
	return Lookup{Status: StatusPending, Pending: p}
}

// load reads and validates the artifact for key, and records the result
// in the index. The node's generation is taken before the file is opened.
// If a purge commits while the file is read, the result is discarded and
// the lookup reports StatusNotFound.
func (z *Zone) load(key string, h Hash) Lookup {
	path := z.levels.Path(z.root, h)

	n, created := z.index.Insert(h, path)
	st := z.index.Snapshot(n)
	if st.Validated && !st.Exists {
		return Lookup{Status: StatusNotFound}
	}
	forget := func() {
		if created {
			z.index.Forget(n)
		}
	}

	f, err := z.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if !z.index.Forget(n) {
				z.index.TryMarkAbsent(n)
			}
			return Lookup{Status: StatusNotFound}
		}
		forget()
		return Lookup{Status: StatusError, Err: err}
	}
	defer f.Close()

	hdr, err := ReadHeader(f)
	if err != nil {
		forget()
		return Lookup{Status: StatusError, Err: fmt.Errorf("%s: %w", path, err)}
	}
	stored, err := ReadKey(f, hdr)
	if err != nil {
		forget()
		return Lookup{Status: StatusError, Err: fmt.Errorf("%s: %w", path, err)}
	}
	if stored != key {
		z.log.Warn("key hash collision",
			zap.String("key", key),
			zap.String("stored", stored),
			zap.String("path", path))
		forget()
		return Lookup{Status: StatusNotFound}
	}

	info, err := f.Stat()
	if err != nil {
		forget()
		return Lookup{Status: StatusError, Err: err}
	}

	evicted, ok := z.index.ValidateRead(n, st.Gen, key, z.blocks(info.Size()), hdr.ValidUntil())
	if !ok {
		z.log.Debug("entry purged while reading, result discarded",
			zap.String("key", key),
			zap.String("path", path))
		return Lookup{Status: StatusNotFound}
	}
	z.removeEvicted(evicted)
	return Lookup{Status: z.status(z.index.Snapshot(n)), Node: n}
}

// TryMarkAbsent commits the purge of n in the index and returns the
// number of bytes released.
func (z *Zone) TryMarkAbsent(n *Node) (freed int64, ok bool) {
	blocks, ok := z.index.TryMarkAbsent(n)
	return blocks * z.bsize, ok
}

// Put stores an artifact for key. This is the normal caching path: the
// file is written next to its final location and renamed into place,
// then the index is updated. Entries evicted by the update are removed
// from disk.
func (z *Zone) Put(key string, hdr Header, body []byte) error {
	h := HashKey(key)
	path := z.levels.Path(z.root, h)

	n, _ := z.index.Insert(h, path)
	z.index.SetUpdating(n, true)

	size, err := z.write(path, h, key, hdr, body)
	if err != nil {
		z.index.SetUpdating(n, false)
		return err
	}

	z.removeEvicted(z.index.Validate(n, key, z.blocks(size), hdr.ValidUntil()))
	return nil
}

func (z *Zone) write(path string, h Hash, key string, hdr Header, body []byte) (int64, error) {
	dir := filepath.Dir(path)
	if err := z.fs.MkdirAll(dir, 0o700); err != nil {
		return 0, fmt.Errorf("cache: failed to create directory: %w", err)
	}

	tmp, err := afero.TempFile(z.fs, dir, "."+h.String()+".")
	if err != nil {
		return 0, fmt.Errorf("cache: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = z.fs.Remove(tmpName) }

	if err = WriteArtifact(tmp, hdr, key, body); err != nil {
		_ = tmp.Close()
		cleanup()
		return 0, fmt.Errorf("cache: failed to write artifact: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return 0, err
	}
	if err = tmp.Close(); err != nil {
		cleanup()
		return 0, err
	}
	if err = z.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return 0, fmt.Errorf("cache: failed to move artifact into place: %w", err)
	}
	return info.Size(), nil
}

func (z *Zone) removeEvicted(evicted []*Node) {
	for _, n := range evicted {
		if err := z.fs.Remove(n.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			z.log.Error("failed to remove evicted entry",
				zap.String("path", n.Path()),
				zap.Error(err))
		}
	}
}

func (z *Zone) blocks(size int64) int64 {
	return (size + z.bsize - 1) / z.bsize
}

// Stats describe a zone's utilization.
type Stats struct {
	Name       string `json:"name"`
	Root       string `json:"root"`
	Levels     string `json:"levels"`
	Entries    int    `json:"entries"`
	MaxEntries int    `json:"max_entries"`
	Size       int64  `json:"size"`
	MaxSize    int64  `json:"max_size"`
}

// Stats returns the zone's current utilization. Sizes are in bytes.
func (z *Zone) Stats() Stats {
	return Stats{
		Name:       z.name,
		Root:       z.root,
		Levels:     z.levels.String(),
		Entries:    z.index.Len(),
		MaxEntries: int(z.index.entries.max),
		Size:       z.index.TotalBlocks() * z.bsize,
		MaxSize:    z.index.blocks.max * z.bsize,
	}
}

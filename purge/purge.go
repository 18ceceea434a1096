// Package purge removes cached artifacts from a cache zone.
//
// Three operations exist. An exact purge looks up one key in the zone's
// index, commits its removal there and deletes the backing file. A bulk
// purge deletes every file below the storage root. A prefix purge walks
// the storage tree as well, but only deletes files whose stored key
// starts with a given prefix. Bulk and prefix purges work purely on the
// file system and leave the index alone.
//
// A Location binds these operations to a key template, and decides per
// Request which one applies.
package purge

import (
	"github.com/digineo/purged/cache"
	"github.com/spf13/afero"
)

// Cache is the view of a cache zone the purge operations need.
type Cache interface {
	// Open looks up a key, see cache.Zone.Open.
	Open(key string) cache.Lookup

	// TryMarkAbsent commits the removal of n in the index. It fails, if
	// n has already been marked absent.
	TryMarkAbsent(n *cache.Node) (freed int64, ok bool)

	// Root returns the storage root.
	Root() string

	// Fs returns the file system holding the storage tree.
	Fs() afero.Fs
}

var _ Cache = (*cache.Zone)(nil)

// Outcome of a purge.
type Outcome uint8

const (
	Purged Outcome = iota
	NotFound
	InternalError
	Pending
)

func (o Outcome) String() string {
	switch o {
	case Purged:
		return "purged"
	case NotFound:
		return "not_found"
	case InternalError:
		return "internal_error"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Mode selects the purge operation.
type Mode uint8

const (
	Exact Mode = iota
	BulkAll
	Prefix
)

func (m Mode) String() string {
	switch m {
	case Exact:
		return "exact"
	case BulkAll:
		return "bulk"
	case Prefix:
		return "prefix"
	default:
		return "unknown"
	}
}

// Result describes a (possibly unfinished) purge.
type Result struct {
	Outcome Outcome
	Mode    Mode

	// Key is the resolved key, including the wildcard marker for
	// prefix purges.
	Key string

	// Path is the backing file of an exact purge, or the storage root
	// of bulk and prefix purges.
	Path string

	// Raced is set, when a concurrent purge removed the entry first.
	// This is reported as NotFound.
	Raced bool

	// Freed is the number of bytes released from the index.
	Freed int64

	// Removed, Skipped and Failed count files handled by bulk and
	// prefix purges. Removed is 1 for successful exact purges, if the
	// backing file could be deleted.
	Removed int
	Skipped int
	Failed  int

	// Err is set for InternalError outcomes.
	Err error

	// Ready is closed, when a Pending purge may be continued.
	Ready <-chan struct{}
}

package cache

import (
	"io/fs"
	"sort"
	"time"

	"github.com/digineo/purged/walk"
	"go.uber.org/zap"
)

// primeRef extends a Node with a modification time.
type primeRef struct {
	mtime time.Time
	node  *Node
}

// Load discovers existing artifacts below the zone's root and primes the
// index with them, oldest first. Their keys stay unknown until the first
// lookup reads their header. Entries exceeding the zone's quotas are
// evicted and deleted. Files not named and placed like artifacts are
// ignored.
func (z *Zone) Load() (loaded int, err error) {
	var refs []primeRef

	_, err = walk.Walk(z.fs, z.root, z.log, func(path string, info fs.FileInfo) error {
		h, ok := z.levels.Match(z.root, path)
		if !ok {
			z.log.Debug("ignoring foreign file", zap.String("path", path))
			return nil
		}
		refs = append(refs, primeRef{
			mtime: info.ModTime(),
			node: &Node{
				hash:   h,
				path:   path,
				fsSize: z.blocks(info.Size()),
			},
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].mtime.Before(refs[j].mtime)
	})

	prime := make([]*Node, 0, len(refs))
	for _, r := range refs {
		prime = append(prime, r.node)
	}

	evicted := z.index.Prime(prime)
	z.removeEvicted(evicted)

	z.log.Info("cache loaded",
		zap.Int("files", len(prime)),
		zap.Int("evicted", len(evicted)),
		zap.Int64("size", z.index.TotalBlocks()*z.bsize))
	return len(prime) - len(evicted), nil
}

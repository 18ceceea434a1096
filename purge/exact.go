package purge

import (
	"github.com/digineo/purged/cache"
	"github.com/digineo/purged/metrics"
	"go.uber.org/zap"
)

// exact finishes an exact purge for a settled lookup.
func exact(c Cache, log *zap.Logger, key string, lk cache.Lookup) Result {
	res := Result{Mode: Exact, Key: key}

	switch {
	case lk.Status == cache.StatusNotFound:
		res.Outcome = NotFound
		return res
	case !lk.Status.Hit():
		res.Outcome = InternalError
		res.Err = LookupError("cache lookup failed", lk.Err, KV{"status": lk.Status.String()})
		return res
	}

	node := lk.Node
	res.Path = node.Path()

	// The node stays in the index, other requests may still hold it.
	freed, ok := c.TryMarkAbsent(node)
	if !ok {
		log.Debug("entry purged concurrently", zap.String("key", key))
		res.Outcome = NotFound
		res.Raced = true
		return res
	}
	res.Outcome = Purged
	res.Freed = freed

	// The index is authoritative, file errors don't change the outcome.
	if err := c.Fs().Remove(node.Path()); err != nil {
		metrics.FilesDeleteFailed.Inc()
		log.Error("purged entry, but failed to delete its file",
			zap.String("key", key),
			zap.Error(FileDeleteError(node.Path(), err)))
		return res
	}
	metrics.FilesRemoved.Inc()
	res.Removed = 1
	return res
}

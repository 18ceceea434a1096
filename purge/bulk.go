package purge

import (
	"errors"
	"io/fs"

	"github.com/digineo/purged/metrics"
	"github.com/digineo/purged/walk"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// all deletes every regular file below c's storage root.
func all(c Cache, log *zap.Logger) Result {
	fsys := c.Fs()
	res := Result{Mode: BulkAll, Path: c.Root()}

	stats, err := walk.Walk(fsys, res.Path, log, func(path string, _ fs.FileInfo) error {
		return remove(fsys, path, &res)
	})
	return finishWalk(res, stats, err)
}

// remove deletes path. A file which is already gone is not an error,
// concurrent purges may race on the same file.
func remove(fsys afero.Fs, path string, res *Result) error {
	err := fsys.Remove(path)
	switch {
	case err == nil:
		metrics.FilesRemoved.Inc()
		res.Removed++
		return nil
	case errors.Is(err, fs.ErrNotExist):
		res.Skipped++
		return nil
	default:
		metrics.FilesDeleteFailed.Inc()
		return FileDeleteError(path, err)
	}
}

func finishWalk(res Result, stats walk.Stats, err error) Result {
	res.Failed = stats.Failed
	switch {
	case err == nil:
		res.Outcome = Purged
	case errors.Is(err, fs.ErrNotExist):
		// nothing has been cached yet
		res.Outcome = Purged
	default:
		res.Outcome = InternalError
		res.Err = LookupError("cache storage root inaccessible", err, KV{"root": res.Path})
	}
	return res
}

package purge

import (
	"bytes"
	"errors"
	"io/fs"

	"github.com/digineo/purged/cache"
	"github.com/digineo/purged/metrics"
	"github.com/digineo/purged/walk"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// prefix deletes every file below c's storage root whose stored key
// starts with want (compared case-insensitively). An empty prefix
// matches all files.
func prefix(c Cache, log *zap.Logger, want []byte) Result {
	fsys := c.Fs()
	res := Result{Mode: Prefix, Path: c.Root()}

	stats, err := walk.Walk(fsys, res.Path, log, func(path string, _ fs.FileInfo) error {
		if len(want) > 0 {
			ok, err := matchKeyPrefix(fsys, path, want)
			if err != nil {
				metrics.FilesReadFailed.Inc()
				return FileReadError(path, err)
			}
			if !ok {
				res.Skipped++
				return nil
			}
		}
		return remove(fsys, path, &res)
	})
	return finishWalk(res, stats, err)
}

// matchKeyPrefix reads len(want) bytes of the key stored in path. Keys
// shorter than want, and files which vanished, never match.
func matchKeyPrefix(fsys afero.Fs, path string, want []byte) (bool, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	got, err := cache.ReadKeyPrefix(f, len(want))
	switch {
	case errors.Is(err, cache.ErrShortKey):
		return false, nil
	case err != nil:
		return false, err
	}
	return bytes.EqualFold(got, want), nil
}

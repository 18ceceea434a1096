// Package walk traverses a cache storage tree and hands every regular
// file to a caller supplied handler.
//
// Traversal never stops on a per-file problem: handler errors and
// unreadable subdirectories are logged, counted and skipped. Only an
// inaccessible root aborts a walk.
package walk

import (
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Handler is invoked for each regular file below the walk root.
type Handler func(path string, info fs.FileInfo) error

// Stats summarizes a traversal.
type Stats struct {
	Dirs   int // directories entered, including the root
	Files  int // regular files the handler accepted
	Failed int // handler errors and unreadable entries
}

// Walk visits every entry below root. Directories are descended into,
// regular files are passed to handle, everything else is ignored. Sibling
// order is lexical (as reported by afero.Walk), but callers must not rely
// on it.
func Walk(fsys afero.Fs, root string, log *zap.Logger, handle Handler) (Stats, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var stats Stats
	root = filepath.Clean(root)

	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			stats.Failed++
			log.Warn("skipping unreadable entry",
				zap.String("path", path),
				zap.Error(err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch mode := info.Mode(); {
		case mode.IsDir():
			stats.Dirs++
		case mode.IsRegular():
			if herr := handle(path, info); herr != nil {
				stats.Failed++
				log.Warn("file handler failed",
					zap.String("path", path),
					zap.Error(herr))
			} else {
				stats.Files++
			}
		default:
			log.Debug("skipping non-regular file",
				zap.String("path", path),
				zap.Stringer("mode", mode))
		}
		return nil
	})
	return stats, err
}

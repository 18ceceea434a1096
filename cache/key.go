package cache

import (
	"crypto/md5" //nolint:gosec // file naming, not security
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Hash identifies a cache entry. It is the MD5 sum of the literal key and
// determines the name of the backing file.
type Hash [md5.Size]byte

// HashKey computes the Hash for key.
func HashKey(key string) Hash {
	return md5.Sum([]byte(key)) //nolint:gosec
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a hex encoded hash, as found in backing file names.
func ParseHash(s string) (h Hash, err error) {
	if len(s) != 2*len(h) {
		return h, fmt.Errorf("invalid hash length %d", len(s))
	}
	if _, err = hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("invalid hash: %w", err)
	}
	return h, nil
}

// Levels describes the directory hierarchy below a zone's root. Each level
// takes 1 or 2 characters from the end of the hex encoded hash, e.g. with
// levels "1:2", the key hash b7f54b2df7773722d382f4809d65029c is stored as
// "c/29/b7f54b2df7773722d382f4809d65029c".
type Levels []int

// MaxLevels is the maximum depth of a storage hierarchy.
const MaxLevels = 3

// ParseLevels parses colon separated levels like "1:2". The empty
// string yields a flat hierarchy.
func ParseLevels(s string) (Levels, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > MaxLevels {
		return nil, fmt.Errorf("invalid levels %q: at most %d levels allowed", s, MaxLevels)
	}

	levels := make(Levels, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 2 {
			return nil, fmt.Errorf("invalid levels %q: each level must be 1 or 2", s)
		}
		levels = append(levels, n)
	}
	return levels, nil
}

func (l Levels) String() string {
	s := make([]string, len(l))
	for i, n := range l {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ":")
}

// Path returns the backing file path for h below root.
func (l Levels) Path(root string, h Hash) string {
	name := h.String()
	elems := make([]string, 0, len(l)+2)
	elems = append(elems, root)

	end := len(name)
	for _, n := range l {
		elems = append(elems, name[end-n:end])
		end -= n
	}
	return filepath.Join(append(elems, name)...)
}

// Match reports whether path is the location l would assign to a backing
// file named like path's base name, and returns that file's hash.
func (l Levels) Match(root, path string) (Hash, bool) {
	h, err := ParseHash(filepath.Base(path))
	if err != nil {
		return h, false
	}
	return h, l.Path(root, h) == filepath.Clean(path)
}

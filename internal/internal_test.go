package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2022, time.July, 1, 12, 0, 0, 0, time.UTC)
	clock := MockClock(now)

	assert.False(t, Expired(clock, time.Time{}))
	assert.False(t, Expired(clock, now))
	assert.False(t, Expired(clock, now.Add(time.Second)))
	assert.True(t, Expired(clock, now.Add(-time.Second)))
}

func TestEnsureWritable(t *testing.T) {
	t.Parallel()

	fs := afero.OsFs{}
	dir := t.TempDir()

	require.NoError(t, os.Chmod(dir, 0o700))
	assert.NoError(t, EnsureWritable(fs, dir))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.ErrorIs(t, EnsureWritable(fs, file), os.ErrInvalid)

	assert.ErrorIs(t, EnsureWritable(fs, filepath.Join(dir, "missing")), os.ErrNotExist)

	ro := filepath.Join(dir, "ro")
	require.NoError(t, os.Mkdir(ro, 0o500))
	assert.ErrorIs(t, EnsureWritable(fs, ro), os.ErrPermission)
}

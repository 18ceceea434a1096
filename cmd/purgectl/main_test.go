package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/digineo/purged/cache"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const root = "/cache"

func newZone(t *testing.T, keys ...string) (afero.Fs, *cache.Zone) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(root, 0o755))
	z, err := cache.NewZone(cache.Options{
		Root:   root,
		Levels: cache.Levels{1, 2},
		Fs:     fsys,
	}, zap.NewNop())
	require.NoError(t, err)

	for _, key := range keys {
		var h cache.Header
		h.SetValidUntil(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC))
		h.Date = time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC).Unix()
		require.NoError(t, h.SetETag(`"abc"`))
		require.NoError(t, z.Put(key, h, []byte("hello")))
	}
	return fsys, z
}

func TestCmdPath(t *testing.T) {
	var out bytes.Buffer
	err := cmdPath(nil, &out, []string{"-r", root, "-l", "1:2", "http://example.com/"})
	require.NoError(t, err)

	h := cache.HashKey("http://example.com/").String()
	expected := root + "/" + h[31:] + "/" + h[29:31] + "/" + h + "\n"
	assert.Equal(t, expected, out.String())

	assert.ErrorIs(t, cmdPath(nil, &out, nil), errUsage)
	assert.Error(t, cmdPath(nil, &out, []string{"-l", "3", "x"}))
}

func TestCmdInspect(t *testing.T) {
	const key = "http://example.com/index.html"
	fsys, z := newZone(t, key)
	path := z.PathFor(key)

	var out bytes.Buffer
	require.NoError(t, cmdInspect(fsys, &out, []string{path}))

	s := out.String()
	assert.Contains(t, s, "file           "+path+"\n")
	assert.Contains(t, s, "key            "+key+"\n")
	assert.Contains(t, s, "hash           "+cache.HashKey(key).String()+"\n")
	assert.Contains(t, s, "valid until    2030-01-02T03:04:05Z\n")
	assert.Contains(t, s, "date           2022-01-02T03:04:05Z\n")
	assert.Contains(t, s, "last modified  -\n")
	assert.Contains(t, s, `etag           "abc"`+"\n")

	err := cmdInspect(fsys, &out, []string{"/cache/missing"})
	assert.Error(t, err)
}

func TestCmdKeys(t *testing.T) {
	fsys, z := newZone(t,
		"http://example.com/a",
		"http://example.com/b",
		"http://other.example/a",
	)
	require.NoError(t, afero.WriteFile(fsys, root+"/garbage", []byte("xx"), 0o644))

	var out bytes.Buffer
	require.NoError(t, cmdKeys(fsys, &out, []string{"-p", "HTTP://EXAMPLE.COM/", root}))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, out.String(), z.PathFor("http://example.com/a")+"\thttp://example.com/a\n")
	assert.Contains(t, out.String(), z.PathFor("http://example.com/b")+"\thttp://example.com/b\n")

	out.Reset()
	require.NoError(t, cmdKeys(fsys, &out, []string{root}))
	assert.Len(t, bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n")), 3)

	assert.ErrorIs(t, cmdKeys(fsys, &out, nil), errUsage)
}

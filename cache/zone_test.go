package cache

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/digineo/purged/internal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

var cannedTime = time.Date(2022, time.July, 15, 17, 12, 4, 0, time.UTC)

type zoneSuite struct {
	suite.Suite

	fs   afero.Fs
	zone *Zone
}

func TestZone(t *testing.T) {
	suite.Run(t, new(zoneSuite))
}

func (s *zoneSuite) SetupTest() {
	s.fs = afero.NewMemMapFs()
	s.Require().NoError(s.fs.MkdirAll("/cache", 0o755))
	s.zone = s.newZone(Options{})
}

func (s *zoneSuite) newZone(opts Options) *Zone {
	opts.Name = "test"
	opts.Root = "/cache"
	opts.Levels = Levels{1, 2}
	opts.Fs = s.fs
	opts.Clock = internal.MockClock(cannedTime)
	z, err := NewZone(opts, zap.NewNop())
	s.Require().NoError(err)
	return z
}

func (s *zoneSuite) put(z *Zone, key string, size int, validFor time.Duration) {
	var h Header
	h.SetValidUntil(cannedTime.Add(validFor))
	s.Require().NoError(z.Put(key, h, make([]byte, size)))
}

func (s *zoneSuite) exists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	s.Require().NoError(err)
	return ok
}

func (s *zoneSuite) TestPutOpen() {
	s.put(s.zone, "key", 100, time.Hour)

	path := s.zone.PathFor("key")
	s.Assert().True(s.exists(path))
	s.Assert().EqualValues(DefaultBlockSize, s.zone.Stats().Size)

	res := s.zone.Open("key")
	s.Require().Equal(StatusFound, res.Status)
	s.Assert().Equal(path, res.Node.Path())

	s.Assert().Equal(StatusNotFound, s.zone.Open("other").Status)
	s.Assert().Equal(1, s.zone.Stats().Entries)
}

func (s *zoneSuite) TestOpen_stale() {
	s.put(s.zone, "key", 1, -time.Minute)
	s.Assert().Equal(StatusStale, s.zone.Open("key").Status)
}

func (s *zoneSuite) TestOpen_updating() {
	s.put(s.zone, "key", 1, time.Hour)
	res := s.zone.Open("key")
	s.zone.Index().SetUpdating(res.Node, true)
	s.Assert().Equal(StatusUpdating, s.zone.Open("key").Status)
}

func (s *zoneSuite) TestOpen_fromDisk() {
	s.put(s.zone, "key", 5000, time.Hour)

	// a fresh zone on the same tree knows nothing about the entry
	z := s.newZone(Options{})
	res := z.Open("key")
	s.Require().Equal(StatusFound, res.Status)
	s.Assert().EqualValues(2*DefaultBlockSize, z.Stats().Size)
	s.Assert().Equal(1, z.Stats().Entries)
}

func (s *zoneSuite) TestOpen_collision() {
	s.put(s.zone, "key", 1, time.Hour)

	// move the artifact to where "other" would live
	other := s.zone.PathFor("other")
	s.Require().NoError(s.fs.MkdirAll(filepath.Dir(other), 0o755))
	s.Require().NoError(s.fs.Rename(s.zone.PathFor("key"), other))

	z := s.newZone(Options{})
	s.Assert().Equal(StatusNotFound, z.Open("other").Status)
}

func (s *zoneSuite) TestOpen_corrupt() {
	path := s.zone.PathFor("key")
	s.Require().NoError(s.fs.MkdirAll(filepath.Dir(path), 0o755))
	s.Require().NoError(afero.WriteFile(s.fs, path, []byte("garbage"), 0o600))

	res := s.zone.Open("key")
	s.Assert().Equal(StatusError, res.Status)
	s.Assert().ErrorIs(res.Err, ErrCorrupt)
}

func (s *zoneSuite) TestOpen_selfHeal() {
	s.put(s.zone, "key", 1, time.Hour)
	res := s.zone.Open("key")
	s.Require().True(res.Status.Hit())

	s.Require().NoError(s.fs.Remove(res.Node.Path()))
	s.Assert().Equal(StatusNotFound, s.zone.Open("key").Status)
	s.Assert().False(s.zone.Index().Snapshot(res.Node).Exists)
	s.Assert().Zero(s.zone.Stats().Size)
}

func (s *zoneSuite) TestOpen_async() {
	z := s.newZone(Options{AsyncReads: true, ReadConcurrency: 1})
	s.put(s.zone, "key", 1, time.Hour)

	res := z.Open("key")
	s.Require().Equal(StatusPending, res.Status)
	s.Require().NotNil(res.Pending)

	select {
	case <-res.Pending.Ready():
	case <-time.After(5 * time.Second):
		s.FailNow("background read did not complete")
	}
	settled := res.Pending.Result()
	s.Require().Equal(StatusFound, settled.Status)

	// validated entries are answered directly
	s.Assert().Equal(StatusFound, z.Open("key").Status)

	res = z.Open("missing")
	s.Require().Equal(StatusPending, res.Status)
	s.Assert().Equal(StatusNotFound, res.Pending.Result().Status)
}

func (s *zoneSuite) TestTryMarkAbsent() {
	s.put(s.zone, "key", 10000, time.Hour)
	res := s.zone.Open("key")

	freed, ok := s.zone.TryMarkAbsent(res.Node)
	s.Assert().True(ok)
	s.Assert().EqualValues(3*DefaultBlockSize, freed)
	s.Assert().Zero(s.zone.Stats().Size)

	_, ok = s.zone.TryMarkAbsent(res.Node)
	s.Assert().False(ok)
	s.Assert().Equal(StatusNotFound, s.zone.Open("key").Status)

	// the caching path may repopulate the entry
	s.put(s.zone, "key", 1, time.Hour)
	s.Assert().Equal(StatusFound, s.zone.Open("key").Status)
}

func (s *zoneSuite) TestPut_evicts() {
	z := s.newZone(Options{MaxEntries: 2})
	s.put(z, "a", 1, time.Hour)
	s.put(z, "b", 1, time.Hour)
	s.put(z, "c", 1, time.Hour)

	s.Assert().False(s.exists(z.PathFor("a")))
	s.Assert().True(s.exists(z.PathFor("b")))
	s.Assert().True(s.exists(z.PathFor("c")))
	s.Assert().Equal(2, z.Stats().Entries)
}

func (s *zoneSuite) TestPut_readOnly() {
	z := s.newZone(Options{})
	z.fs = afero.NewReadOnlyFs(s.fs)

	err := z.Put("key", Header{}, nil)
	s.Require().Error(err)
	s.Assert().Equal(StatusNotFound, z.Open("key").Status)
}

func (s *zoneSuite) TestLoad() {
	for i := 0; i < 5; i++ {
		s.put(s.zone, fmt.Sprintf("key-%d", i), 1, time.Hour)
	}
	s.Require().NoError(afero.WriteFile(s.fs, "/cache/README", []byte("hi"), 0o644))

	z := s.newZone(Options{MaxEntries: 3})
	loaded, err := z.Load()
	s.Require().NoError(err)
	s.Assert().Equal(3, loaded)
	s.Assert().Equal(3, z.Stats().Entries)
	s.Assert().True(s.exists("/cache/README"))

	remaining := 0
	for i := 0; i < 5; i++ {
		if z.Open(fmt.Sprintf("key-%d", i)).Status == StatusFound {
			remaining++
		}
	}
	s.Assert().Equal(3, remaining)
}

func (s *zoneSuite) TestStats() {
	z := s.newZone(Options{MaxEntries: 10, MaxSize: 1 << 20})
	s.put(z, "key", 1, time.Hour)

	s.Assert().Equal(Stats{
		Name:       "test",
		Root:       "/cache",
		Levels:     "1:2",
		Entries:    1,
		MaxEntries: 10,
		Size:       DefaultBlockSize,
		MaxSize:    1 << 20,
	}, z.Stats())
}

func TestNewZone_invalid(t *testing.T) {
	t.Parallel()

	_, err := NewZone(Options{}, nil)
	assert.Error(t, err)

	_, err = NewZone(Options{Root: "/x", Levels: Levels{1, 1, 1, 1}}, nil)
	assert.Error(t, err)

	z, err := NewZone(Options{Root: "/x/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/x", z.Root())
	assert.IsType(t, afero.OsFs{}, z.Fs())
	assert.Equal(t, "/x/"+HashKey("k").String(), z.PathFor("k"))
}

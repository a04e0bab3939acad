package blobdir

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFresh_Boundary(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		length int64
		mod    time.Time
		rawLen int64
		rawMod time.Time
		want   bool
	}{
		{"identical", 100, base, 100, base, true},
		{"exactly one second ahead", 100, base.Add(time.Second), 100, base, true},
		{"exactly one second behind", 100, base, 100, base.Add(time.Second), true},
		{"just over one second", 100, base.Add(time.Second + time.Millisecond), 100, base, false},
		{"just over one second behind", 100, base, 100, base.Add(time.Second + time.Millisecond), false},
		{"length mismatch", 100, base, 101, base, false},
		{"zero length match", 0, base, 0, base, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, fresh(tt.length, tt.mod, tt.rawLen, tt.rawMod))
		})
	}
}

func TestInput_FreshCacheSkipsDownload(t *testing.T) {
	store := newFakeStore(t)
	d := testDir(t, store)

	writeFile(t, d, "f.bin", []byte("cached content"))

	require.Equal(t, []byte("cached content"), readFile(t, d, "f.bin"))
	downloads := store.bodyGets.Load()

	// The cache entry matches the logical metadata: no further body fetch.
	require.Equal(t, []byte("cached content"), readFile(t, d, "f.bin"))
	require.Equal(t, downloads, store.bodyGets.Load())
}

func TestInput_StaleCacheRefetches(t *testing.T) {
	store := newFakeStore(t)
	writer := testDir(t, store)
	reader := testDir(t, store)

	writeFile(t, writer, "f.bin", []byte("version one"))
	require.Equal(t, []byte("version one"), readFile(t, reader, "f.bin"))

	writeFile(t, writer, "f.bin", []byte("version two is longer"))
	require.Equal(t, []byte("version two is longer"), readFile(t, reader, "f.bin"))
}

func TestInput_SeekAndPosition(t *testing.T) {
	store := newFakeStore(t)
	d := testDir(t, store)

	writeFile(t, d, "f.bin", []byte("abcdefghij"))

	in, err := d.OpenInput(context.Background(), "f.bin")
	require.NoError(t, err)
	defer in.Close()

	require.Equal(t, int64(10), in.Length())
	require.Equal(t, int64(0), in.Position())

	b, err := in.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('a'), b)
	require.Equal(t, int64(1), in.Position())

	pos, err := in.Seek(5, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(5), pos)
	require.Equal(t, int64(5), in.Position())

	buf := make([]byte, 3)
	_, err = io.ReadFull(in, buf)
	require.NoError(t, err)
	require.Equal(t, "fgh", string(buf))
	require.Equal(t, int64(8), in.Position())

	pos, err = in.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(8), pos)

	b, err = in.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('i'), b)
}

func TestInput_CloneIsIndependent(t *testing.T) {
	store := newFakeStore(t)
	d := testDir(t, store)

	writeFile(t, d, "f.bin", []byte("abcdefghij"))

	in, err := d.OpenInput(context.Background(), "f.bin")
	require.NoError(t, err)
	defer in.Close()

	_, err = in.Seek(4, io.SeekStart)
	require.NoError(t, err)

	clone, err := in.Clone()
	require.NoError(t, err)
	defer clone.Close()

	// The clone starts at the original's position.
	require.Equal(t, int64(4), clone.Position())
	require.Equal(t, in.Length(), clone.Length())

	// Advancing the clone does not move the original.
	buf := make([]byte, 3)
	_, err = io.ReadFull(clone, buf)
	require.NoError(t, err)
	require.Equal(t, "efg", string(buf))
	require.Equal(t, int64(4), in.Position())

	b, err := in.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('e'), b)
}

func TestInput_CloneAfterCacheGoneFails(t *testing.T) {
	store := newFakeStore(t)
	d := testDir(t, store)

	writeFile(t, d, "f.bin", []byte("abc"))

	in, err := d.OpenInput(context.Background(), "f.bin")
	require.NoError(t, err)
	defer in.Close()

	require.NoError(t, d.cache.Delete("f.bin"))

	_, err = in.Clone()
	require.Error(t, err)

	var ce *CloneError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "f.bin", ce.Name)
}

func TestInput_CloseIdempotent(t *testing.T) {
	store := newFakeStore(t)
	d := testDir(t, store)

	writeFile(t, d, "f.bin", []byte("abc"))

	in, err := d.OpenInput(context.Background(), "f.bin")
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
}

// Two concurrent opens of the same key must serialize cache population:
// exactly one body download, no interleaved writes to the cache file.
func TestInput_ConcurrentOpensSerializePopulation(t *testing.T) {
	store := newFakeStore(t)
	writer := testDir(t, store)
	reader := testDir(t, store)

	data := bytes.Repeat([]byte("serialized!"), 5000)
	writeFile(t, writer, "f.bin", data)

	store.getDelay = 100 * time.Millisecond

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	errs := make([]error, 2)

	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, err := reader.OpenInput(context.Background(), "f.bin")
			if err != nil {
				errs[i] = err
				return
			}
			defer in.Close()
			results[i], errs[i] = io.ReadAll(in)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, data, results[i])
	}
	require.Equal(t, int64(1), store.bodyGets.Load(), "population ran more than once")
}

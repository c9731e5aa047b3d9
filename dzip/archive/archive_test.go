package archive_test

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/dicomzip/dzip/archive"
	"github.com/ZanzyTHEbar/dicomzip/dzip/dicomtest"
)

func fixture(t *testing.T) string {
	t.Helper()
	return dicomtest.WriteZip(t, "fixture.zip",
		dicomtest.Member{Name: "dir/"},
		dicomtest.Member{Name: "dir/short.txt", Data: []byte("hi")},
		dicomtest.Member{Name: "dir/stored.bin", Data: make([]byte, 300), Store: true},
		dicomtest.Member{Name: "big.bin", Data: make([]byte, 1<<16)},
	)
}

func TestOpen(t *testing.T) {
	for _, inMemory := range []bool{false, true} {
		t.Run(map[bool]string{false: "File", true: "InMemory"}[inMemory], func(t *testing.T) {
			path := fixture(t)
			open := archive.Open
			if inMemory {
				open = archive.OpenInMemory
			}
			r, err := open(path)
			require.NoError(t, err)
			defer r.Close()

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, info.Size(), r.Size())
			assert.Equal(t, path, r.Path())
			require.Equal(t, 4, r.Len())

			members := r.Members()
			assert.True(t, members[0].IsDir())
			assert.Equal(t, "dir/short.txt", members[1].Name)
			assert.Equal(t, uint64(2), members[1].UncompressedSize)
			assert.Equal(t, uint64(1<<16), members[3].UncompressedSize)
			assert.Less(t, members[3].CompressedSize, members[3].UncompressedSize)

			m, err := r.Member(2)
			require.NoError(t, err)
			assert.Equal(t, 2, m.Index)
			assert.Equal(t, uint64(300), m.CompressedSize)
		})
	}
}

func TestReadPrefix(t *testing.T) {
	r, err := archive.Open(fixture(t))
	require.NoError(t, err)
	defer r.Close()

	short, err := r.ReadPrefix(1, 132)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), short, "short member yields a short slice")

	prefix, err := r.ReadPrefix(3, 132)
	require.NoError(t, err)
	assert.Len(t, prefix, 132)

	all, err := r.ReadAll(2)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 300), all)
}

func TestConcurrentReads(t *testing.T) {
	r, err := archive.Open(fixture(t))
	require.NoError(t, err)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc, err := r.Open(3)
			if !assert.NoError(t, err) {
				return
			}
			defer rc.Close()
			n, err := io.Copy(io.Discard, rc)
			assert.NoError(t, err)
			assert.Equal(t, int64(1<<16), n)
		}()
	}
	wg.Wait()
}

func TestErrors(t *testing.T) {
	_, err := archive.Open(filepath.Join(t.TempDir(), "missing.zip"))
	var ae *archive.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, archive.KindOpen, ae.Kind)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = archive.OpenBytes("junk", []byte("not a zip at all"))
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, archive.KindFormat, ae.Kind)

	r, err := archive.Open(fixture(t))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Open(99)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, archive.KindIndex, ae.Kind)
	assert.Contains(t, ae.Error(), "member 99")

	_, err = r.Member(-1)
	assert.True(t, archive.IsArchiveError(err))
	assert.False(t, archive.IsArchiveError(io.EOF))
}

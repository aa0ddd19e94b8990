package snapshot

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestEncodeRegionReconstructs(t *testing.T) {
	data := make([]byte, 3*DefaultChunkSize+100)
	for i := range data {
		data[i] = byte(i * 7)
	}
	m := MemoryMap{Start: 0x10000, End: 0x10000 + uint64(len(data)), Readable: true, Writable: true, Hint: "[heap]"}

	store := NewChunkStore()
	region, err := EncodeRegion(store, m, data)
	require.NoError(t, err)
	require.Len(t, region.Pages, 4)
	require.Equal(t, m, region.Map())

	var rebuilt []byte
	for i, key := range region.Pages {
		chunk, exists := store.Get(key)
		require.True(t, exists)
		if i < len(region.Pages)-1 {
			require.Len(t, chunk, DefaultChunkSize)
		}
		rebuilt = append(rebuilt, chunk...)
	}
	require.Len(t, storedChunk(store, region.Pages[3]), 100)
	require.Equal(t, data, rebuilt)
}

func storedChunk(store *ChunkStore, key Key) []byte {
	data, _ := store.Get(key)
	return data
}

func TestEncodeRegionUnreadable(t *testing.T) {
	m := MemoryMap{Start: 0x1000, End: 0x3000, Writable: true, Executable: true, Hint: "/lib/guard"}

	store := NewChunkStore()
	region, err := EncodeRegion(store, m, []byte("ignored"))
	require.NoError(t, err)
	require.NotNil(t, region.Pages)
	require.Empty(t, region.Pages)
	require.False(t, region.Readable)
	require.True(t, region.Writable)
	require.True(t, region.Executable)
	require.Equal(t, "/lib/guard", region.Hint)
	require.Zero(t, store.Len())
}

func TestEncodeRegionSharesIdenticalPages(t *testing.T) {
	page := bytes.Repeat([]byte{0x5a}, DefaultChunkSize)
	store := NewChunkStore()

	r1, err := EncodeRegion(store, MemoryMap{Start: 0, End: 2 * DefaultChunkSize, Readable: true},
		append(bytes.Clone(page), page...))
	require.NoError(t, err)
	r2, err := EncodeRegion(store, MemoryMap{Start: 0x100000, End: 0x100000 + DefaultChunkSize, Readable: true}, page)
	require.NoError(t, err)

	require.Equal(t, 1, store.Len())
	require.Equal(t, r1.Pages[0], r1.Pages[1])
	require.Equal(t, r1.Pages[0], r2.Pages[0])
}

func TestEncodeRegionRejectsSizeMismatch(t *testing.T) {
	_, err := EncodeRegion(NewChunkStore(), MemoryMap{Start: 0, End: 0x2000, Readable: true}, make([]byte, 0x1000))
	require.True(t, errors.Is(err, ErrInvalidRegion))
}

func TestEncodeRegionRejectsEmptyExtent(t *testing.T) {
	_, err := EncodeRegion(NewChunkStore(), MemoryMap{Start: 0x2000, End: 0x2000, Readable: true}, nil)
	require.True(t, errors.Is(err, ErrInvalidRegion))
}

func TestEncodeRegionPropagatesCollision(t *testing.T) {
	store := NewChunkStoreWithAddresser(func([]byte) Key { return 1 })
	data := append(make([]byte, DefaultChunkSize), bytes.Repeat([]byte{1}, DefaultChunkSize)...)

	_, err := EncodeRegion(store, MemoryMap{Start: 0, End: uint64(len(data)), Readable: true}, data)
	require.True(t, errors.Is(err, ErrChunkCollision))
}

func TestMemoryMapString(t *testing.T) {
	m := MemoryMap{Start: 0x400000, End: 0x401000, Readable: true, Executable: true, Hint: "/bin/true"}
	require.Equal(t, "[0x400000,0x401000) r-x /bin/true", m.String())
}

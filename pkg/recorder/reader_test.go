package recorder

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/chronosnap/pkg/snapshot"
	"github.com/willibrandon/chronosnap/pkg/snapshot/snapshottest"
)

func savedReader(t *testing.T, in *snapshottest.Inspector, cacheSize int) *Reader {
	path := filepath.Join(t.TempDir(), "snapshot.json.zst")
	_, err := Save(snapshottest.NewContext(), in, path, DefaultFileOptions(path))
	require.NoError(t, err)

	r, err := Open(path, cacheSize)
	require.NoError(t, err)
	return r
}

func TestReaderReconstructsRegions(t *testing.T) {
	in := testProcess()
	r := savedReader(t, in, 1)

	require.Equal(t, uint64(0x400000), r.Registers().RIP)
	require.Equal(t, 2, r.ChunkCount())

	regions := r.Regions()
	require.Len(t, regions, 3)
	for i, m := range in.Mappings {
		require.Equal(t, m.Start, regions[i].Start)
		require.Equal(t, m.Readable, regions[i].Readable)
		if !m.Readable {
			continue
		}

		var buf bytes.Buffer
		n, err := r.WriteRegion(i, &buf)
		require.NoError(t, err)
		require.Equal(t, int64(m.End-m.Start), n)
		require.Equal(t, m.Data, buf.Bytes())
	}
}

func TestReaderRejectsUnreadableRegion(t *testing.T) {
	r := savedReader(t, testProcess(), 0)

	_, err := r.WriteRegion(2, &bytes.Buffer{})
	require.True(t, errors.Is(err, snapshot.ErrRegionUnreadable))

	_, err = r.WriteRegion(3, &bytes.Buffer{})
	require.Error(t, err)
}

func TestReaderFindRegion(t *testing.T) {
	r := savedReader(t, testProcess(), 0)

	i, found := r.FindRegion(0xc000001234)
	require.True(t, found)
	require.Equal(t, 1, i)

	_, found = r.FindRegion(0x1000)
	require.False(t, found)
}

func TestReaderVerify(t *testing.T) {
	r := savedReader(t, testProcess(), 0)

	stats, err := r.Verify()
	require.NoError(t, err)
	require.Equal(t, 3, stats.Regions)
	require.Equal(t, 2, stats.ReadableRegions)
	require.Equal(t, 4, stats.Pages)
	require.Equal(t, 2, stats.Chunks)
}

func TestReaderChunkDetectsTampering(t *testing.T) {
	s, err := snapshot.Capture(snapshottest.NewContext(), testProcess())
	require.NoError(t, err)
	doc := snapshot.NewDocument(s)
	key := s.Regions[1].Pages[1]
	doc.Chunks[key] = doc.Chunks[s.Regions[1].Pages[0]]

	r, err := NewReader(doc, 0)
	require.NoError(t, err)

	_, err = r.Chunk(key)
	require.True(t, errors.Is(err, snapshot.ErrCorruptDocument))
	_, err = r.Verify()
	require.True(t, errors.Is(err, snapshot.ErrCorruptDocument))
}

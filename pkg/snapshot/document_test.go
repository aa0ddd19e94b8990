package snapshot_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/chronosnap/pkg/snapshot"
	"github.com/willibrandon/chronosnap/pkg/snapshot/snapshottest"
)

func encodeExample(t *testing.T) []byte {
	s, err := snapshot.Capture(snapshottest.NewContext(), exampleProcess())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snapshot.NewDocument(s).Encode(&buf))
	return buf.Bytes()
}

func TestDocumentWireFormat(t *testing.T) {
	var wire struct {
		Regs   map[string]uint64 `json:"regs"`
		Maps   []map[string]any  `json:"maps"`
		Chunks map[string]string `json:"chunks"`
	}
	encoded := encodeExample(t)
	require.NoError(t, json.Unmarshal(encoded, &wire))

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &top))
	require.Len(t, top, 3)

	require.Len(t, wire.Regs, 18)
	require.Equal(t, uint64(4194304), wire.Regs["rip"])

	zeroKey := snapshot.Address(make([]byte, snapshot.DefaultChunkSize)).String()
	ffKey := snapshot.Address(bytes.Repeat([]byte{0xff}, snapshot.DefaultChunkSize)).String()
	require.Len(t, wire.Chunks, 2)
	require.Equal(t, base64.StdEncoding.EncodeToString(make([]byte, snapshot.DefaultChunkSize)), wire.Chunks[zeroKey])
	require.Contains(t, wire.Chunks, ffKey)

	require.Len(t, wire.Maps, 2)
	require.Equal(t, []any{zeroKey, zeroKey}, wire.Maps[0]["pages"])
	require.Equal(t, []any{zeroKey, ffKey}, wire.Maps[1]["pages"])
	require.Equal(t, map[string]any{
		"hint":       "/bin/example",
		"page_start": float64(0x600000),
		"page_end":   float64(0x600000 + 2*snapshot.DefaultChunkSize),
		"perm_r":     true,
		"perm_w":     true,
		"perm_x":     false,
		"pages":      []any{zeroKey, zeroKey},
	}, wire.Maps[0])
}

func TestDocumentIsDeterministic(t *testing.T) {
	require.Equal(t, encodeExample(t), encodeExample(t))
}

func TestDocumentSortsKeys(t *testing.T) {
	encoded := string(encodeExample(t))
	require.Less(t, strings.Index(encoded, `"chunks"`), strings.Index(encoded, `"maps"`))
	require.Less(t, strings.Index(encoded, `"maps"`), strings.Index(encoded, `"regs"`))
	require.Less(t, strings.Index(encoded, `"r10"`), strings.Index(encoded, `"rax"`))
	require.Less(t, strings.Index(encoded, `"rflags"`), strings.Index(encoded, `"rip"`))
}

func TestDocumentRoundTrip(t *testing.T) {
	in := exampleProcess()
	in.Mappings = append(in.Mappings, snapshottest.Mapping{
		MemoryMap: snapshot.MemoryMap{Start: 0x10000, End: 0x11000, Hint: "guard"},
	})
	in.Registers["rflags"] = 0x246

	original, err := snapshot.Capture(snapshottest.NewContext(), in)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snapshot.NewDocument(original).Encode(&buf))

	doc, err := snapshot.DecodeDocument(&buf)
	require.NoError(t, err)
	decoded, err := doc.Snapshot()
	require.NoError(t, err)

	require.Equal(t, original.Registers, decoded.Registers)
	require.Equal(t, original.Regions, decoded.Regions)
	require.Equal(t, original.Chunks.Keys(), decoded.Chunks.Keys())
	for i := range original.Regions {
		want, err := original.RegionBytes(i)
		require.NoError(t, err)
		got, err := decoded.RegionBytes(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func decodeModified(t *testing.T, modify func(wire map[string]any)) error {
	var wire map[string]any
	require.NoError(t, json.Unmarshal(encodeExample(t), &wire))
	modify(wire)
	encoded, err := json.Marshal(wire)
	require.NoError(t, err)

	doc, err := snapshot.DecodeDocument(bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	_, err = doc.Snapshot()
	return err
}

func TestDecodeRejectsTamperedChunk(t *testing.T) {
	err := decodeModified(t, func(wire map[string]any) {
		chunks := wire["chunks"].(map[string]any)
		for key := range chunks {
			chunks[key] = base64.StdEncoding.EncodeToString([]byte("tampered"))
		}
	})
	require.True(t, errors.Is(err, snapshot.ErrCorruptDocument))
}

func TestDecodeRejectsMissingChunk(t *testing.T) {
	ffKey := snapshot.Address(bytes.Repeat([]byte{0xff}, snapshot.DefaultChunkSize)).String()
	err := decodeModified(t, func(wire map[string]any) {
		delete(wire["chunks"].(map[string]any), ffKey)
	})
	require.True(t, errors.Is(err, snapshot.ErrCorruptDocument))
}

func TestDecodeRejectsWrongPageCount(t *testing.T) {
	err := decodeModified(t, func(wire map[string]any) {
		region := wire["maps"].([]any)[0].(map[string]any)
		region["pages"] = region["pages"].([]any)[:1]
	})
	require.True(t, errors.Is(err, snapshot.ErrCorruptDocument))
}

func TestDecodeRejectsIncompleteRegisters(t *testing.T) {
	err := decodeModified(t, func(wire map[string]any) {
		delete(wire["regs"].(map[string]any), "r12")
	})
	require.True(t, errors.Is(err, snapshot.ErrCorruptDocument))
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	err := decodeModified(t, func(wire map[string]any) {
		wire["extra"] = true
	})
	require.True(t, errors.Is(err, snapshot.ErrCorruptDocument))
}

func TestDecodeRejectsMissingField(t *testing.T) {
	err := decodeModified(t, func(wire map[string]any) {
		delete(wire, "maps")
	})
	require.True(t, errors.Is(err, snapshot.ErrCorruptDocument))
}

func TestRegionRecordValidatePageCount(t *testing.T) {
	page := bytes.Repeat([]byte{1}, snapshot.DefaultChunkSize)
	key := snapshot.Address(page)
	chunks := map[snapshot.Key]string{key: base64.StdEncoding.EncodeToString(page)}

	record := snapshot.RegionRecord{PageStart: 0, PageEnd: snapshot.DefaultChunkSize + 1, PermR: true,
		Pages: []snapshot.Key{key, key}}
	require.NoError(t, record.Validate(chunks))

	record.Pages = record.Pages[:1]
	require.True(t, errors.Is(record.Validate(chunks), snapshot.ErrCorruptDocument))

	for _, end := range []uint64{math.MaxUint64, 1 << 63, 1<<63 + snapshot.DefaultChunkSize} {
		huge := snapshot.RegionRecord{PageStart: 0x1000, PageEnd: end, PermR: true, Pages: []snapshot.Key{key}}
		err := huge.Validate(chunks)
		require.True(t, errors.Is(err, snapshot.ErrCorruptDocument), end)
		require.Contains(t, err.Error(), "has 1 pages")
	}
}

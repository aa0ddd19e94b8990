package snapshot

import (
	"fmt"

	"github.com/pkg/errors"
)

// MemoryMap describes one mapping reported by the process before its bytes are read.
type MemoryMap struct {
	Start      uint64
	End        uint64
	Readable   bool
	Writable   bool
	Executable bool
	Hint       string
}

// Size returns the length of the mapping in bytes.
func (m MemoryMap) Size() uint64 {
	return m.End - m.Start
}

func (m MemoryMap) String() string {
	return fmt.Sprintf("[%#x,%#x) %s%s%s %s", m.Start, m.End, perm(m.Readable, 'r'), perm(m.Writable, 'w'),
		perm(m.Executable, 'x'), m.Hint)
}

func perm(set bool, c byte) string {
	if set {
		return string(c)
	}
	return "-"
}

// Region is a captured mapping. Pages lists the keys of its chunks in address order; it is
// empty when the mapping could not be read.
type Region struct {
	Start      uint64
	End        uint64
	Readable   bool
	Writable   bool
	Executable bool
	Hint       string
	Pages      []Key
}

// Map returns the mapping the region was captured from.
func (r Region) Map() MemoryMap {
	return MemoryMap{
		Start:      r.Start,
		End:        r.End,
		Readable:   r.Readable,
		Writable:   r.Writable,
		Executable: r.Executable,
		Hint:       r.Hint,
	}
}

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// EncodeRegion chunks the bytes of a readable mapping into store and returns the region
// referencing them. Unreadable mappings produce a region without pages and data is ignored.
func EncodeRegion(store *ChunkStore, m MemoryMap, data []byte) (Region, error) {
	if m.End <= m.Start {
		return Region{}, errors.Wrapf(ErrInvalidRegion, "region %s has no extent", m)
	}
	if !m.Readable {
		return UnreadableRegion(m), nil
	}
	if uint64(len(data)) != m.Size() {
		return Region{}, errors.Wrapf(ErrInvalidRegion, "region %s: got %d bytes, expected %d", m, len(data),
			m.Size())
	}

	region := newRegion(m)
	region.Pages = make([]Key, 0, ChunkCount(len(data), DefaultChunkSize))
	for chunk := range Chunks(data, DefaultChunkSize) {
		key, err := store.Put(chunk)
		if err != nil {
			return Region{}, errors.Wrapf(err, "region %s at offset %#x", m,
				len(region.Pages)*DefaultChunkSize)
		}
		region.Pages = append(region.Pages, key)
	}
	return region, nil
}

// UnreadableRegion records a mapping whose bytes are not captured.
func UnreadableRegion(m MemoryMap) Region {
	region := newRegion(m)
	region.Readable = false
	region.Pages = []Key{}
	return region
}

func newRegion(m MemoryMap) Region {
	return Region{
		Start:      m.Start,
		End:        m.End,
		Readable:   m.Readable,
		Writable:   m.Writable,
		Executable: m.Executable,
		Hint:       m.Hint,
	}
}

func hexAddr(addr uint64) string {
	return fmt.Sprintf("%#x", addr)
}

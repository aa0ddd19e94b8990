package recorder

import (
	"io"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/willibrandon/chronosnap/pkg/snapshot"
)

// DefaultCacheSize is the number of decoded chunks a Reader keeps.
const DefaultCacheSize = 1024

// Reader gives access to a persisted snapshot, decoding chunk payloads on demand.
type Reader struct {
	doc   *snapshot.Document
	cache *lru.Cache
}

// Open reads the snapshot stored at path.
func Open(path string, cacheSize int) (*Reader, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewReader(doc, cacheSize)
}

// NewReader wraps a decoded document. A non-positive cacheSize selects DefaultCacheSize.
func NewReader(doc *snapshot.Document, cacheSize int) (*Reader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Reader{
		doc:   doc,
		cache: cache,
	}, nil
}

// Registers returns the captured registers.
func (r *Reader) Registers() snapshot.RegisterSet {
	return r.doc.Regs
}

// Regions returns the captured mappings in capture order.
func (r *Reader) Regions() []snapshot.MemoryMap {
	maps := make([]snapshot.MemoryMap, 0, len(r.doc.Maps))
	for _, record := range r.doc.Maps {
		maps = append(maps, record.Map())
	}
	return maps
}

// ChunkCount returns the number of distinct chunks in the snapshot.
func (r *Reader) ChunkCount() int {
	return len(r.doc.Chunks)
}

// FindRegion returns the index of the region containing addr.
func (r *Reader) FindRegion(addr uint64) (int, bool) {
	for i, record := range r.doc.Maps {
		if addr >= record.PageStart && addr < record.PageEnd {
			return i, true
		}
	}
	return 0, false
}

// Chunk returns the verified bytes of the chunk stored under key.
func (r *Reader) Chunk(key snapshot.Key) ([]byte, error) {
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]byte), nil
	}

	payload, exists := r.doc.Chunks[key]
	if !exists {
		return nil, errors.Wrapf(snapshot.ErrCorruptDocument, "chunk %s is missing", key)
	}
	data, err := snapshot.DecodeChunk(key, payload)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, data)
	return data, nil
}

// WriteRegion writes the bytes of the i-th region to w and returns their count.
func (r *Reader) WriteRegion(i int, w io.Writer) (int64, error) {
	if i < 0 || i >= len(r.doc.Maps) {
		return 0, errors.Errorf("region index %d out of range [0,%d)", i, len(r.doc.Maps))
	}
	record := r.doc.Maps[i]
	if !record.PermR {
		return 0, errors.Wrapf(snapshot.ErrRegionUnreadable, "region %s", record.Map())
	}
	if err := record.Validate(r.doc.Chunks); err != nil {
		return 0, err
	}

	var written uint64
	for _, key := range record.Pages {
		data, err := r.Chunk(key)
		if err != nil {
			return int64(written), err
		}
		n, err := w.Write(data)
		written += uint64(n)
		if err != nil {
			return int64(written), errors.WithStack(err)
		}
	}
	if written != record.PageEnd-record.PageStart {
		return int64(written), errors.Wrapf(snapshot.ErrCorruptDocument, "region %s reconstructs to %d bytes",
			record.Map(), written)
	}
	return int64(written), nil
}

// Verify fully decodes the snapshot, checking every chunk and region.
func (r *Reader) Verify() (snapshot.Stats, error) {
	s, err := r.doc.Snapshot()
	if err != nil {
		return snapshot.Stats{}, err
	}
	return s.Stats(), nil
}

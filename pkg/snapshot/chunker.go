package snapshot

import "iter"

// DefaultChunkSize is the size of every chunk except possibly the last one of a region.
const DefaultChunkSize = 4096

// Chunks returns the sequence of consecutive blocks of data, each size bytes long except
// possibly the last one. Blocks share memory with data. A non-positive size selects
// DefaultChunkSize. The sequence may be iterated any number of times.
func Chunks(data []byte, size int) iter.Seq[[]byte] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]byte) bool) {
		for offset := 0; offset < len(data); offset += size {
			end := min(offset+size, len(data))
			if !yield(data[offset:end:end]) {
				return
			}
		}
	}
}

// ChunkCount returns the number of chunks a buffer of the given length is split into.
func ChunkCount(length, size int) int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return (length + size - 1) / size
}

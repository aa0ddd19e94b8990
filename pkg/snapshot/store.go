package snapshot

import (
	"bytes"
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ChunkStore holds one copy of every distinct chunk seen during a capture.
// It is not safe for concurrent use; each capture owns its own store.
type ChunkStore struct {
	address AddressFunc
	chunks  map[Key][]byte
	size    int
}

// NewChunkStore creates an empty store addressing chunks with Address.
func NewChunkStore() *ChunkStore {
	return NewChunkStoreWithAddresser(Address)
}

// NewChunkStoreWithAddresser creates an empty store using a custom address function.
func NewChunkStoreWithAddresser(address AddressFunc) *ChunkStore {
	return &ChunkStore{
		address: address,
		chunks:  map[Key][]byte{},
	}
}

// Put stores data under its content key and returns the key. Storing content already present
// is a no-op. Data addressed to a key already holding different content is rejected.
func (s *ChunkStore) Put(data []byte) (Key, error) {
	key := s.address(data)
	if stored, exists := s.chunks[key]; exists {
		if !bytes.Equal(stored, data) {
			return 0, errors.Wrapf(ErrChunkCollision, "chunk %s already holds %d different bytes", key,
				len(stored))
		}
		return key, nil
	}

	s.chunks[key] = bytes.Clone(data)
	s.size += len(data)
	return key, nil
}

// Get returns the content stored under key. The returned slice must not be modified.
func (s *ChunkStore) Get(key Key) ([]byte, bool) {
	data, exists := s.chunks[key]
	return data, exists
}

// Len returns the number of distinct chunks.
func (s *ChunkStore) Len() int {
	return len(s.chunks)
}

// Bytes returns the total size of distinct chunks.
func (s *ChunkStore) Bytes() int {
	return s.size
}

// Keys returns all keys in ascending order.
func (s *ChunkStore) Keys() []Key {
	keys := lo.Keys(s.chunks)
	slices.Sort(keys)
	return keys
}

package snapshot

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// KeyBits is the width of a chunk key. Keys are the leading 64 bits of the SHA-256 digest,
// so two distinct chunks collide with probability about n^2/2^65 for n chunks.
const KeyBits = 64

// keyHexLen is the length of the text form of a key.
const keyHexLen = KeyBits / 4

// Key identifies a chunk by its content.
type Key uint64

// AddressFunc computes the key of a chunk.
type AddressFunc func(data []byte) Key

// Address returns the content key of data.
func Address(data []byte) Key {
	sum := sha256.Sum256(data)
	return Key(binary.BigEndian.Uint64(sum[:8]))
}

// ParseKey parses the 16-hex-digit text form of a key.
func ParseKey(s string) (Key, error) {
	var k Key
	if err := k.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return k, nil
}

// String returns the key as 16 lowercase hex digits.
func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	if len(text) != keyHexLen {
		return errors.Errorf("chunk key %q must have %d hex digits", text, keyHexLen)
	}
	var raw [KeyBits / 8]byte
	if _, err := hex.Decode(raw[:], text); err != nil {
		return errors.Wrapf(err, "chunk key %q is not hex", text)
	}
	*k = Key(binary.BigEndian.Uint64(raw[:]))
	return nil
}

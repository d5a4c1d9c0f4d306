package casc

import (
	"encoding/hex"
	"fmt"
)

// KeySize is the length in bytes of a content key.
const KeySize = 16

// Key identifies a file's content independent of where it is stored.
// It is the raw 16-byte digest; String renders it as lowercase hex.
type Key [KeySize]byte

// ParseKey decodes a 32-character hex string into a Key.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != hex.EncodedLen(KeySize) {
		return Key{}, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	return k, nil
}

// String returns the key as lowercase hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

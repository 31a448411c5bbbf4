package memcache

import (
	"github.com/mdorman/memclient/errors"
)

// Key identifies a cache entry.  Name is what travels on the wire (before
// the client namespace is prepended).  A non-negative HashIndex addresses a
// selector bucket directly instead of hashing Name.
type Key struct {
	Name      string
	HashIndex int
}

// NewKey returns a Key which is routed by hashing its name.
func NewKey(name string) Key {
	return Key{Name: name, HashIndex: -1}
}

// NewPrehashedKey returns a Key routed by the given bucket index.  The name
// still travels on the wire and is still subject to key validation.
func NewPrehashedKey(index int, name string) Key {
	return Key{Name: name, HashIndex: index}
}

// Prehashed returns true when the key bypasses hashing.
func (k Key) Prehashed() bool {
	return k.HashIndex >= 0
}

// Entry is a single key / value pair for the store-style multi operations.
type Entry struct {
	Key        string
	Value      interface{}
	Expiration uint32
}

func isValidKeyChar(b byte) bool {
	// No whitespace or control characters.
	return b > 0x20 && b != 0x7f
}

// validateKey checks the key as it will travel on the wire, namespace
// included.
func validateKey(name string) error {
	if len(name) == 0 {
		return errors.New("Key is empty")
	}
	if len(name) > maxKeyLength {
		return errors.Newf(
			"Key '%s' is longer than %d bytes", name, maxKeyLength)
	}
	for i := 0; i < len(name); i++ {
		if !isValidKeyChar(name[i]) {
			return errors.Newf(
				"Key '%s' contains invalid byte at offset %d", name, i)
		}
	}
	return nil
}

func validateValue(value []byte) error {
	if value == nil {
		return errors.New("Value is nil")
	}
	if len(value) > maxValueLength {
		return errors.Newf(
			"Value is longer than %d bytes", maxValueLength)
	}
	return nil
}

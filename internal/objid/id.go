// Package objid implements content identifiers for the store: a 20-byte
// hash of an object's canonical serialization, phantom-typed at the API
// surface so a Job id cannot be mistaken for an Invocation id at compile
// time, while the backing store only ever sees untyped bytes.
package objid

import (
	"crypto/sha1" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
	"fmt"
)

// Size is the byte length of an identifier.
const Size = 20

// Raw is the untyped 20-byte content hash the store operates on.
type Raw [Size]byte

// Hex renders the identifier as lowercase hex.
func (r Raw) Hex() string {
	return hex.EncodeToString(r[:])
}

func (r Raw) String() string {
	return r.Hex()
}

// ParseRaw parses 40 lowercase hex digits. Parsing is strict: any other
// length or non-hex character is an error.
func ParseRaw(s string) (Raw, error) {
	var r Raw
	if len(s) != Size*2 {
		return r, fmt.Errorf("objid: want %d hex chars, got %d", Size*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return r, fmt.Errorf("objid: %w", err)
	}
	if hex.EncodeToString(b) != s {
		return r, fmt.Errorf("objid: not lowercase hex: %q", s)
	}
	copy(r[:], b)
	return r, nil
}

// Sum computes the content identifier of serialized bytes. This is a git
// blob hash ("blob <len>\x00<data>", sha1'd), not a hash of the bare bytes:
// the original implementation's only store backend shelled out to `git
// hash-object`, so object ids have always been git blob ids. The git-backed
// store can therefore reuse git's own object database unmodified, and a
// filesystem-backed store computes the identical id for identical content.
func Sum(data []byte) Raw {
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "blob %d\x00", len(data))
	h.Write(data)
	var r Raw
	copy(r[:], h.Sum(nil))
	return r
}

// ID is a phantom-typed identifier: T is never constructed, only named, to
// keep e.g. an Id[Job] from being passed where an Id[Production] is wanted.
type ID[T any] struct {
	raw Raw
}

// New wraps a raw content hash with a phantom type tag.
func New[T any](raw Raw) ID[T] {
	return ID[T]{raw: raw}
}

// Parse parses a hex identifier with a phantom type tag.
func Parse[T any](s string) (ID[T], error) {
	raw, err := ParseRaw(s)
	if err != nil {
		return ID[T]{}, err
	}
	return ID[T]{raw: raw}, nil
}

// Raw returns the untyped identifier the store sees.
func (id ID[T]) Raw() Raw {
	return id.raw
}

func (id ID[T]) String() string {
	return id.raw.Hex()
}

// IsZero reports whether this is the zero-value identifier (never a valid
// content hash, used as a sentinel for "absent").
func (id ID[T]) IsZero() bool {
	return id.raw == Raw{}
}

// Equal lets go-cmp compare IDs without reflecting into the unexported raw
// field.
func (id ID[T]) Equal(other ID[T]) bool {
	return id.raw == other.raw
}

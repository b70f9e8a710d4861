// Package address implements the canonical database address form
// (spec.md §3 Address, §6 Address wire form):
//
//	/orbitdb/<manifest-hash>/<name>
package address

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/praveenmunagapati/orbit-db/src/objectstore"
	"github.com/praveenmunagapati/orbit-db/src/orbiterr"
)

// Scheme is the fixed literal marker identifying an orbit-db address.
const Scheme = "orbitdb"

// Address is the pair (manifest hash, name) in its canonical wire form.
type Address struct {
	Root objectstore.Hash
	Path string
}

// String renders the canonical form /orbitdb/<root>/<path>.
func (a Address) String() string {
	return fmt.Sprintf("/%s/%s/%s", Scheme, a.Root, a.Path)
}

// New builds an Address from its parts.
func New(root objectstore.Hash, path string) Address {
	return Address{Root: root, Path: path}
}

// Parse parses the canonical wire form. Parsing is strict: exactly three
// non-empty slash-separated segments after the leading slash, and the
// first must equal Scheme.
func Parse(s string) (Address, error) {
	if !strings.HasPrefix(s, "/") {
		return Address{}, fmt.Errorf("%w: %q: missing leading /", orbiterr.ErrInvalidAddress, s)
	}
	segments := strings.Split(strings.TrimPrefix(s, "/"), "/")
	if len(segments) != 3 {
		return Address{}, fmt.Errorf("%w: %q: expected 3 segments, got %d", orbiterr.ErrInvalidAddress, s, len(segments))
	}
	for _, seg := range segments {
		if seg == "" {
			return Address{}, fmt.Errorf("%w: %q: empty segment", orbiterr.ErrInvalidAddress, s)
		}
	}
	if segments[0] != Scheme {
		return Address{}, fmt.Errorf("%w: %q: unknown scheme %q", orbiterr.ErrInvalidAddress, s, segments[0])
	}

	rootBytes, err := parseHash(segments[1])
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: bad root: %v", orbiterr.ErrInvalidAddress, s, err)
	}

	return Address{Root: rootBytes, Path: segments[2]}, nil
}

// IsValid reports whether s parses as an address.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func parseHash(s string) (objectstore.Hash, error) {
	var h objectstore.Hash
	if len(s) != len(h)*2 {
		return h, fmt.Errorf("invalid hash length %d", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hex: %w", err)
	}
	copy(h[:], decoded)
	return h, nil
}

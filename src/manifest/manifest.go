// Package manifest implements the immutable database descriptor whose
// content hash is a database's root identity (spec.md §3 Manifest).
//
// Encoding follows the same "BurntSushi/toml, hash the encoding" idiom used
// throughout the teacher's key_store package for File/MetaData persistence.
package manifest

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/praveenmunagapati/orbit-db/src/objectstore"
	"github.com/praveenmunagapati/orbit-db/src/orbiterr"
)

// Type enumerates the valid database flavors (spec.md §6).
type Type string

const (
	EventLog Type = "eventlog"
	Feed     Type = "feed"
	KeyValue Type = "keyvalue"
	Counter  Type = "counter"
	DocStore Type = "docstore"
)

// ValidTypes is the full set of valid database types.
var ValidTypes = map[Type]struct{}{
	EventLog: {}, Feed: {}, KeyValue: {}, Counter: {}, DocStore: {},
}

// IsValidType reports whether t is one of the five valid flavors.
func IsValidType(t Type) bool {
	_, ok := ValidTypes[t]
	return ok
}

// Manifest is the immutable {name, type, accessController} record.
type Manifest struct {
	Name             string           `toml:"name"`
	Type             Type             `toml:"type"`
	AccessController objectstore.Hash `toml:"access_controller"`
}

func encode(m Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Save persists the manifest to store and returns its content address —
// the database's root identity.
func Save(store objectstore.Store, m Manifest) (objectstore.Hash, error) {
	if !IsValidType(m.Type) {
		return objectstore.Hash{}, fmt.Errorf("%w: %q", orbiterr.ErrInvalidType, m.Type)
	}
	data, err := encode(m)
	if err != nil {
		return objectstore.Hash{}, err
	}
	h, err := store.Put(data)
	if err != nil {
		return objectstore.Hash{}, fmt.Errorf("manifest: save: %w", err)
	}
	return h, nil
}

// Load fetches and decodes the manifest stored at hash.
func Load(store objectstore.Store, hash objectstore.Hash) (Manifest, error) {
	data, err := store.Get(hash)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: load: %w", err)
	}
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	return m, nil
}

// Package accesscontroller implements the capability list (admin/write)
// that gates who may author entries in a database's oplog (spec.md §4.3).
//
// Persistence follows the teacher's key_store idiom: a small record encoded
// with BurntSushi/toml and addressed by the SHA-256 of its encoding, the
// same "encode, hash, persist" shape as key_store.MetaData/File.
package accesscontroller

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/praveenmunagapati/orbit-db/src/entry"
	"github.com/praveenmunagapati/orbit-db/src/objectstore"
)

// Capability names.
const (
	Admin = "admin"
	Write = "write"

	// Any denotes "any identity" when present in the write set.
	Any = "*"
)

// record is the canonical on-disk encoding of a capability list.
type record struct {
	Admin []string `toml:"admin"`
	Write []string `toml:"write"`
}

// AccessController holds, for each capability, the set of public keys
// (hex-encoded) permitted to exercise it.
type AccessController struct {
	mu      sync.RWMutex
	admin   map[string]struct{}
	write   map[string]struct{}
	address objectstore.Hash
}

// New returns an empty AccessController.
func New() *AccessController {
	return &AccessController{
		admin: make(map[string]struct{}),
		write: make(map[string]struct{}),
	}
}

// Add inserts publicKey into the set for capability. Enforcement of who may
// call Add (the caller must be an admin) is the host Store's responsibility,
// per spec.md §4.3. The wildcard Any is stored as-is rather than hex-encoded.
func (ac *AccessController) Add(capability string, publicKey []byte) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	key := hex.EncodeToString(publicKey)
	if string(publicKey) == Any {
		key = Any
	}
	switch capability {
	case Admin:
		ac.admin[key] = struct{}{}
	case Write:
		ac.write[key] = struct{}{}
	default:
		return fmt.Errorf("accesscontroller: unknown capability %q", capability)
	}
	return nil
}

// CanAppend reports whether e's identity is permitted to author entries:
// identity is in writers or admins, or "*" is in writers — AND the
// signature verifies.
func (ac *AccessController) CanAppend(e *entry.Entry) bool {
	if err := entry.Verify(e); err != nil {
		return false
	}
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if _, ok := ac.write[Any]; ok {
		return true
	}
	key := hex.EncodeToString(e.Identity)
	if _, ok := ac.write[key]; ok {
		return true
	}
	if _, ok := ac.admin[key]; ok {
		return true
	}
	return false
}

// IsAdmin reports whether publicKey holds the admin capability.
func (ac *AccessController) IsAdmin(publicKey []byte) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	_, ok := ac.admin[hex.EncodeToString(publicKey)]
	return ok
}

// Address returns the content address this AccessController was last
// Save()d or Load()ed under. The zero value means it has never been
// persisted.
func (ac *AccessController) Address() objectstore.Hash {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.address
}

func (ac *AccessController) toRecord() record {
	rec := record{}
	for k := range ac.admin {
		rec.Admin = append(rec.Admin, k)
	}
	for k := range ac.write {
		rec.Write = append(rec.Write, k)
	}
	sort.Strings(rec.Admin)
	sort.Strings(rec.Write)
	return rec
}

// encode returns the canonical TOML encoding used both for hashing and for
// object store persistence.
func encode(rec record) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("accesscontroller: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Save persists the canonical encoding of the capability list to store and
// returns its content address.
func (ac *AccessController) Save(store objectstore.Store) (objectstore.Hash, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	data, err := encode(ac.toRecord())
	if err != nil {
		return objectstore.Hash{}, err
	}
	h, err := store.Put(data)
	if err != nil {
		return objectstore.Hash{}, fmt.Errorf("accesscontroller: save: %w", err)
	}
	ac.address = h
	return h, nil
}

// Load fetches and populates the capability list from store at address.
func Load(store objectstore.Store, address objectstore.Hash) (*AccessController, error) {
	data, err := store.Get(address)
	if err != nil {
		return nil, fmt.Errorf("accesscontroller: load: %w", err)
	}

	var rec record
	if _, err := toml.Decode(string(data), &rec); err != nil {
		return nil, fmt.Errorf("accesscontroller: decode: %w", err)
	}

	ac := New()
	for _, k := range rec.Admin {
		ac.admin[k] = struct{}{}
	}
	for _, k := range rec.Write {
		ac.write[k] = struct{}{}
	}
	ac.address = address
	return ac, nil
}

// Hash computes the content address a capability list would be saved
// under, without persisting it. Used by callers that need to know the
// address before Save (none currently do, but it mirrors entry.Hash's
// pure-function contract).
func Hash(ac *AccessController) (objectstore.Hash, error) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	data, err := encode(ac.toRecord())
	if err != nil {
		return objectstore.Hash{}, err
	}
	return objectstore.Hash(sha256.Sum256(data)), nil
}

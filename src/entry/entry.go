// Package entry implements the signed, content-addressed log entry: the
// atomic unit of the replicated operation log.
//
// Canonical encoding follows the teacher's hashing idiom in
// src/impl/utils.go (CalculateHash/ValidateHash): gob-encode a fixed-order
// field tuple with the derived field (there, Hash; here, Hash and, for the
// pre-signature tuple, Signature) zeroed out first.
package entry

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/praveenmunagapati/orbit-db/src/clock"
	"github.com/praveenmunagapati/orbit-db/src/orbiterr"
)

// Hash is a content address: the SHA-256 digest of an entry's canonical
// encoding.
type Hash [sha256.Size]byte

// String renders the hash as hex, the form used in cache keys and addresses.
func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// IsZero reports whether h is the zero hash (used as a "no value" sentinel).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// SignFunc signs bytes on behalf of an identity already known to the
// caller, returning a signature. Satisfied by keystore.KeyStore.Sign(id).
type SignFunc func(payload []byte) (signature []byte, err error)

// Entry is an immutable signed record in the oplog DAG.
type Entry struct {
	Payload   []byte
	Next      []Hash // parent entry hashes, sorted ascending
	Clock     clock.Clock
	Identity  []byte // author's public key
	Signature []byte
	Hash      Hash
}

// wireFields is the fixed field order used for canonical encoding. Entry's
// own field order is not load-bearing since gob always encodes wireFields
// instead of Entry directly, which keeps the hash stable even if Entry
// gains fields later.
type wireFields struct {
	Payload   []byte
	Next      []Hash
	Clock     clock.Clock
	Identity  []byte
	Signature []byte
}

func sortedNext(next []Hash) []Hash {
	out := append([]Hash(nil), next...)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// signedBytes returns the canonical encoding of every field preceding the
// signature: the bytes a signature is computed over.
func signedBytes(payload []byte, next []Hash, c clock.Clock, identity []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	fields := wireFields{
		Payload:  payload,
		Next:     sortedNext(next),
		Clock:    c,
		Identity: identity,
	}
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("entry: encode signed bytes: %w", err)
	}
	return buf.Bytes(), nil
}

// hashBytes returns the canonical encoding of every field except Hash
// itself: the bytes a content address is computed over.
func hashBytes(payload []byte, next []Hash, c clock.Clock, identity, signature []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	fields := wireFields{
		Payload:   payload,
		Next:      sortedNext(next),
		Clock:     c,
		Identity:  identity,
		Signature: signature,
	}
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("entry: encode hash bytes: %w", err)
	}
	return buf.Bytes(), nil
}

// Create canonically encodes the given fields, signs them, computes the
// content hash, and returns a fully populated Entry. identity must be the
// public key corresponding to sign.
func Create(payload []byte, next []Hash, c clock.Clock, identity []byte, sign SignFunc) (*Entry, error) {
	toSign, err := signedBytes(payload, next, c, identity)
	if err != nil {
		return nil, err
	}
	signature, err := sign(toSign)
	if err != nil {
		return nil, fmt.Errorf("entry: sign: %w", err)
	}

	toHash, err := hashBytes(payload, next, c, identity, signature)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Payload:   payload,
		Next:      sortedNext(next),
		Clock:     c,
		Identity:  identity,
		Signature: signature,
		Hash:      sha256.Sum256(toHash),
	}
	return e, nil
}

// Marshal returns the canonical gob encoding of e's field tuple (every
// field except Hash), the form persisted to the content-addressed object
// store. e.Hash is the SHA-256 of exactly these bytes, so the object store
// files them under e.Hash and a peer resolving an ancestor reference can
// reconstruct the full Entry, not just its hash.
func Marshal(e *Entry) ([]byte, error) {
	return hashBytes(e.Payload, e.Next, e.Clock, e.Identity, e.Signature)
}

// Unmarshal decodes an Entry previously produced by Marshal; its Hash is
// the SHA-256 of data.
func Unmarshal(data []byte) (*Entry, error) {
	var f wireFields
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, fmt.Errorf("entry: unmarshal: %w", err)
	}
	return &Entry{
		Payload:   f.Payload,
		Next:      f.Next,
		Clock:     f.Clock,
		Identity:  f.Identity,
		Signature: f.Signature,
		Hash:      sha256.Sum256(data),
	}, nil
}

// EncodeHashes gob-encodes a head set, the form persisted to the cache's
// _heads/_localHeads slots and gossiped over the pub/sub bus.
func EncodeHashes(hashes []Hash) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(hashes); err != nil {
		return nil, fmt.Errorf("entry: encode hashes: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeHashes decodes a head set previously produced by EncodeHashes.
func DecodeHashes(data []byte) ([]Hash, error) {
	var hashes []Hash
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&hashes); err != nil {
		return nil, fmt.Errorf("entry: decode hashes: %w", err)
	}
	return hashes, nil
}

// Verify recomputes e's hash and signature and reports whether both match.
// Tampering with any field invalidates either the hash or the signature.
func Verify(e *Entry) error {
	toHash, err := hashBytes(e.Payload, e.Next, e.Clock, e.Identity, e.Signature)
	if err != nil {
		return err
	}
	if sha256.Sum256(toHash) != e.Hash {
		return fmt.Errorf("%w: hash mismatch for entry %s", orbiterr.ErrIntegrity, e.Hash)
	}

	toSign, err := signedBytes(e.Payload, e.Next, e.Clock, e.Identity)
	if err != nil {
		return err
	}
	if len(e.Identity) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: malformed identity on entry %s", orbiterr.ErrIntegrity, e.Hash)
	}
	if !ed25519.Verify(ed25519.PublicKey(e.Identity), toSign, e.Signature) {
		return fmt.Errorf("%w: signature verification failed for entry %s", orbiterr.ErrIntegrity, e.Hash)
	}
	return nil
}

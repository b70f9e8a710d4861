// Package keystore implements the signing Keystore external interface
// (spec.md §6): getKey, createKey, sign, verify, backed by ed25519 keypairs
// persisted as TOML records.
//
// The on-disk layout and load-on-init behavior mirror the teacher's
// src/key_store package (InitKeyStoreWithConfig scans a metadata directory
// of .toml files at startup); the actual payload (a keypair rather than
// file-chunk metadata) is specific to this domain. No ecosystem signing
// library is wired here across the retrieval pack (the one reference,
// i5heu-ouroboros-db's messanger package, names ed25519 only in a comment),
// so this uses the standard library's crypto/ed25519.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	logs "github.com/danmuck/smplog"
)

// Config controls runtime behavior of a KeyStore instance.
type Config struct {
	StorageDir string // root directory for persisted key records
	Verbose    bool
}

// DefaultConfig returns a Config rooted at storageDir with verbose output
// enabled, matching the teacher's key_store.DefaultConfig.
func DefaultConfig(storageDir string) Config {
	return Config{StorageDir: storageDir, Verbose: true}
}

// keyRecord is the TOML structure persisted per identity.
type keyRecord struct {
	ID         string `toml:"id"`
	PublicKey  string `toml:"public_key"`
	PrivateKey string `toml:"private_key"`
}

// KeyStore holds ed25519 keypairs keyed by a caller-chosen identity string.
type KeyStore struct {
	config Config
	lock   sync.RWMutex
	keys   map[string]ed25519.PrivateKey
}

// New creates a KeyStore with default config rooted at storageDir.
func New(storageDir string) (*KeyStore, error) {
	return NewWithConfig(DefaultConfig(storageDir))
}

// NewWithConfig creates a KeyStore with the given configuration, loading any
// previously persisted keys from cfg.StorageDir.
func NewWithConfig(cfg Config) (*KeyStore, error) {
	ks := &KeyStore{config: cfg, keys: make(map[string]ed25519.PrivateKey)}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("keystore: create storage dir: %w", err)
	}

	entries, err := os.ReadDir(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("keystore: read storage dir: %w", err)
	}

	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".toml") {
			continue
		}
		var rec keyRecord
		path := filepath.Join(cfg.StorageDir, ent.Name())
		if _, err := toml.DecodeFile(path, &rec); err != nil {
			if cfg.Verbose {
				logs.Warnf("keystore: skipping unreadable key record %s: %v", ent.Name(), err)
			}
			continue
		}
		priv, err := decodePrivateKey(rec.PrivateKey)
		if err != nil {
			if cfg.Verbose {
				logs.Warnf("keystore: skipping malformed key record %s: %v", ent.Name(), err)
			}
			continue
		}
		ks.keys[rec.ID] = priv
	}

	if cfg.Verbose {
		logs.Infof("keystore: loaded %d key(s) from %s", len(ks.keys), cfg.StorageDir)
	}
	return ks, nil
}

func decodePrivateKey(hexStr string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("hex decode: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

func (ks *KeyStore) path(id string) string {
	return filepath.Join(ks.config.StorageDir, fmt.Sprintf("%s.toml", id))
}

// GetKey returns the public key for id, or false if no such key exists.
func (ks *KeyStore) GetKey(id string) (ed25519.PublicKey, bool) {
	ks.lock.RLock()
	defer ks.lock.RUnlock()
	priv, ok := ks.keys[id]
	if !ok {
		return nil, false
	}
	return priv.Public().(ed25519.PublicKey), true
}

// CreateKey generates and persists a new ed25519 keypair for id. If a key
// already exists for id, it is returned unchanged.
func (ks *KeyStore) CreateKey(id string) (ed25519.PublicKey, error) {
	ks.lock.Lock()
	defer ks.lock.Unlock()

	if priv, ok := ks.keys[id]; ok {
		return priv.Public().(ed25519.PublicKey), nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}

	rec := keyRecord{
		ID:         id,
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(priv),
	}

	f, err := os.Create(ks.path(id))
	if err != nil {
		return nil, fmt.Errorf("keystore: create key record: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	enc.Indent = "  "
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("keystore: encode key record: %w", err)
	}

	ks.keys[id] = priv
	if ks.config.Verbose {
		logs.Infof("keystore: created key %s", id)
	}
	return pub, nil
}

// Sign returns an entry.SignFunc bound to id's private key. The caller is
// expected to have already obtained id's public key via GetKey to use as
// the entry's identity field.
func (ks *KeyStore) Sign(id string) func(payload []byte) ([]byte, error) {
	return func(payload []byte) ([]byte, error) {
		ks.lock.RLock()
		priv, ok := ks.keys[id]
		ks.lock.RUnlock()
		if !ok {
			return nil, fmt.Errorf("keystore: no such key %q", id)
		}
		return ed25519.Sign(priv, payload), nil
	}
}

// Verify reports whether signature is a valid ed25519 signature over payload
// under publicKey.
func Verify(publicKey, payload, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), payload, signature)
}

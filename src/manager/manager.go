// Package manager implements the Database Manager façade of spec.md §4.4:
// it mints addresses, resolves manifests, instantiates typed stores, and
// wires them to replication, owning the map of active stores for one
// process.
//
// Grounded on the teacher's top-level blockchain/ledger façade
// (src/api/blockchain.go, src/api/ledger.go), which plays the same
// create/open/own-the-active-set role over its own domain; generalized
// here from a single ledger to a multi-database, multi-type manager.
package manager

import (
	"encoding/hex"
	"fmt"
	"sync"

	logs "github.com/danmuck/smplog"

	"github.com/praveenmunagapati/orbit-db/src/accesscontroller"
	"github.com/praveenmunagapati/orbit-db/src/address"
	"github.com/praveenmunagapati/orbit-db/src/bus"
	"github.com/praveenmunagapati/orbit-db/src/cache"
	"github.com/praveenmunagapati/orbit-db/src/entry"
	"github.com/praveenmunagapati/orbit-db/src/keystore"
	"github.com/praveenmunagapati/orbit-db/src/manifest"
	"github.com/praveenmunagapati/orbit-db/src/objectstore"
	"github.com/praveenmunagapati/orbit-db/src/oplog"
	"github.com/praveenmunagapati/orbit-db/src/orbiterr"
	"github.com/praveenmunagapati/orbit-db/src/replication"
	"github.com/praveenmunagapati/orbit-db/src/store"
)

// Config wires a Manager's collaborators. ObjectStoreDir empty selects an
// in-memory object store; otherwise a FileStore is rooted there.
type Config struct {
	IdentityID     string
	KeystoreDir    string
	CacheDir       string
	ObjectStoreDir string
	// Objects, when set, is used directly and ObjectStoreDir is ignored.
	// Peers that must resolve each other's manifests and access
	// controllers — as in any realistic deployment, and in tests that
	// simulate several peers in one process — share an object store
	// instance or otherwise point at the same backing storage.
	Objects objectstore.Store
	Bus     bus.Bus
}

// Manager is the top-level façade: one keystore, one object store, one
// cache, one pub/sub bus, and the set of Stores currently open against
// them.
type Manager struct {
	identityID string
	keys       *keystore.KeyStore
	objects    objectstore.Store
	cache      *cache.Cache
	b          bus.Bus
	coord      *replication.Coordinator

	mu     sync.Mutex
	active map[string]*store.Store
}

// New constructs a Manager, creating the local identity key if it does not
// already exist.
func New(cfg Config) (*Manager, error) {
	ks, err := keystore.New(cfg.KeystoreDir)
	if err != nil {
		return nil, fmt.Errorf("manager: keystore: %w", err)
	}
	if _, err := ks.CreateKey(cfg.IdentityID); err != nil {
		return nil, fmt.Errorf("manager: create identity key: %w", err)
	}

	objects := cfg.Objects
	if objects == nil {
		if cfg.ObjectStoreDir == "" {
			objects = objectstore.NewMemoryStore()
		} else {
			fs, err := objectstore.NewFileStore(cfg.ObjectStoreDir)
			if err != nil {
				return nil, fmt.Errorf("manager: object store: %w", err)
			}
			objects = fs
		}
	}

	c, err := cache.Open(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("manager: cache: %w", err)
	}

	b := cfg.Bus
	if b == nil {
		b = bus.NewLocal(bus.NewHub())
	}

	return &Manager{
		identityID: cfg.IdentityID,
		keys:       ks,
		objects:    objects,
		cache:      c,
		b:          b,
		coord:      replication.New(b, objects),
		active:     make(map[string]*store.Store),
	}, nil
}

// fetch resolves an entry by hash from the manager's object store, used to
// rehydrate an Oplog from a persisted head set on Open.
func (m *Manager) fetch(h entry.Hash) (*entry.Entry, error) {
	data, err := m.objects.Get(objectstore.Hash(h))
	if err != nil {
		return nil, fmt.Errorf("manager: fetch %s: %w", h, err)
	}
	return entry.Unmarshal(data)
}

// Identity returns the manager's own public key.
func (m *Manager) Identity() []byte {
	pub, _ := m.keys.GetKey(m.identityID)
	return pub
}

// Options controls Create and Open behavior (spec.md §4.4).
type Options struct {
	// Write lists hex-encoded public keys granted the write capability at
	// Create. Defaults to [self] when empty.
	Write []string
	// Overwrite permits Create to replace an existing manifest slot.
	Overwrite bool
	// Create, when Open is given a non-address name, delegates to Create
	// using Type.
	Create bool
	// Type constrains Open to a specific database type, or selects the
	// type for an Open-triggered Create.
	Type manifest.Type
	// LocalOnly fails Open unless a manifest slot already exists in cache.
	LocalOnly bool
	// NoReplicate disables joining the replication coordinator for this
	// Store. Replication defaults to enabled.
	NoReplicate bool
}

func bucketPath(addr address.Address) (string, string) {
	return addr.Root.String(), addr.Path
}

// Create mints a new database: builds and persists its access controller,
// builds and persists its manifest, records the manifest hash in the
// cache, and opens the resulting Store.
func (m *Manager) Create(name string, dbType manifest.Type, opts Options) (*store.Store, error) {
	if address.IsValid(name) {
		return nil, fmt.Errorf("manager: create %q: %w", name, orbiterr.ErrNameIsAddress)
	}
	if !manifest.IsValidType(dbType) {
		return nil, fmt.Errorf("manager: create %q: %w: %q", name, orbiterr.ErrInvalidType, dbType)
	}

	self := m.Identity()

	ac := accesscontroller.New()
	if err := ac.Add(accesscontroller.Admin, self); err != nil {
		return nil, err
	}
	writers := opts.Write
	if len(writers) == 0 {
		writers = []string{hex.EncodeToString(self)}
	}
	for _, w := range writers {
		pub, err := hex.DecodeString(w)
		if err != nil {
			return nil, fmt.Errorf("manager: create %q: bad writer key %q: %w", name, w, err)
		}
		if err := ac.Add(accesscontroller.Write, pub); err != nil {
			return nil, err
		}
	}

	acAddr, err := ac.Save(m.objects)
	if err != nil {
		return nil, fmt.Errorf("manager: create %q: %w", name, err)
	}

	man := manifest.Manifest{Name: name, Type: dbType, AccessController: acAddr}
	manifestHash, err := manifest.Save(m.objects, man)
	if err != nil {
		return nil, fmt.Errorf("manager: create %q: %w", name, err)
	}

	addr := address.New(manifestHash, name)

	root, path := bucketPath(addr)
	bucket, err := m.cache.OpenBucket(root, path)
	if err != nil {
		return nil, fmt.Errorf("manager: create %q: %w", name, err)
	}
	if bucket.Has(cache.SlotManifest) && !opts.Overwrite {
		_ = bucket.Close()
		return nil, fmt.Errorf("manager: create %q: %w", name, orbiterr.ErrAlreadyExists)
	}
	if err := bucket.Set(cache.SlotManifest, manifestHash[:]); err != nil {
		_ = bucket.Close()
		return nil, fmt.Errorf("manager: create %q: %w", name, err)
	}
	_ = bucket.Close()

	logs.Infof("manager: created %s", addr.String())
	return m.Open(addr.String(), Options{Type: dbType, Overwrite: true, NoReplicate: opts.NoReplicate})
}

// Open opens an existing database by address, or by bare name when
// opts.Create and opts.Type are set.
func (m *Manager) Open(addr string, opts Options) (*store.Store, error) {
	if !address.IsValid(addr) {
		if opts.Create && opts.Type != "" {
			return m.Create(addr, opts.Type, Options{Write: opts.Write, Overwrite: true, NoReplicate: opts.NoReplicate})
		}
		return nil, fmt.Errorf("manager: open %q: %w", addr, orbiterr.ErrInvalidAddress)
	}

	parsed, err := address.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("manager: open %q: %w", addr, err)
	}
	key := parsed.String()

	m.mu.Lock()
	if existing, ok := m.active[key]; ok {
		m.mu.Unlock()
		if opts.Type != "" && opts.Type != existing.Type() {
			return nil, fmt.Errorf("manager: open %q: %w: active store is %q, requested %q", addr, orbiterr.ErrTypeMismatch, existing.Type(), opts.Type)
		}
		return existing, nil
	}
	m.mu.Unlock()

	root, path := bucketPath(parsed)
	bucket, err := m.cache.OpenBucket(root, path)
	if err != nil {
		return nil, fmt.Errorf("manager: open %q: %w", addr, err)
	}

	if opts.LocalOnly && !bucket.Has(cache.SlotManifest) {
		_ = bucket.Close()
		return nil, fmt.Errorf("manager: open %q: %w", addr, orbiterr.ErrNotFound)
	}

	man, err := manifest.Load(m.objects, parsed.Root)
	if err != nil {
		_ = bucket.Close()
		return nil, fmt.Errorf("manager: open %q: %w", addr, err)
	}
	if opts.Type != "" && opts.Type != man.Type {
		_ = bucket.Close()
		return nil, fmt.Errorf("manager: open %q: %w: manifest is %q, requested %q", addr, orbiterr.ErrTypeMismatch, man.Type, opts.Type)
	}

	ac, err := accesscontroller.Load(m.objects, man.AccessController)
	if err != nil {
		_ = bucket.Close()
		return nil, fmt.Errorf("manager: open %q: %w", addr, err)
	}

	if err := bucket.Set(cache.SlotManifest, parsed.Root[:]); err != nil {
		_ = bucket.Close()
		return nil, fmt.Errorf("manager: open %q: %w", addr, err)
	}

	log, err := m.loadLog(key, bucket)
	if err != nil {
		_ = bucket.Close()
		return nil, fmt.Errorf("manager: open %q: %w", addr, err)
	}
	identity := m.Identity()
	sign := m.keys.Sign(m.identityID)

	var coordinator *replication.Coordinator
	if !opts.NoReplicate {
		coordinator = m.coord
	}

	st := store.New(key, man.Type, log, ac, identity, entry.SignFunc(sign), m.objects, coordinator, bucket)
	st.OnEvent(func(event string, _ any) {
		if event == store.EventClose {
			m.mu.Lock()
			delete(m.active, key)
			m.mu.Unlock()
		}
	})

	m.mu.Lock()
	m.active[key] = st
	m.mu.Unlock()

	st.Ready()
	logs.Infof("manager: opened %s", key)
	return st, nil
}

// loadLog rehydrates an Oplog for key from the cache's _heads slot, if
// one was persisted by a prior Append (spec.md §6 _heads: "last known
// heads for fast resume"), resolving ancestry from the object store.
// A database opened for the first time has no _heads slot and starts with
// an empty, fresh Oplog.
func (m *Manager) loadLog(key string, bucket *cache.Bucket) (*oplog.Oplog, error) {
	raw, ok := bucket.Get(cache.SlotHeads)
	if !ok {
		return oplog.New(key), nil
	}
	heads, err := entry.DecodeHashes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode persisted heads: %w", err)
	}
	log, err := oplog.Load(key, heads, m.fetch)
	if err != nil {
		return nil, err
	}
	return log, nil
}

// Disconnect closes every active Store, disconnects the pub/sub bus, and
// clears the active-stores map.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	stores := make([]*store.Store, 0, len(m.active))
	for _, st := range m.active {
		stores = append(stores, st)
	}
	m.active = make(map[string]*store.Store)
	m.mu.Unlock()

	for _, st := range stores {
		if err := st.Close(); err != nil {
			logs.Warnf("manager: close %s: %v", st.Address(), err)
		}
	}
	return m.b.Close()
}

// Close disconnects and then releases the cache.
func (m *Manager) Close() error {
	if err := m.Disconnect(); err != nil {
		logs.Warnf("manager: disconnect: %v", err)
	}
	return m.cache.Close()
}

func (m *Manager) open(nameOrAddr string, dbType manifest.Type, opts Options) (*store.Store, error) {
	opts.Create = true
	opts.Type = dbType
	return m.Open(nameOrAddr, opts)
}

// Eventlog opens or creates an eventlog database.
func (m *Manager) Eventlog(nameOrAddr string, opts Options) (*store.EventLog, error) {
	st, err := m.open(nameOrAddr, manifest.EventLog, opts)
	if err != nil {
		return nil, err
	}
	return store.NewEventLog(st), nil
}

// Feed opens or creates a feed database.
func (m *Manager) Feed(nameOrAddr string, opts Options) (*store.Feed, error) {
	st, err := m.open(nameOrAddr, manifest.Feed, opts)
	if err != nil {
		return nil, err
	}
	return store.NewFeed(st), nil
}

// Keyvalue opens or creates a keyvalue database.
func (m *Manager) Keyvalue(nameOrAddr string, opts Options) (*store.KeyValue, error) {
	st, err := m.open(nameOrAddr, manifest.KeyValue, opts)
	if err != nil {
		return nil, err
	}
	return store.NewKeyValue(st), nil
}

// Counter opens or creates a counter database.
func (m *Manager) Counter(nameOrAddr string, opts Options) (*store.Counter, error) {
	st, err := m.open(nameOrAddr, manifest.Counter, opts)
	if err != nil {
		return nil, err
	}
	return store.NewCounter(st), nil
}

// Docstore opens or creates a docstore database.
func (m *Manager) Docstore(nameOrAddr string, opts Options, docCfg store.DocStoreConfig) (*store.DocStore, error) {
	st, err := m.open(nameOrAddr, manifest.DocStore, opts)
	if err != nil {
		return nil, err
	}
	return store.NewDocStore(st, docCfg), nil
}

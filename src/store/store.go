// Package store implements the Store façade of spec.md §4.5/§9: a typed
// wrapper around one Oplog exposing append / iterate / close / subscribe
// capabilities and emitting the four lifecycle events (write, ready,
// replicated, close) to listeners registered with OnEvent. Every listener
// receives every event, identified by its EventWrite/EventReady/
// EventReplicated/EventClose name string; there is no per-event typed
// listener or channel.
//
// Grounded on the teacher's src/operations/log_manager.go append/read
// split, generalized from its single append-only file log to a
// multi-writer, access-controlled oplog with replication hookup.
package store

import (
	"bytes"
	"fmt"
	"sync"

	logs "github.com/danmuck/smplog"

	"github.com/praveenmunagapati/orbit-db/src/accesscontroller"
	"github.com/praveenmunagapati/orbit-db/src/cache"
	"github.com/praveenmunagapati/orbit-db/src/entry"
	"github.com/praveenmunagapati/orbit-db/src/manifest"
	"github.com/praveenmunagapati/orbit-db/src/objectstore"
	"github.com/praveenmunagapati/orbit-db/src/oplog"
	"github.com/praveenmunagapati/orbit-db/src/replication"
)

// Event names emitted to listeners registered via OnEvent.
const (
	EventWrite      = "write"
	EventReady      = "ready"
	EventReplicated = "replicated"
	EventClose      = "close"
)

// WriteEvent is the payload of an EventWrite notification.
type WriteEvent struct {
	Address string
	Entry   *entry.Entry
	Heads   []entry.Hash
}

// Listener receives lifecycle events. data's concrete type depends on
// event: *WriteEvent for write, []entry.Hash for ready/replicated, nil for
// close.
type Listener func(event string, data any)

// Store is the common capability every adapter builds on: append a
// payload, iterate the log, close, and subscribe to lifecycle events.
type Store struct {
	address      string
	databaseType manifest.Type

	log      *oplog.Oplog
	ac       *accesscontroller.AccessController
	identity []byte
	sign     entry.SignFunc

	objects     objectstore.Store
	coordinator *replication.Coordinator
	bucket      *cache.Bucket

	mu        sync.RWMutex
	listeners []Listener
	closed    bool
}

// New constructs a Store. The caller (the Database Manager) has already
// resolved the manifest, loaded the access controller, and opened the
// cache bucket; when coordinator is non-nil, New joins it for address
// itself. objects is the content-addressed
// object store every appended entry is persisted to, so that a peer
// resolving this database's ancestry — whether itself on a later Open, or
// another peer merging over the pub/sub bus — can fetch entries by hash.
func New(address string, dbType manifest.Type, log *oplog.Oplog, ac *accesscontroller.AccessController, identity []byte, sign entry.SignFunc, objects objectstore.Store, coordinator *replication.Coordinator, bucket *cache.Bucket) *Store {
	s := &Store{
		address:      address,
		databaseType: dbType,
		log:          log,
		ac:           ac,
		identity:     identity,
		sign:         sign,
		objects:      objects,
		coordinator:  coordinator,
		bucket:       bucket,
	}
	if coordinator != nil {
		_ = coordinator.Join(address, log, ac, func(event string) {
			if event == EventReplicated {
				s.emit(EventReplicated, log.HeadHashes())
			}
		})
	}
	return s
}

func (s *Store) Address() string          { return s.address }
func (s *Store) Type() manifest.Type      { return s.databaseType }
func (s *Store) Oplog() *oplog.Oplog       { return s.log }
func (s *Store) AccessController() *accesscontroller.AccessController { return s.ac }

// OnEvent registers a listener for lifecycle events.
func (s *Store) OnEvent(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) emit(event string, data any) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(event, data)
	}
}

// Ready signals that history has loaded, per spec.md §3 Store lifecycle,
// and triggers an immediate heads publish so newly subscribed peers
// converge without waiting for the next write.
func (s *Store) Ready() {
	if s.coordinator != nil {
		s.coordinator.AnnounceNow(s.address)
	}
	s.emit(EventReady, s.log.HeadHashes())
}

// Append signs and inserts payload as a new entry, gated by the access
// controller, persists the entry to the object store so any peer can later
// resolve it by hash, updates the cache's head-set slots for fast resume,
// and announces the new heads for replication.
func (s *Store) Append(payload []byte) (*entry.Entry, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("store %s: append on closed store", s.address)
	}

	e, err := s.log.AppendChecked(payload, s.identity, s.sign, s.ac)
	if err != nil {
		return nil, err
	}

	data, err := entry.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("store %s: marshal entry %s: %w", s.address, e.Hash, err)
	}
	if _, err := s.objects.Put(data); err != nil {
		return nil, fmt.Errorf("store %s: persist entry %s: %w", s.address, e.Hash, err)
	}

	heads := s.log.HeadHashes()
	s.persistHeads(heads)
	if s.coordinator != nil {
		s.coordinator.Announce(s.address)
	}
	s.emit(EventWrite, &WriteEvent{Address: s.address, Entry: e, Heads: heads})
	return e, nil
}

// persistHeads records the full head set (for fast resume on reopen) and
// the subset of heads this identity authored (spec.md §6 _localHeads) in
// the cache bucket. Failures are logged, not returned: the entry has
// already been durably appended and persisted, and the warm-restart cache
// is an optimization, not a correctness requirement.
func (s *Store) persistHeads(heads []entry.Hash) {
	if s.bucket == nil {
		return
	}
	if encoded, err := entry.EncodeHashes(heads); err != nil {
		logs.Warnf("store %s: encode heads: %v", s.address, err)
	} else if err := s.bucket.Set(cache.SlotHeads, encoded); err != nil {
		logs.Warnf("store %s: persist heads: %v", s.address, err)
	}

	local := make([]entry.Hash, 0, len(heads))
	for _, he := range s.log.Heads() {
		if bytes.Equal(he.Identity, s.identity) {
			local = append(local, he.Hash)
		}
	}
	if encoded, err := entry.EncodeHashes(local); err != nil {
		logs.Warnf("store %s: encode local heads: %v", s.address, err)
	} else if err := s.bucket.Set(cache.SlotLocalHeads, encoded); err != nil {
		logs.Warnf("store %s: persist local heads: %v", s.address, err)
	}
}

// Iterator exposes the underlying oplog's linearized traversal directly;
// adapters layer their own projection on top.
func (s *Store) Iterator(opts oplog.IteratorOptions) []*entry.Entry {
	return s.log.Iterator(opts)
}

// Close releases the store's replication subscription and cache bucket.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.coordinator != nil {
		if err := s.coordinator.Leave(s.address); err != nil {
			logs.Warnf("store %s: leave replication: %v", s.address, err)
		}
	}
	if s.bucket != nil {
		if err := s.bucket.Close(); err != nil {
			logs.Warnf("store %s: close cache bucket: %v", s.address, err)
		}
	}
	s.emit(EventClose, nil)
	return nil
}

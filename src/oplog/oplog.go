// Package oplog implements the replicated operation log: an in-memory DAG
// of signed entries with a known head-set and a logical clock, supporting
// append, merge, and deterministic traversal (spec.md §4.2).
package oplog

import (
	"fmt"
	"sync"

	logs "github.com/danmuck/smplog"

	"github.com/praveenmunagapati/orbit-db/src/accesscontroller"
	"github.com/praveenmunagapati/orbit-db/src/clock"
	"github.com/praveenmunagapati/orbit-db/src/entry"
	"github.com/praveenmunagapati/orbit-db/src/orbiterr"
)

// FetchFunc fetches an entry by hash from the object store, used by Merge
// to resolve ancestors not yet present in the local log.
type FetchFunc func(hash entry.Hash) (*entry.Entry, error)

// Oplog holds the DAG for one database's replicated log.
type Oplog struct {
	id string

	mu       sync.Mutex
	entries  map[entry.Hash]*entry.Entry
	heads    map[entry.Hash]struct{}
	hasChild map[entry.Hash]struct{}
	maxClock uint64
}

// New returns an empty Oplog identified by id (the database address
// string).
func New(id string) *Oplog {
	return &Oplog{
		id:       id,
		entries:  make(map[entry.Hash]*entry.Entry),
		heads:    make(map[entry.Hash]struct{}),
		hasChild: make(map[entry.Hash]struct{}),
	}
}

// ID returns the database address this log belongs to.
func (o *Oplog) ID() string {
	return o.id
}

// Len returns the number of entries in the log.
func (o *Oplog) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Heads returns a snapshot copy of the current head entries.
func (o *Oplog) Heads() []*entry.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*entry.Entry, 0, len(o.heads))
	for h := range o.heads {
		cp := *o.entries[h]
		out = append(out, &cp)
	}
	return out
}

// HeadHashes returns the hashes of the current heads.
func (o *Oplog) HeadHashes() []entry.Hash {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]entry.Hash, 0, len(o.heads))
	for h := range o.heads {
		out = append(out, h)
	}
	return out
}

// Get returns the entry for hash, if present.
func (o *Oplog) Get(hash entry.Hash) (*entry.Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[hash]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// MaxClockTime returns the maximum clock.time observed in the log.
func (o *Oplog) MaxClockTime() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxClock
}

// insert adds e to the log and updates heads incrementally, per the
// find-heads algorithm of spec.md §4.2: mark every parent as having a
// child (and evict it from heads), then add e to heads unless something
// already marked e itself as having a child.
//
// Caller must hold o.mu.
func (o *Oplog) insert(e *entry.Entry) {
	cp := *e
	o.entries[e.Hash] = &cp
	if e.Clock.Time > o.maxClock {
		o.maxClock = e.Clock.Time
	}
	for _, p := range e.Next {
		o.hasChild[p] = struct{}{}
		delete(o.heads, p)
	}
	if _, hasChild := o.hasChild[e.Hash]; !hasChild {
		o.heads[e.Hash] = struct{}{}
	}
}

// build constructs a new entry whose parents are the current heads,
// without inserting it. Caller must hold o.mu.
func (o *Oplog) build(payload []byte, identity []byte, sign entry.SignFunc) (*entry.Entry, error) {
	next := make([]entry.Hash, 0, len(o.heads))
	var maxParentTime uint64
	for h := range o.heads {
		next = append(next, h)
		if p := o.entries[h]; p != nil && p.Clock.Time > maxParentTime {
			maxParentTime = p.Clock.Time
		}
	}

	c := clock.Tick(identity, maxParentTime)
	e, err := entry.Create(payload, next, c, identity, sign)
	if err != nil {
		return nil, fmt.Errorf("oplog %s: append: %w", o.id, err)
	}
	return e, nil
}

// Append builds, signs, and inserts a new entry whose parents are the
// current heads, then replaces heads with {newEntry}.
func (o *Oplog) Append(payload []byte, identity []byte, sign entry.SignFunc) (*entry.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, err := o.build(payload, identity, sign)
	if err != nil {
		return nil, err
	}
	o.insert(e)
	logs.Debugf("oplog %s: appended %s at clock.time=%d", o.id, e.Hash, e.Clock.Time)
	return e, nil
}

// AppendChecked is Append with an access-controller gate: the entry is
// built and signed first (its identity must be embedded before the
// signature, see entry.Create), then checked against ac.CanAppend before
// being inserted. A denied entry is never added to the log, satisfying
// spec.md §8 invariant 5 for local appends, not merges alone.
func (o *Oplog) AppendChecked(payload []byte, identity []byte, sign entry.SignFunc, ac *accesscontroller.AccessController) (*entry.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, err := o.build(payload, identity, sign)
	if err != nil {
		return nil, err
	}
	if ac != nil && !ac.CanAppend(e) {
		return nil, fmt.Errorf("oplog %s: append: %w: identity %x not permitted", o.id, orbiterr.ErrAccessDenied, identity)
	}
	o.insert(e)
	logs.Debugf("oplog %s: appended %s at clock.time=%d", o.id, e.Hash, e.Clock.Time)
	return e, nil
}

// parentsSatisfied reports whether every parent of e is already present in
// the log. Caller must hold o.mu.
func (o *Oplog) parentsSatisfied(e *entry.Entry) bool {
	for _, p := range e.Next {
		if _, ok := o.entries[p]; !ok {
			return false
		}
	}
	return true
}

// Load rehydrates an Oplog from a previously persisted head set, resolving
// every ancestor via fetch. Used by the database manager on Open to
// restore history across process restarts from the cache's _heads slot and
// the object store, via the same resolve-then-insert path Merge uses for
// gossiped heads. The restored entries already passed access control once
// when first appended or merged locally, so no AccessController is needed
// here.
func Load(id string, heads []entry.Hash, fetch FetchFunc) (*Oplog, error) {
	o := New(id)
	if len(heads) == 0 {
		return o, nil
	}
	if err := o.Merge(heads, fetch, nil); err != nil {
		return nil, fmt.Errorf("oplog %s: load: %w", id, err)
	}
	return o, nil
}

// Merge traverses the DAG rooted at foreignHeads, fetching unknown
// ancestors via fetch, verifying each candidate's hash, signature, and
// access-controller permission before admitting it. Entries whose ancestor
// chain cannot be fully resolved and verified are dropped without being
// inserted, preserving the invariant that no dangling reference is ever
// surfaced to a Store reader.
//
// Merge is commutative, associative, and idempotent: it is a pure function
// of the final verified entry set, independent of arrival order.
func (o *Oplog) Merge(foreignHeads []entry.Hash, fetch FetchFunc, ac *accesscontroller.AccessController) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	resolved := make(map[entry.Hash]*entry.Entry)
	visited := make(map[entry.Hash]bool)
	queue := append([]entry.Hash(nil), foreignHeads...)

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if visited[h] {
			continue
		}
		visited[h] = true
		if _, exists := o.entries[h]; exists {
			continue
		}

		e, err := fetch(h)
		if err != nil {
			logs.Warnf("oplog %s: merge: %v: fetch %s: %v", o.id, orbiterr.ErrTransport, h, err)
			continue
		}
		if e.Hash != h {
			logs.Warnf("oplog %s: merge: %v: fetched entry hash mismatch for %s", o.id, orbiterr.ErrIntegrity, h)
			continue
		}
		if err := entry.Verify(e); err != nil {
			logs.Warnf("oplog %s: merge: %v", o.id, err)
			continue
		}
		if ac != nil && !ac.CanAppend(e) {
			logs.Warnf("oplog %s: merge: %v: identity %x not permitted for entry %s", o.id, orbiterr.ErrAccessDenied, e.Identity, h)
			continue
		}

		resolved[h] = e
		for _, p := range e.Next {
			if _, ok := o.entries[p]; !ok && !visited[p] {
				queue = append(queue, p)
			}
		}
	}

	for progressed := true; progressed; {
		progressed = false
		for h, e := range resolved {
			if o.parentsSatisfied(e) {
				o.insert(e)
				delete(resolved, h)
				progressed = true
			}
		}
	}

	if len(resolved) > 0 {
		logs.Warnf("oplog %s: merge: dropping %d entr(ies) with unresolved ancestors", o.id, len(resolved))
	}
	return nil
}

// Package replication implements the Replication Coordinator of spec.md
// §4.6: on every local write it publishes the oplog's current heads to the
// address's channel on the Pub/Sub Bus after a short settle delay that
// coalesces bursts of appends into a single publish; on every inbound
// message it resolves the advertised heads' ancestry from the content
// addressed Object Store and merges it into the local oplog, notifying the
// owning Store that new entries landed. This is the §2 data flow in full:
// inbound pub/sub -> Replication Coordinator -> Object Store (fetch
// entries) -> Oplog.merge -> Store (event).
//
// Grounded on the teacher's own generalized accept/read-loop shape carried
// into src/bus, and on the log-driven replication flow of
// src/operations/log_manager.go, adapted from a single-writer append log
// to a gossiped multi-writer oplog.
package replication

import (
	"fmt"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/praveenmunagapati/orbit-db/src/accesscontroller"
	"github.com/praveenmunagapati/orbit-db/src/bus"
	"github.com/praveenmunagapati/orbit-db/src/entry"
	"github.com/praveenmunagapati/orbit-db/src/objectstore"
	"github.com/praveenmunagapati/orbit-db/src/oplog"
)

// DefaultSettleDelay bounds how long Announce waits for further local
// writes to coalesce before publishing heads.
const DefaultSettleDelay = 50 * time.Millisecond

// subscription tracks one joined address: its oplog, access controller,
// current bus subscription state, and any pending coalesced publish.
type subscription struct {
	address string
	log     *oplog.Oplog
	ac      *accesscontroller.AccessController
	onEvent func(event string)

	mu    sync.Mutex
	state bus.SubscriptionState
	timer *time.Timer
}

// Coordinator multiplexes replication for every address joined against one
// underlying Bus, resolving ancestors of gossiped heads from objects.
type Coordinator struct {
	b           bus.Bus
	objects     objectstore.Store
	settleDelay time.Duration

	mu   sync.Mutex
	subs map[string]*subscription
}

// New returns a Coordinator publishing over b and resolving ancestors from
// objects.
func New(b bus.Bus, objects objectstore.Store) *Coordinator {
	return &Coordinator{
		b:           b,
		objects:     objects,
		settleDelay: DefaultSettleDelay,
		subs:        make(map[string]*subscription),
	}
}

// Join subscribes to address's channel, merging every inbound heads
// advertisement into log and invoking onEvent("replicated") whenever the
// merge makes progress. Matches the Unsubscribed -> Subscribing ->
// Subscribed transition of spec.md §4.6.
func (c *Coordinator) Join(address string, log *oplog.Oplog, ac *accesscontroller.AccessController, onEvent func(event string)) error {
	c.mu.Lock()
	if _, exists := c.subs[address]; exists {
		c.mu.Unlock()
		return fmt.Errorf("replication: already joined %s", address)
	}
	sub := &subscription{address: address, log: log, ac: ac, onEvent: onEvent, state: bus.Subscribing}
	c.subs[address] = sub
	c.mu.Unlock()

	err := c.b.Subscribe(address, func(payload []byte) {
		c.handleMessage(sub, payload)
	})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, address)
		c.mu.Unlock()
		return fmt.Errorf("replication: subscribe %s: %w", address, err)
	}

	sub.mu.Lock()
	sub.state = bus.Subscribed
	sub.mu.Unlock()

	logs.Debugf("replication: joined %s", address)
	return nil
}

// Leave unsubscribes from address, per the Unsubscribing -> Unsubscribed
// transition.
func (c *Coordinator) Leave(address string) error {
	c.mu.Lock()
	sub, exists := c.subs[address]
	if !exists {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, address)
	c.mu.Unlock()

	sub.mu.Lock()
	sub.state = bus.Unsubscribing
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.mu.Unlock()

	err := c.b.Unsubscribe(address)

	sub.mu.Lock()
	sub.state = bus.Unsubscribed
	sub.mu.Unlock()

	logs.Debugf("replication: left %s", address)
	return err
}

// Announce schedules a coalesced publish of log's current heads for
// address: a burst of Announce calls within the settle delay collapses to
// one publish of the latest state, rather than one publish per append.
func (c *Coordinator) Announce(address string) {
	c.mu.Lock()
	sub, exists := c.subs[address]
	c.mu.Unlock()
	if !exists {
		return
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.timer = time.AfterFunc(c.settleDelay, func() {
		c.publish(sub)
	})
}

// AnnounceNow publishes log's current heads for address immediately,
// bypassing the settle delay — used by store.Store.Ready after Join to
// advertise state to peers who are already listening, and by callers that
// need a synchronous flush.
func (c *Coordinator) AnnounceNow(address string) {
	c.mu.Lock()
	sub, exists := c.subs[address]
	c.mu.Unlock()
	if !exists {
		return
	}
	c.publish(sub)
}

func (c *Coordinator) publish(sub *subscription) {
	msg := headsMessage{Heads: sub.log.HeadHashes()}
	payload, err := encodeHeads(msg)
	if err != nil {
		logs.Warnf("replication: encode heads for %s: %v", sub.address, err)
		return
	}
	if err := c.b.Publish(sub.address, payload); err != nil {
		logs.Warnf("replication: publish to %s: %v", sub.address, err)
	}
}

// fetch resolves a single ancestor hash via the content-addressed object
// store, decoding the entry persisted there by whichever peer first
// appended it (store.Store.Append persists every entry it creates).
func (c *Coordinator) fetch(h entry.Hash) (*entry.Entry, error) {
	data, err := c.objects.Get(objectstore.Hash(h))
	if err != nil {
		return nil, fmt.Errorf("replication: fetch %s: %w", h, err)
	}
	return entry.Unmarshal(data)
}

func (c *Coordinator) handleMessage(sub *subscription, payload []byte) {
	msg, err := decodeHeads(payload)
	if err != nil {
		logs.Warnf("replication: %s: %v", sub.address, err)
		return
	}

	before := sub.log.Len()
	if err := sub.log.Merge(msg.Heads, c.fetch, sub.ac); err != nil {
		logs.Warnf("replication: merge on %s: %v", sub.address, err)
		return
	}
	if sub.log.Len() != before && sub.onEvent != nil {
		sub.onEvent("replicated")
	}
}

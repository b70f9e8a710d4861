package replication

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/praveenmunagapati/orbit-db/src/accesscontroller"
	"github.com/praveenmunagapati/orbit-db/src/bus"
	"github.com/praveenmunagapati/orbit-db/src/entry"
	"github.com/praveenmunagapati/orbit-db/src/objectstore"
	"github.com/praveenmunagapati/orbit-db/src/oplog"
)

type testIdentity struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestIdentity(t *testing.T) testIdentity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return testIdentity{pub: pub, priv: priv}
}

func (id testIdentity) sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(id.priv, payload), nil
}

func openAC(ids ...testIdentity) *accesscontroller.AccessController {
	ac := accesscontroller.New()
	for _, id := range ids {
		_ = ac.Add(accesscontroller.Write, id.pub)
	}
	return ac
}

// appendAndPersist appends payload to log and stores its canonical
// encoding in objects, standing in for store.Store.Append's persistence
// step since these tests drive the Oplog directly.
func appendAndPersist(t *testing.T, log *oplog.Oplog, objects objectstore.Store, payload []byte, id testIdentity, ac *accesscontroller.AccessController) *entry.Entry {
	t.Helper()
	e, err := log.AppendChecked(payload, id.pub, entry.SignFunc(id.sign), ac)
	if err != nil {
		t.Fatalf("AppendChecked: %v", err)
	}
	data, err := entry.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := objects.Put(data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return e
}

func waitUntil(t *testing.T, timeout time.Duration, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if done() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// Two peers, joined to the same address over a shared in-process Hub,
// converge after one peer announces its local writes.
func TestJoinThenAnnouncePropagates(t *testing.T) {
	id := newTestIdentity(t)
	ac := openAC(id)
	hub := bus.NewHub()
	objects := objectstore.NewMemoryStore()

	aBus := bus.NewLocal(hub)
	bBus := bus.NewLocal(hub)
	aCoord := New(aBus, objects)
	bCoord := New(bBus, objects)

	aLog := oplog.New("addr-1")
	bLog := oplog.New("addr-1")

	if err := aCoord.Join("addr-1", aLog, ac, func(string) {}); err != nil {
		t.Fatalf("a Join: %v", err)
	}
	replicated := make(chan struct{}, 1)
	if err := bCoord.Join("addr-1", bLog, ac, func(event string) {
		if event == "replicated" {
			replicated <- struct{}{}
		}
	}); err != nil {
		t.Fatalf("b Join: %v", err)
	}

	for _, p := range []string{"one", "two", "three"} {
		appendAndPersist(t, aLog, objects, []byte(p), id, ac)
		aCoord.Announce("addr-1")
	}

	select {
	case <-replicated:
	case <-time.After(2 * time.Second):
		t.Fatalf("b never observed a replicated event")
	}
	waitUntil(t, 2*time.Second, func() bool { return bLog.Len() == 3 })
}

// A burst of Announce calls within the settle delay collapses into a
// single publish rather than one per append.
func TestAnnounceCoalescesBurstsOfWrites(t *testing.T) {
	id := newTestIdentity(t)
	ac := openAC(id)
	hub := bus.NewHub()
	objects := objectstore.NewMemoryStore()

	aBus := bus.NewLocal(hub)
	bBus := bus.NewLocal(hub)
	counterBus := bus.NewLocal(hub)
	aCoord := New(aBus, objects)
	bCoord := New(bBus, objects)

	aLog := oplog.New("addr-2")
	bLog := oplog.New("addr-2")

	if err := aCoord.Join("addr-2", aLog, ac, func(string) {}); err != nil {
		t.Fatalf("a Join: %v", err)
	}

	deliveries := 0
	if err := counterBus.Subscribe("addr-2", func([]byte) { deliveries++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bCoord.Join("addr-2", bLog, ac, func(string) {}); err != nil {
		t.Fatalf("b Join: %v", err)
	}

	for i := 0; i < 5; i++ {
		appendAndPersist(t, aLog, objects, []byte("x"), id, ac)
		aCoord.Announce("addr-2")
	}

	waitUntil(t, 2*time.Second, func() bool { return bLog.Len() == 5 })
	if deliveries != 1 {
		t.Fatalf("deliveries = %d, want exactly 1 coalesced publish", deliveries)
	}
}

// Cold-start convergence: A writes a batch and disconnects (Leave); B
// joins later, and once A rejoins and calls AnnounceNow, B resolves the
// entire ancestor chain from that single heads message by fetching every
// ancestor from the shared object store.
func TestColdStartLateJoinConverges(t *testing.T) {
	id := newTestIdentity(t)
	ac := openAC(id)
	hub := bus.NewHub()
	objects := objectstore.NewMemoryStore()

	aBus := bus.NewLocal(hub)
	aCoord := New(aBus, objects)
	aLog := oplog.New("addr-3")

	if err := aCoord.Join("addr-3", aLog, ac, func(string) {}); err != nil {
		t.Fatalf("a Join: %v", err)
	}
	for i := 0; i < 50; i++ {
		appendAndPersist(t, aLog, objects, []byte("e"), id, ac)
	}
	if err := aCoord.Leave("addr-3"); err != nil {
		t.Fatalf("a Leave: %v", err)
	}

	bBus := bus.NewLocal(hub)
	bCoord := New(bBus, objects)
	bLog := oplog.New("addr-3")
	if err := bCoord.Join("addr-3", bLog, ac, func(string) {}); err != nil {
		t.Fatalf("b Join: %v", err)
	}

	if err := aCoord.Join("addr-3", aLog, ac, func(string) {}); err != nil {
		t.Fatalf("a rejoin: %v", err)
	}
	aCoord.AnnounceNow("addr-3")

	waitUntil(t, 2*time.Second, func() bool { return bLog.Len() == 50 })
}

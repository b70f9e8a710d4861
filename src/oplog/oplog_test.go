package oplog

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/praveenmunagapati/orbit-db/src/accesscontroller"
	"github.com/praveenmunagapati/orbit-db/src/entry"
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

func openAC(t *testing.T, ids ...testIdentity) *accesscontroller.AccessController {
	t.Helper()
	ac := accesscontroller.New()
	for _, id := range ids {
		if err := ac.Add(accesscontroller.Write, id.pub); err != nil {
			t.Fatalf("ac.Add: %v", err)
		}
	}
	return ac
}

func TestAppendAdvancesHeads(t *testing.T) {
	alice := newTestIdentity(t)
	log := New("test")

	e1, err := log.Append([]byte("one"), alice.pub, alice.sign)
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if e1.Clock.Time != 1 {
		t.Fatalf("first entry clock.time = %d, want 1", e1.Clock.Time)
	}

	e2, err := log.Append([]byte("two"), alice.pub, alice.sign)
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if e2.Clock.Time != 2 {
		t.Fatalf("second entry clock.time = %d, want 2", e2.Clock.Time)
	}

	heads := log.HeadHashes()
	if len(heads) != 1 || heads[0] != e2.Hash {
		t.Fatalf("heads after 2 appends = %v, want [%s]", heads, e2.Hash)
	}
	if log.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", log.Len())
	}
}

func TestAppendCheckedRejectsUnpermittedIdentity(t *testing.T) {
	alice := newTestIdentity(t)
	bob := newTestIdentity(t)
	ac := openAC(t, alice)

	log := New("priv")
	if _, err := log.AppendChecked([]byte("mine"), bob.pub, bob.sign, ac); err == nil {
		t.Fatalf("AppendChecked: expected access denial for unpermitted identity")
	}
	if log.Len() != 0 {
		t.Fatalf("log.Len() = %d after denied append, want 0", log.Len())
	}
}

func TestMergeConvergesTwoPeers(t *testing.T) {
	alice := newTestIdentity(t)
	bob := newTestIdentity(t)
	ac := openAC(t, alice, bob)

	a := New("sync-1")
	b := New("sync-1")

	for _, p := range []string{"a1", "a2", "a3"} {
		if _, err := a.AppendChecked([]byte(p), alice.pub, alice.sign, ac); err != nil {
			t.Fatalf("a append %s: %v", p, err)
		}
	}
	for _, p := range []string{"b1", "b2"} {
		if _, err := b.AppendChecked([]byte(p), bob.pub, bob.sign, ac); err != nil {
			t.Fatalf("b append %s: %v", p, err)
		}
	}

	fetchFrom := func(src *Oplog) FetchFunc {
		return func(h entry.Hash) (*entry.Entry, error) {
			e, ok := src.Get(h)
			if !ok {
				return nil, errNotFoundTest
			}
			return e, nil
		}
	}

	if err := a.Merge(b.HeadHashes(), fetchFrom(b), ac); err != nil {
		t.Fatalf("a.Merge(b): %v", err)
	}
	if err := b.Merge(a.HeadHashes(), fetchFrom(a), ac); err != nil {
		t.Fatalf("b.Merge(a): %v", err)
	}

	// a's merge fetched from b's pre-merge state, so a now has everything;
	// b's merge against a (already containing b's own entries) also
	// resolves fully since a.Get exposes entries a merged in.
	if a.Len() != 5 {
		t.Fatalf("a.Len() after merge = %d, want 5", a.Len())
	}

	aPayloads := payloadsOf(a.Iterator(IteratorOptions{Limit: -1}))
	bPayloads := payloadsOf(b.Iterator(IteratorOptions{Limit: -1}))
	if len(bPayloads) != 5 {
		t.Fatalf("b.Len() after merge = %d, want 5", len(bPayloads))
	}
	if !equalStrings(aPayloads, bPayloads) {
		t.Fatalf("converged logs differ: a=%v b=%v", aPayloads, bPayloads)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	alice := newTestIdentity(t)
	ac := openAC(t, alice)

	source := New("idem")
	for _, p := range []string{"x", "y", "z"} {
		if _, err := source.AppendChecked([]byte(p), alice.pub, alice.sign, ac); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	dest := New("idem")
	fetch := func(h entry.Hash) (*entry.Entry, error) {
		e, ok := source.Get(h)
		if !ok {
			return nil, errNotFoundTest
		}
		return e, nil
	}

	if err := dest.Merge(source.HeadHashes(), fetch, ac); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	first := payloadsOf(dest.Iterator(IteratorOptions{Limit: -1}))

	if err := dest.Merge(source.HeadHashes(), fetch, ac); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	second := payloadsOf(dest.Iterator(IteratorOptions{Limit: -1}))

	if !equalStrings(first, second) {
		t.Fatalf("merge not idempotent: %v vs %v", first, second)
	}
}

func TestMergeIsCommutative(t *testing.T) {
	alice := newTestIdentity(t)
	bob := newTestIdentity(t)
	carol := newTestIdentity(t)
	ac := openAC(t, alice, bob, carol)

	base := New("commute")
	for _, p := range []string{"l1", "l2"} {
		if _, err := base.AppendChecked([]byte(p), alice.pub, alice.sign, ac); err != nil {
			t.Fatalf("base append %s: %v", p, err)
		}
	}

	fetchFrom := func(src *Oplog) FetchFunc {
		return func(h entry.Hash) (*entry.Entry, error) {
			e, ok := src.Get(h)
			if !ok {
				return nil, errNotFoundTest
			}
			return e, nil
		}
	}

	branchA := New("commute")
	if err := branchA.Merge(base.HeadHashes(), fetchFrom(base), ac); err != nil {
		t.Fatalf("branchA seed merge: %v", err)
	}
	for _, p := range []string{"a1", "a2"} {
		if _, err := branchA.AppendChecked([]byte(p), bob.pub, bob.sign, ac); err != nil {
			t.Fatalf("branchA append %s: %v", p, err)
		}
	}

	branchB := New("commute")
	if err := branchB.Merge(base.HeadHashes(), fetchFrom(base), ac); err != nil {
		t.Fatalf("branchB seed merge: %v", err)
	}
	if _, err := branchB.AppendChecked([]byte("b1"), carol.pub, carol.sign, ac); err != nil {
		t.Fatalf("branchB append b1: %v", err)
	}

	fetchEither := func(h entry.Hash) (*entry.Entry, error) {
		if e, ok := branchA.Get(h); ok {
			return e, nil
		}
		if e, ok := branchB.Get(h); ok {
			return e, nil
		}
		if e, ok := base.Get(h); ok {
			return e, nil
		}
		return nil, errNotFoundTest
	}

	// merge(merge(L,A),B)
	ab := New("commute")
	if err := ab.Merge(base.HeadHashes(), fetchEither, ac); err != nil {
		t.Fatalf("ab seed merge: %v", err)
	}
	if err := ab.Merge(branchA.HeadHashes(), fetchEither, ac); err != nil {
		t.Fatalf("ab merge A: %v", err)
	}
	if err := ab.Merge(branchB.HeadHashes(), fetchEither, ac); err != nil {
		t.Fatalf("ab merge B: %v", err)
	}

	// merge(merge(L,B),A)
	ba := New("commute")
	if err := ba.Merge(base.HeadHashes(), fetchEither, ac); err != nil {
		t.Fatalf("ba seed merge: %v", err)
	}
	if err := ba.Merge(branchB.HeadHashes(), fetchEither, ac); err != nil {
		t.Fatalf("ba merge B: %v", err)
	}
	if err := ba.Merge(branchA.HeadHashes(), fetchEither, ac); err != nil {
		t.Fatalf("ba merge A: %v", err)
	}

	abPayloads := payloadsOf(ab.Iterator(IteratorOptions{Limit: -1}))
	baPayloads := payloadsOf(ba.Iterator(IteratorOptions{Limit: -1}))
	if len(abPayloads) != 5 {
		t.Fatalf("converged length = %d, want 5", len(abPayloads))
	}
	if !equalStrings(abPayloads, baPayloads) {
		t.Fatalf("merge not commutative: merge(merge(L,A),B)=%v vs merge(merge(L,B),A)=%v", abPayloads, baPayloads)
	}
}

func TestHeadConsistency(t *testing.T) {
	alice := newTestIdentity(t)
	log := New("heads")
	for i := 0; i < 10; i++ {
		if _, err := log.Append([]byte{byte(i)}, alice.pub, alice.sign); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	heads := make(map[entry.Hash]struct{})
	for _, h := range log.HeadHashes() {
		heads[h] = struct{}{}
	}

	all := log.Iterator(IteratorOptions{Limit: -1})
	childOf := make(map[entry.Hash]struct{})
	for _, e := range all {
		for _, p := range e.Next {
			childOf[p] = struct{}{}
		}
	}

	for _, e := range all {
		_, isHead := heads[e.Hash]
		_, hasChild := childOf[e.Hash]
		if isHead == hasChild {
			t.Fatalf("entry %s: isHead=%v hasChild=%v, want exactly one", e.Hash, isHead, hasChild)
		}
	}
}

var errNotFoundTest = fmtErrorNotFound()

func fmtErrorNotFound() error {
	return &notFoundErr{}
}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "oplog test: entry not found" }

func payloadsOf(entries []*entry.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Payload)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

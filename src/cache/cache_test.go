package cache

import "testing"

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBucketSetGet(t *testing.T) {
	c := openTestCache(t)
	b, err := c.OpenBucket("root1", "db1")
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	defer b.Close()

	if b.Has(SlotManifest) {
		t.Fatalf("fresh bucket should not have a manifest slot")
	}
	if err := b.Set(SlotManifest, []byte("hash-bytes")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := b.Get(SlotManifest)
	if !ok || string(got) != "hash-bytes" {
		t.Fatalf("Get after Set = (%q, %v), want (\"hash-bytes\", true)", got, ok)
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	c := openTestCache(t)
	a, err := c.OpenBucket("root1", "db1")
	if err != nil {
		t.Fatalf("OpenBucket a: %v", err)
	}
	defer a.Close()
	b, err := c.OpenBucket("root1", "db2")
	if err != nil {
		t.Fatalf("OpenBucket b: %v", err)
	}
	defer b.Close()

	if err := a.Set(SlotManifest, []byte("a")); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if b.Has(SlotManifest) {
		t.Fatalf("bucket b should not see bucket a's slot")
	}
}

func TestOpenBucketExclusivity(t *testing.T) {
	c := openTestCache(t)
	b, err := c.OpenBucket("root1", "db1")
	if err != nil {
		t.Fatalf("first OpenBucket: %v", err)
	}
	if _, err := c.OpenBucket("root1", "db1"); err == nil {
		t.Fatalf("second OpenBucket on the same key should fail while held")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.OpenBucket("root1", "db1"); err != nil {
		t.Fatalf("OpenBucket after release: %v", err)
	}
}

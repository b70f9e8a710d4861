package objectstore

import (
	"errors"
	"testing"
)

func TestMemoryStorePutGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	h, err := s.Put([]byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if h != Sum([]byte("payload")) {
		t.Fatalf("Put returned %s, want %s", h, Sum([]byte("payload")))
	}
	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("Get = %q, want %q", got, "payload")
	}
}

func TestMemoryStoreGetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(Hash{0xff}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want %v", err, ErrNotFound)
	}
}

func TestFileStorePutGetRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	h, err := s.Put([]byte("on disk"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "on disk" {
		t.Fatalf("Get = %q, want %q", got, "on disk")
	}
}

func TestFileStoreGetMissingReturnsNotFound(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := s.Get(Hash{0xaa}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want %v", err, ErrNotFound)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	h1, _ := s.Put([]byte("same"))
	h2, _ := s.Put([]byte("same"))
	if h1 != h2 {
		t.Fatalf("Put of identical content returned different hashes: %s vs %s", h1, h2)
	}
}

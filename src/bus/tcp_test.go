package bus

import (
	"sync"
	"testing"
	"time"
)

func TestTCPPublishDeliversOverNetwork(t *testing.T) {
	server := NewTCP("127.0.0.1:0")
	if err := server.ListenAndAccept(); err != nil {
		t.Fatalf("server ListenAndAccept: %v", err)
	}
	defer server.Close()
	addr := server.listener.Addr().String()

	var mu sync.Mutex
	var got []byte
	received := make(chan struct{}, 1)
	if err := server.Subscribe("chan-1", func(payload []byte) {
		mu.Lock()
		got = payload
		mu.Unlock()
		received <- struct{}{}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	client := NewTCP("127.0.0.1:0")
	client.AddPeer(addr)
	if err := client.Publish("chan-1", []byte("ping")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatalf("message not delivered within timeout")
	}
	mu.Lock()
	defer mu.Unlock()
	if string(got) != "ping" {
		t.Fatalf("got %q, want %q", got, "ping")
	}
}

func TestTCPSubscribeTwiceFails(t *testing.T) {
	b := NewTCP("127.0.0.1:0")
	noop := func([]byte) {}
	if err := b.Subscribe("chan-2", noop); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	if err := b.Subscribe("chan-2", noop); err == nil {
		t.Fatalf("second Subscribe on the same channel succeeded, want error")
	}
}

func TestTCPUnsubscribeThenSubscribeAgain(t *testing.T) {
	b := NewTCP("127.0.0.1:0")
	noop := func([]byte) {}
	if err := b.Subscribe("chan-3", noop); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Unsubscribe("chan-3"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := b.Subscribe("chan-3", noop); err != nil {
		t.Fatalf("Subscribe after Unsubscribe: %v", err)
	}
}

func TestTCPAddRemovePeer(t *testing.T) {
	b := NewTCP("127.0.0.1:0")
	b.AddPeer("127.0.0.1:9999")
	if got := b.Peers(""); len(got) != 1 {
		t.Fatalf("Peers() after AddPeer = %v, want 1 entry", got)
	}
	b.RemovePeer("127.0.0.1:9999")
	if got := b.Peers(""); len(got) != 0 {
		t.Fatalf("Peers() after RemovePeer = %v, want 0 entries", got)
	}
}

package bus

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
)

// TCP is a real network gossip Bus: every peer dials every other known
// peer and broadcasts publishes to all of them. Structurally this is the
// teacher's transport.TCPHandler (listen/accept loop bounded by a 500ms
// deadline against an exit channel, one goroutine per connection) plus the
// teacher's nodes.DefaultRouter (a mutex-guarded map of known peer
// addresses) generalized from single-RPC delivery to topic-addressed
// gossip.
type TCP struct {
	address  string
	listener net.Listener
	exit     chan struct{}

	peersMu sync.Mutex
	peers   map[string]struct{} // known peer addresses

	subsMu sync.Mutex
	subs   map[string]OnMessage // channel -> handler, Subscribed only
}

// NewTCP creates a TCP bus bound to address. Call ListenAndAccept to begin
// serving inbound gossip.
func NewTCP(address string) *TCP {
	return &TCP{
		address: address,
		exit:    make(chan struct{}),
		peers:   make(map[string]struct{}),
		subs:    make(map[string]OnMessage),
	}
}

// AddPeer registers a known peer address to gossip to, generalizing
// nodes.DefaultRouter.InsertNode.
func (t *TCP) AddPeer(address string) {
	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	t.peers[address] = struct{}{}
}

// RemovePeer drops a peer address.
func (t *TCP) RemovePeer(address string) {
	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	delete(t.peers, address)
}

// ListenAndAccept starts the accept loop, mirroring
// transport.TCPHandler.ListenAndAccept.
func (t *TCP) ListenAndAccept() error {
	logs.Debugf("bus/tcp: ListenAndAccept(%s)", t.address)
	var err error
	t.listener, err = net.Listen("tcp", t.address)
	if err != nil {
		return fmt.Errorf("bus/tcp: listen: %w", err)
	}
	go t.acceptConnections()
	return nil
}

func (t *TCP) acceptConnections() {
	defer t.listener.Close()
	for {
		select {
		case <-t.exit:
			return
		default:
			if tl, ok := t.listener.(*net.TCPListener); ok {
				tl.SetDeadline(time.Now().Add(500 * time.Millisecond))
			}
			conn, err := t.listener.Accept()
			if err != nil {
				if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
					continue
				}
				logs.Warnf("bus/tcp: accept: %v", err)
				return
			}
			go t.handleConnection(conn)
		}
	}
}

func (t *TCP) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		select {
		case <-t.exit:
			return
		default:
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			}
			if _, err := reader.Peek(1); err != nil {
				if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
					continue
				}
				return
			}
			env, err := decodeEnvelope(reader)
			if err != nil {
				logs.Warnf("bus/tcp: decode: %v", err)
				return
			}
			t.deliver(env)
		}
	}
}

func (t *TCP) deliver(env envelope) {
	t.subsMu.Lock()
	handler, ok := t.subs[env.Channel]
	t.subsMu.Unlock()
	if ok {
		handler(env.Payload)
	}
}

func (t *TCP) Subscribe(channel string, onMessage OnMessage) error {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	if _, exists := t.subs[channel]; exists {
		return fmt.Errorf("bus/tcp: already subscribed to %s", channel)
	}
	t.subs[channel] = onMessage
	logs.Debugf("bus/tcp: subscribed to %s", channel)
	return nil
}

func (t *TCP) Unsubscribe(channel string) error {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	delete(t.subs, channel)
	logs.Debugf("bus/tcp: unsubscribed from %s", channel)
	return nil
}

func (t *TCP) Publish(channel string, payload []byte) error {
	env := envelope{Channel: channel, Payload: payload}
	wire, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	t.peersMu.Lock()
	addrs := make([]string, 0, len(t.peers))
	for a := range t.peers {
		addrs = append(addrs, a)
	}
	t.peersMu.Unlock()

	var lastErr error
	for _, addr := range addrs {
		if err := t.sendTo(addr, wire); err != nil {
			logs.Warnf("bus/tcp: publish to %s: %v", addr, err)
			lastErr = err
		}
	}
	return lastErr
}

func (t *TCP) sendTo(addr string, wire []byte) error {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write(wire); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (t *TCP) Peers(channel string) []string {
	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	out := make([]string, 0, len(t.peers))
	for a := range t.peers {
		out = append(out, a)
	}
	return out
}

func (t *TCP) Close() error {
	close(t.exit)
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}

package bus

import (
	"fmt"
	"sync"

	logs "github.com/danmuck/smplog"
)

// subscriber is one channel's inbound delivery queue, generalizing the
// teacher's transport.TCPHandler: an inbound channel drained by a single
// goroutine, closed via an exit channel on Unsubscribe.
type subscriber struct {
	state   SubscriptionState
	inbound chan []byte
	exit    chan struct{}
}

// hub is the process-wide registry Local instances publish into and
// subscribe from; multiple Local Bus handles sharing a Hub emulate
// multiple peers exchanging gossip within one process, which is how the
// test suite exercises two-peer convergence (spec.md §8 S2, S6) without a
// real network.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]*subscriber
}

// NewHub returns an empty shared message hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]*subscriber)}
}

// Local is an in-process Bus backed by a Hub.
type Local struct {
	hub *Hub

	mu      sync.Mutex
	channel map[string]*subscriber
}

// NewLocal returns a Local bus handle attached to hub. Multiple NewLocal
// calls against the same hub act as independent peers.
func NewLocal(hub *Hub) *Local {
	return &Local{hub: hub, channel: make(map[string]*subscriber)}
}

func (l *Local) Subscribe(channel string, onMessage OnMessage) error {
	l.mu.Lock()
	if _, exists := l.channel[channel]; exists {
		l.mu.Unlock()
		return fmt.Errorf("bus: already subscribed to %s", channel)
	}
	sub := &subscriber{
		state:   Subscribing,
		inbound: make(chan []byte, 64),
		exit:    make(chan struct{}),
	}
	l.channel[channel] = sub
	l.mu.Unlock()

	l.hub.mu.Lock()
	l.hub.subs[channel] = append(l.hub.subs[channel], sub)
	l.hub.mu.Unlock()

	sub.state = Subscribed
	go func() {
		for {
			select {
			case <-sub.exit:
				return
			case payload := <-sub.inbound:
				onMessage(payload)
			}
		}
	}()

	logs.Debugf("bus: subscribed to %s", channel)
	return nil
}

func (l *Local) Unsubscribe(channel string) error {
	l.mu.Lock()
	sub, exists := l.channel[channel]
	if !exists {
		l.mu.Unlock()
		return nil
	}
	delete(l.channel, channel)
	l.mu.Unlock()

	sub.state = Unsubscribing
	close(sub.exit)
	sub.state = Unsubscribed

	l.hub.mu.Lock()
	peers := l.hub.subs[channel]
	for i, s := range peers {
		if s == sub {
			l.hub.subs[channel] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	l.hub.mu.Unlock()

	logs.Debugf("bus: unsubscribed from %s", channel)
	return nil
}

func (l *Local) Publish(channel string, payload []byte) error {
	l.hub.mu.Lock()
	peers := append([]*subscriber(nil), l.hub.subs[channel]...)
	l.hub.mu.Unlock()

	for _, sub := range peers {
		if sub.state != Subscribed {
			continue
		}
		select {
		case sub.inbound <- payload:
		default:
			logs.Warnf("bus: slow subscriber on %s, dropping message", channel)
		}
	}
	return nil
}

func (l *Local) Peers(channel string) []string {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	n := len(l.hub.subs[channel])
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("peer-%d", i)
	}
	return out
}

func (l *Local) Close() error {
	l.mu.Lock()
	channels := make([]string, 0, len(l.channel))
	for ch := range l.channel {
		channels = append(channels, ch)
	}
	l.mu.Unlock()
	for _, ch := range channels {
		_ = l.Unsubscribe(ch)
	}
	return nil
}

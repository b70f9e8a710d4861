// Package bus implements the Pub/Sub Bus external interface (spec.md §6):
// subscribe(channel, onMessage), unsubscribe(channel), publish(channel,
// payload), peers(channel).
//
// Two implementations are provided: Local, an in-process hub generalizing
// the teacher's channel-based inbound-queue pattern
// (transport.TCPHandler.ProcessRPC) for single-process tests and demos; and
// TCP, a real network gossip transport built directly on the teacher's
// transport.TCPHandler and nodes.KademliaRouter-style peer bookkeeping.
package bus

// OnMessage is invoked for every message received on a subscribed channel.
// Messages are best-effort: duplicates and reordering are permitted, which
// the replication coordinator tolerates via merge idempotence.
type OnMessage func(payload []byte)

// Bus is the pub/sub transport contract.
type Bus interface {
	Subscribe(channel string, onMessage OnMessage) error
	Unsubscribe(channel string) error
	Publish(channel string, payload []byte) error
	Peers(channel string) []string
	Close() error
}

// SubscriptionState is the per-channel state machine of spec.md §4.6:
// Unsubscribed -> Subscribing -> Subscribed -> Unsubscribing -> Unsubscribed.
// Only Subscribed sends or receives.
type SubscriptionState int

const (
	Unsubscribed SubscriptionState = iota
	Subscribing
	Subscribed
	Unsubscribing
)

func (s SubscriptionState) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Unsubscribing:
		return "unsubscribing"
	default:
		return "unknown"
	}
}

package store

import "github.com/praveenmunagapati/orbit-db/src/oplog"

// EventLog projects the log as a plain linearized append-only sequence
// (spec.md §4.5).
type EventLog struct {
	*Store
}

// NewEventLog wraps s as an EventLog adapter.
func NewEventLog(s *Store) *EventLog {
	return &EventLog{Store: s}
}

// Add appends payload to the log.
func (e *EventLog) Add(payload []byte) ([]byte, error) {
	entry, err := e.Append(payload)
	if err != nil {
		return nil, err
	}
	h := entry.Hash
	return h[:], nil
}

// All returns every payload in causal order.
func (e *EventLog) All() [][]byte {
	entries := e.Iterator(oplog.IteratorOptions{Limit: -1})
	out := make([][]byte, len(entries))
	for i, ent := range entries {
		out[i] = ent.Payload
	}
	return out
}

package store

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/praveenmunagapati/orbit-db/src/entry"
	"github.com/praveenmunagapati/orbit-db/src/oplog"
)

// feedOp distinguishes an add from a tombstone within a feed's payload
// framing. Deletion semantics are not fully pinned down upstream; per
// spec.md §9 this implementation resolves the open question as tombstone
// entries referencing a prior entry hash.
type feedOp string

const (
	feedAdd    feedOp = "add"
	feedDelete feedOp = "delete"
)

type feedRecord struct {
	Op     feedOp
	Data   []byte
	Target entry.Hash // set only when Op == feedDelete
}

func encodeFeedRecord(r feedRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("store/feed: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFeedRecord(payload []byte) (feedRecord, error) {
	var r feedRecord
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&r); err != nil {
		return feedRecord{}, fmt.Errorf("store/feed: decode: %w", err)
	}
	return r, nil
}

// Feed projects the log as an append-only sequence with tombstone-based
// deletion (spec.md §4.5, §9 open question).
type Feed struct {
	*Store
}

// NewFeed wraps s as a Feed adapter.
func NewFeed(s *Store) *Feed {
	return &Feed{Store: s}
}

// Add appends data as a new feed item, returning its entry hash.
func (f *Feed) Add(data []byte) (entry.Hash, error) {
	payload, err := encodeFeedRecord(feedRecord{Op: feedAdd, Data: data})
	if err != nil {
		return entry.Hash{}, err
	}
	e, err := f.Append(payload)
	if err != nil {
		return entry.Hash{}, err
	}
	return e.Hash, nil
}

// Remove appends a tombstone marking target as deleted.
func (f *Feed) Remove(target entry.Hash) error {
	payload, err := encodeFeedRecord(feedRecord{Op: feedDelete, Target: target})
	if err != nil {
		return err
	}
	_, err = f.Append(payload)
	return err
}

// All returns every non-deleted item's data, in causal order.
func (f *Feed) All() [][]byte {
	entries := f.Iterator(oplog.IteratorOptions{Limit: -1})

	tombstoned := make(map[entry.Hash]struct{})
	records := make(map[entry.Hash]feedRecord, len(entries))
	for _, e := range entries {
		r, err := decodeFeedRecord(e.Payload)
		if err != nil {
			continue
		}
		records[e.Hash] = r
		if r.Op == feedDelete {
			tombstoned[r.Target] = struct{}{}
		}
	}

	out := make([][]byte, 0, len(entries))
	for _, e := range entries {
		r, ok := records[e.Hash]
		if !ok || r.Op != feedAdd {
			continue
		}
		if _, deleted := tombstoned[e.Hash]; deleted {
			continue
		}
		out = append(out, r.Data)
	}
	return out
}

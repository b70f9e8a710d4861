package store

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"

	"github.com/praveenmunagapati/orbit-db/src/oplog"
)

type counterRecord struct {
	// Total is the author's cumulative count as of this entry, not a
	// delta: a G-counter's per-identity state is monotonic, so the
	// highest Total an identity has ever published is already its
	// maximum, and Value only needs to sum across identities.
	Total uint64
}

func encodeCounterRecord(r counterRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("store/counter: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeCounterRecord(payload []byte) (counterRecord, error) {
	var r counterRecord
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&r); err != nil {
		return counterRecord{}, fmt.Errorf("store/counter: decode: %w", err)
	}
	return r, nil
}

// Counter projects the log as a G-counter: the sum over a
// {identity -> max(Total)} map (spec.md §4.5).
type Counter struct {
	*Store
}

// NewCounter wraps s as a Counter adapter.
func NewCounter(s *Store) *Counter {
	return &Counter{Store: s}
}

// Inc appends an increment of amount authored by the local identity,
// advancing this identity's published Total by amount.
func (c *Counter) Inc(amount uint64) error {
	current := c.identityMax(hex.EncodeToString(c.identity))
	payload, err := encodeCounterRecord(counterRecord{Total: current + amount})
	if err != nil {
		return err
	}
	_, err = c.Append(payload)
	return err
}

func (c *Counter) identityMax(identityHex string) uint64 {
	entries := c.Iterator(oplog.IteratorOptions{Limit: -1})
	var max uint64
	for _, e := range entries {
		if hex.EncodeToString(e.Identity) != identityHex {
			continue
		}
		r, err := decodeCounterRecord(e.Payload)
		if err != nil {
			continue
		}
		if r.Total > max {
			max = r.Total
		}
	}
	return max
}

// Value returns the current counter total: the sum of each identity's
// highest published Total.
func (c *Counter) Value() uint64 {
	entries := c.Iterator(oplog.IteratorOptions{Limit: -1})
	perIdentity := make(map[string]uint64)
	for _, e := range entries {
		r, err := decodeCounterRecord(e.Payload)
		if err != nil {
			continue
		}
		id := hex.EncodeToString(e.Identity)
		if r.Total > perIdentity[id] {
			perIdentity[id] = r.Total
		}
	}
	var total uint64
	for _, v := range perIdentity {
		total += v
	}
	return total
}

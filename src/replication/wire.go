package replication

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/praveenmunagapati/orbit-db/src/entry"
)

// headsMessage is gossiped over the bus on the channel named by the
// database's canonical address. It carries only the publisher's current
// heads — a small, monotonically growing frontier — not the entries
// themselves; a receiver resolves ancestry by fetching unknown hashes from
// the content-addressed object store (spec.md §2, §4.6).
type headsMessage struct {
	Heads []entry.Hash
}

func encodeHeads(m headsMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("replication: encode heads message: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeHeads(payload []byte) (headsMessage, error) {
	var m headsMessage
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&m); err != nil {
		return headsMessage{}, fmt.Errorf("replication: decode heads message: %w", err)
	}
	return m, nil
}

package store

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/praveenmunagapati/orbit-db/src/oplog"
)

type kvRecord struct {
	Key   string
	Value []byte
}

func encodeKVRecord(r kvRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("store/keyvalue: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeKVRecord(payload []byte) (kvRecord, error) {
	var r kvRecord
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&r); err != nil {
		return kvRecord{}, fmt.Errorf("store/keyvalue: decode: %w", err)
	}
	return r, nil
}

// KeyValue projects the log as a latest-write-wins map from key to value,
// where the winning write for a key is the one with the greatest
// (clock.time, clock.id, hash) per spec.md §4.5.
type KeyValue struct {
	*Store
}

// NewKeyValue wraps s as a KeyValue adapter.
func NewKeyValue(s *Store) *KeyValue {
	return &KeyValue{Store: s}
}

// Put appends a new write for key.
func (kv *KeyValue) Put(key string, value []byte) error {
	payload, err := encodeKVRecord(kvRecord{Key: key, Value: value})
	if err != nil {
		return err
	}
	_, err = kv.Append(payload)
	return err
}

// Get returns the value of the entry with greatest (clock.time, clock.id,
// hash) among entries targeting key. The log is already returned in that
// total order by Iterator, so the last matching entry wins.
func (kv *KeyValue) Get(key string) ([]byte, bool) {
	entries := kv.Iterator(oplog.IteratorOptions{Limit: -1})
	var latest []byte
	found := false
	for _, e := range entries {
		r, err := decodeKVRecord(e.Payload)
		if err != nil || r.Key != key {
			continue
		}
		latest = r.Value
		found = true
	}
	return latest, found
}

// All returns the projected latest value for every key.
func (kv *KeyValue) All() map[string][]byte {
	entries := kv.Iterator(oplog.IteratorOptions{Limit: -1})
	out := make(map[string][]byte)
	for _, e := range entries {
		r, err := decodeKVRecord(e.Payload)
		if err != nil {
			continue
		}
		out[r.Key] = r.Value
	}
	return out
}

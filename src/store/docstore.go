package store

import (
	"encoding/json"
	"fmt"

	"github.com/praveenmunagapati/orbit-db/src/oplog"
)

// DefaultIDField is the document field read as the document id when no
// DocStoreConfig.IDField is configured.
const DefaultIDField = "_id"

// DocStoreConfig configures per-document-id field extraction.
type DocStoreConfig struct {
	IDField string
}

// DocStore projects the log as a per-document-id latest-write-wins map,
// like KeyValue, where the document id is extracted from a JSON payload's
// configured field (spec.md §4.5).
type DocStore struct {
	*Store
	idField string
}

// NewDocStore wraps s as a DocStore adapter using cfg's IDField, defaulting
// to DefaultIDField when unset.
func NewDocStore(s *Store, cfg DocStoreConfig) *DocStore {
	field := cfg.IDField
	if field == "" {
		field = DefaultIDField
	}
	return &DocStore{Store: s, idField: field}
}

func (d *DocStore) extractID(payload []byte) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", fmt.Errorf("store/docstore: unmarshal: %w", err)
	}
	raw, ok := doc[d.idField]
	if !ok {
		return "", fmt.Errorf("store/docstore: document missing id field %q", d.idField)
	}
	id, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("store/docstore: id field %q is not a string", d.idField)
	}
	return id, nil
}

// Put appends doc as a new write. doc must be a JSON object carrying the
// configured id field.
func (d *DocStore) Put(doc []byte) (string, error) {
	id, err := d.extractID(doc)
	if err != nil {
		return "", err
	}
	if _, err := d.Append(doc); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the latest document written under id, if any.
func (d *DocStore) Get(id string) ([]byte, bool) {
	entries := d.Iterator(oplog.IteratorOptions{Limit: -1})
	var latest []byte
	found := false
	for _, e := range entries {
		docID, err := d.extractID(e.Payload)
		if err != nil || docID != id {
			continue
		}
		latest = e.Payload
		found = true
	}
	return latest, found
}

// All returns the latest document for every document id seen in the log.
func (d *DocStore) All() map[string][]byte {
	entries := d.Iterator(oplog.IteratorOptions{Limit: -1})
	out := make(map[string][]byte)
	for _, e := range entries {
		docID, err := d.extractID(e.Payload)
		if err != nil {
			continue
		}
		out[docID] = e.Payload
	}
	return out
}

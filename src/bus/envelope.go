package bus

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// envelope is the wire message gossiped between TCP peers: a channel name
// plus an opaque payload (typically a replication.headsMessage encoding).
//
// The teacher encodes its RPC type with google.golang.org/protobuf
// (transport/encoding.go); that requires protoc-generated message types
// this exercise cannot produce (see DESIGN.md). The length-prefix framing
// is kept identical — a big-endian uint16 byte count ahead of the payload —
// with encoding/gob standing in for protobuf, which is the encoding the
// teacher itself already uses for its own content hashing
// (src/impl/utils.go CalculateHash).
type envelope struct {
	Channel string
	Payload []byte
}

func encodeEnvelope(e envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("bus: encode envelope: %w", err)
	}
	body := buf.Bytes()
	if len(body) > 0xFFFF {
		return nil, fmt.Errorf("bus: envelope too large: %d bytes", len(body))
	}
	hdr := make([]byte, 2)
	binary.BigEndian.PutUint16(hdr, uint16(len(body)))
	return append(hdr, body...), nil
}

func decodeEnvelope(r io.Reader) (envelope, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint16(hdr)
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return envelope{}, fmt.Errorf("bus: read envelope body: %w", err)
	}
	var e envelope
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&e); err != nil {
		return envelope{}, fmt.Errorf("bus: decode envelope: %w", err)
	}
	return e, nil
}

// Package clock implements the Lamport-style logical clock used to order
// entries within an Oplog.
package clock

import "bytes"

// Clock pairs the author identity with a logical timestamp. Total order is
// (Time asc, ID asc), used only as a deterministic tie-break when causal
// order is indeterminate.
type Clock struct {
	ID   []byte // author's public key
	Time uint64
}

// New returns a Clock for the given identity at the given time.
func New(id []byte, time uint64) Clock {
	return Clock{ID: append([]byte(nil), id...), Time: time}
}

// Tick returns the clock that should be assigned to a new entry whose
// parents' maximum observed time is maxParentTime. If there are no parents,
// maxParentTime must be 0 and the result starts at 1.
func Tick(id []byte, maxParentTime uint64) Clock {
	return New(id, maxParentTime+1)
}

// Compare implements the deterministic tie-break order: Time ascending,
// then ID ascending lexicographically. It returns <0, 0, >0 the way
// bytes.Compare does.
func Compare(a, b Clock) int {
	if a.Time != b.Time {
		if a.Time < b.Time {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.ID, b.ID)
}

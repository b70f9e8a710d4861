package oplog

import (
	"bytes"
	"sort"

	"github.com/praveenmunagapati/orbit-db/src/entry"
)

// IteratorOptions controls Iterator's traversal window (spec.md §4.2).
// GT/GTE/LT/LTE are entry hashes acting as exclusive/inclusive boundary
// markers within the linearized sequence. Limit < 0 means unbounded.
type IteratorOptions struct {
	GT, GTE, LT, LTE *entry.Hash
	Limit            int
	Reverse          bool
}

// less implements the deterministic tie-break total order:
// (clock.time asc, clock.id asc, hash asc).
func less(a, b *entry.Entry) bool {
	if a.Clock.Time != b.Clock.Time {
		return a.Clock.Time < b.Clock.Time
	}
	if c := bytes.Compare(a.Clock.ID, b.Clock.ID); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.Hash[:], b.Hash[:]) < 0
}

// Iterator returns the linearized traversal of the log's entries within
// the requested window. Two Oplogs holding identical entry sets produce
// identical output for identical queries (spec.md §8 property 7), because
// the ordering function depends only on entry content, never on insertion
// order or DAG traversal path.
func (o *Oplog) Iterator(opts IteratorOptions) []*entry.Entry {
	o.mu.Lock()
	all := make([]*entry.Entry, 0, len(o.entries))
	for _, e := range o.entries {
		cp := *e
		all = append(all, &cp)
	}
	o.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })

	start, end := 0, len(all)
	if opts.GTE != nil {
		start = boundaryIndex(all, *opts.GTE, true)
	} else if opts.GT != nil {
		start = boundaryIndex(all, *opts.GT, false)
	}
	if opts.LTE != nil {
		end = boundaryIndex(all, *opts.LTE, true) + 1
	} else if opts.LT != nil {
		end = boundaryIndex(all, *opts.LT, true)
	}
	if start < 0 {
		start = 0
	}
	if end > len(all) {
		end = len(all)
	}
	if start > end {
		start = end
	}

	window := all[start:end]

	if opts.Reverse {
		for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
			window[i], window[j] = window[j], window[i]
		}
	}

	if opts.Limit >= 0 && opts.Limit < len(window) {
		window = window[:opts.Limit]
	}
	return window
}

// boundaryIndex returns hash's position within the sorted slice all. If
// inclusive is false, the index returned is one past the match (used for
// GT, to exclude the boundary entry itself). If hash is not present in
// all, len(all) is returned: an unknown GT/GTE boundary empties the
// window, while an unknown LT/LTE boundary leaves it open to the end of
// the log.
func boundaryIndex(all []*entry.Entry, hash entry.Hash, inclusive bool) int {
	for i, e := range all {
		if e.Hash == hash {
			if inclusive {
				return i
			}
			return i + 1
		}
	}
	return len(all)
}

package keyspace

import (
	"fmt"
	"iter"
)

// Singapore postal codes cover 010000 through 829999.
const (
	DefaultStart = 10000
	DefaultEnd   = 830000
)

// Range is a half-open interval [Start, End) of numeric postal codes.
// The zero value is an empty range.
type Range struct {
	Start int // Start is the first numeric code of the range, inclusive.
	End   int // End is the last numeric code of the range, exclusive.
}

// Default returns the full Singapore postal code range.
func Default() Range {
	return Range{Start: DefaultStart, End: DefaultEnd}
}

// Len returns the number of postal codes in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Keys returns an iterator over the zero-padded six-digit postal codes of the
// range in ascending numeric order. The sequence is deterministic and can be
// ranged over any number of times.
func (r Range) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for n := r.Start; n < r.End; n++ {
			if !yield(fmt.Sprintf("%06d", n)) {
				return
			}
		}
	}
}

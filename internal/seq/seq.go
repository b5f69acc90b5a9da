// Package seq implements modular-2^32 sequence number arithmetic and
// comparison, the circular-space predicates RFC 793 segment
// acceptability is built from.
package seq

// Add returns seqNum advanced by n bytes, wrapping around 2^32.
func Add(seqNum uint32, n uint32) uint32 {
	return seqNum + n
}

// Between reports whether x lies strictly between start and end on the
// circular sequence space: if start < end in unsigned arithmetic,
// that's start < x < end; otherwise (the arc wraps past 2^32-1) it's
// start < x || x < end.
func Between(start, x, end uint32) bool {
	if start < end {
		return start < x && x < end
	}
	return start < x || x < end
}

// Leq reports whether a <= b in modular order, i.e. treating a as the
// "earlier" point on the circle unless the gap from a to b exceeds half
// the space (which would mean b is actually behind a).
func Leq(a, b uint32) bool {
	return a == b || int32(b-a) > 0
}

// Lt reports whether a < b in modular order.
func Lt(a, b uint32) bool {
	return a != b && Leq(a, b)
}

// Window bundles the receive-side bounds used by the segment
// acceptability test (spec §4.3) so callers don't re-derive the
// four-way branch inline.
type Window struct {
	Start uint32 // recv.nxt
	Size  uint32 // recv.wnd
}

// AcceptableEmpty reports whether a zero-length segment at seqNum is
// acceptable given this receive window, per spec §4.3's seg_len==0
// cases.
func (w Window) AcceptableEmpty(seqNum uint32) bool {
	if w.Size == 0 {
		return seqNum == w.Start
	}
	end := w.Start + w.Size
	return seqNum == w.Start || Between(w.Start-1, seqNum, end)
}

// AcceptableNonEmpty reports whether a segment spanning
// [seqNum, seqNum+segLen) is acceptable given this receive window, per
// spec §4.3's seg_len>0 cases: acceptable iff either end of the
// segment falls in [Start, Start+Size).
func (w Window) AcceptableNonEmpty(seqNum, segLen uint32) bool {
	if w.Size == 0 {
		return false
	}
	end := w.Start + w.Size
	firstIn := seqNum == w.Start || Between(w.Start-1, seqNum, end)
	lastSeq := seqNum + segLen - 1
	lastIn := lastSeq == w.Start || Between(w.Start-1, lastSeq, end)
	return firstIn || lastIn
}

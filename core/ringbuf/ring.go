package ringbuf

// ring translates monotonic byte indices into physical spans of the
// payload area. The payload is the region remainder behind the control
// block; the live bytes occupy [tail, head) modulo capacity.
type ring struct {
	payload []byte
	cap     uint32
}

// A span is a contiguous physical slice of the payload. A logical range
// that crosses the physical end of the payload is returned as two such
// slices so callers never copy across the boundary.

// readableSpans returns the committed live bytes as up to two contiguous
// slices, primary first.
func (r *ring) readableSpans(head, tail uint32) ([]byte, []byte) {
	used := head - tail
	if used == 0 {
		return nil, nil
	}
	pos := tail % r.cap
	if pos+used <= r.cap {
		return r.payload[pos : pos+used], nil
	}
	first := r.cap - pos
	return r.payload[pos:], r.payload[:used-first]
}

// writableSpans returns the free bytes as up to two contiguous slices,
// starting at the head position.
func (r *ring) writableSpans(head, tail uint32) ([]byte, []byte) {
	free := r.cap - (head - tail)
	if free == 0 {
		return nil, nil
	}
	pos := head % r.cap
	if pos+free <= r.cap {
		return r.payload[pos : pos+free], nil
	}
	first := r.cap - pos
	return r.payload[pos:], r.payload[:free-first]
}

// usedBytes reports head-tail in serial arithmetic.
func (r *ring) usedBytes(head, tail uint32) uint32 {
	return head - tail
}

// freeBytes reports the remaining write room.
func (r *ring) freeBytes(head, tail uint32) uint32 {
	return r.cap - (head - tail)
}

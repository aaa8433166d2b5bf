package ringbuf

// Producer is the write side of the ring. A single Producer exists per
// attached region; it may be shared across execution contexts because
// every index mutation happens inside the index lock.
type Producer struct {
	s *state
}

// Write commits p to the ring. It never blocks and never fails: when the
// free span is too small the oldest committed bytes are discarded first,
// so the ring always holds the most recent stream suffix. Writes larger
// than the whole ring are dropped. A zero-length write is a no-op.
//
// Safe to call concurrently with the consumer; calls serialize against
// each other and against tail releases on the index lock.
func (p *Producer) Write(b []byte) {
	s := p.s
	n := uint32(len(b))
	if n == 0 {
		return
	}

	commit := n
	if s.ecc {
		commit = (n + ECC_GRANULE - 1) &^ (ECC_GRANULE - 1)
	}
	if commit > s.ring.cap {
		return
	}

	s.lock.lock()

	head := s.hdr.head()
	tail := s.hdr.tail()
	wasEmpty := head == tail

	// Overwrite-oldest: advance tail by the shortfall before copying, so
	// the consumer's next snapshot simply starts later in the stream.
	tailAdvanced := false
	if free := s.ring.freeBytes(head, tail); commit > free {
		tail += commit - free
		tailAdvanced = true
	}

	primary, secondary := s.ring.writableSpans(head, tail)
	copied := copy(primary, b)
	if copied < len(b) {
		copy(secondary, b[copied:])
	}
	// Zero the granule padding so the committed stream stays
	// deterministic; frame delimiters make the filler transparent.
	for i := n; i < commit; i++ {
		if i < uint32(len(primary)) {
			primary[i] = 0
		} else {
			secondary[i-uint32(len(primary))] = 0
		}
	}

	// Publish order: payload is in place, then head, then its mirror,
	// then the checksum. A reader that observes the new head is
	// guaranteed to observe the payload below it.
	s.hdr.setHead(head + commit)
	s.hdr.setHeadMirror(head + commit)
	if tailAdvanced {
		s.hdr.setTail(tail)
		s.hdr.setTailMirror(tail)
	}
	s.hdr.seal()

	s.lock.unlock()

	if wasEmpty {
		s.wake()
	}
}

// MarkPanic sets the panic-frame flag in the control block. The panic
// path calls this after committing its final record and before
// triggering the reset; the next attach reports and clears it.
func (p *Producer) MarkPanic() {
	s := p.s
	s.lock.lock()
	s.hdr.setFlags(s.hdr.flags() | FLAG_PANIC_FRAME)
	s.hdr.seal()
	s.lock.unlock()
}

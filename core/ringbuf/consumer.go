package ringbuf

import "context"

// Consumer is the single read side of the ring. Exactly one Consumer
// exists per attached region and it exclusively owns the release index;
// it must not be shared across goroutines.
type Consumer struct {
	s *state

	// generation invalidates grants that were superseded by a newer
	// Read; a stale grant's Release is a no-op.
	generation uint64
}

// Grant is a borrowed view of currently committed bytes, valid until
// Release is called or a newer grant is taken. Dropping a grant without
// releasing consumes nothing.
type Grant struct {
	c          *Consumer
	generation uint64
	tail       uint32
	primary    []byte
	secondary  []byte
}

// Read snapshots the committed live bytes and returns them as a grant of
// up to two contiguous spans. It never blocks; the grant may be empty.
// Taking a new grant invalidates any previous one.
func (c *Consumer) Read() Grant {
	s := c.s

	// The producer's overflow path moves tail together with head inside
	// the lock; re-reading tail after head catches a move between the
	// two loads so the pair is always a state the ring actually held.
	var head, tail uint32
	for {
		tail = s.hdr.tail()
		head = s.hdr.head()
		if s.hdr.tail() == tail && head-tail <= s.ring.cap {
			break
		}
	}

	primary, secondary := s.ring.readableSpans(head, tail)
	c.generation++
	return Grant{
		c:          c,
		generation: c.generation,
		tail:       tail,
		primary:    primary,
		secondary:  secondary,
	}
}

// Bufs returns the grant's spans in stream order. The concatenation of
// the two slices is the committed byte stream starting at the oldest
// unreleased byte.
func (g *Grant) Bufs() ([]byte, []byte) {
	return g.primary, g.secondary
}

// Len returns the total number of bytes the grant covers.
func (g *Grant) Len() int {
	return len(g.primary) + len(g.secondary)
}

// Release consumes the first n bytes of the grant, freeing them for the
// producer. n beyond the grant's length is clamped. Residual bytes stay
// readable by the next grant. The grant is spent afterwards.
func (g *Grant) Release(n int) {
	if g.c == nil || g.generation != g.c.generation {
		return
	}
	if n < 0 {
		n = 0
	}
	if n > g.Len() {
		n = g.Len()
	}
	s := g.c.s

	s.lock.lock()
	target := g.tail + uint32(n)
	cur := s.hdr.tail()
	// The producer's overflow path may have advanced tail past part or
	// all of this grant already; only move it forward.
	if serialBefore(cur, target) {
		s.hdr.setTail(target)
		s.hdr.setTailMirror(target)
		s.hdr.seal()
	}
	s.lock.unlock()

	g.c = nil
}

// IsEmpty reports whether no committed bytes are waiting.
func (c *Consumer) IsEmpty() bool {
	s := c.s
	return s.hdr.head() == s.hdr.tail()
}

// Len reports the number of committed bytes waiting.
func (c *Consumer) Len() int {
	s := c.s
	for {
		tail := s.hdr.tail()
		head := s.hdr.head()
		if s.hdr.tail() == tail {
			return int(head - tail)
		}
	}
}

// WaitNotEmpty blocks until the ring holds committed bytes or ctx is
// done. The readiness slot is edge-triggered but latched: a commit that
// races with registration is never lost, and spurious returns only cost
// a re-check. Cancelling ctx deregisters the waiter.
func (c *Consumer) WaitNotEmpty(ctx context.Context) error {
	for {
		if !c.IsEmpty() {
			return nil
		}
		select {
		case <-c.s.notify:
			// Token consumed; loop to re-check in case it was stale.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Package ringbuf implements the reset-surviving byte ring: a fixed
// control block at the start of a reserved region, a payload ring behind
// it, and the single-producer/single-consumer protocol that keeps both
// coherent across concurrent writers and resets at arbitrary points.
package ringbuf

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/korken89/persistlog/core/region"
)

// Attach errors.
var (
	ErrRegionTooSmall = errors.New("ringbuf: region too small for control block plus payload")
	ErrRegionTooLarge = errors.New("ringbuf: payload exceeds index arithmetic bound")
	ErrBadEccSize     = errors.New("ringbuf: region size not a multiple of the ECC granule")
)

// Options configures how a ring attaches to its region.
type Options struct {
	// ECCPadding places every header field in its own 8-byte ECC granule
	// and rounds committed writes up to granule boundaries (zero filled),
	// so no partial-word store can poison a granule read back later.
	ECCPadding bool

	// RotateIdentifier, when set, receives the identifier found in the
	// region (the previous firmware's marker, or garbage on a cold boot)
	// and returns the identifier to store for the current run.
	RotateIdentifier func(previous [IDENTIFIER_SIZE]byte) [IDENTIFIER_SIZE]byte
}

// Recovery describes what Attach found in the region.
type Recovery struct {
	// Reinitialized is true when the control block was absent, corrupt or
	// inconsistent and the ring was reset to empty.
	Reinitialized bool

	// RecoveredBytes is the number of committed, unreleased bytes carried
	// over from before the reset. Zero after reinitialization.
	RecoveredBytes int

	// RecoveredIdentifier is the identifier stored by the firmware that
	// produced the recovered bytes. Garbage on a cold boot; treat it, like
	// the payload, as external input.
	RecoveredIdentifier [IDENTIFIER_SIZE]byte

	// PanicFramePresent is true when the previous run marked a panic
	// frame before resetting. The flag is cleared once reported.
	PanicFramePresent bool
}

// indexLock serializes index updates between the producer and the
// consumer's release path. It is the portable stand-in for the global
// interrupt mask: held for the duration of a grant reservation and
// commit, never across a blocking operation.
type indexLock struct {
	state uint32
}

func (l *indexLock) lock() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		runtime.Gosched()
	}
}

func (l *indexLock) unlock() {
	atomic.StoreUint32(&l.state, 0)
}

// state is the shared runtime view over one attached region.
type state struct {
	hdr    header
	ring   ring
	lock   indexLock
	ecc    bool
	notify chan struct{}
}

// wake latches a readiness token. The channel holds at most one token,
// so signalling an already-signalled slot is a no-op and a waiter that
// consumed a stale token simply re-checks and waits again.
func (s *state) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Attach binds a ring to the region: it validates or repairs the control
// block, recovering committed bytes from before a reset, or
// reinitializes it when the block is corrupt. It returns the producer
// and the unique consumer for the region.
//
// Attach itself is not guarded against concurrent or repeated calls on
// the same region; process-wide one-shot initialization is the log
// sink's job. Tests attach freely to simulate resets.
func Attach(r *region.Region, opts Options) (*Producer, *Consumer, Recovery, error) {
	buf := r.Bytes()
	lay := newLayout(opts.ECCPadding)

	if opts.ECCPadding && len(buf)%ECC_GRANULE != 0 {
		return nil, nil, Recovery{}, ErrBadEccSize
	}
	payloadLen := len(buf) - lay.headerSize
	if payloadLen < MIN_PAYLOAD {
		return nil, nil, Recovery{}, ErrRegionTooSmall
	}
	if payloadLen >= region.MaxPayload {
		return nil, nil, Recovery{}, ErrRegionTooLarge
	}

	s := &state{
		hdr:    header{buf: buf, lay: lay},
		ring:   ring{payload: buf[lay.headerSize:], cap: uint32(payloadLen)},
		ecc:    opts.ECCPadding,
		notify: make(chan struct{}, 1),
	}

	rec := Recovery{RecoveredIdentifier: s.hdr.identifier()}

	if s.hdr.recover(uint32(payloadLen)) {
		rec.RecoveredBytes = int(s.hdr.head() - s.hdr.tail())
		rec.PanicFramePresent = s.hdr.flags()&FLAG_PANIC_FRAME != 0
		if rec.PanicFramePresent {
			s.hdr.setFlags(s.hdr.flags() &^ FLAG_PANIC_FRAME)
		}
		s.hdr.normalize(uint32(payloadLen))
	} else {
		rec.Reinitialized = true
		s.hdr.reinitialize(uint32(payloadLen))
	}

	if opts.RotateIdentifier != nil {
		s.hdr.setIdentifier(opts.RotateIdentifier(rec.RecoveredIdentifier))
	}

	if rec.RecoveredBytes > 0 {
		// Recovered data is immediately drainable; latch readiness so a
		// waiter registered before the first new write still runs.
		s.wake()
	}

	return &Producer{s: s}, &Consumer{s: s}, rec, nil
}

// Package logsink owns the process-wide write sink that log frame
// encoders feed. It performs one-shot initialization of the ring over
// its region, fans written bytes out to optional mirror sinks, and
// exposes the panic-frame marker used by the panic path.
package logsink

import (
	"errors"
	"sync/atomic"

	"github.com/korken89/persistlog/core/region"
	"github.com/korken89/persistlog/core/ringbuf"
)

// ErrAlreadyInitialized is returned by Init after a successful Init.
// It is the only error the boundary exposes once a region is bound.
var ErrAlreadyInitialized = errors.New("logsink: already initialized")

// Options configures initialization.
type Options struct {
	// Ring options, passed through to the attach step.
	Ring ringbuf.Options

	// Mirrors additionally receive every byte slice written to the ring,
	// in commit order. Mirror calls run inside the write path; they must
	// not block and must not log. The classic use is an RTT-style debug
	// channel next to the persistent ring.
	Mirrors []Mirror
}

// Mirror is a secondary byte sink fed alongside the ring.
type Mirror interface {
	WriteFrame(b []byte)
}

type sinkState struct {
	producer *ringbuf.Producer
	mirrors  []Mirror
}

var (
	initialized atomic.Bool
	ready       atomic.Bool
	depth       atomic.Int32
	current     sinkState
)

// Init binds the global sink to the region exactly once and returns the
// region's unique consumer together with recovery metadata. A second
// call fails with ErrAlreadyInitialized regardless of arguments.
func Init(r *region.Region, opts Options) (*ringbuf.Consumer, ringbuf.Recovery, error) {
	if !initialized.CompareAndSwap(false, true) {
		return nil, ringbuf.Recovery{}, ErrAlreadyInitialized
	}

	producer, consumer, rec, err := ringbuf.Attach(r, opts.Ring)
	if err != nil {
		initialized.Store(false)
		return nil, ringbuf.Recovery{}, err
	}

	current = sinkState{producer: producer, mirrors: opts.Mirrors}
	// Publish after the state is in place so Write never observes a
	// half-built sink.
	ready.Store(true)
	return consumer, rec, nil
}

// Write feeds one encoded byte slice to the ring and every mirror. It is
// the hot path: no errors, no blocking beyond the ring's index lock, and
// silent before Init. Reentrant calls (a mirror, panic hook or signal
// handler logging while a write is in flight) are dropped, matching the
// rule that nested logging is never worth deadlocking over.
func Write(b []byte) {
	if depth.Add(1) != 1 {
		depth.Add(-1)
		return
	}
	defer depth.Add(-1)

	if !ready.Load() {
		return
	}
	current.producer.Write(b)
	for _, m := range current.mirrors {
		m.WriteFrame(b)
	}
}

// MarkPanic records that the bytes most recently committed include a
// final pre-reset record. The panic path calls this after its last
// Write; the flag is reported and cleared by the next initialization.
func MarkPanic() {
	if !ready.Load() {
		return
	}
	current.producer.MarkPanic()
}

// reset reverts the package to its uninitialized state. Tests only.
func reset() {
	ready.Store(false)
	current = sinkState{}
	depth.Store(0)
	initialized.Store(false)
}

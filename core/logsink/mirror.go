package logsink

import "io"

// WriterMirror adapts an io.Writer into a mirror sink. Errors and short
// writes are swallowed: a mirror is best-effort by contract, and the
// write path has nowhere to report them.
type WriterMirror struct {
	W io.Writer
}

// WriteFrame implements Mirror.
func (m WriterMirror) WriteFrame(b []byte) {
	_, _ = m.W.Write(b)
}

// FuncMirror adapts a function into a mirror sink.
type FuncMirror func(b []byte)

// WriteFrame implements Mirror.
func (m FuncMirror) WriteFrame(b []byte) {
	m(b)
}

// Package drain moves committed bytes out of the ring: it waits for
// readiness, snapshots a grant, ships the bytes through a transmit sink
// and releases exactly the shipped prefix. The ring core stays free of
// transport concerns; everything transport-shaped lives here.
package drain

import (
	"context"
	"fmt"
	"io"
)

// Sink transmits one drained batch. Send must either deliver the whole
// batch or return an error; a partial delivery must be reported as an
// error so the bytes are retransmitted (receivers deduplicate on the
// encoder's sequence markers).
type Sink interface {
	Send(ctx context.Context, batch []byte) error
	Close() error
}

// WriterSink adapts an io.Writer (a UART device file, a pipe, stdout)
// into a transmit sink.
type WriterSink struct {
	W io.Writer
}

// Send implements Sink.
func (s WriterSink) Send(_ context.Context, batch []byte) error {
	n, err := s.W.Write(batch)
	if err != nil {
		return fmt.Errorf("writer sink: %w", err)
	}
	if n < len(batch) {
		return fmt.Errorf("writer sink: short write %d of %d", n, len(batch))
	}
	return nil
}

// Close implements Sink.
func (s WriterSink) Close() error {
	if c, ok := s.W.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

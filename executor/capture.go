package executor

import (
	"bytes"
	"sync"
)

// boundedBuffer is an append-only output capture with a hard byte ceiling.
// Once the ceiling is reached further writes are discarded and the buffer is
// marked truncated; capture is never silently unbounded. It is safe for
// concurrent use because a runtime may pump stdout and stderr copies from
// separate goroutines.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	remaining int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{remaining: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remaining <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil // discard, report full write to keep the pipe draining
	}
	if len(p) > b.remaining {
		b.truncated = true
		b.buf.Write(p[:b.remaining])
		b.remaining = 0
		return len(p), nil
	}
	n, err := b.buf.Write(p)
	b.remaining -= n
	return n, err
}

// String returns the captured bytes.
func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Truncated reports whether any bytes were discarded.
func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Package digestio provides writers that compute a SHA-256 digest of
// everything written to them without buffering the whole stream, and a
// sidecar writer that fans a single write out to a primary sink and an
// in-memory accumulator at once: a packet file's digest must be computed
// while it streams to its destination transport, not by re-reading it
// afterward, and the same mechanism is reused with a plain byte-buffer
// sidecar when the accumulator needs to hold the written bytes themselves
// (e.g. to sign them) rather than just their digest.
package digestio

import (
	"bytes"
	"crypto/sha256"
	"hash"
	"io"
)

// Sidecar is implemented by in-memory accumulators that SidecarWriter can
// fan writes out to. Implementations must never perform a short write or
// fail for reasons other than exhausted memory.
type Sidecar interface {
	io.Writer
}

// DigestWriter is a Sidecar that accumulates a running SHA-256 digest of
// everything written to it.
type DigestWriter struct {
	h hash.Hash
}

// NewDigestWriter returns a DigestWriter ready to accumulate.
func NewDigestWriter() *DigestWriter {
	return &DigestWriter{h: sha256.New()}
}

func (d *DigestWriter) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum returns the SHA-256 digest of everything written so far. It may be
// called at any time without ending the writer's life.
func (d *DigestWriter) Sum() []byte {
	return d.h.Sum(nil)
}

// BufferWriter is a Sidecar that accumulates the raw bytes written to it,
// used where the caller needs the written bytes back (for example, to sign
// a header after it has been serialized) rather than merely their digest.
type BufferWriter struct {
	buf bytes.Buffer
}

// NewBufferWriter returns an empty BufferWriter.
func NewBufferWriter() *BufferWriter {
	return &BufferWriter{}
}

func (b *BufferWriter) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

// Bytes returns the accumulated bytes. The returned slice aliases the
// writer's internal buffer and must not be mutated.
func (b *BufferWriter) Bytes() []byte {
	return b.buf.Bytes()
}

// SidecarWriter wraps an io.Writer, additionally writing every buffer
// passed to Write into a Sidecar. A short write to the primary writer is
// never allowed to get the sidecar ahead of it: only the bytes the primary
// writer actually accepted are mirrored.
type SidecarWriter struct {
	w       io.Writer
	Sidecar Sidecar
}

// NewSidecarWriter returns a SidecarWriter fanning writes out to w and
// sidecar.
func NewSidecarWriter(w io.Writer, sidecar Sidecar) *SidecarWriter {
	return &SidecarWriter{w: w, Sidecar: sidecar}
}

func (s *SidecarWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if n > 0 {
		if _, sidecarErr := s.Sidecar.Write(p[:n]); sidecarErr != nil {
			return n, sidecarErr
		}
	}
	return n, err
}

// Flush flushes the primary writer if it supports flushing.
func (s *SidecarWriter) Flush() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

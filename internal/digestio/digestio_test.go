package digestio

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestWriterMatchesSha256(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	dw := NewDigestWriter()
	n, err := dw.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	want := sha256.Sum256(payload)
	assert.Equal(t, want[:], dw.Sum())
}

func TestSidecarWriterMirrorsToDigestAndPrimary(t *testing.T) {
	var primary bytes.Buffer
	dw := NewDigestWriter()
	sw := NewSidecarWriter(&primary, dw)

	payload := []byte("packet file contents")
	_, err := sw.Write(payload)
	require.NoError(t, err)

	assert.Equal(t, payload, primary.Bytes())
	want := sha256.Sum256(payload)
	assert.Equal(t, want[:], dw.Sum())
}

func TestSidecarWriterWithBufferSidecar(t *testing.T) {
	var primary bytes.Buffer
	bw := NewBufferWriter()
	sw := NewSidecarWriter(&primary, bw)

	payload := []byte("header bytes to sign")
	_, err := sw.Write(payload)
	require.NoError(t, err)

	assert.Equal(t, payload, bw.Bytes())
	assert.Equal(t, payload, primary.Bytes())
}

func TestSidecarWriterMultipleWritesAccumulate(t *testing.T) {
	var primary bytes.Buffer
	dw := NewDigestWriter()
	sw := NewSidecarWriter(&primary, dw)

	_, err := sw.Write([]byte("part one "))
	require.NoError(t, err)
	_, err = sw.Write([]byte("part two"))
	require.NoError(t, err)

	want := sha256.Sum256([]byte("part one part two"))
	assert.Equal(t, want[:], dw.Sum())
}

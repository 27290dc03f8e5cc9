package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/divviup/prio-server-sub000/internal/digestio"
	"github.com/divviup/prio-server-sub000/internal/idl"
	"github.com/divviup/prio-server-sub000/internal/signing"
	"github.com/divviup/prio-server-sub000/internal/transport"
)

// Reader reads a batch's header (with signature verification) and packet
// file (with digest-binding verification), parametric over the header and
// packet types of the batch kind it was opened for.
type Reader[H idl.Header, P idl.Packet] struct {
	transport transport.Transport
	locator   Locator
	codec     Codec[H, P]
}

// NewReader opens a Reader over locator's objects in t.
func NewReader[H idl.Header, P idl.Packet](t transport.Transport, locator Locator, codec Codec[H, P]) *Reader[H, P] {
	return &Reader[H, P]{transport: t, locator: locator, codec: codec}
}

// Header fetches the signature and header objects, verifies the signature
// against keys, and returns the parsed header. Verification failure
// (unknown key identifier or invalid signature) and malformed-header
// failure are both returned as plain errors; callers distinguish them with
// errors.Is against signing.ErrUnknownKeyIdentifier / signing.ErrInvalidSignature.
func (r *Reader[H, P]) Header(ctx context.Context, keys *signing.PublicKeySet) (H, error) {
	var zero H

	sigBytes, err := readAll(ctx, r.transport, r.locator.SignatureKey)
	if err != nil {
		return zero, fmt.Errorf("batch: reading signature for %s: %w", r.locator.HeaderKey, err)
	}
	sig, err := idl.ReadBatchSignature(bytes.NewReader(sigBytes))
	if err != nil {
		return zero, fmt.Errorf("batch: parsing signature for %s: %w", r.locator.HeaderKey, err)
	}

	headerBytes, err := readAll(ctx, r.transport, r.locator.HeaderKey)
	if err != nil {
		return zero, fmt.Errorf("batch: reading header %s: %w", r.locator.HeaderKey, err)
	}

	if err := keys.Verify(sig.KeyIdentifier, headerBytes, sig.Signature); err != nil {
		return zero, fmt.Errorf("batch: verifying signature on %s: %w", r.locator.HeaderKey, err)
	}

	header, err := r.codec.ReadHeader(bytes.NewReader(headerBytes))
	if err != nil {
		return zero, fmt.Errorf("batch: parsing header %s: %w", r.locator.HeaderKey, err)
	}
	return header, nil
}

// PacketFileReader fetches the whole packet file into memory, verifies its
// SHA-256 digest against header's packet_file_digest, and returns an
// idl.PacketFileReader over it. header must already be signature-verified,
// so the digest binding keeps the authenticated boundary at the header
// rather than the packet file.
func (r *Reader[H, P]) PacketFileReader(ctx context.Context, header H) (*idl.PacketFileReader, error) {
	src, err := r.transport.Get(ctx, r.locator.PacketFileKey)
	if err != nil {
		return nil, fmt.Errorf("batch: fetching packet file %s: %w", r.locator.PacketFileKey, err)
	}
	defer src.Close()

	var buf bytes.Buffer
	digester := digestio.NewDigestWriter()
	sidecar := digestio.NewSidecarWriter(&buf, digester)
	if _, err := io.Copy(sidecar, src); err != nil {
		return nil, fmt.Errorf("batch: loading packet file %s: %w", r.locator.PacketFileKey, err)
	}

	if !bytes.Equal(header.PacketFileDigest(), digester.Sum()) {
		return nil, fmt.Errorf("batch: packet file %s digest does not match header", r.locator.PacketFileKey)
	}

	pr, err := r.codec.OpenPacketReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("batch: opening packet reader for %s: %w", r.locator.PacketFileKey, err)
	}
	return pr, nil
}

// Next decodes the next packet record of type P from pr, dispatching
// through this Reader's codec.
func (r *Reader[H, P]) Next(pr *idl.PacketFileReader) (P, error) {
	return r.codec.NextPacket(pr)
}

func readAll(ctx context.Context, t transport.Transport, key string) ([]byte, error) {
	rc, err := t.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

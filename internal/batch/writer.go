package batch

import (
	"context"
	"fmt"

	"github.com/divviup/prio-server-sub000/internal/digestio"
	"github.com/divviup/prio-server-sub000/internal/idl"
	"github.com/divviup/prio-server-sub000/internal/signing"
	"github.com/divviup/prio-server-sub000/internal/transport"
)

// Writer writes a batch's header, packet file and detached signature,
// parametric over the header and packet types of the batch kind it was
// opened for.
type Writer[H idl.Header, P idl.Packet] struct {
	transport transport.Transport
	locator   Locator
	codec     Codec[H, P]
}

// NewWriter opens a Writer over locator's objects in t.
func NewWriter[H idl.Header, P idl.Packet](t transport.Transport, locator Locator, codec Codec[H, P]) *Writer[H, P] {
	return &Writer[H, P]{transport: t, locator: locator, codec: codec}
}

// PutHeader encodes header and writes it to the batch's header object,
// returning the exact signature bytes a caller should then pass to
// PutSignature. Splitting sign-from-write into two steps lets a caller
// hold a computed signature briefly (e.g. to also attach it elsewhere)
// before committing it.
func (w *Writer[H, P]) PutHeader(ctx context.Context, header H, key *signing.Key) ([]byte, error) {
	stream, err := w.transport.Put(ctx, w.locator.HeaderKey)
	if err != nil {
		return nil, fmt.Errorf("batch: opening header write %s: %w", w.locator.HeaderKey, err)
	}

	buf := digestio.NewBufferWriter()
	sidecar := digestio.NewSidecarWriter(stream, buf)
	if err := header.Write(sidecar); err != nil {
		_ = stream.CancelUpload(ctx)
		return nil, fmt.Errorf("batch: writing header %s: %w", w.locator.HeaderKey, err)
	}
	if err := stream.CompleteUpload(ctx); err != nil {
		return nil, fmt.Errorf("batch: completing header write %s: %w", w.locator.HeaderKey, err)
	}

	signature, err := key.Sign(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("batch: signing header %s: %w", w.locator.HeaderKey, err)
	}
	return signature, nil
}

// PutSignature writes the detached batch-signature record binding
// signature (as produced by PutHeader) to keyIdentifier.
func (w *Writer[H, P]) PutSignature(ctx context.Context, signature []byte, keyIdentifier string) error {
	stream, err := w.transport.Put(ctx, w.locator.SignatureKey)
	if err != nil {
		return fmt.Errorf("batch: opening signature write %s: %w", w.locator.SignatureKey, err)
	}
	batchSig := &idl.BatchSignature{Signature: signature, KeyIdentifier: keyIdentifier}
	if err := batchSig.Write(stream); err != nil {
		_ = stream.CancelUpload(ctx)
		return fmt.Errorf("batch: writing signature %s: %w", w.locator.SignatureKey, err)
	}
	if err := stream.CompleteUpload(ctx); err != nil {
		return fmt.Errorf("batch: completing signature write %s: %w", w.locator.SignatureKey, err)
	}
	return nil
}

// WritePacketFile opens the packet file object and invokes operation with
// an idl.PacketFileWriter the caller appends packets to. The Avro encoding
// of every appended packet is digested as it streams to the transport; the
// returned digest is the value to store in the batch's header via
// SetPacketFileDigest before calling PutHeader.
func (w *Writer[H, P]) WritePacketFile(ctx context.Context, operation func(*idl.PacketFileWriter) error) ([]byte, error) {
	stream, err := w.transport.Put(ctx, w.locator.PacketFileKey)
	if err != nil {
		return nil, fmt.Errorf("batch: opening packet file write %s: %w", w.locator.PacketFileKey, err)
	}

	digester := digestio.NewDigestWriter()
	sidecar := digestio.NewSidecarWriter(stream, digester)
	pw, err := w.codec.OpenPacketWriter(sidecar)
	if err != nil {
		_ = stream.CancelUpload(ctx)
		return nil, fmt.Errorf("batch: opening packet writer %s: %w", w.locator.PacketFileKey, err)
	}

	if err := operation(pw); err != nil {
		_ = stream.CancelUpload(ctx)
		return nil, err
	}
	if err := pw.Close(); err != nil {
		_ = stream.CancelUpload(ctx)
		return nil, fmt.Errorf("batch: closing packet writer %s: %w", w.locator.PacketFileKey, err)
	}
	if err := stream.CompleteUpload(ctx); err != nil {
		return nil, fmt.Errorf("batch: completing packet file write %s: %w", w.locator.PacketFileKey, err)
	}

	return digester.Sum(), nil
}

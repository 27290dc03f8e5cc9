// Package intake implements the intake pipeline: it turns one ingestion
// batch into a matching pair of validation batches, one for this processor
// and one for its peer, by running every ingestion packet through a Prio
// server per configured decryption key and recording each packet's
// verification message.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/divviup/prio-server-sub000/internal/batch"
	"github.com/divviup/prio-server-sub000/internal/config"
	"github.com/divviup/prio-server-sub000/internal/idl"
	"github.com/divviup/prio-server-sub000/internal/prio"
	"github.com/divviup/prio-server-sub000/internal/signing"
	"github.com/divviup/prio-server-sub000/internal/telemetry"
)

// PacketDecryptionError reports that every configured decryption key
// failed to decrypt a packet's payload. errors.Is(err, prio.ErrDecryption)
// holds for a PacketDecryptionError so callers can recognize it without a
// type assertion.
type PacketDecryptionError struct {
	UUID uuid.UUID
}

func (e *PacketDecryptionError) Error() string {
	return fmt.Sprintf("intake: packet %s could not be decrypted with any configured key", e.UUID)
}

func (e *PacketDecryptionError) Is(target error) bool {
	return target == prio.ErrDecryption
}

// BatchIntaker runs one intake task end to end.
type BatchIntaker struct {
	cfg config.IntakeConfig
}

// NewBatchIntaker builds a BatchIntaker for cfg.
func NewBatchIntaker(cfg config.IntakeConfig) *BatchIntaker {
	return &BatchIntaker{cfg: cfg}
}

// Intake verifies and reads the ingestion batch named by cfg, generates a
// validation packet for every ingestion packet, and writes both the own
// and peer validation batches. A failure while reading the ingestion batch
// writes nothing. batch.Writer cancels only the upload in flight when an
// error occurs, so a validation packet file that was already completed
// stays in place without a header or signature beside it, and a failed
// peer header write leaves the complete own validation batch in place.
func (b *BatchIntaker) Intake(ctx context.Context) (err error) {
	cfg := b.cfg

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = telemetry.ForTask(logger, cfg.TraceID, cfg.AggregationName, cfg.IsFirst)
	var counters telemetry.Counters
	defer func() { counters.Log(logger, err) }()

	batchID, err := uuid.Parse(cfg.BatchID)
	if err != nil {
		return fmt.Errorf("intake: parsing batch id %q: %w", cfg.BatchID, err)
	}
	logger = telemetry.ForBatch(logger, batchID.String())
	if len(cfg.DecryptionKeys) == 0 {
		return fmt.Errorf("intake: no decryption keys configured")
	}

	ingestionLocator := batch.NewIngestionLocator(cfg.AggregationName, batchID, cfg.Date)
	ingestionReader := batch.NewReader[*idl.IngestionHeader, *idl.IngestionDataSharePacket](
		cfg.IngestionTransport, ingestionLocator, batch.IngestionCodec)

	header, err := ingestionReader.Header(ctx, cfg.IngestorKeys)
	if err != nil {
		return fmt.Errorf("intake: reading ingestion header: %w", err)
	}
	if header.Bins <= 0 {
		return fmt.Errorf("intake: ingestion header bins must be positive, got %d", header.Bins)
	}

	packetReader, err := ingestionReader.PacketFileReader(ctx, header)
	if err != nil {
		return fmt.Errorf("intake: reading ingestion packet file: %w", err)
	}

	servers := make([]*prio.Server, len(cfg.DecryptionKeys))
	for i, key := range cfg.DecryptionKeys {
		servers[i] = prio.NewServer(int(header.Bins), cfg.IsFirst, key)
	}

	var validationPackets []*idl.ValidationPacket
	for packetReader.Next() {
		packet, err := ingestionReader.Next(packetReader)
		if err != nil {
			return fmt.Errorf("intake: decoding ingestion packet: %w", err)
		}

		msg, err := generateVerificationMessage(servers, uint32(packet.RPit), packet.EncryptedPayload)
		if err != nil {
			if errors.Is(err, prio.ErrDecryption) {
				logger.Warn("packet undecryptable by any configured key", zap.String("packet_uuid", packet.UUID.String()))
				return &PacketDecryptionError{UUID: packet.UUID}
			}
			return fmt.Errorf("intake: generating verification message for packet %s: %w", packet.UUID, err)
		}

		validationPackets = append(validationPackets, &idl.ValidationPacket{
			UUID: packet.UUID,
			FR:   int64(msg.FR),
			GR:   int64(msg.GR),
			HR:   int64(msg.HR),
		})
		counters.PacketsProcessed++
		counters.BytesProcessed += int64(len(packet.EncryptedPayload))
	}
	if err := packetReader.Error(); err != nil {
		return fmt.Errorf("intake: reading ingestion packet file: %w", err)
	}

	// Both copies carry the same suffix (this processor's own is_first),
	// since both hold this processor's own computation: only the
	// destination transport differs between the self-readable copy and
	// the copy placed where the peer will later read it as "peer
	// validation" during aggregation (see internal/aggregation, whose
	// peer locator is built with !is_first to land on exactly this
	// suffix from the peer's point of view).
	locator := batch.NewValidationLocator(cfg.AggregationName, batchID, cfg.Date, cfg.IsFirst)

	ownWriter := batch.NewWriter[*idl.ValidationHeader, *idl.ValidationPacket](
		cfg.OwnValidationTransport, locator, batch.ValidationCodec)
	peerWriter := batch.NewWriter[*idl.ValidationHeader, *idl.ValidationPacket](
		cfg.PeerValidationTransport, locator, batch.ValidationCodec)

	appendPackets := func(pw *idl.PacketFileWriter) error {
		for _, p := range validationPackets {
			if err := pw.Append(p); err != nil {
				return err
			}
		}
		return nil
	}

	ownDigest, err := ownWriter.WritePacketFile(ctx, appendPackets)
	if err != nil {
		return fmt.Errorf("intake: writing own validation packet file: %w", err)
	}
	peerDigest, err := peerWriter.WritePacketFile(ctx, appendPackets)
	if err != nil {
		return fmt.Errorf("intake: writing peer validation packet file: %w", err)
	}

	if err := writeValidationHeader(ctx, ownWriter, header, batchID, ownDigest, cfg.SigningKey, cfg.SigningKeyID); err != nil {
		return fmt.Errorf("intake: writing own validation header: %w", err)
	}
	if err := writeValidationHeader(ctx, peerWriter, header, batchID, peerDigest, cfg.SigningKey, cfg.SigningKeyID); err != nil {
		return fmt.Errorf("intake: writing peer validation header: %w", err)
	}
	logger.Info("wrote validation batches", zap.Int("packet_count", len(validationPackets)))
	return nil
}

// generateVerificationMessage tries servers in order: the first server
// whose key decrypts payload wins. If every server fails with
// prio.ErrDecryption, that sentinel is returned so the caller can surface
// PacketDecryptionError; any other error aborts immediately.
func generateVerificationMessage(servers []*prio.Server, rPit uint32, payload []byte) (*prio.VerificationMessage, error) {
	for _, server := range servers {
		msg, err := server.GenerateVerificationMessage(rPit, payload)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, prio.ErrDecryption) {
			return nil, err
		}
	}
	return nil, prio.ErrDecryption
}

func writeValidationHeader(
	ctx context.Context,
	w *batch.Writer[*idl.ValidationHeader, *idl.ValidationPacket],
	ingestionHeader *idl.IngestionHeader,
	batchID uuid.UUID,
	digest []byte,
	signingKey *signing.Key,
	signingKeyID string,
) error {
	header := &idl.ValidationHeader{
		BatchUUID:       batchID,
		Name:            ingestionHeader.Name,
		Bins:            ingestionHeader.Bins,
		Epsilon:         ingestionHeader.Epsilon,
		Prime:           ingestionHeader.Prime,
		NumberOfServers: ingestionHeader.NumberOfServers,
		HammingWeight:   ingestionHeader.HammingWeight,
	}
	header.SetPacketFileDigest(digest)

	signature, err := w.PutHeader(ctx, header, signingKey)
	if err != nil {
		return err
	}
	return w.PutSignature(ctx, signature, signingKeyID)
}

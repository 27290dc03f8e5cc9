// Package aggregation implements the aggregation pipeline: it walks a
// window of ingestion batches, checks their peer-validation packets
// against this processor's own re-derivation of the verification
// messages, accumulates valid client shares into a running total, and
// writes one signed sum-part batch for the window.
package aggregation

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
	"github.com/divviup/prio-server-sub000/internal/telemetry"
)

// BatchAggregator runs one aggregation task end to end over a window of
// ingestion batches.
type BatchAggregator struct {
	cfg config.AggregationConfig
}

// NewBatchAggregator builds a BatchAggregator for cfg.
func NewBatchAggregator(cfg config.AggregationConfig) *BatchAggregator {
	return &BatchAggregator{cfg: cfg}
}

// GenerateSumPart validates every batch's headers against the window's
// first batch, aggregates each batch's packets, and writes one signed
// sum-part header for the whole window. It returns the written header.
func (a *BatchAggregator) GenerateSumPart(ctx context.Context) (header *idl.SumPartHeader, err error) {
	cfg := a.cfg

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = telemetry.ForTask(logger, cfg.TraceID, cfg.AggregationName, cfg.IsFirst)
	var counters telemetry.Counters
	defer func() { counters.Log(logger, err) }()

	if len(cfg.Batches) == 0 {
		return nil, fmt.Errorf("aggregation: batch list is empty")
	}
	if len(cfg.DecryptionKeys) == 0 {
		return nil, fmt.Errorf("aggregation: no decryption keys configured")
	}

	var servers []*prio.Server
	var firstIngestionHeader *idl.IngestionHeader
	var includedBatchUUIDs []uuid.UUID
	var invalidUUIDs []uuid.UUID
	var totalIndividualClients int64

	for _, ref := range cfg.Batches {
		batchID, err := uuid.Parse(ref.BatchID)
		if err != nil {
			return nil, fmt.Errorf("aggregation: parsing batch id %q: %w", ref.BatchID, err)
		}

		ingestionLocator := batch.NewIngestionLocator(cfg.AggregationName, batchID, ref.Date)
		ingestionReader := batch.NewReader[*idl.IngestionHeader, *idl.IngestionDataSharePacket](
			cfg.IngestionTransport, ingestionLocator, batch.IngestionCodec)
		ingestionHeader, err := ingestionReader.Header(ctx, cfg.IngestorKeys)
		if err != nil {
			return nil, fmt.Errorf("aggregation: reading ingestion header for batch %s: %w", batchID, err)
		}

		peerLocator := batch.NewValidationLocator(cfg.AggregationName, batchID, ref.Date, !cfg.IsFirst)
		peerReader := batch.NewReader[*idl.ValidationHeader, *idl.ValidationPacket](
			cfg.PeerValidationTransport, peerLocator, batch.ValidationCodec)
		peerHeader, err := peerReader.Header(ctx, cfg.PeerKeys)
		if err != nil {
			return nil, fmt.Errorf("aggregation: reading peer validation header for batch %s: %w", batchID, err)
		}

		if !ingestionHeader.CheckParametersAgainstValidation(peerHeader) {
			return nil, fmt.Errorf("aggregation: ingestion header does not match peer validation header for batch %s", batchID)
		}
		if firstIngestionHeader != nil && !firstIngestionHeader.CheckParametersAgainstIngestion(ingestionHeader) {
			return nil, fmt.Errorf("aggregation: ingestion header parameters for batch %s do not match the window's first header", batchID)
		}

		if servers == nil {
			servers = make([]*prio.Server, len(cfg.DecryptionKeys))
			for i, key := range cfg.DecryptionKeys {
				servers[i] = prio.NewServer(int(ingestionHeader.Bins), cfg.IsFirst, key)
			}
		}

		ingestionPacketReader, err := ingestionReader.PacketFileReader(ctx, ingestionHeader)
		if err != nil {
			return nil, fmt.Errorf("aggregation: reading ingestion packet file for batch %s: %w", batchID, err)
		}
		var ingestionPackets []*idl.IngestionDataSharePacket
		for ingestionPacketReader.Next() {
			p, err := ingestionReader.Next(ingestionPacketReader)
			if err != nil {
				return nil, fmt.Errorf("aggregation: decoding ingestion packet for batch %s: %w", batchID, err)
			}
			ingestionPackets = append(ingestionPackets, p)
		}
		if err := ingestionPacketReader.Error(); err != nil {
			return nil, fmt.Errorf("aggregation: reading ingestion packet file for batch %s: %w", batchID, err)
		}

		peerPacketReader, err := peerReader.PacketFileReader(ctx, peerHeader)
		if err != nil {
			return nil, fmt.Errorf("aggregation: reading peer validation packet file for batch %s: %w", batchID, err)
		}
		var peerPackets []*idl.ValidationPacket
		for peerPacketReader.Next() {
			p, err := peerReader.Next(peerPacketReader)
			if err != nil {
				return nil, fmt.Errorf("aggregation: decoding peer validation packet for batch %s: %w", batchID, err)
			}
			peerPackets = append(peerPackets, p)
		}
		if err := peerPacketReader.Error(); err != nil {
			return nil, fmt.Errorf("aggregation: reading peer validation packet file for batch %s: %w", batchID, err)
		}

		batchLogger := telemetry.ForBatch(logger, batchID.String())
		clientsInBatch, aggregated, err := aggregateShare(batchLogger, servers, ingestionPackets, peerPackets, &invalidUUIDs)
		if err != nil {
			return nil, fmt.Errorf("aggregation: batch %s: %w", batchID, err)
		}
		counters.PacketsProcessed += int64(len(ingestionPackets))
		if !aggregated {
			counters.InvalidBatches++
			batchLogger.Warn("skipping batch: a packet was undecryptable by every configured key")
		}
		if aggregated {
			includedBatchUUIDs = append(includedBatchUUIDs, batchID)
			totalIndividualClients += clientsInBatch
		}

		if firstIngestionHeader == nil {
			firstIngestionHeader = ingestionHeader
		}
	}

	accumulator := prio.NewServer(int(firstIngestionHeader.Bins), cfg.IsFirst, cfg.DecryptionKeys[0])
	for _, server := range servers {
		if err := accumulator.MergeTotalShares(server); err != nil {
			return nil, fmt.Errorf("aggregation: accumulating shares: %w", err)
		}
	}

	header = &idl.SumPartHeader{
		BatchUUIDs:             includedBatchUUIDs,
		Name:                   firstIngestionHeader.Name,
		Bins:                   firstIngestionHeader.Bins,
		Epsilon:                firstIngestionHeader.Epsilon,
		Prime:                  firstIngestionHeader.Prime,
		NumberOfServers:        firstIngestionHeader.NumberOfServers,
		HammingWeight:          firstIngestionHeader.HammingWeight,
		Sum:                    accumulator.TotalShares(),
		AggregationStartTime:   cfg.AggregationStart.UnixMilli(),
		AggregationEndTime:     cfg.AggregationEnd.UnixMilli(),
		TotalIndividualClients: totalIndividualClients,
	}

	sumLocator := batch.NewSumLocator(cfg.AggregationName, cfg.AggregationStart, cfg.AggregationEnd, cfg.IsFirst)
	sumWriter := batch.NewWriter[*idl.SumPartHeader, *idl.InvalidPacket](cfg.AggregationTransport, sumLocator, batch.SumCodec)

	digest, err := sumWriter.WritePacketFile(ctx, func(pw *idl.PacketFileWriter) error {
		for _, id := range invalidUUIDs {
			if err := pw.Append(&idl.InvalidPacket{UUID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregation: writing invalid-packet file: %w", err)
	}
	header.SetPacketFileDigest(digest)

	signature, err := sumWriter.PutHeader(ctx, header, cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("aggregation: writing sum part header: %w", err)
	}
	if err := sumWriter.PutSignature(ctx, signature, cfg.SigningKeyID); err != nil {
		return nil, fmt.Errorf("aggregation: writing sum part signature: %w", err)
	}

	logger.Info("wrote sum part",
		zap.Int("batch_count", len(includedBatchUUIDs)),
		zap.Int64("total_individual_clients", totalIndividualClients),
		zap.Int("invalid_packet_count", len(invalidUUIDs)))
	return header, nil
}

// aggregateShare folds one ingestion batch's packets into servers,
// appending any UUID that fails validation (or lacks a peer record) to
// invalidUUIDs. It returns the number of clients aggregated and whether
// the batch was aggregated at all; "not aggregated" (aggregated=false,
// err=nil) means every server failed to decrypt at least one packet in
// the batch, so the whole batch is skipped, on the assumption that the
// peer will reach the same conclusion independently.
func aggregateShare(
	logger *zap.Logger,
	servers []*prio.Server,
	ingestionPackets []*idl.IngestionDataSharePacket,
	peerPackets []*idl.ValidationPacket,
	invalidUUIDs *[]uuid.UUID,
) (int64, bool, error) {
	peerByUUID := make(map[uuid.UUID]*idl.ValidationPacket, len(peerPackets))
	for _, p := range peerPackets {
		peerByUUID[p.UUID] = p
	}

	type pending struct {
		ingestion *idl.IngestionDataSharePacket
		own       *prio.VerificationMessage
	}
	var prepared []pending
	for _, ingestionPacket := range ingestionPackets {
		own, err := generateOwnVerificationMessage(servers, uint32(ingestionPacket.RPit), ingestionPacket.EncryptedPayload)
		if err != nil {
			if errors.Is(err, prio.ErrDecryption) {
				return 0, false, nil
			}
			return 0, false, err
		}
		prepared = append(prepared, pending{ingestion: ingestionPacket, own: own})
	}

	seen := make(map[uuid.UUID]bool, len(prepared))
	var clients int64
	for _, p := range prepared {
		if seen[p.ingestion.UUID] {
			logger.Warn("ignoring duplicate packet", zap.String("packet_uuid", p.ingestion.UUID.String()))
			continue
		}

		peer, ok := peerByUUID[p.ingestion.UUID]
		if !ok {
			seen[p.ingestion.UUID] = true
			logger.Warn("no peer validation record for packet", zap.String("packet_uuid", p.ingestion.UUID.String()))
			*invalidUUIDs = append(*invalidUUIDs, p.ingestion.UUID)
			continue
		}
		seen[p.ingestion.UUID] = true

		peerMsg := &prio.VerificationMessage{FR: prio.Elem(peer.FR), GR: prio.Elem(peer.GR), HR: prio.Elem(peer.HR)}

		valid, aggregated := aggregateOne(servers, p.ingestion.EncryptedPayload, peerMsg, p.own)
		if !aggregated {
			return 0, false, fmt.Errorf("no configured server could decrypt packet %s at aggregation time", p.ingestion.UUID)
		}
		if !valid {
			logger.Warn("rejecting packet with invalid proof", zap.String("packet_uuid", p.ingestion.UUID.String()))
			*invalidUUIDs = append(*invalidUUIDs, p.ingestion.UUID)
		}
		clients++
	}

	return clients, true, nil
}

// generateOwnVerificationMessage tries each server's key in order,
// returning prio.ErrDecryption only if all of them fail to decrypt.
func generateOwnVerificationMessage(servers []*prio.Server, rPit uint32, payload []byte) (*prio.VerificationMessage, error) {
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

// aggregateOne tries servers in order until one successfully decrypts
// payload and evaluates the combined verification check.
func aggregateOne(servers []*prio.Server, payload []byte, peer, own *prio.VerificationMessage) (valid bool, aggregated bool) {
	for _, server := range servers {
		v, err := server.Aggregate(payload, peer, own)
		if err == nil {
			return v, true
		}
	}
	return false, false
}

// Package sample generates deterministic-shape (if not deterministic-byte)
// ingestion batches for development and testing. It plays the role of the
// ingestion server: splitting a random bit vector into two Prio shares,
// encrypting one to each processor, and writing two signed ingestion
// batches that the intake pipeline can then consume.
package sample

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/divviup/prio-server-sub000/internal/batch"
	"github.com/divviup/prio-server-sub000/internal/idl"
	"github.com/divviup/prio-server-sub000/internal/prio"
	"github.com/divviup/prio-server-sub000/internal/signing"
	"github.com/divviup/prio-server-sub000/internal/transport"
)

// Params configures one call to GenerateIngestionBatch.
type Params struct {
	AggregationName string
	BatchID         uuid.UUID
	Date            time.Time
	BatchStartTime  int64
	BatchEndTime    int64
	Bins            int32
	Epsilon         float64
	PacketCount     int

	PHAKey           *prio.PrivateKey
	FacilitatorKey   *prio.PrivateKey
	IngestorSigner   *signing.Key
	IngestorKeyID    string
	PHAKeyID         string
	FacilitatorKeyID string
}

// GenerateIngestionBatch writes a matching pair of ingestion batches, one
// to phaTransport and one to facilitatorTransport, both signed by
// params.IngestorSigner: the same random bit vectors, Prio-shared and
// encrypted separately to each processor's key.
func GenerateIngestionBatch(ctx context.Context, phaTransport, facilitatorTransport transport.Transport, params Params) error {
	if params.Bins <= 0 {
		return fmt.Errorf("sample: bins must be positive, got %d", params.Bins)
	}

	locator := batch.NewIngestionLocator(params.AggregationName, params.BatchID, params.Date)
	phaWriter := batch.NewWriter[*idl.IngestionHeader, *idl.IngestionDataSharePacket](phaTransport, locator, batch.IngestionCodec)
	facilitatorWriter := batch.NewWriter[*idl.IngestionHeader, *idl.IngestionDataSharePacket](facilitatorTransport, locator, batch.IngestionCodec)

	type sidedPacket struct {
		pha         *idl.IngestionDataSharePacket
		facilitator *idl.IngestionDataSharePacket
	}
	packets := make([]sidedPacket, params.PacketCount)

	for i := range packets {
		bits := make([]int64, params.Bins)
		for b := range bits {
			bit, err := randomBit()
			if err != nil {
				return fmt.Errorf("sample: generating bit %d of packet %d: %w", b, i, err)
			}
			bits[b] = bit
		}

		rPit, err := randomRPit()
		if err != nil {
			return fmt.Errorf("sample: choosing r_pit for packet %d: %w", i, err)
		}

		phaShares := make([]prio.Elem, params.Bins)
		facilitatorShares := make([]prio.Elem, params.Bins)
		for b, bit := range bits {
			s0, s1, err := prio.SplitShare(bit)
			if err != nil {
				return fmt.Errorf("sample: splitting bit %d of packet %d: %w", b, i, err)
			}
			phaShares[b] = s0
			facilitatorShares[b] = s1
		}

		crossTerm := prio.EvaluateCrossTerm(bits, rPit)
		h0, h1, err := prio.SplitCrossTerm(crossTerm)
		if err != nil {
			return fmt.Errorf("sample: splitting cross-term for packet %d: %w", i, err)
		}

		phaPayload, err := prio.EncryptShare(params.PHAKey.Public(), phaShares, h0)
		if err != nil {
			return fmt.Errorf("sample: encrypting PHA share for packet %d: %w", i, err)
		}
		facilitatorPayload, err := prio.EncryptShare(params.FacilitatorKey.Public(), facilitatorShares, h1)
		if err != nil {
			return fmt.Errorf("sample: encrypting facilitator share for packet %d: %w", i, err)
		}

		versionConfig := "config-1"
		packetUUID := uuid.New()
		packets[i] = sidedPacket{
			pha: &idl.IngestionDataSharePacket{
				UUID:                 packetUUID,
				EncryptedPayload:     phaPayload,
				EncryptionKeyID:      &params.PHAKeyID,
				RPit:                 int64(rPit),
				VersionConfiguration: &versionConfig,
			},
			facilitator: &idl.IngestionDataSharePacket{
				UUID:                 packetUUID,
				EncryptedPayload:     facilitatorPayload,
				EncryptionKeyID:      &params.FacilitatorKeyID,
				RPit:                 int64(rPit),
				VersionConfiguration: &versionConfig,
			},
		}
	}

	phaDigest, err := phaWriter.WritePacketFile(ctx, func(pw *idl.PacketFileWriter) error {
		for _, p := range packets {
			if err := pw.Append(p.pha); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sample: writing PHA packet file: %w", err)
	}

	facilitatorDigest, err := facilitatorWriter.WritePacketFile(ctx, func(pw *idl.PacketFileWriter) error {
		for _, p := range packets {
			if err := pw.Append(p.facilitator); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sample: writing facilitator packet file: %w", err)
	}

	if err := writeSignedHeader(ctx, phaWriter, params, phaDigest); err != nil {
		return fmt.Errorf("sample: writing PHA header: %w", err)
	}
	if err := writeSignedHeader(ctx, facilitatorWriter, params, facilitatorDigest); err != nil {
		return fmt.Errorf("sample: writing facilitator header: %w", err)
	}
	return nil
}

func writeSignedHeader(ctx context.Context, w *batch.Writer[*idl.IngestionHeader, *idl.IngestionDataSharePacket], params Params, digest []byte) error {
	header := &idl.IngestionHeader{
		BatchUUID:       params.BatchID,
		Name:            params.AggregationName,
		Bins:            params.Bins,
		Epsilon:         params.Epsilon,
		Prime:           int64(prio.Prime),
		NumberOfServers: 2,
		BatchStartTime:  params.BatchStartTime,
		BatchEndTime:    params.BatchEndTime,
	}
	header.SetPacketFileDigest(digest)

	signature, err := w.PutHeader(ctx, header, params.IngestorSigner)
	if err != nil {
		return err
	}
	return w.PutSignature(ctx, signature, params.IngestorKeyID)
}

func randomBit() (int64, error) {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(b[0] & 1), nil
}

func randomRPit() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

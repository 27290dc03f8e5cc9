package intake

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divviup/prio-server-sub000/internal/batch"
	"github.com/divviup/prio-server-sub000/internal/config"
	"github.com/divviup/prio-server-sub000/internal/idl"
	"github.com/divviup/prio-server-sub000/internal/prio"
	"github.com/divviup/prio-server-sub000/internal/sample"
	"github.com/divviup/prio-server-sub000/internal/signing"
	"github.com/divviup/prio-server-sub000/internal/transport"
)

func generateSigningKey(t *testing.T) (*signing.Key, *signing.PublicKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	key, err := signing.KeyFromPKCS8(pkcs8)
	require.NoError(t, err)
	pkix, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pub, err := signing.PublicKeyFromPKIX(pkix)
	require.NoError(t, err)
	return key, pub
}

type fixture struct {
	batchID uuid.UUID
	date    time.Time

	ingestionTransport      transport.Transport
	ownValidationTransport  transport.Transport
	peerValidationTransport transport.Transport

	facilitatorKey *prio.PrivateKey
	ingestorPub    *signing.PublicKey

	cfg config.IntakeConfig
}

func newFixture(t *testing.T, packetCount int) fixture {
	t.Helper()
	ctx := context.Background()

	phaTransport := transport.NewLocalTransport(t.TempDir())
	facilitatorTransport := transport.NewLocalTransport(t.TempDir())

	phaKey, err := prio.GenerateKey()
	require.NoError(t, err)
	facilitatorKey, err := prio.GenerateKey()
	require.NoError(t, err)
	ingestorSigner, ingestorPub := generateSigningKey(t)

	batchID := uuid.New()
	date := time.Now()
	params := sample.Params{
		AggregationName:  "kittens-seen",
		BatchID:          batchID,
		Date:             date,
		BatchStartTime:   1000,
		BatchEndTime:     2000,
		Bins:             4,
		Epsilon:          0.23,
		PacketCount:      packetCount,
		PHAKey:           phaKey,
		FacilitatorKey:   facilitatorKey,
		IngestorSigner:   ingestorSigner,
		IngestorKeyID:    "ingestor-1",
		PHAKeyID:         "pha-key-1",
		FacilitatorKeyID: "facilitator-key-1",
	}
	require.NoError(t, sample.GenerateIngestionBatch(ctx, phaTransport, facilitatorTransport, params))

	facilitatorSigner, _ := generateSigningKey(t)

	return fixture{
		batchID:                 batchID,
		date:                    date,
		ingestionTransport:      facilitatorTransport,
		ownValidationTransport:  transport.NewLocalTransport(t.TempDir()),
		peerValidationTransport: transport.NewLocalTransport(t.TempDir()),
		facilitatorKey:          facilitatorKey,
		ingestorPub:             ingestorPub,
		cfg: config.IntakeConfig{
			AggregationName: params.AggregationName,
			BatchID:         batchID.String(),
			Date:            date,
			IsFirst:         false,
			DecryptionKeys:  []*prio.PrivateKey{facilitatorKey},
			SigningKey:      facilitatorSigner,
			SigningKeyID:    "facilitator-key-1",
		},
	}
}

func TestBatchIntakerWritesMatchingValidationBatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	f.cfg.IngestorKeys = signing.NewPublicKeySet(map[string]*signing.PublicKey{"ingestor-1": f.ingestorPub})
	f.cfg.IngestionTransport = f.ingestionTransport
	f.cfg.OwnValidationTransport = f.ownValidationTransport
	f.cfg.PeerValidationTransport = f.peerValidationTransport

	require.NoError(t, NewBatchIntaker(f.cfg).Intake(ctx))

	signingKeys := signing.NewPublicKeySet(map[string]*signing.PublicKey{"facilitator-key-1": f.cfg.SigningKey.Public()})

	// Own and peer copies share the same locator (intake writes both
	// under this processor's own is_first suffix, to two different
	// transports): only the destination transport distinguishes them.
	locator := batch.NewValidationLocator(f.cfg.AggregationName, f.batchID, f.date, false)

	ownReader := batch.NewReader[*idl.ValidationHeader, *idl.ValidationPacket](f.ownValidationTransport, locator, batch.ValidationCodec)
	peerReader := batch.NewReader[*idl.ValidationHeader, *idl.ValidationPacket](f.peerValidationTransport, locator, batch.ValidationCodec)

	ownHeader, err := ownReader.Header(ctx, signingKeys)
	require.NoError(t, err)
	peerHeader, err := peerReader.Header(ctx, signingKeys)
	require.NoError(t, err)

	assert.Equal(t, f.batchID, ownHeader.BatchUUID)
	assert.Equal(t, ownHeader.Name, peerHeader.Name)
	assert.Equal(t, ownHeader.Bins, peerHeader.Bins)
	// Same packets written to both files, so the digests happen to match,
	// though the code paths are independent.
	assert.Equal(t, ownHeader.PacketFileDigest(), peerHeader.PacketFileDigest())

	ownPR, err := ownReader.PacketFileReader(ctx, ownHeader)
	require.NoError(t, err)
	count := 0
	for ownPR.Next() {
		_, err := ownReader.Next(ownPR)
		require.NoError(t, err)
		count++
	}
	require.NoError(t, ownPR.Error())
	assert.Equal(t, 6, count)

	peerPR, err := peerReader.PacketFileReader(ctx, peerHeader)
	require.NoError(t, err)
	count = 0
	for peerPR.Next() {
		_, err := peerReader.Next(peerPR)
		require.NoError(t, err)
		count++
	}
	require.NoError(t, peerPR.Error())
	assert.Equal(t, 6, count)
}

func TestBatchIntakerRejectsBadIngestionSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	_, wrongPub := generateSigningKey(t)
	f.cfg.IngestorKeys = signing.NewPublicKeySet(map[string]*signing.PublicKey{"ingestor-1": wrongPub})
	f.cfg.IngestionTransport = f.ingestionTransport
	f.cfg.OwnValidationTransport = f.ownValidationTransport
	f.cfg.PeerValidationTransport = f.peerValidationTransport

	err := NewBatchIntaker(f.cfg).Intake(ctx)
	require.Error(t, err)
}

func TestBatchIntakerSurfacesPacketDecryptionError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.cfg.IngestorKeys = signing.NewPublicKeySet(map[string]*signing.PublicKey{"ingestor-1": f.ingestorPub})
	f.cfg.IngestionTransport = f.ingestionTransport
	f.cfg.OwnValidationTransport = f.ownValidationTransport
	f.cfg.PeerValidationTransport = f.peerValidationTransport

	wrongKey, err := prio.GenerateKey()
	require.NoError(t, err)
	f.cfg.DecryptionKeys = []*prio.PrivateKey{wrongKey}

	err = NewBatchIntaker(f.cfg).Intake(ctx)
	require.Error(t, err)
	var decryptErr *PacketDecryptionError
	require.ErrorAs(t, err, &decryptErr)
}

func TestBatchIntakerRejectsNonPositiveBins(t *testing.T) {
	ctx := context.Background()

	ingestionTransport := transport.NewLocalTransport(t.TempDir())
	ingestorSigner, ingestorPub := generateSigningKey(t)

	batchID := uuid.New()
	date := time.Now()
	locator := batch.NewIngestionLocator("kittens-seen", batchID, date)
	writer := batch.NewWriter[*idl.IngestionHeader, *idl.IngestionDataSharePacket](ingestionTransport, locator, batch.IngestionCodec)

	digest, err := writer.WritePacketFile(ctx, func(pw *idl.PacketFileWriter) error { return nil })
	require.NoError(t, err)

	header := &idl.IngestionHeader{BatchUUID: batchID, Name: "kittens-seen", Bins: 0, NumberOfServers: 2}
	header.SetPacketFileDigest(digest)
	signature, err := writer.PutHeader(ctx, header, ingestorSigner)
	require.NoError(t, err)
	require.NoError(t, writer.PutSignature(ctx, signature, "ingestor-1"))

	cfg := config.IntakeConfig{
		AggregationName:         "kittens-seen",
		BatchID:                 batchID.String(),
		Date:                    date,
		IngestorKeys:            signing.NewPublicKeySet(map[string]*signing.PublicKey{"ingestor-1": ingestorPub}),
		IngestionTransport:      ingestionTransport,
		OwnValidationTransport:  transport.NewLocalTransport(t.TempDir()),
		PeerValidationTransport: transport.NewLocalTransport(t.TempDir()),
		DecryptionKeys:          []*prio.PrivateKey{mustGenerateKey(t)},
	}

	err = NewBatchIntaker(cfg).Intake(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bins")
}

func mustGenerateKey(t *testing.T) *prio.PrivateKey {
	t.Helper()
	key, err := prio.GenerateKey()
	require.NoError(t, err)
	return key
}

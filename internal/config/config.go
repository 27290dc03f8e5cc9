// Package config holds the narrow set of parameters the core needs from
// its caller to run one intake or aggregation task: decryption keys,
// signing keys, peer public-key maps, and transport roots. It does not
// parse flags, environment variables, or YAML manifests; those concerns
// belong to a caller, so these are plain structs a caller builds directly.
package config

import (
	"time"

	"go.uber.org/zap"

	"github.com/divviup/prio-server-sub000/internal/prio"
	"github.com/divviup/prio-server-sub000/internal/signing"
	"github.com/divviup/prio-server-sub000/internal/transport"
)

// IntakeConfig configures one call to the intake pipeline for a single
// ingestion batch.
type IntakeConfig struct {
	AggregationName string
	BatchID         string
	Date            time.Time
	IsFirst         bool

	// TraceID correlates this task's log lines with whatever identifier
	// its caller already uses (a workflow run ID, a queue message ID).
	// Left empty, correlation falls back to aggregation_name/batch_uuid.
	TraceID string

	// DecryptionKeys are tried in order against each packet: the first
	// key that decrypts a packet is used for it.
	DecryptionKeys []*prio.PrivateKey

	// IngestorKeys maps key_identifier to public key, used to verify the
	// ingestion batch's signature.
	IngestorKeys *signing.PublicKeySet

	// SigningKey and SigningKeyID sign this processor's own output
	// batches.
	SigningKey   *signing.Key
	SigningKeyID string

	IngestionTransport      transport.Transport
	PeerValidationTransport transport.Transport
	OwnValidationTransport  transport.Transport

	// Logger receives structured per-task diagnostics (internal/telemetry).
	// A nil Logger is treated as a no-op logger.
	Logger *zap.Logger
}

// AggregationConfig configures one call to the aggregation pipeline over
// a window of batches.
type AggregationConfig struct {
	AggregationName  string
	AggregationStart time.Time
	AggregationEnd   time.Time
	IsFirst          bool

	// TraceID correlates this task's log lines with whatever identifier
	// its caller already uses (a workflow run ID, a queue message ID).
	// Left empty, correlation falls back to aggregation_name.
	TraceID string

	// Batches names the (batch_id, date) pairs to aggregate together,
	// in order; H0 (the first) sets the parameters every other batch's
	// ingestion header must match.
	Batches []BatchRef

	DecryptionKeys []*prio.PrivateKey
	IngestorKeys   *signing.PublicKeySet
	PeerKeys       *signing.PublicKeySet

	SigningKey   *signing.Key
	SigningKeyID string

	IngestionTransport      transport.Transport
	PeerValidationTransport transport.Transport
	OwnValidationTransport  transport.Transport
	AggregationTransport    transport.Transport

	// Logger receives structured per-task diagnostics (internal/telemetry).
	// A nil Logger is treated as a no-op logger.
	Logger *zap.Logger
}

// BatchRef names one ingestion batch to include in an aggregation window.
type BatchRef struct {
	BatchID string
	Date    time.Time
}

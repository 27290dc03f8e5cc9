package idl

import (
	"io"

	"github.com/google/uuid"
)

// Header is implemented by every batch header type (ingestion, validation,
// sum part). Headers additionally carry the packet-file digest that binds
// the header to the packet file it describes.
type Header interface {
	PacketFileDigest() []byte
	SetPacketFileDigest(digest []byte)
	Write(w io.Writer) error
}

// Packet is implemented by every packet record type (ingestion data-share,
// validation, invalid-packet marker). toRecord produces the map consumed by
// the shared multi-record packet writer in packet.go.
type Packet interface {
	toRecord() map[string]any
}

// IngestionHeader is the header of an ingestion batch.
type IngestionHeader struct {
	BatchUUID        uuid.UUID
	Name             string
	Bins             int32
	Epsilon          float64
	Prime            int64
	NumberOfServers  int32
	HammingWeight    *int32
	BatchStartTime   int64
	BatchEndTime     int64
	packetFileDigest []byte
}

func (h *IngestionHeader) PacketFileDigest() []byte        { return h.packetFileDigest }
func (h *IngestionHeader) SetPacketFileDigest(d []byte)     { h.packetFileDigest = d }

func (h *IngestionHeader) toRecord() map[string]any {
	return map[string]any{
		"batch_uuid":         h.BatchUUID.String(),
		"name":               h.Name,
		"bins":               h.Bins,
		"epsilon":            h.Epsilon,
		"prime":              h.Prime,
		"number_of_servers":  h.NumberOfServers,
		"hamming_weight":     optInt32ToAny(h.HammingWeight),
		"batch_start_time":   h.BatchStartTime,
		"batch_end_time":     h.BatchEndTime,
		"packet_file_digest": h.packetFileDigest,
	}
}

func (h *IngestionHeader) Write(w io.Writer) error {
	return appendRecordFile(ingestionHeaderSchema, w, h.toRecord())
}

// ReadIngestionHeader reads and validates an ingestion header object. bins
// must be checked positive by the caller: a header with bins <= 0 is
// still a structurally well-formed record, so that invariant is
// pipeline-enforced rather than codec-enforced.
func ReadIngestionHeader(r io.Reader) (*IngestionHeader, error) {
	record, err := readSingleRecord(ingestionHeaderSchema, r)
	if err != nil {
		return nil, err
	}
	return ingestionHeaderFromRecord(record)
}

func ingestionHeaderFromRecord(record map[string]any) (*IngestionHeader, error) {
	h := &IngestionHeader{}
	var err error
	if h.BatchUUID, err = fieldUUID(record, "batch_uuid"); err != nil {
		return nil, err
	}
	if h.Name, err = fieldString(record, "name"); err != nil {
		return nil, err
	}
	if h.Bins, err = fieldInt32(record, "bins"); err != nil {
		return nil, err
	}
	if h.Epsilon, err = fieldFloat64(record, "epsilon"); err != nil {
		return nil, err
	}
	if h.Prime, err = fieldInt64(record, "prime"); err != nil {
		return nil, err
	}
	if h.NumberOfServers, err = fieldInt32(record, "number_of_servers"); err != nil {
		return nil, err
	}
	if h.HammingWeight, err = fieldOptionalInt32(record, "hamming_weight"); err != nil {
		return nil, err
	}
	if h.BatchStartTime, err = fieldInt64(record, "batch_start_time"); err != nil {
		return nil, err
	}
	if h.BatchEndTime, err = fieldInt64(record, "batch_end_time"); err != nil {
		return nil, err
	}
	if h.packetFileDigest, err = fieldBytes(record, "packet_file_digest"); err != nil {
		return nil, err
	}
	return h, nil
}

// ValidationHeader is the header of a validation batch. Identical to
// IngestionHeader minus the timing fields.
type ValidationHeader struct {
	BatchUUID        uuid.UUID
	Name             string
	Bins             int32
	Epsilon          float64
	Prime            int64
	NumberOfServers  int32
	HammingWeight    *int32
	packetFileDigest []byte
}

func (h *ValidationHeader) PacketFileDigest() []byte    { return h.packetFileDigest }
func (h *ValidationHeader) SetPacketFileDigest(d []byte) { h.packetFileDigest = d }

func (h *ValidationHeader) toRecord() map[string]any {
	return map[string]any{
		"batch_uuid":         h.BatchUUID.String(),
		"name":               h.Name,
		"bins":               h.Bins,
		"epsilon":            h.Epsilon,
		"prime":              h.Prime,
		"number_of_servers":  h.NumberOfServers,
		"hamming_weight":     optInt32ToAny(h.HammingWeight),
		"packet_file_digest": h.packetFileDigest,
	}
}

func (h *ValidationHeader) Write(w io.Writer) error {
	return appendRecordFile(validationHeaderSchema, w, h.toRecord())
}

func ReadValidationHeader(r io.Reader) (*ValidationHeader, error) {
	record, err := readSingleRecord(validationHeaderSchema, r)
	if err != nil {
		return nil, err
	}
	h := &ValidationHeader{}
	var err2 error
	if h.BatchUUID, err2 = fieldUUID(record, "batch_uuid"); err2 != nil {
		return nil, err2
	}
	if h.Name, err2 = fieldString(record, "name"); err2 != nil {
		return nil, err2
	}
	if h.Bins, err2 = fieldInt32(record, "bins"); err2 != nil {
		return nil, err2
	}
	if h.Epsilon, err2 = fieldFloat64(record, "epsilon"); err2 != nil {
		return nil, err2
	}
	if h.Prime, err2 = fieldInt64(record, "prime"); err2 != nil {
		return nil, err2
	}
	if h.NumberOfServers, err2 = fieldInt32(record, "number_of_servers"); err2 != nil {
		return nil, err2
	}
	if h.HammingWeight, err2 = fieldOptionalInt32(record, "hamming_weight"); err2 != nil {
		return nil, err2
	}
	if h.packetFileDigest, err2 = fieldBytes(record, "packet_file_digest"); err2 != nil {
		return nil, err2
	}
	return h, nil
}

// CheckParametersAgainstIngestion checks the cross-batch consistency
// rule for one aggregation window: name, bins, epsilon, prime,
// number_of_servers and hamming_weight must match across every
// ingestion header in the window.
func (h *IngestionHeader) CheckParametersAgainstIngestion(other *IngestionHeader) bool {
	return h.Name == other.Name &&
		h.Bins == other.Bins &&
		h.Epsilon == other.Epsilon &&
		h.Prime == other.Prime &&
		h.NumberOfServers == other.NumberOfServers &&
		hammingWeightEqual(h.HammingWeight, other.HammingWeight)
}

// CheckParametersAgainstValidation checks an ingestion header against the
// peer validation header for the same batch: the same parameter set plus
// batch_uuid.
func (h *IngestionHeader) CheckParametersAgainstValidation(v *ValidationHeader) bool {
	return h.BatchUUID == v.BatchUUID &&
		h.Name == v.Name &&
		h.Bins == v.Bins &&
		h.Epsilon == v.Epsilon &&
		h.Prime == v.Prime &&
		h.NumberOfServers == v.NumberOfServers &&
		hammingWeightEqual(h.HammingWeight, v.HammingWeight)
}

func hammingWeightEqual(a, b *int32) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// SumPartHeader is the header of a sum-part batch: a superset of
// ValidationHeader.
type SumPartHeader struct {
	BatchUUIDs             []uuid.UUID
	Name                   string
	Bins                   int32
	Epsilon                float64
	Prime                  int64
	NumberOfServers        int32
	HammingWeight          *int32
	Sum                    []int64
	AggregationStartTime   int64
	AggregationEndTime     int64
	TotalIndividualClients int64
	packetFileDigest       []byte
}

func (h *SumPartHeader) PacketFileDigest() []byte    { return h.packetFileDigest }
func (h *SumPartHeader) SetPacketFileDigest(d []byte) { h.packetFileDigest = d }

func (h *SumPartHeader) toRecord() map[string]any {
	sum := make([]any, len(h.Sum))
	for i, v := range h.Sum {
		sum[i] = v
	}
	uuidStrs := uuidStrings(h.BatchUUIDs)
	uuids := make([]any, len(uuidStrs))
	for i, s := range uuidStrs {
		uuids[i] = s
	}
	return map[string]any{
		"batch_uuids":               uuids,
		"name":                      h.Name,
		"bins":                      h.Bins,
		"epsilon":                   h.Epsilon,
		"prime":                     h.Prime,
		"number_of_servers":         h.NumberOfServers,
		"hamming_weight":            optInt32ToAny(h.HammingWeight),
		"sum":                       sum,
		"aggregation_start_time":    h.AggregationStartTime,
		"aggregation_end_time":      h.AggregationEndTime,
		"packet_file_digest":        h.packetFileDigest,
		"total_individual_clients":  h.TotalIndividualClients,
	}
}

func (h *SumPartHeader) Write(w io.Writer) error {
	return appendRecordFile(sumPartSchema, w, h.toRecord())
}

func ReadSumPartHeader(r io.Reader) (*SumPartHeader, error) {
	record, err := readSingleRecord(sumPartSchema, r)
	if err != nil {
		return nil, err
	}
	h := &SumPartHeader{}
	uuidStrs, err := fieldStringArray(record, "batch_uuids")
	if err != nil {
		return nil, err
	}
	if h.BatchUUIDs, err = parseUUIDs(uuidStrs); err != nil {
		return nil, err
	}
	if h.Name, err = fieldString(record, "name"); err != nil {
		return nil, err
	}
	if h.Bins, err = fieldInt32(record, "bins"); err != nil {
		return nil, err
	}
	if h.Epsilon, err = fieldFloat64(record, "epsilon"); err != nil {
		return nil, err
	}
	if h.Prime, err = fieldInt64(record, "prime"); err != nil {
		return nil, err
	}
	if h.NumberOfServers, err = fieldInt32(record, "number_of_servers"); err != nil {
		return nil, err
	}
	if h.HammingWeight, err = fieldOptionalInt32(record, "hamming_weight"); err != nil {
		return nil, err
	}
	if h.Sum, err = fieldInt64Array(record, "sum"); err != nil {
		return nil, err
	}
	if h.AggregationStartTime, err = fieldInt64(record, "aggregation_start_time"); err != nil {
		return nil, err
	}
	if h.AggregationEndTime, err = fieldInt64(record, "aggregation_end_time"); err != nil {
		return nil, err
	}
	if h.packetFileDigest, err = fieldBytes(record, "packet_file_digest"); err != nil {
		return nil, err
	}
	if h.TotalIndividualClients, err = fieldInt64(record, "total_individual_clients"); err != nil {
		return nil, err
	}
	return h, nil
}

func optInt32ToAny(v *int32) any {
	if v == nil {
		return nil
	}
	return *v
}

// BatchSignature is the detached-signature companion record written
// alongside every header object, holding the ASN.1 DER signature over the
// header's exact bytes and the identifier of the key that produced it (see
// internal/signing). batch_header and packets are always written as null:
// the inline copies the schema permits are never populated since the
// signature always rides in its own `.sig` sidecar file next to the
// header it covers.
type BatchSignature struct {
	Signature     []byte
	KeyIdentifier string
}

func (s *BatchSignature) toRecord() map[string]any {
	return map[string]any{
		"batch_header_signature": s.Signature,
		"key_identifier":         s.KeyIdentifier,
		"batch_header":           nil,
		"packets":                nil,
	}
}

// Write serializes the signature as a single-record Avro OCF object.
func (s *BatchSignature) Write(w io.Writer) error {
	return appendRecordFile(batchSignatureSchema, w, s.toRecord())
}

// ReadBatchSignature reads and validates a signature object.
func ReadBatchSignature(r io.Reader) (*BatchSignature, error) {
	record, err := readSingleRecord(batchSignatureSchema, r)
	if err != nil {
		return nil, err
	}
	s := &BatchSignature{}
	var err2 error
	if s.Signature, err2 = fieldBytes(record, "batch_header_signature"); err2 != nil {
		return nil, err2
	}
	if s.KeyIdentifier, err2 = fieldString(record, "key_identifier"); err2 != nil {
		return nil, err2
	}
	return s, nil
}

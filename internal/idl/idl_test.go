package idl

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestionHeaderRoundTrip(t *testing.T) {
	hw := int32(10)
	want := &IngestionHeader{
		BatchUUID:       uuid.New(),
		Name:            "kittens-seen",
		Bins:            2,
		Epsilon:         0.23,
		Prime:           4293918721,
		NumberOfServers: 2,
		HammingWeight:   &hw,
		BatchStartTime:  1000,
		BatchEndTime:    2000,
	}
	want.SetPacketFileDigest([]byte{1, 2, 3, 4})

	var buf bytes.Buffer
	require.NoError(t, want.Write(&buf))

	got, err := ReadIngestionHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, want.BatchUUID, got.BatchUUID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Bins, got.Bins)
	assert.Equal(t, want.Epsilon, got.Epsilon)
	assert.Equal(t, want.Prime, got.Prime)
	assert.Equal(t, want.NumberOfServers, got.NumberOfServers)
	require.NotNil(t, got.HammingWeight)
	assert.Equal(t, *want.HammingWeight, *got.HammingWeight)
	assert.Equal(t, want.BatchStartTime, got.BatchStartTime)
	assert.Equal(t, want.BatchEndTime, got.BatchEndTime)
	assert.Equal(t, want.PacketFileDigest(), got.PacketFileDigest())
}

func TestIngestionHeaderNilHammingWeight(t *testing.T) {
	want := &IngestionHeader{
		BatchUUID:       uuid.New(),
		Name:            "kittens-seen",
		Bins:            2,
		Epsilon:         0.23,
		Prime:           4293918721,
		NumberOfServers: 2,
	}
	want.SetPacketFileDigest([]byte{})

	var buf bytes.Buffer
	require.NoError(t, want.Write(&buf))

	got, err := ReadIngestionHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Nil(t, got.HammingWeight)
}

func TestReadIngestionHeaderEmptyInputIsError(t *testing.T) {
	_, err := ReadIngestionHeader(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestValidationHeaderRoundTrip(t *testing.T) {
	want := &ValidationHeader{
		BatchUUID:       uuid.New(),
		Name:            "kittens-seen",
		Bins:            2,
		Epsilon:         0.23,
		Prime:           4293918721,
		NumberOfServers: 2,
	}
	want.SetPacketFileDigest([]byte{9, 9, 9})

	var buf bytes.Buffer
	require.NoError(t, want.Write(&buf))

	got, err := ReadValidationHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, want.BatchUUID, got.BatchUUID)
	assert.Equal(t, want.PacketFileDigest(), got.PacketFileDigest())
}

func TestIngestionValidationParameterChecks(t *testing.T) {
	batchID := uuid.New()
	ingestion := &IngestionHeader{
		BatchUUID: batchID, Name: "n", Bins: 2, Epsilon: 0.1, Prime: 7, NumberOfServers: 2,
	}
	validation := &ValidationHeader{
		BatchUUID: batchID, Name: "n", Bins: 2, Epsilon: 0.1, Prime: 7, NumberOfServers: 2,
	}
	assert.True(t, ingestion.CheckParametersAgainstValidation(validation))

	validation.Bins = 3
	assert.False(t, ingestion.CheckParametersAgainstValidation(validation))
}

func TestSumPartHeaderRoundTrip(t *testing.T) {
	want := &SumPartHeader{
		BatchUUIDs:             []uuid.UUID{uuid.New(), uuid.New()},
		Name:                   "kittens-seen",
		Bins:                   2,
		Epsilon:                0.23,
		Prime:                  4293918721,
		NumberOfServers:        2,
		Sum:                    []int64{10, 20},
		AggregationStartTime:   1000,
		AggregationEndTime:     2000,
		TotalIndividualClients: 42,
	}
	want.SetPacketFileDigest([]byte{7, 7})

	var buf bytes.Buffer
	require.NoError(t, want.Write(&buf))

	got, err := ReadSumPartHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.ElementsMatch(t, want.BatchUUIDs, got.BatchUUIDs)
	assert.Equal(t, want.Sum, got.Sum)
	assert.Equal(t, want.TotalIndividualClients, got.TotalIndividualClients)
	assert.Equal(t, want.PacketFileDigest(), got.PacketFileDigest())
}

func TestBatchSignatureRoundTrip(t *testing.T) {
	want := &BatchSignature{Signature: []byte{1, 2, 3}, KeyIdentifier: "key-1"}

	var buf bytes.Buffer
	require.NoError(t, want.Write(&buf))

	got, err := ReadBatchSignature(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, want.Signature, got.Signature)
	assert.Equal(t, want.KeyIdentifier, got.KeyIdentifier)
}

func TestIngestionDataSharePacketFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewIngestionDataSharePacketWriter(&buf)
	require.NoError(t, err)

	keyID := "key-1"
	want := []*IngestionDataSharePacket{
		{UUID: uuid.New(), EncryptedPayload: []byte("payload-1"), EncryptionKeyID: &keyID, RPit: 7},
		{UUID: uuid.New(), EncryptedPayload: []byte("payload-2"), RPit: 99},
	}
	for _, p := range want {
		require.NoError(t, w.Append(p))
	}
	require.NoError(t, w.Close())

	r, err := NewIngestionDataSharePacketReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	var got []*IngestionDataSharePacket
	for r.Next() {
		p, err := r.NextIngestionDataSharePacket()
		require.NoError(t, err)
		got = append(got, p)
	}
	require.NoError(t, r.Error())
	require.Len(t, got, 2)
	assert.Equal(t, want[0].UUID, got[0].UUID)
	assert.Equal(t, want[0].EncryptedPayload, got[0].EncryptedPayload)
	require.NotNil(t, got[0].EncryptionKeyID)
	assert.Equal(t, keyID, *got[0].EncryptionKeyID)
	assert.Nil(t, got[1].EncryptionKeyID)
}

func TestValidationPacketFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewValidationPacketWriter(&buf)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, w.Append(&ValidationPacket{UUID: id, FR: 1, GR: 2, HR: 3}))
	require.NoError(t, w.Close())

	r, err := NewValidationPacketReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.True(t, r.Next())
	got, err := r.NextValidationPacket()
	require.NoError(t, err)
	assert.Equal(t, id, got.UUID)
	assert.Equal(t, int64(1), got.FR)
	assert.False(t, r.Next())
}

func TestIngestionDataSharePacketRPitAtUint32MaxRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewIngestionDataSharePacketWriter(&buf)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, w.Append(&IngestionDataSharePacket{UUID: id, EncryptedPayload: []byte("p"), RPit: 4294967295}))
	require.NoError(t, w.Close())

	r, err := NewIngestionDataSharePacketReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.True(t, r.Next())
	got, err := r.NextIngestionDataSharePacket()
	require.NoError(t, err)
	assert.Equal(t, int64(4294967295), got.RPit)
}

func TestIngestionDataSharePacketRPitOverflowsUint32(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewIngestionDataSharePacketWriter(&buf)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, w.Append(&IngestionDataSharePacket{UUID: id, EncryptedPayload: []byte("p"), RPit: 4294967296}))
	require.NoError(t, w.Close())

	r, err := NewIngestionDataSharePacketReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.True(t, r.Next())
	_, err = r.NextIngestionDataSharePacket()
	require.Error(t, err)

	var overflow *OverflowingRPitError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, int64(4294967296), overflow.Value)
}

// truncatedIngestionHeaderSchema omits bins, the field these tests exercise
// as "missing" against the full ingestionHeaderSchema.
const truncatedIngestionHeaderSchemaJSON = `{
	"type": "record",
	"name": "IngestionHeader",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "batch_uuid", "type": "string"},
		{"name": "name", "type": "string"},
		{"name": "epsilon", "type": "double"},
		{"name": "prime", "type": "long"},
		{"name": "number_of_servers", "type": "int"},
		{"name": "hamming_weight", "type": ["null", "int"], "default": null},
		{"name": "batch_start_time", "type": "long"},
		{"name": "batch_end_time", "type": "long"},
		{"name": "packet_file_digest", "type": "bytes"}
	]
}`

func TestReadIngestionHeaderMissingFieldIsMalformedHeaderError(t *testing.T) {
	schema, err := avro.Parse(truncatedIngestionHeaderSchemaJSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	enc, err := ocf.NewEncoderWithSchema(schema, &buf, ocf.WithCodec(ocf.Deflate))
	require.NoError(t, err)
	require.NoError(t, enc.Encode(map[string]any{
		"batch_uuid":         uuid.New().String(),
		"name":               "n",
		"epsilon":            0.1,
		"prime":              int64(7),
		"number_of_servers":  int32(2),
		"hamming_weight":     nil,
		"batch_start_time":   int64(0),
		"batch_end_time":     int64(1),
		"packet_file_digest": []byte{},
	}))
	require.NoError(t, enc.Close())

	_, err = ReadIngestionHeader(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
	var malformed *MalformedHeaderError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "bins", malformed.Cause.MissingField)
}

// truncatedIngestionDataSharePacketSchema omits r_pit, the field this test
// exercises as "missing" against the full ingestionDataSharePacketSchema.
const truncatedIngestionDataSharePacketSchemaJSON = `{
	"type": "record",
	"name": "IngestionDataSharePacket",
	"namespace": "org.abetterinternet.prio.v1",
	"fields": [
		{"name": "uuid", "type": "string"},
		{"name": "encrypted_payload", "type": "bytes"},
		{"name": "encryption_key_id", "type": ["null", "string"], "default": null},
		{"name": "version_configuration", "type": ["null", "string"], "default": null},
		{"name": "device_nonce", "type": ["null", "bytes"], "default": null}
	]
}`

func TestReadIngestionDataSharePacketMissingFieldIsMalformedPacketError(t *testing.T) {
	schema, err := avro.Parse(truncatedIngestionDataSharePacketSchemaJSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	enc, err := ocf.NewEncoderWithSchema(schema, &buf, ocf.WithCodec(ocf.Deflate))
	require.NoError(t, err)
	require.NoError(t, enc.Encode(map[string]any{
		"uuid":                  uuid.New().String(),
		"encrypted_payload":     []byte("p"),
		"encryption_key_id":     nil,
		"version_configuration": nil,
		"device_nonce":          nil,
	}))
	require.NoError(t, enc.Close())

	r, err := NewIngestionDataSharePacketReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.True(t, r.Next())
	_, err = r.NextIngestionDataSharePacket()
	require.Error(t, err)

	var malformed *MalformedPacketError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "r_pit", malformed.Cause.MissingField)

	var headerErr *MalformedHeaderError
	assert.False(t, errors.As(err, &headerErr), "a malformed packet must not be reported as a malformed header")
}

func TestInvalidPacketFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewInvalidPacketWriter(&buf)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, w.Append(&InvalidPacket{UUID: id}))
	require.NoError(t, w.Close())

	r, err := NewInvalidPacketReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.True(t, r.Next())
	got, err := r.NextInvalidPacket()
	require.NoError(t, err)
	assert.Equal(t, id, got.UUID)
}

package idl

import (
	"io"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
)

// IngestionDataSharePacket is one client's encrypted data share.
type IngestionDataSharePacket struct {
	UUID                 uuid.UUID
	EncryptedPayload     []byte
	EncryptionKeyID      *string
	RPit                 int64
	VersionConfiguration *string
	DeviceNonce          []byte
}

func (p *IngestionDataSharePacket) toRecord() map[string]any {
	return map[string]any{
		"uuid":                   p.UUID.String(),
		"encrypted_payload":      p.EncryptedPayload,
		"encryption_key_id":      optStringToAny(p.EncryptionKeyID),
		"r_pit":                  p.RPit,
		"version_configuration":  optStringToAny(p.VersionConfiguration),
		"device_nonce":           optBytesToAny(p.DeviceNonce),
	}
}

func ingestionDataSharePacketFromRecord(record map[string]any) (*IngestionDataSharePacket, error) {
	p := &IngestionDataSharePacket{}
	var err error
	if p.UUID, err = fieldUUID(record, "uuid"); err != nil {
		return nil, err
	}
	if p.EncryptedPayload, err = fieldBytes(record, "encrypted_payload"); err != nil {
		return nil, err
	}
	if p.EncryptionKeyID, err = fieldOptionalString(record, "encryption_key_id"); err != nil {
		return nil, err
	}
	if p.RPit, err = fieldRPit(record, "r_pit"); err != nil {
		return nil, err
	}
	if p.VersionConfiguration, err = fieldOptionalString(record, "version_configuration"); err != nil {
		return nil, err
	}
	if p.DeviceNonce, err = fieldOptionalBytes(record, "device_nonce"); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidationPacket carries one server's Prio verification message for one
// client's data share.
type ValidationPacket struct {
	UUID uuid.UUID
	FR   int64
	GR   int64
	HR   int64
}

func (p *ValidationPacket) toRecord() map[string]any {
	return map[string]any{
		"uuid": p.UUID.String(),
		"f_r":  p.FR,
		"g_r":  p.GR,
		"h_r":  p.HR,
	}
}

func validationPacketFromRecord(record map[string]any) (*ValidationPacket, error) {
	p := &ValidationPacket{}
	var err error
	if p.UUID, err = fieldUUID(record, "uuid"); err != nil {
		return nil, err
	}
	if p.FR, err = fieldInt64(record, "f_r"); err != nil {
		return nil, err
	}
	if p.GR, err = fieldInt64(record, "g_r"); err != nil {
		return nil, err
	}
	if p.HR, err = fieldInt64(record, "h_r"); err != nil {
		return nil, err
	}
	return p, nil
}

// InvalidPacket names a client whose data share failed verification and was
// excluded from a sum part's accumulation.
type InvalidPacket struct {
	UUID uuid.UUID
}

func (p *InvalidPacket) toRecord() map[string]any {
	return map[string]any{"uuid": p.UUID.String()}
}

func invalidPacketFromRecord(record map[string]any) (*InvalidPacket, error) {
	id, err := fieldUUID(record, "uuid")
	if err != nil {
		return nil, err
	}
	return &InvalidPacket{UUID: id}, nil
}

func optStringToAny(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func optBytesToAny(v []byte) any {
	if v == nil {
		return nil
	}
	return v
}

// PacketFileWriter appends a sequence of packet records to a single Avro
// OCF container, encoding each onto an already-open writer that reuses one
// schema. Each packet batch (ingestion, validation, invalid) gets its own
// PacketFileWriter built around the matching schema.
type PacketFileWriter struct {
	enc *ocf.Encoder
}

func newPacketFileWriter(schema avro.Schema, w io.Writer) (*PacketFileWriter, error) {
	enc, err := ocf.NewEncoderWithSchema(schema, w, ocf.WithCodec(ocf.Deflate))
	if err != nil {
		return nil, wrapAvro(Append, err)
	}
	return &PacketFileWriter{enc: enc}, nil
}

// NewIngestionDataSharePacketWriter opens a packet file for ingestion
// data-share packets.
func NewIngestionDataSharePacketWriter(w io.Writer) (*PacketFileWriter, error) {
	return newPacketFileWriter(ingestionDataSharePacketSchema, w)
}

// NewValidationPacketWriter opens a packet file for validation packets.
func NewValidationPacketWriter(w io.Writer) (*PacketFileWriter, error) {
	return newPacketFileWriter(validationPacketSchema, w)
}

// NewInvalidPacketWriter opens a packet file for invalid-packet markers.
func NewInvalidPacketWriter(w io.Writer) (*PacketFileWriter, error) {
	return newPacketFileWriter(invalidPacketSchema, w)
}

// Append writes one packet record. p must match the schema the writer was
// opened with; callers get this for free by only ever passing the packet
// type paired with the constructor used above.
func (pw *PacketFileWriter) Append(p Packet) error {
	if err := pw.enc.Encode(p.toRecord()); err != nil {
		return wrapAvro(Append, err)
	}
	return nil
}

// Close flushes and finalizes the underlying OCF container. It does not
// close the underlying io.Writer.
func (pw *PacketFileWriter) Close() error {
	if err := pw.enc.Close(); err != nil {
		return wrapAvro(Flush, err)
	}
	return nil
}

// PacketFileReader iterates the records of a packet file one at a time.
type PacketFileReader struct {
	dec    *ocf.Decoder
	schema avro.Schema
}

func newPacketFileReader(schema avro.Schema, r io.Reader) (*PacketFileReader, error) {
	dec, err := ocf.NewDecoder(r)
	if err != nil {
		return nil, wrapAvro(ReadHeader, err)
	}
	return &PacketFileReader{dec: dec, schema: schema}, nil
}

// NewIngestionDataSharePacketReader opens a reader over an ingestion
// packet file.
func NewIngestionDataSharePacketReader(r io.Reader) (*PacketFileReader, error) {
	return newPacketFileReader(ingestionDataSharePacketSchema, r)
}

// NewValidationPacketReader opens a reader over a validation packet file.
func NewValidationPacketReader(r io.Reader) (*PacketFileReader, error) {
	return newPacketFileReader(validationPacketSchema, r)
}

// NewInvalidPacketReader opens a reader over an invalid-packet file.
func NewInvalidPacketReader(r io.Reader) (*PacketFileReader, error) {
	return newPacketFileReader(invalidPacketSchema, r)
}

// Next reports whether another record is available.
func (pr *PacketFileReader) Next() bool { return pr.dec.HasNext() }

// Error returns any error encountered by the underlying decoder, checked
// after Next returns false.
func (pr *PacketFileReader) Error() error {
	if err := pr.dec.Error(); err != nil {
		return wrapAvro(ReadRecord, err)
	}
	return nil
}

func (pr *PacketFileReader) decodeRecord() (map[string]any, error) {
	var record map[string]any
	if err := pr.dec.Decode(&record); err != nil {
		return nil, wrapAvro(ReadRecord, err)
	}
	if err := validatePacketFields(pr.schema, record); err != nil {
		return nil, err
	}
	return record, nil
}

// NextIngestionDataSharePacket decodes the next ingestion data-share
// packet. Call only on a reader from NewIngestionDataSharePacketReader.
func (pr *PacketFileReader) NextIngestionDataSharePacket() (*IngestionDataSharePacket, error) {
	record, err := pr.decodeRecord()
	if err != nil {
		return nil, err
	}
	return ingestionDataSharePacketFromRecord(record)
}

// NextValidationPacket decodes the next validation packet. Call only on a
// reader from NewValidationPacketReader.
func (pr *PacketFileReader) NextValidationPacket() (*ValidationPacket, error) {
	record, err := pr.decodeRecord()
	if err != nil {
		return nil, err
	}
	return validationPacketFromRecord(record)
}

// NextInvalidPacket decodes the next invalid-packet marker. Call only on a
// reader from NewInvalidPacketReader.
func (pr *PacketFileReader) NextInvalidPacket() (*InvalidPacket, error) {
	record, err := pr.decodeRecord()
	if err != nil {
		return nil, err
	}
	return invalidPacketFromRecord(record)
}

package idl

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
)

// readSingleRecord decodes the single Avro Object Container File record
// expected at the head of every header object: Eof if there are none,
// ExtraData if there is more than one.
func readSingleRecord(schema avro.Schema, r io.Reader) (map[string]any, error) {
	dec, err := ocf.NewDecoder(r)
	if err != nil {
		return nil, wrapAvro(ReadHeader, err)
	}

	if !dec.HasNext() {
		if err := dec.Error(); err != nil {
			return nil, wrapAvro(ReadRecord, err)
		}
		return nil, ErrEof
	}

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, wrapAvro(ReadRecord, err)
	}

	if dec.HasNext() {
		return nil, ErrExtraData
	}

	if err := validateHeaderFields(schema, record); err != nil {
		return nil, err
	}

	return record, nil
}

// appendRecordFile writes exactly one record to a brand-new OCF container,
// used for header and signature objects (each of which is its own
// single-record Avro file).
func appendRecordFile(schema avro.Schema, w io.Writer, record any) error {
	enc, err := ocf.NewEncoderWithSchema(schema, w, ocf.WithCodec(ocf.Deflate))
	if err != nil {
		return wrapAvro(Append, err)
	}
	if err := enc.Encode(record); err != nil {
		return wrapAvro(Append, err)
	}
	if err := enc.Close(); err != nil {
		return wrapAvro(Flush, err)
	}
	return nil
}

// validateFields enforces that record contains exactly the fields declared
// by schema: no extras, no omissions. Avro's own decode already rejects a
// dynamic value whose *kind* disagrees with the declared type, so this step
// only needs to check field presence; field kind mismatches inside
// optional/array fields are still checked explicitly by the per-type
// accessors in accessors.go, since a union's null branch and its value branch both
// "belong" to the schema and only application logic knows which one is
// acceptable where. newExtra/newMissing let header and packet records
// report the mismatch as their own distinct error variant.
func validateFields(schema avro.Schema, record map[string]any, newExtra func(name, kind string) error, newMissing func(name string) error) error {
	rec, ok := schema.(*avro.RecordSchema)
	if !ok {
		return fmt.Errorf("idl: schema %s is not a record", schema.Type())
	}

	expected := make(map[string]struct{}, len(rec.Fields()))
	for _, f := range rec.Fields() {
		expected[f.Name()] = struct{}{}
	}

	for name, value := range record {
		if _, ok := expected[name]; !ok {
			return newExtra(name, kindOf(value))
		}
	}

	for name := range expected {
		if _, ok := record[name]; !ok {
			return newMissing(name)
		}
	}

	return nil
}

// validateHeaderFields validates a record read from a header object,
// reporting any mismatch as MalformedHeaderError.
func validateHeaderFields(schema avro.Schema, record map[string]any) error {
	return validateFields(schema, record, newExtraField, newMissingField)
}

// validatePacketFields validates a record read from a packet file,
// reporting any mismatch as MalformedPacketError.
func validatePacketFields(schema avro.Schema, record map[string]any) error {
	return validateFields(schema, record, newExtraPacketField, newMissingPacketField)
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case []byte:
		return "bytes"
	case int32:
		return "int"
	case int64:
		return "long"
	case float64:
		return "double"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// readBytesFully reads r to completion and returns everything it read.
func readBytesFully(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

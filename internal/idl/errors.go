package idl

import (
	"errors"
	"fmt"
)

// AvroErrorContext identifies which Avro-related operation raised a
// wrapped error, so callers don't have to guess from a bare wrapped error.
type AvroErrorContext int

const (
	ReadHeader AvroErrorContext = iota
	ReadRecord
	Append
	Flush
	Deserialization
)

func (c AvroErrorContext) String() string {
	switch c {
	case ReadHeader:
		return "reading avro header"
	case ReadRecord:
		return "reading record"
	case Append:
		return "writing"
	case Flush:
		return "flushing"
	case Deserialization:
		return "deserializing"
	default:
		return "unknown avro context"
	}
}

// ErrEof is returned when a header file contains no records where exactly
// one was expected.
var ErrEof = errors.New("idl: no record present (eof)")

// ErrExtraData is returned when a header file contains more than one record.
var ErrExtraData = errors.New("idl: more than one record present")

// ErrWrongValueType is returned when a field's decoded Avro value does not
// match the type the schema declares for it.
var ErrWrongValueType = errors.New("idl: field has wrong avro value type")

// AvroError wraps an underlying hamba/avro error with the operation that was
// being attempted when it occurred.
type AvroError struct {
	Context AvroErrorContext
	Cause   error
}

func (e *AvroError) Error() string {
	return fmt.Sprintf("idl: %s: %v", e.Context, e.Cause)
}

func (e *AvroError) Unwrap() error { return e.Cause }

func wrapAvro(ctx AvroErrorContext, cause error) error {
	if cause == nil {
		return nil
	}
	return &AvroError{Context: ctx, Cause: cause}
}

// MalformedHeaderCause identifies which application-level validation rule
// rejected a header record.
type MalformedHeaderCause struct {
	// One of the following is set.
	MissingField               string
	ExtraFieldName             string
	ExtraFieldKind             string
	HammingWeightWrongType     string
	SumArrayElementWrongType   string
	BatchUUIDsElementWrongType string
}

func (c *MalformedHeaderCause) Error() string {
	switch {
	case c.MissingField != "":
		return fmt.Sprintf("missing field %q", c.MissingField)
	case c.ExtraFieldName != "":
		return fmt.Sprintf("unexpected field %s -> %s in record", c.ExtraFieldName, c.ExtraFieldKind)
	case c.HammingWeightWrongType != "":
		return fmt.Sprintf("unexpected value %s for hamming weight", c.HammingWeightWrongType)
	case c.SumArrayElementWrongType != "":
		return fmt.Sprintf("unexpected value in sum array %s", c.SumArrayElementWrongType)
	case c.BatchUUIDsElementWrongType != "":
		return fmt.Sprintf("unexpected value in batch_uuids array %s", c.BatchUUIDsElementWrongType)
	default:
		return "malformed header"
	}
}

// MalformedHeaderError wraps a MalformedHeaderCause describing why a
// header record failed field-presence or value-shape validation.
type MalformedHeaderError struct {
	Cause *MalformedHeaderCause
}

func (e *MalformedHeaderError) Error() string { return "idl: malformed header: " + e.Cause.Error() }
func (e *MalformedHeaderError) Unwrap() error { return e.Cause }

func newExtraField(name, kind string) error {
	return &MalformedHeaderError{Cause: &MalformedHeaderCause{ExtraFieldName: name, ExtraFieldKind: kind}}
}

func newMissingField(name string) error {
	return &MalformedHeaderError{Cause: &MalformedHeaderCause{MissingField: name}}
}

func newHammingWeightWrongType(kind string) error {
	return &MalformedHeaderError{Cause: &MalformedHeaderCause{HammingWeightWrongType: kind}}
}

func newSumArrayElementWrongType(kind string) error {
	return &MalformedHeaderError{Cause: &MalformedHeaderCause{SumArrayElementWrongType: kind}}
}

func newBatchUUIDsElementWrongType(kind string) error {
	return &MalformedHeaderError{Cause: &MalformedHeaderCause{BatchUUIDsElementWrongType: kind}}
}

// MalformedPacketCause identifies which field was missing or unexpected in
// a packet record.
type MalformedPacketCause struct {
	// One of the following is set.
	MissingField   string
	ExtraFieldName string
	ExtraFieldKind string
}

func (c *MalformedPacketCause) Error() string {
	switch {
	case c.MissingField != "":
		return fmt.Sprintf("missing field %q", c.MissingField)
	case c.ExtraFieldName != "":
		return fmt.Sprintf("unexpected field %s -> %s in record", c.ExtraFieldName, c.ExtraFieldKind)
	default:
		return "malformed packet"
	}
}

// MalformedPacketError wraps a MalformedPacketCause as the packet-file
// counterpart of MalformedHeaderError: the same field-presence check, but
// for a record read from a packet file rather than a header object.
type MalformedPacketError struct {
	Cause *MalformedPacketCause
}

func (e *MalformedPacketError) Error() string { return "idl: malformed packet: " + e.Cause.Error() }
func (e *MalformedPacketError) Unwrap() error { return e.Cause }

func newMissingPacketField(name string) error {
	return &MalformedPacketError{Cause: &MalformedPacketCause{MissingField: name}}
}

func newExtraPacketField(name, kind string) error {
	return &MalformedPacketError{Cause: &MalformedPacketCause{ExtraFieldName: name, ExtraFieldKind: kind}}
}

// OverflowingRPitError is returned when a packet's r_pit value does not fit
// in an unsigned 32-bit field element.
type OverflowingRPitError struct {
	Value int64
}

func (e *OverflowingRPitError) Error() string {
	return fmt.Sprintf("idl: r_pit value %d overflows unsigned 32 bits", e.Value)
}

var errOverflowType = errors.New("idl: overflowing r_pit")

func (e *OverflowingRPitError) Unwrap() error { return errOverflowType }

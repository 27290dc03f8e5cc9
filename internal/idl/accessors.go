package idl

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

func fieldString(record map[string]any, name string) (string, error) {
	v, ok := record[name].(string)
	if !ok {
		return "", fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(record[name]))
	}
	return v, nil
}

func fieldUUID(record map[string]any, name string) (uuid.UUID, error) {
	s, err := fieldString(record, name)
	if err != nil {
		return uuid.UUID{}, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("idl: field %s: invalid uuid: %w", name, err)
	}
	return id, nil
}

func fieldBytes(record map[string]any, name string) ([]byte, error) {
	v, ok := record[name].([]byte)
	if !ok {
		return nil, fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(record[name]))
	}
	return v, nil
}

func fieldInt32(record map[string]any, name string) (int32, error) {
	v, ok := record[name].(int32)
	if !ok {
		return 0, fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(record[name]))
	}
	return v, nil
}

func fieldInt64(record map[string]any, name string) (int64, error) {
	v, ok := record[name].(int64)
	if !ok {
		return 0, fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(record[name]))
	}
	return v, nil
}

func fieldFloat64(record map[string]any, name string) (float64, error) {
	v, ok := record[name].(float64)
	if !ok {
		return 0, fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(record[name]))
	}
	return v, nil
}

// fieldRPit decodes r_pit and checks it fits the unsigned 32-bit field
// element servers evaluate verification polynomials at; a value outside
// that range is OverflowingRPitError rather than the generic wrong-type
// error, since the field itself decodes fine as a long.
func fieldRPit(record map[string]any, name string) (int64, error) {
	v, err := fieldInt64(record, name)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxUint32 {
		return 0, &OverflowingRPitError{Value: v}
	}
	return v, nil
}

// fieldOptionalInt32 decodes a ["null","int"] union field. Any non-null,
// non-int value is a hard MalformedHeaderError.
func fieldOptionalInt32(record map[string]any, name string) (*int32, error) {
	v, present := record[name]
	if !present || v == nil {
		return nil, nil
	}
	i, ok := v.(int32)
	if !ok {
		return nil, newHammingWeightWrongType(kindOf(v))
	}
	return &i, nil
}

// fieldOptionalString decodes a ["null","string"] union field.
func fieldOptionalString(record map[string]any, name string) (*string, error) {
	v, present := record[name]
	if !present || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(v))
	}
	return &s, nil
}

// fieldOptionalBytes decodes a ["null","bytes"] union field.
func fieldOptionalBytes(record map[string]any, name string) ([]byte, error) {
	v, present := record[name]
	if !present || v == nil {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(v))
	}
	return b, nil
}

// fieldStringArray decodes the batch_uuids string array. An element of the
// wrong type is a BatchUUIDsElementWrongType MalformedHeaderError rather
// than the generic wrong-type error, since the array field itself decoded
// fine and only one element is at fault.
func fieldStringArray(record map[string]any, name string) ([]string, error) {
	raw, ok := record[name].([]any)
	if !ok {
		return nil, fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(record[name]))
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, newBatchUUIDsElementWrongType(kindOf(v))
		}
		out[i] = s
	}
	return out, nil
}

// fieldInt64Array decodes the sum long array. An element of the wrong type
// is a SumArrayElementWrongType MalformedHeaderError for the same reason
// fieldStringArray gives batch_uuids its own cause.
func fieldInt64Array(record map[string]any, name string) ([]int64, error) {
	raw, ok := record[name].([]any)
	if !ok {
		return nil, fmt.Errorf("idl: field %s: %w (got %s)", name, ErrWrongValueType, kindOf(record[name]))
	}
	out := make([]int64, len(raw))
	for i, v := range raw {
		n, ok := v.(int64)
		if !ok {
			return nil, newSumArrayElementWrongType(kindOf(v))
		}
		out[i] = n
	}
	return out, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(ss []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(ss))
	for i, s := range ss {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("idl: batch_uuids[%d]: invalid uuid: %w", i, err)
		}
		out[i] = id
	}
	return out, nil
}

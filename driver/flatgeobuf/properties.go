package flatgeobuf

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

// column is one property column of a layer being written.
type column struct {
	name string
	typ  flattypes.ColumnType
}

// schemaColumns maps the properties of s to FlatGeobuf columns, in order.
func schemaColumns(s *vector.Schema) ([]column, error) {
	cols := make([]column, 0, len(s.Properties))
	for _, p := range s.Properties {
		typ, err := columnType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: property %q", err, p.Name)
		}
		cols = append(cols, column{name: p.Name, typ: typ})
	}
	return cols, nil
}

// columnType maps a schema property type to a column type.
func columnType(propType string) (flattypes.ColumnType, error) {
	base, _, _ := vector.FieldType(propType)
	switch base {
	case "str":
		return flattypes.ColumnTypeString, nil
	case "int":
		return flattypes.ColumnTypeLong, nil
	case "float":
		return flattypes.ColumnTypeDouble, nil
	case "bool":
		return flattypes.ColumnTypeBool, nil
	case "date", "time", "datetime":
		return flattypes.ColumnTypeDateTime, nil
	case "json":
		return flattypes.ColumnTypeJson, nil
	case "bytes":
		return flattypes.ColumnTypeBinary, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidColumn, propType)
	}
}

// propertyType maps a column type read from a file to a schema type.
func propertyType(t flattypes.ColumnType) string {
	switch t {
	case flattypes.ColumnTypeBool:
		return "bool"
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte,
		flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort,
		flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt,
		flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		return "int"
	case flattypes.ColumnTypeFloat, flattypes.ColumnTypeDouble:
		return "float"
	case flattypes.ColumnTypeDateTime:
		return "datetime"
	case flattypes.ColumnTypeJson:
		return "json"
	case flattypes.ColumnTypeBinary:
		return "bytes"
	default:
		return "str"
	}
}

// buildColumns creates the header columns for cols.
func buildColumns(cols []column, builder *flatbuffers.Builder) []*writer.Column {
	out := make([]*writer.Column, 0, len(cols))
	for _, c := range cols {
		col := writer.NewColumn(builder)
		col.SetName(c.name)
		col.SetTitle(c.name) // Set title to match name for JS library compatibility
		col.SetType(c.typ)
		col.SetNullable(true)
		out = append(out, col)
	}
	return out
}

// encodeProperties encodes props in column order. Each present value is
// written as a little-endian uint16 column index followed by the value; null
// and missing values are omitted.
func encodeProperties(props geojson.Properties, cols []column) ([]byte, error) {
	var buf []byte
	for i, c := range cols {
		value, ok := props[c.name]
		if !ok || value == nil {
			continue
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(i))
		var err error
		buf, err = appendValue(buf, value, c.typ)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", c.name, err)
		}
	}
	return buf, nil
}

// appendValue appends value encoded as column type t.
func appendValue(buf []byte, value any, t flattypes.ColumnType) ([]byte, error) {
	mismatch := func() error {
		return fmt.Errorf("%w: cannot encode %T as %s", ErrInvalidColumn, value, flattypes.EnumNamesColumnType[t])
	}

	switch t {
	case flattypes.ColumnTypeBool:
		v, ok := value.(bool)
		if !ok {
			return nil, mismatch()
		}
		if v {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case flattypes.ColumnTypeLong:
		v, ok := toInt64(value)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint64(buf, uint64(v)), nil

	case flattypes.ColumnTypeDouble:
		v, ok := toFloat64(value)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v)), nil

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		return appendBytes(buf, []byte(toString(value))), nil

	case flattypes.ColumnTypeJson:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidColumn, err)
		}
		return appendBytes(buf, b), nil

	case flattypes.ColumnTypeBinary:
		b, ok := value.([]byte)
		if !ok {
			return nil, mismatch()
		}
		return appendBytes(buf, b), nil

	default:
		return nil, mismatch()
	}
}

// appendBytes writes a uint32 length prefix and b.
func appendBytes(buf, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// decodeProperties decodes the property buffer of a feature. Every column of
// the header is present in the result; absent values are nil.
func decodeProperties(data []byte, header *flattypes.Header) (geojson.Properties, error) {
	n := header.ColumnsLength()
	names := make([]string, n)
	types := make([]flattypes.ColumnType, n)
	props := make(geojson.Properties, n)
	for i := 0; i < n; i++ {
		var col flattypes.Column
		if !header.Columns(&col, i) {
			return nil, fmt.Errorf("%w: column %d", ErrInvalidData, i)
		}
		names[i] = string(col.Name())
		types[i] = col.Type()
		props[names[i]] = nil
	}

	for offset := 0; offset < len(data); {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated property index", ErrInvalidData)
		}
		idx := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if idx >= n {
			return nil, fmt.Errorf("%w: column index %d out of range", ErrInvalidData, idx)
		}

		value, size, err := readValue(data[offset:], types[idx])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", names[idx], err)
		}
		offset += size
		props[names[idx]] = value
	}
	return props, nil
}

// fixedSizes are the encoded sizes of the fixed-width column types.
var fixedSizes = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeBool:   1,
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  1,
	flattypes.ColumnTypeShort:  2,
	flattypes.ColumnTypeUShort: 2,
	flattypes.ColumnTypeInt:    4,
	flattypes.ColumnTypeUInt:   4,
	flattypes.ColumnTypeFloat:  4,
	flattypes.ColumnTypeLong:   8,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeDouble: 8,
}

// readValue decodes one value of type t from the front of data. Integers
// decode as int64 and floating point values as float64.
func readValue(data []byte, t flattypes.ColumnType) (any, int, error) {
	if size, ok := fixedSizes[t]; ok {
		if len(data) < size {
			return nil, 0, fmt.Errorf("%w: truncated %s value", ErrInvalidData, flattypes.EnumNamesColumnType[t])
		}
		le := binary.LittleEndian
		switch t {
		case flattypes.ColumnTypeBool:
			return data[0] != 0, 1, nil
		case flattypes.ColumnTypeByte:
			return int64(int8(data[0])), 1, nil
		case flattypes.ColumnTypeUByte:
			return int64(data[0]), 1, nil
		case flattypes.ColumnTypeShort:
			return int64(int16(le.Uint16(data))), 2, nil
		case flattypes.ColumnTypeUShort:
			return int64(le.Uint16(data)), 2, nil
		case flattypes.ColumnTypeInt:
			return int64(int32(le.Uint32(data))), 4, nil
		case flattypes.ColumnTypeUInt:
			return int64(le.Uint32(data)), 4, nil
		case flattypes.ColumnTypeLong:
			return int64(le.Uint64(data)), 8, nil
		case flattypes.ColumnTypeULong:
			return int64(le.Uint64(data)), 8, nil
		case flattypes.ColumnTypeFloat:
			return float64(math.Float32frombits(le.Uint32(data))), 4, nil
		case flattypes.ColumnTypeDouble:
			return math.Float64frombits(le.Uint64(data)), 8, nil
		}
	}

	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: truncated length prefix", ErrInvalidData)
	}
	length := int(binary.LittleEndian.Uint32(data))
	if len(data) < 4+length {
		return nil, 0, fmt.Errorf("%w: truncated %s value", ErrInvalidData, flattypes.EnumNamesColumnType[t])
	}
	raw := data[4 : 4+length]
	size := 4 + length

	switch t {
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		return string(raw), size, nil
	case flattypes.ColumnTypeJson:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw), size, nil
		}
		return v, size, nil
	case flattypes.ColumnTypeBinary:
		return append([]byte(nil), raw...), size, nil
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidColumn, t)
	}
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		if val == math.Trunc(val) {
			return int64(val), true
		}
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

package shapefile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	shp "github.com/jonas-p/go-shp"
	vector "github.com/tingold/orb-vector"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// fieldName returns the name stored in a dbf field descriptor.
func fieldName(f shp.Field) string {
	return string(bytes.TrimRight(f.Name[:], "\x00 "))
}

// propertyType maps a dbf field descriptor to a schema property type.
func propertyType(f shp.Field) string {
	switch f.Fieldtype {
	case 'N', 'F':
		if f.Precision == 0 {
			return vector.FormatFieldType("int", int(f.Size), 0)
		}
		return vector.FormatFieldType("float", int(f.Size), int(f.Precision))
	case 'D':
		return "date"
	case 'L':
		return "bool"
	default:
		return vector.FormatFieldType("str", int(f.Size), 0)
	}
}

// dbfField builds the descriptor for a schema property.
func dbfField(p vector.Property) (shp.Field, error) {
	name := p.Name
	if len(name) > maxFieldName {
		name = name[:maxFieldName]
	}
	base, width, prec := vector.FieldType(p.Type)
	switch base {
	case "str", "json":
		if width <= 0 || width > 254 {
			width = defaultStrWidth
		}
		return shp.StringField(name, uint8(width)), nil
	case "int":
		if width <= 0 || width > 20 {
			width = defaultIntWidth
		}
		return shp.NumberField(name, uint8(width)), nil
	case "float":
		if width <= 0 || width > 40 {
			width = defaultFloatWidth
		}
		if prec <= 0 || prec >= width {
			prec = defaultFloatPrec
		}
		return shp.FloatField(name, uint8(width), uint8(prec)), nil
	case "date":
		return shp.DateField(name), nil
	case "bool":
		f := shp.StringField(name, 1)
		f.Fieldtype = 'L'
		return f, nil
	case "datetime", "time":
		return shp.StringField(name, 24), nil
	default:
		return shp.Field{}, fmt.Errorf("%w: property %q of type %q", ErrUnsupportedType, p.Name, p.Type)
	}
}

// decodeValue parses a raw dbf value for a property of type t. Blank values
// decode as nil.
func decodeValue(raw string, t string) (any, error) {
	raw = strings.TrimFunc(raw, func(r rune) bool { return r == 0 || unicode.IsSpace(r) })
	base, _, _ := vector.FieldType(t)
	switch base {
	case "int":
		if raw == "" || strings.Trim(raw, "*") == "" {
			return nil, nil
		}
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		// Fields declared N with precision 0 sometimes carry decimals.
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: integer value %q", ErrInvalidData, raw)
		}
		return int64(f), nil
	case "float":
		if raw == "" || strings.Trim(raw, "*") == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: float value %q", ErrInvalidData, raw)
		}
		return f, nil
	case "date":
		if raw == "" || strings.Trim(raw, "0") == "" {
			return nil, nil
		}
		d, err := time.Parse("20060102", raw)
		if err != nil {
			return nil, fmt.Errorf("%w: date value %q", ErrInvalidData, raw)
		}
		return d.Format(time.DateOnly), nil
	case "bool":
		switch raw {
		case "T", "t", "Y", "y":
			return true, nil
		case "F", "f", "N", "n":
			return false, nil
		default:
			return nil, nil
		}
	default:
		if raw == "" {
			return nil, nil
		}
		return raw, nil
	}
}

// encodeValue formats v for a dbf field of property type t. The result is
// passed to shp.Writer.WriteAttribute.
func encodeValue(v any, t string) (any, error) {
	if v == nil {
		return "", nil
	}
	base, _, _ := vector.FieldType(t)
	switch base {
	case "int":
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case int32:
			return int(n), nil
		case float64:
			if n == float64(int64(n)) {
				return int(n), nil
			}
		}
	case "float":
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case "date":
		switch d := v.(type) {
		case time.Time:
			return d.Format("20060102"), nil
		case string:
			p, err := time.Parse(time.DateOnly, d)
			if err != nil {
				return nil, fmt.Errorf("%w: date value %q", ErrInvalidData, d)
			}
			return p.Format("20060102"), nil
		}
	case "json":
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
		return string(b), nil
	case "bool":
		if b, ok := v.(bool); ok {
			if b {
				return "T", nil
			}
			return "F", nil
		}
	default:
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("%w: %T value for %s field", ErrUnsupportedType, v, t)
}

// lookupEncoding resolves a .cpg code page or an encoding label.
func lookupEncoding(name string) (encoding.Encoding, string, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	switch {
	case label == "":
		label = DefaultEncoding
	case strings.HasPrefix(label, "8859"):
		label = "iso-8859-" + strings.TrimLeft(strings.TrimPrefix(label, "8859"), "-_")
	case isDigits(label):
		label = "cp" + label
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q", ErrEncoding, name)
	}
	return enc, label, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

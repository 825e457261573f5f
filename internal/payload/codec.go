package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Codec converts between a decoded payload and the bytes stored for a session.
//
// Implementations must round-trip: Decode(Encode(m)) equals m for every
// representable m. Decode of an empty byte slice returns an empty Map.
type Codec interface {
	Encode(m Map) ([]byte, error)
	Decode(data []byte) (Map, error)
}

// ErrNotObject is returned when the stored bytes do not hold a top-level object.
var ErrNotObject = errors.New("payload is not an object")

// JSONCodec encodes payloads as deterministic JSON: object keys sorted by
// UTF-16 code units, no HTML escaping, floats always carrying a fraction or
// exponent so they decode back as Float.
type JSONCodec struct {
	// NFC normalizes strings and keys to Unicode NFC on encode.
	// Round-trip then only holds for values that are already NFC.
	NFC bool
}

// Encode implements Codec.
func (c JSONCodec) Encode(m Map) ([]byte, error) {
	if m == nil {
		m = Map{}
	}
	var buf bytes.Buffer
	if err := c.encodeValue(&buf, m); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

func (c JSONCodec) encodeValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		return c.encodeString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		s, err := formatFloat(float64(val))
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := c.encodeValue(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := c.encodeString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := c.encodeValue(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown payload value type: %T", v)
	}
	return nil
}

func (c JSONCodec) encodeString(buf *bytes.Buffer, s string) error {
	if c.NFC {
		s = norm.NFC.String(s)
	}

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder adds a trailing newline
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// formatFloat renders f so that it is always read back as a Float.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("unsupported float value: %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

// Decode implements Codec.
func (c JSONCodec) Decode(data []byte) (Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Map{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode payload: trailing data after object")
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode payload: %w", ErrNotObject)
	}

	v, err := convertToValue(obj)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v.(Map), nil
}

// convertToValue recursively converts a generic JSON value to a Value.
func convertToValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return convertNumber(val)
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			item, err := convertToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = item
		}
		return list, nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			item, err := convertToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			m[k] = item
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func convertNumber(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("number out of range: %s", s)
	}
	return Float(f), nil
}

// FromJSON converts arbitrary JSON text into a Value. Unlike Decode it
// accepts any top-level JSON value, which makes it useful for single fields.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("parse value: trailing data")
	}
	return convertToValue(raw)
}

// ToJSON renders a single Value with the default codec rules.
func ToJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := (JSONCodec{}).encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

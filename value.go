package zarr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// A value tree is the JSON-shaped intermediate that sits between typed
// records and document bytes. Its nodes are always one of:
//
//	nil             null
//	bool            boolean
//	json.Number     number
//	string          string
//	[]any           sequence
//	map[string]any  mapping
//
// ParseValue produces exactly these types; EncodeValue produces them from
// typed values.

// ParseValue parses JSON text into a value tree. Numbers are kept as
// json.Number so that integers survive without a detour through float64.
func ParseValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrParse)
	}
	return v, nil
}

// MarshalValue renders a value tree as UTF-8 JSON text
func MarshalValue(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	// HTML escaping would turn dtype "<f8" into "\u003cf8"
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Kind names the value tree node type of v
func Kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64:
		return "number"
	case string:
		return "string"
	case []any:
		return "sequence"
	case map[string]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// asMapping returns v as a mapping, or a DecodeError naming typ
func asMapping(typ string, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch(typ, v, "expected a mapping, got %s", Kind(v))
	}
	return m, nil
}

func asSequence(typ string, v any) ([]any, error) {
	s, ok := v.([]any)
	if !ok {
		return nil, mismatch(typ, v, "expected a sequence, got %s", Kind(v))
	}
	return s, nil
}

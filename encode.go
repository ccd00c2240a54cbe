package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Encode serializes a record to UTF-8 JSON text
func Encode(r Record) ([]byte, error) {
	v, err := EncodeValue(r)
	if err != nil {
		return nil, err
	}
	return MarshalValue(v)
}

// EncodeValue converts a typed value to a value tree. Records recurse
// field by field. Types outside the supported set pass through unchanged,
// so callers are responsible for only handing over encodable leaves.
func EncodeValue(v any) (any, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool, string, json.Number:
		return x, nil

	// dtype descriptors come before Record and Enum: they render as names
	case Dtype:
		return x.String(), nil
	case StructuredType:
		return x.descriptor(), nil
	case *StructuredType:
		return x.descriptor(), nil
	case DataType:
		return string(x), nil

	case int:
		return json.Number(strconv.FormatInt(int64(x), 10)), nil
	case int8:
		return json.Number(strconv.FormatInt(int64(x), 10)), nil
	case int16:
		return json.Number(strconv.FormatInt(int64(x), 10)), nil
	case int32:
		return json.Number(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return json.Number(strconv.FormatInt(x, 10)), nil
	case uint:
		return json.Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint8:
		return json.Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint16:
		return json.Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint32:
		return json.Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return json.Number(strconv.FormatUint(x, 10)), nil
	case float32:
		return encodeFloat(float64(x), 32), nil
	case float64:
		return encodeFloat(x, 64), nil
	case complex64:
		return []any{encodeFloat(float64(real(x)), 32), encodeFloat(float64(imag(x)), 32)}, nil
	case complex128:
		return []any{encodeFloat(real(x), 64), encodeFloat(imag(x), 64)}, nil

	case Datetime64:
		return json.Number(strconv.FormatInt(x.Count, 10)), nil
	case Timedelta64:
		return json.Number(strconv.FormatInt(x.Count, 10)), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil

	case Enum:
		return EncodeValue(x.EnumValue())
	case CodecConfigurer:
		return EncodeValue(x.CodecConfig())
	case Setter:
		return encodeSeq(x.SetMembers())
	case Tupler:
		return encodeSeq(x.TupleElems())
	case Record:
		return encodeRecord(x)

	case []any:
		return encodeSeq(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			ev, err := EncodeValue(el)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	}

	return encodeReflect(v)
}

func encodeRecord(r Record) (any, error) {
	fields := r.RecordFields()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		ev, err := EncodeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out[f.Name] = ev
	}
	return out, nil
}

func encodeSeq(els []any) ([]any, error) {
	out := make([]any, len(els))
	for i, el := range els {
		ev, err := EncodeValue(el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = ev
	}
	return out, nil
}

// encodeReflect handles typed containers ([]int, [3]string,
// map[string]Attributes, pointers) and named scalar kinds. Everything
// else is returned as-is.
func encodeReflect(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return EncodeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		els := make([]any, rv.Len())
		for i := range els {
			els[i] = rv.Index(i).Interface()
		}
		return encodeSeq(els)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v, nil
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ev, err := EncodeValue(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = ev
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(rv.Float(), rv.Type().Bits()), nil
	}
	return v, nil
}

// encodeFloat renders finite floats as numbers and non-finite floats with
// the string spellings the format uses for fill values
func encodeFloat(f float64, bits int) any {
	switch {
	case math.IsNaN(f):
		return FillValueNaN
	case math.IsInf(f, 1):
		return FillValueInfinity
	case math.IsInf(f, -1):
		return FillValueNegativeInfinity
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, bits))
}

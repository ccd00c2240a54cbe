package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Decoder rebuilds a typed value from a value tree node. Decoders are
// plain functions composed at package initialisation, so the full shape
// of every document type is known before any bytes are read.
type Decoder[T any] func(v any) (T, error)

// Decode parses JSON text and decodes the resulting value tree with d.
// Nothing is returned on failure.
func Decode[T any](data []byte, d Decoder[T]) (T, error) {
	var zero T
	v, err := ParseValue(data)
	if err != nil {
		return zero, err
	}
	res, err := d(v)
	if err != nil {
		return zero, err
	}
	return res, nil
}

// Any passes the input through unchanged
func Any() Decoder[any] {
	return func(v any) (any, error) { return v, nil }
}

// Bool decodes a boolean
func Bool() Decoder[bool] {
	return func(v any) (bool, error) {
		b, ok := v.(bool)
		if !ok {
			return false, mismatch("bool", v, "expected a boolean")
		}
		return b, nil
	}
}

// String decodes a string
func String() Decoder[string] {
	return func(v any) (string, error) {
		s, ok := v.(string)
		if !ok {
			return "", mismatch("string", v, "expected a string")
		}
		return s, nil
	}
}

// Int decodes an integral number
func Int() Decoder[int] {
	return func(v any) (int, error) {
		i, err := toInt64("int", v)
		if err != nil {
			return 0, err
		}
		if int64(int(i)) != i {
			return 0, mismatch("int", v, "overflows int")
		}
		return int(i), nil
	}
}

// Int64 decodes an integral number that fits in 64 bits
func Int64() Decoder[int64] {
	return func(v any) (int64, error) { return toInt64("int64", v) }
}

// Uint64 decodes a non-negative integral number
func Uint64() Decoder[uint64] {
	return func(v any) (uint64, error) {
		n, ok := v.(json.Number)
		if !ok {
			return 0, mismatch("uint64", v, "expected a number")
		}
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, mismatch("uint64", v, "not an unsigned integer")
		}
		return u, nil
	}
}

func toInt64(typ string, v any) (int64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, mismatch(typ, v, "expected a number")
	}
	i, err := n.Int64()
	if err != nil {
		return 0, mismatch(typ, v, "not an integer")
	}
	return i, nil
}

// Float decodes a number. The strings "NaN", "Infinity" and "-Infinity"
// decode to the matching non-finite values.
func Float() Decoder[float64] {
	return func(v any) (float64, error) {
		switch x := v.(type) {
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return 0, mismatch("float64", v, "not a number")
			}
			return f, nil
		case string:
			switch x {
			case FillValueNaN:
				return math.NaN(), nil
			case FillValueInfinity:
				return math.Inf(1), nil
			case FillValueNegativeInfinity:
				return math.Inf(-1), nil
			}
		}
		return 0, mismatch("float64", v, "expected a number")
	}
}

// Complex decodes a [real, imaginary] pair
func Complex() Decoder[complex128] {
	return func(v any) (complex128, error) {
		p, err := PairOf(Float(), Float())(v)
		if err != nil {
			return 0, retype(err, "complex128")
		}
		return complex(p.First, p.Second), nil
	}
}

// DatetimeOf decodes a count of unit since the unix epoch
func DatetimeOf(unit TimeUnit) Decoder[Datetime64] {
	return func(v any) (Datetime64, error) {
		n, err := toInt64("datetime64", v)
		if err != nil {
			return Datetime64{}, err
		}
		return Datetime64{Count: n, Unit: unit}, nil
	}
}

// TimedeltaOf decodes a duration counted in unit
func TimedeltaOf(unit TimeUnit) Decoder[Timedelta64] {
	return func(v any) (Timedelta64, error) {
		n, err := toInt64("timedelta64", v)
		if err != nil {
			return Timedelta64{}, err
		}
		return Timedelta64{Count: n, Unit: unit}, nil
	}
}

// Time decodes an ISO-8601 / RFC 3339 timestamp or calendar date
func Time() Decoder[time.Time] {
	return func(v any) (time.Time, error) {
		s, ok := v.(string)
		if !ok {
			return time.Time{}, mismatch("time", v, "expected an ISO-8601 string")
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", time.DateOnly} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, mismatch("time", v, "not an ISO-8601 timestamp")
	}
}

// Literal accepts only the listed values
func Literal[T comparable](allowed ...T) Decoder[T] {
	return func(v any) (T, error) {
		var zero T
		for _, a := range allowed {
			if literalEqual(a, v) {
				return a, nil
			}
		}
		return zero, mismatch(fmt.Sprintf("literal %v", allowed), v, "value is not one of the allowed literals")
	}
}

// literalEqual compares a Go literal against a value tree node. Numbers in
// the tree are json.Number, so integral literals compare by text.
func literalEqual(lit, v any) bool {
	if n, ok := v.(json.Number); ok {
		enc, err := EncodeValue(lit)
		if err != nil {
			return false
		}
		ln, ok := enc.(json.Number)
		return ok && ln == n
	}
	return lit == v
}

// Optional decodes null as a nil pointer, anything else with d
func Optional[T any](d Decoder[T]) Decoder[*T] {
	return func(v any) (*T, error) {
		if v == nil {
			return nil, nil
		}
		res, err := d(v)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
}

// SliceOf decodes a sequence of any length
func SliceOf[T any](d Decoder[T]) Decoder[[]T] {
	return func(v any) ([]T, error) {
		seq, err := asSequence("sequence", v)
		if err != nil {
			return nil, err
		}
		out := make([]T, len(seq))
		for i, el := range seq {
			if out[i], err = d(el); err != nil {
				return nil, inField(err, strconv.Itoa(i))
			}
		}
		return out, nil
	}
}

// FixedSliceOf decodes a homogeneous tuple of exactly n elements
func FixedSliceOf[T any](n int, d Decoder[T]) Decoder[[]T] {
	return func(v any) ([]T, error) {
		seq, err := asSequence("tuple", v)
		if err != nil {
			return nil, err
		}
		if len(seq) != n {
			return nil, mismatch(fmt.Sprintf("tuple[%d]", n), v, "expected %d elements, got %d", n, len(seq))
		}
		return SliceOf(d)(v)
	}
}

// SetOf decodes a sequence into a Set
func SetOf[T comparable](d Decoder[T]) Decoder[Set[T]] {
	return func(v any) (Set[T], error) {
		els, err := SliceOf(d)(v)
		if err != nil {
			return nil, err
		}
		return NewSet(els...), nil
	}
}

// MapOf decodes a mapping with values of a single type
func MapOf[T any](d Decoder[T]) Decoder[map[string]T] {
	return func(v any) (map[string]T, error) {
		m, err := asMapping("mapping", v)
		if err != nil {
			return nil, err
		}
		out := make(map[string]T, len(m))
		for k, el := range m {
			if out[k], err = d(el); err != nil {
				return nil, inField(err, k)
			}
		}
		return out, nil
	}
}

// PairOf decodes a two element heterogeneous tuple. Input arity must match
// exactly.
func PairOf[A, B any](da Decoder[A], db Decoder[B]) Decoder[Pair[A, B]] {
	return func(v any) (p Pair[A, B], err error) {
		seq, err := tupleElems(2, v)
		if err != nil {
			return p, err
		}
		if p.First, err = da(seq[0]); err != nil {
			return p, inField(err, "0")
		}
		if p.Second, err = db(seq[1]); err != nil {
			return p, inField(err, "1")
		}
		return p, nil
	}
}

// TripleOf decodes a three element heterogeneous tuple. Input arity must
// match exactly.
func TripleOf[A, B, C any](da Decoder[A], db Decoder[B], dc Decoder[C]) Decoder[Triple[A, B, C]] {
	return func(v any) (t Triple[A, B, C], err error) {
		seq, err := tupleElems(3, v)
		if err != nil {
			return t, err
		}
		if t.First, err = da(seq[0]); err != nil {
			return t, inField(err, "0")
		}
		if t.Second, err = db(seq[1]); err != nil {
			return t, inField(err, "1")
		}
		if t.Third, err = dc(seq[2]); err != nil {
			return t, inField(err, "2")
		}
		return t, nil
	}
}

func tupleElems(n int, v any) ([]any, error) {
	seq, err := asSequence("tuple", v)
	if err != nil {
		return nil, err
	}
	if len(seq) != n {
		return nil, mismatch(fmt.Sprintf("tuple[%d]", n), v, "expected %d elements, got %d", n, len(seq))
	}
	return seq, nil
}

// EnumOf decodes an enumerated type by matching the stored value against
// each member's underlying value
func EnumOf[E Enum](typ string, members ...E) Decoder[E] {
	return func(v any) (E, error) {
		for _, m := range members {
			if literalEqual(m.EnumValue(), v) {
				return m, nil
			}
		}
		var zero E
		return zero, mismatch(typ, v, "not a member of %s", typ)
	}
}

// Map converts the output of a decoder, for wrapping parse functions
func Map[T, U any](d Decoder[T], fn func(T) (U, error)) Decoder[U] {
	return func(v any) (U, error) {
		var zero U
		t, err := d(v)
		if err != nil {
			return zero, err
		}
		u, err := fn(t)
		if err != nil {
			return zero, err
		}
		return u, nil
	}
}

// FieldReader reads the fields of one input mapping for RecordOf. The
// first failure is kept and later reads become no-ops.
type FieldReader struct {
	typ string
	m   map[string]any
	err error
}

// Raw returns the value stored under name, or nil when it is missing
func (r *FieldReader) Raw(name string) any { return r.m[name] }

// Has reports whether name is present in the input mapping
func (r *FieldReader) Has(name string) bool {
	_, ok := r.m[name]
	return ok
}

// Fail records err as the reader's error if none is set yet
func (r *FieldReader) Fail(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// Err returns the first error hit while reading fields
func (r *FieldReader) Err() error { return r.err }

// Read decodes field name with d. A missing field is decoded as null.
func Read[T any](r *FieldReader, name string, d Decoder[T]) T {
	var zero T
	if r.err != nil {
		return zero
	}
	res, err := d(r.m[name])
	if err != nil {
		r.err = inField(retype(err, r.typ), name)
		return zero
	}
	return res
}

// RecordOf decodes a mapping into a typed record. build reads each field
// through the FieldReader; if any read fails the record is discarded.
func RecordOf[T any](typ string, build func(r *FieldReader) T) Decoder[T] {
	return func(v any) (T, error) {
		var zero T
		m, err := asMapping(typ, v)
		if err != nil {
			return zero, err
		}
		r := &FieldReader{typ: typ, m: m}
		res := build(r)
		if r.err != nil {
			return zero, r.err
		}
		return res, nil
	}
}

// retype sets the target type of a field-less DecodeError so leaf errors
// name the record they belong to
func retype(err error, typ string) error {
	de, ok := err.(*DecodeError)
	if !ok || de.Field != "" {
		return err
	}
	cp := *de
	cp.Type = typ + " (" + de.Type + ")"
	return &cp
}

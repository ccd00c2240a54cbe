package zarr

import (
	"fmt"
	"strconv"
	"strings"
)

// Dtype is the set of all zarr data types
// Simple data types as a string following the NumPy array protocol type string
// (typestr) format. The format consists of 3 parts:
//   - One character describing the byteorder of the data:
//     "<": little-endian; ">": big-endian; "|": not-relevant)
//   - One character code giving the basic type of the array:
//     "b": Boolean (integer type where all values are only True or False);
//     "i": integer; "u": unsigned integer; "f": floating point;
//     "c": complex floating point; "m": timedelta; "M": datetime;
//     "S": string (fixed-length sequence of char);
//     "U": unicode (fixed-length sequence of Py_UNICODE);
//     "V": other (void * – each item is a fixed-size chunk of memory))
//   - An integer specifying the number of bytes the type uses.
//
// The byte order is optional in some circumstances, within the zarr format
// byte order MUST be specified
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
	// Units holds the bracketed unit suffix of datetime and timedelta
	// types, eg. "[ns]"
	Units string
}

func ParseDtype(s string) (dt Dtype, err error) {
	// bug in python implementation uses HTML escape sequences when serializaing JSON
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid Dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	dt.ByteOrder, err = ParseByteOrder(rune(boByte))
	if err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	dt.BasicType, err = ParseBasicType(rune(typeByte))
	if err != nil {
		return dt, err
	}

	sizeStr, unitStr := s, ""
	if i := strings.IndexByte(s, '['); i >= 0 {
		sizeStr, unitStr = s[:i], s[i:]
	}

	size, err := strconv.ParseInt(sizeStr, 10, 0)
	if err != nil {
		return dt, fmt.Errorf("invalid Dtype size %q: %w", sizeStr, err)
	}
	dt.ByteSize = int(size)

	if unitStr != "" {
		if dt.BasicType != BTDatetime && dt.BasicType != BTTimedelta {
			return dt, fmt.Errorf("invalid Dtype %q: only datetime and timedelta types carry units", s)
		}
		if _, ok := timeUnits[TimeUnit(strings.Trim(unitStr, "[]"))]; !ok || !strings.HasSuffix(unitStr, "]") {
			return dt, fmt.Errorf("invalid Dtype unit string %q", unitStr)
		}
	}
	dt.Units = unitStr

	return dt, nil
}

var timeUnits = map[TimeUnit]struct{}{
	UnitYear: {}, UnitMonth: {}, UnitWeek: {}, UnitDay: {}, UnitHour: {}, UnitMinute: {},
	UnitSecond: {}, UnitMillisecond: {}, UnitMicrosecond: {}, UnitNanosecond: {},
}

func (dt Dtype) String() string {
	s := fmt.Sprintf("%s%s%d", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize)
	if dt.Units != "" {
		s += dt.Units
	}
	return s
}

// DataType maps a typestr onto the equivalent named data type of the
// version 3 format. Types without a v3 equivalent return an error.
func (dt Dtype) DataType() (DataType, error) {
	name := ""
	switch dt.BasicType {
	case BTBoolean:
		if dt.ByteSize == 1 {
			name = string(DTBool)
		}
	case BTInteger:
		name = fmt.Sprintf("int%d", dt.ByteSize*8)
	case BTUnsigned:
		name = fmt.Sprintf("uint%d", dt.ByteSize*8)
	case BTFloatingPoint:
		name = fmt.Sprintf("float%d", dt.ByteSize*8)
	case BTComplex:
		name = fmt.Sprintf("complex%d", dt.ByteSize*8)
	}
	if _, ok := dataTypeSizes[DataType(name)]; !ok {
		return "", fmt.Errorf("dtype %q has no v3 data type", dt.String())
	}
	return DataType(name), nil
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

// names follow numpy's dtype.kind descriptions
var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timedelta64",
	BTDatetime:      "datetime64",
	BTString:        "bytes",
	BTUnicode:       "str",
	BTOther:         "void",
}

// StructuredType is either a basic Dtype or a list of named fields, each of
// which may itself be structured. The v2 format writes structured types as
// [["r", "|u1"], ["g", "|u1"], ["xy", "<f4", [2]]].
type StructuredType struct {
	Fieldname string
	Dtype     Dtype
	Shape     []int
	Children  []StructuredType
}

func ParseStructuredType(d any) (StructuredType, error) {
	switch v := d.(type) {
	case string:
		// string is a Dtype literal
		dt, err := ParseDtype(v)
		if err != nil {
			return StructuredType{}, err
		}
		return StructuredType{Dtype: dt}, nil
	case []any:
		fields, err := parseStructuredFields(v)
		if err != nil {
			return StructuredType{}, err
		}
		return StructuredType{Children: fields}, nil
	default:
		return StructuredType{}, fmt.Errorf("unexpected type %T", d)
	}
}

func parseStructuredFields(d []any) ([]StructuredType, error) {
	if len(d) == 0 {
		return nil, fmt.Errorf("invalid structured Dtype: no fields")
	}
	fields := make([]StructuredType, 0, len(d))
	for i, el := range d {
		f, err := parseStructuredField(el)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseStructuredField(el any) (StructuredType, error) {
	d, ok := el.([]any)
	if !ok {
		return StructuredType{}, fmt.Errorf("invalid structured Dtype: want a [name, type] list. got %T", el)
	}
	if len(d) < 2 || len(d) > 3 {
		return StructuredType{}, fmt.Errorf("invalid structured Dtype: field must have 2 or 3 elements, has %d", len(d))
	}

	t := StructuredType{}
	fieldName, ok := d[0].(string)
	if !ok {
		return StructuredType{}, fmt.Errorf("invalid structured Dtype: field name must be a string. got %T", d[0])
	}
	t.Fieldname = fieldName

	switch x := d[1].(type) {
	case string:
		dtype, err := ParseDtype(x)
		if err != nil {
			return StructuredType{}, err
		}
		t.Dtype = dtype
	case []any:
		ch, err := parseStructuredFields(x)
		if err != nil {
			return StructuredType{}, err
		}
		t.Children = ch
	default:
		return t, fmt.Errorf("invalid structured Dtype: want either string or Structured Type. got %T", d[1])
	}

	if len(d) == 3 {
		shape, err := SliceOf(Int())(d[2])
		if err != nil {
			return t, fmt.Errorf("invalid structured Dtype shape: %w", err)
		}
		t.Shape = shape
	}

	return t, nil
}

func (st StructuredType) IsBasic() bool {
	return st.Fieldname == "" && st.Shape == nil && len(st.Children) == 0
}

func (st StructuredType) Human() string {
	if st.IsBasic() {
		return st.Dtype.BasicType.Human()
	}
	return "struct"
}

// descriptor renders the type in its document form
func (st StructuredType) descriptor() any {
	if st.IsBasic() {
		return st.Dtype.String()
	}
	if st.Fieldname == "" {
		return fieldDescriptors(st.Children)
	}
	var typ any = st.Dtype.String()
	if len(st.Children) > 0 {
		typ = fieldDescriptors(st.Children)
	}
	d := []any{st.Fieldname, typ}
	if st.Shape != nil {
		shape, _ := EncodeValue(st.Shape)
		d = append(d, shape)
	}
	return d
}

func fieldDescriptors(fields []StructuredType) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f.descriptor()
	}
	return out
}

// DataType is a named data type of the version 3 format
type DataType string

const (
	DTBool       DataType = "bool"
	DTInt8       DataType = "int8"
	DTInt16      DataType = "int16"
	DTInt32      DataType = "int32"
	DTInt64      DataType = "int64"
	DTUint8      DataType = "uint8"
	DTUint16     DataType = "uint16"
	DTUint32     DataType = "uint32"
	DTUint64     DataType = "uint64"
	DTFloat16    DataType = "float16"
	DTFloat32    DataType = "float32"
	DTFloat64    DataType = "float64"
	DTComplex64  DataType = "complex64"
	DTComplex128 DataType = "complex128"
)

var dataTypeSizes = map[DataType]int{
	DTBool: 1, DTInt8: 1, DTInt16: 2, DTInt32: 4, DTInt64: 8,
	DTUint8: 1, DTUint16: 2, DTUint32: 4, DTUint64: 8,
	DTFloat16: 2, DTFloat32: 4, DTFloat64: 8,
	DTComplex64: 8, DTComplex128: 16,
}

func ParseDataType(s string) (DataType, error) {
	dt := DataType(s)
	if _, ok := dataTypeSizes[dt]; !ok {
		return dt, fmt.Errorf("unsupported data type: %q", s)
	}
	return dt, nil
}

// ItemSize is the width of one element in bytes
func (dt DataType) ItemSize() int { return dataTypeSizes[dt] }

// Dtype returns the equivalent typestr, little-endian for multi-byte types
func (dt DataType) Dtype() Dtype {
	size := dt.ItemSize()
	order := BOLittleEndian
	if size == 1 {
		order = BONotRelevant
	}
	var bt BasicType
	switch {
	case dt == DTBool:
		bt = BTBoolean
	case strings.HasPrefix(string(dt), "int"):
		bt = BTInteger
	case strings.HasPrefix(string(dt), "uint"):
		bt = BTUnsigned
	case strings.HasPrefix(string(dt), "float"):
		bt = BTFloatingPoint
	case strings.HasPrefix(string(dt), "complex"):
		bt = BTComplex
	}
	return Dtype{ByteOrder: order, BasicType: bt, ByteSize: size}
}

func (dt DataType) isInt() bool     { return strings.HasPrefix(string(dt), "int") }
func (dt DataType) isUint() bool    { return strings.HasPrefix(string(dt), "uint") }
func (dt DataType) isFloat() bool   { return strings.HasPrefix(string(dt), "float") }
func (dt DataType) isComplex() bool { return strings.HasPrefix(string(dt), "complex") }

var (
	structuredTypeDecoder = Decoder[StructuredType](func(v any) (StructuredType, error) {
		st, err := ParseStructuredType(v)
		if err != nil {
			return st, mismatch("dtype", v, "%s", err)
		}
		return st, nil
	})
	dataTypeDecoder = Decoder[DataType](func(v any) (DataType, error) {
		s, ok := v.(string)
		if !ok {
			return "", mismatch("data_type", v, "expected a data type name")
		}
		dt, err := ParseDataType(s)
		if err != nil {
			return "", mismatch("data_type", v, "%s", err)
		}
		return dt, nil
	})
)

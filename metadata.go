package zarr

import (
	"fmt"
	"path"
)

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
	// MTGroup is the key for storing group definitions on an array store
	MTGroup MetaType = ".zgroup"
	// MTMetadata is the key for composite metadata
	MTMetadata MetaType = ".zmetadata"
	// MTZarrJSON is the single metadata document of a version 3 node,
	// holding its type, attributes and array parameters together
	MTZarrJSON MetaType = "zarr.json"
)

type MetaTyper interface {
	MetaType() MetaType
}

var metaTypes = map[MetaType]struct{}{
	MTAttributes: {},
	MTArray:      {},
	MTGroup:      {},
	MTZarrJSON:   {},
}

// KeyMetaType reports the metadata document type of a store key by its
// final path element
func KeyMetaType(s string) (mt MetaType, ok bool) {
	mt = MetaType(path.Base(s))
	_, ok = metaTypes[mt]
	return mt, ok
}

// Metadata is the decoded metadata document of an array or group
type Metadata interface {
	Record
	NodeType() NodeType
	ZarrFormat() ZarrFormat
	Attrs() Attributes
}

type Attributes map[string]any

func (Attributes) MetaType() MetaType { return MTAttributes }

// attributesDecoder decodes a mapping of user attributes. null and a
// missing field both decode as empty attributes.
var attributesDecoder = Decoder[Attributes](func(v any) (Attributes, error) {
	if v == nil {
		return Attributes{}, nil
	}
	m, err := MapOf(Any())(v)
	if err != nil {
		return nil, retype(err, "attributes")
	}
	return Attributes(m), nil
})

// Order is the memory layout of elements within a chunk
type Order string

const (
	// OrderC is row-major: the last dimension varies fastest
	OrderC Order = "C"
	// OrderF is column-major: the first dimension varies fastest
	OrderF Order = "F"
)

// EnumValue implements Enum
func (o Order) EnumValue() any { return string(o) }

var orderDecoder = EnumOf("Order", OrderC, OrderF)

type ConsolidatedMetadata struct {
	ConsolidatedFormat int
	Metadata           map[string]MetaTyper
}

func (ConsolidatedMetadata) MetaType() MetaType { return MTMetadata }

func (m ConsolidatedMetadata) RecordFields() []NamedValue {
	return []NamedValue{
		{"zarr_consolidated_format", m.ConsolidatedFormat},
		{"metadata", m.Metadata},
	}
}

var consolidatedMetadataDecoder = RecordOf("ConsolidatedMetadata", func(r *FieldReader) ConsolidatedMetadata {
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: Read(r, "zarr_consolidated_format", Literal(1)),
		Metadata:           map[string]MetaTyper{},
	}
	docs := Read(r, "metadata", MapOf(Any()))

	for key, data := range docs {
		kt, ok := KeyMetaType(key)
		if !ok {
			r.Fail(fmt.Errorf("%w: invalid consolidated metadata key: %q", ErrSchemaMismatch, key))
			return cm
		}

		var (
			doc MetaTyper
			err error
		)
		switch kt {
		case MTArray:
			doc, err = arrayV2MetadataDecoder(data)
		case MTAttributes:
			doc, err = attributesDecoder(data)
		case MTGroup:
			doc, err = groupV2MetadataDecoder(data)
		default:
			err = fmt.Errorf("%w: %q documents cannot be consolidated", ErrSchemaMismatch, key)
		}
		if err != nil {
			r.Fail(fmt.Errorf("reading %q metadata: %w", key, err))
			return cm
		}
		cm.Metadata[key] = doc
	}
	return cm
})

// DecodeConsolidatedMetadata decodes a .zmetadata document
func DecodeConsolidatedMetadata(data []byte) (ConsolidatedMetadata, error) {
	return Decode(data, consolidatedMetadataDecoder)
}

// ArrayV2Metadata holds the .zarray document of a version 2 array
// (https://zarr.readthedocs.io/en/stable/spec/v2.html#metadata), together
// with the attributes stored beside it in .zattrs.
type ArrayV2Metadata struct {
	// A list of integers defining the length of each dimension of the array.
	Shape []int
	// A list of integers defining the length of each dimension of a chunk of the
	// array. Note that all chunks within a Zarr array have the same shape.
	Chunks []int
	// A string or list defining a valid data type for the array. See also the
	// subsection below on data type encoding.
	Dtype StructuredType
	// A JSON object identifying the primary compression codec and providing
	// configuration parameters, or null if no compressor is to be used. The
	// object MUST contain an "id" key identifying the codec to be used.
	Compressor *NumcodecsConfig

	// A scalar value providing the default value to use for uninitialized
	// portions of the array, or null if no fill_value is to be used.
	// If an array has a fixed length byte string data type (e.g., "|S12"), or a
	// structured data type, and if the fill value is not null, then the fill
	// value MUST be encoded as an ASCII string using the standard Base64
	// alphabet.
	FillValue any
	// Either “C” or “F”, defining the layout of bytes within each chunk of the
	// array. “C” means row-major order, i.e., the last dimension varies fastest;
	// “F” means column-major order, i.e., the first dimension varies fastest.
	Order Order
	// A list of JSON objects providing codec configurations, or null if no
	// filters are to be applied. Each codec configuration object MUST contain a
	// "id" key identifying the codec to be used.
	Filters []NumcodecsConfig

	// optional fields

	// If present, either the string "." or "/"" definining the separator placed
	// between the dimensions of a chunk. If the value is not set, then the
	// default MUST be assumed to be ".", leading to chunk keys of the form “0.0”.
	// Arrays defined with "/" as the dimension separator can be considered to
	// have nested, or hierarchical, keys of the form “0/0” that SHOULD where
	// possible produce a directory-like structure.
	DimensionSeparator Separator

	// Attributes are read from the neighbouring .zattrs document
	Attributes Attributes
}

var _ Metadata = ArrayV2Metadata{}

func (a ArrayV2Metadata) MetaType() MetaType     { return MTArray }
func (a ArrayV2Metadata) NodeType() NodeType     { return NodeTypeArray }
func (a ArrayV2Metadata) ZarrFormat() ZarrFormat { return ZarrFormat2 }
func (a ArrayV2Metadata) Attrs() Attributes      { return a.Attributes }

// RecordFields lists the .zarray fields. Attributes are only included when
// set; on disk they live in .zattrs.
func (a ArrayV2Metadata) RecordFields() []NamedValue {
	fields := []NamedValue{
		{"zarr_format", int(ZarrFormat2)},
		{"shape", a.Shape},
		{"chunks", a.Chunks},
		{"dtype", a.Dtype},
		{"compressor", a.Compressor},
		{"fill_value", a.FillValue},
		{"order", a.Order},
		{"filters", a.Filters},
		{"dimension_separator", a.separator()},
	}
	if len(a.Attributes) > 0 {
		fields = append(fields, NamedValue{"attributes", a.Attributes})
	}
	return fields
}

func (a ArrayV2Metadata) separator() Separator {
	if a.DimensionSeparator == "" {
		return SeparatorDot
	}
	return a.DimensionSeparator
}

// ChunkKeyEncoding returns the v2 encoding using the array's dimension
// separator
func (a ArrayV2Metadata) ChunkKeyEncoding() ChunkKeyEncoding {
	return V2ChunkKeyEncoding{sep: a.separator()}
}

var arrayV2MetadataDecoder = RecordOf("ArrayV2Metadata", func(r *FieldReader) ArrayV2Metadata {
	Read(r, "zarr_format", Literal(int(ZarrFormat2)))
	a := ArrayV2Metadata{
		Shape:      Read(r, "shape", SliceOf(Int())),
		Chunks:     Read(r, "chunks", SliceOf(Int())),
		Dtype:      Read(r, "dtype", structuredTypeDecoder),
		Compressor: Read(r, "compressor", Optional(numcodecsConfigDecoder)),
		FillValue:  Read(r, "fill_value", Any()),
		Order:      Read(r, "order", orderDecoder),
		Attributes: Read(r, "attributes", attributesDecoder),
	}
	if filters := Read(r, "filters", Optional(SliceOf(numcodecsConfigDecoder))); filters != nil {
		a.Filters = *filters
	}
	a.DimensionSeparator = SeparatorDot
	if r.Has("dimension_separator") && r.Raw("dimension_separator") != nil {
		a.DimensionSeparator = Separator(Read(r, "dimension_separator", Literal(string(SeparatorDot), string(SeparatorSlash))))
	}
	if r.Err() == nil && len(a.Chunks) != len(a.Shape) {
		r.Fail(mismatch("ArrayV2Metadata", r.Raw("chunks"), "chunks has %d dimensions, shape has %d", len(a.Chunks), len(a.Shape)))
	}
	for _, c := range a.Chunks {
		if c <= 0 {
			r.Fail(mismatch("ArrayV2Metadata", r.Raw("chunks"), "chunk sizes must be positive"))
			break
		}
	}
	return a
})

// Arrays can be organized into groups which can also contain other groups.
// A group is created by storing group metadata under the “.zgroup” key under
// some logical path. E.g., a group exists at the root of an array store if the
// “.zgroup” key exists in the store, and a group exists at logical path
// “foo/bar” if the “foo/bar/.zgroup” key exists in the store.
type GroupV2Metadata struct {
	Attributes Attributes
}

var _ Metadata = GroupV2Metadata{}

func (g GroupV2Metadata) MetaType() MetaType     { return MTGroup }
func (g GroupV2Metadata) NodeType() NodeType     { return NodeTypeGroup }
func (g GroupV2Metadata) ZarrFormat() ZarrFormat { return ZarrFormat2 }
func (g GroupV2Metadata) Attrs() Attributes      { return g.Attributes }

func (g GroupV2Metadata) RecordFields() []NamedValue {
	fields := []NamedValue{{"zarr_format", int(ZarrFormat2)}}
	if len(g.Attributes) > 0 {
		fields = append(fields, NamedValue{"attributes", g.Attributes})
	}
	return fields
}

var groupV2MetadataDecoder = RecordOf("GroupV2Metadata", func(r *FieldReader) GroupV2Metadata {
	Read(r, "zarr_format", Literal(int(ZarrFormat2)))
	return GroupV2Metadata{Attributes: Read(r, "attributes", attributesDecoder)}
})

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)

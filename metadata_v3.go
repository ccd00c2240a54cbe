package zarr

// ArrayV3Metadata is the zarr.json document of a version 3 array
type ArrayV3Metadata struct {
	Shape            []int
	DataType         DataType
	ChunkGrid        ChunkGrid
	ChunkKeyEncoding ChunkKeyEncoding
	// FillValue holds a value of the Go type matching DataType: bool,
	// int64, uint64, float64 or complex128
	FillValue any
	Codecs    []Codec
	// DimensionNames is nil when the document has none. Individual names
	// may be nil.
	DimensionNames []*string
	Attributes     Attributes
}

var _ Metadata = ArrayV3Metadata{}

func (a ArrayV3Metadata) NodeType() NodeType     { return NodeTypeArray }
func (a ArrayV3Metadata) ZarrFormat() ZarrFormat { return ZarrFormat3 }
func (a ArrayV3Metadata) Attrs() Attributes      { return a.Attributes }

func (a ArrayV3Metadata) RecordFields() []NamedValue {
	attrs := a.Attributes
	if attrs == nil {
		attrs = Attributes{}
	}
	codecs := make([]any, len(a.Codecs))
	for i, c := range a.Codecs {
		codecs[i] = c
	}
	fields := []NamedValue{
		{"zarr_format", int(ZarrFormat3)},
		{"node_type", string(NodeTypeArray)},
		{"shape", a.Shape},
		{"data_type", a.DataType},
		{"chunk_grid", a.ChunkGrid},
		{"chunk_key_encoding", a.ChunkKeyEncoding},
		{"fill_value", a.FillValue},
		{"codecs", codecs},
		{"attributes", attrs},
	}
	if a.DimensionNames != nil {
		fields = append(fields, NamedValue{"dimension_names", a.DimensionNames})
	}
	return fields
}

// fillValueDecoder decodes a fill value into the Go type for dt
func fillValueDecoder(dt DataType) Decoder[any] {
	widen := func(d any, err error) (any, error) { return d, err }
	return func(v any) (any, error) {
		switch {
		case dt == DTBool:
			return widen(Bool()(v))
		case dt.isInt():
			i, err := Int64()(v)
			if err != nil {
				return nil, err
			}
			if bits := uint(dt.ItemSize() * 8); bits < 64 && (i < -(1<<(bits-1)) || i >= 1<<(bits-1)) {
				return nil, mismatch("fill_value", v, "out of range for %s", dt)
			}
			return i, nil
		case dt.isUint():
			u, err := Uint64()(v)
			if err != nil {
				return nil, err
			}
			if bits := uint(dt.ItemSize() * 8); bits < 64 && u >= 1<<bits {
				return nil, mismatch("fill_value", v, "out of range for %s", dt)
			}
			return u, nil
		case dt.isFloat():
			return widen(Float()(v))
		case dt.isComplex():
			return widen(Complex()(v))
		}
		return nil, mismatch("fill_value", v, "no fill value decoding for data type %q", dt)
	}
}

var arrayV3MetadataDecoder = RecordOf("ArrayV3Metadata", func(r *FieldReader) ArrayV3Metadata {
	Read(r, "zarr_format", Literal(int(ZarrFormat3)))
	Read(r, "node_type", Literal(string(NodeTypeArray)))
	a := ArrayV3Metadata{
		Shape:            Read(r, "shape", SliceOf(Int())),
		DataType:         Read(r, "data_type", dataTypeDecoder),
		ChunkGrid:        Read(r, "chunk_grid", chunkGrids.Decoder()),
		ChunkKeyEncoding: Read(r, "chunk_key_encoding", chunkKeyEncodings.Decoder()),
		// codecs elements are keyed by codec name, not by a union tag, so
		// they go through the pipeline parser
		Codecs:     Read(r, "codecs", Decoder[[]Codec](ParseCodecs)),
		Attributes: Read(r, "attributes", attributesDecoder),
	}
	if names := Read(r, "dimension_names", Optional(SliceOf(Optional(String())))); names != nil {
		a.DimensionNames = *names
	}
	if r.Err() != nil {
		return a
	}
	a.FillValue = Read(r, "fill_value", fillValueDecoder(a.DataType))

	if st := Read(r, "storage_transformers", Optional(SliceOf(Any()))); st != nil && len(*st) > 0 {
		r.Fail(mismatch("ArrayV3Metadata", r.Raw("storage_transformers"), "storage transformers are not supported"))
	}
	if rg, ok := a.ChunkGrid.(RegularChunkGrid); ok && len(rg.ChunkShape) != len(a.Shape) {
		r.Fail(mismatch("ArrayV3Metadata", r.Raw("chunk_grid"), "chunk grid has %d dimensions, shape has %d", len(rg.ChunkShape), len(a.Shape)))
	}
	if a.DimensionNames != nil && len(a.DimensionNames) != len(a.Shape) {
		r.Fail(mismatch("ArrayV3Metadata", r.Raw("dimension_names"), "%d dimension names for %d dimensions", len(a.DimensionNames), len(a.Shape)))
	}
	return a
})

// GroupV3Metadata is the zarr.json document of a version 3 group
type GroupV3Metadata struct {
	Attributes Attributes
}

var _ Metadata = GroupV3Metadata{}

func (g GroupV3Metadata) NodeType() NodeType     { return NodeTypeGroup }
func (g GroupV3Metadata) ZarrFormat() ZarrFormat { return ZarrFormat3 }
func (g GroupV3Metadata) Attrs() Attributes      { return g.Attributes }

func (g GroupV3Metadata) RecordFields() []NamedValue {
	attrs := g.Attributes
	if attrs == nil {
		attrs = Attributes{}
	}
	return []NamedValue{
		{"zarr_format", int(ZarrFormat3)},
		{"node_type", string(NodeTypeGroup)},
		{"attributes", attrs},
	}
}

var groupV3MetadataDecoder = RecordOf("GroupV3Metadata", func(r *FieldReader) GroupV3Metadata {
	Read(r, "zarr_format", Literal(int(ZarrFormat3)))
	Read(r, "node_type", Literal(string(NodeTypeGroup)))
	return GroupV3Metadata{Attributes: Read(r, "attributes", attributesDecoder)}
})

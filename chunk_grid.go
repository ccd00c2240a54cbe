package zarr

// ChunkGrid partitions an array into chunks. Grids are a tagged union
// discriminated by "name"; "regular" is the only grid in the format today.
type ChunkGrid interface {
	Record
	Name() string
	// GridShape is the number of chunks along each dimension of an array of
	// the given shape
	GridShape(shape []int) []int
	// ChunkShapeAt is the shape of the chunk at coords
	ChunkShapeAt(coords []int) []int
}

// RegularChunkGrid divides every dimension into chunks of one fixed size.
// Chunks on the upper edge may extend past the array.
type RegularChunkGrid struct {
	ChunkShape []int
}

var _ ChunkGrid = RegularChunkGrid{}

func (g RegularChunkGrid) Name() string { return "regular" }

func (g RegularChunkGrid) RecordFields() []NamedValue {
	return []NamedValue{
		{"name", g.Name()},
		{"configuration", map[string]any{"chunk_shape": g.ChunkShape}},
	}
}

// GridShape calculates the number of chunks in each dimension.
// For each dimension i, the number of chunks is ceil(shape[i] / chunks[i]).
func (g RegularChunkGrid) GridShape(shape []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		if g.ChunkShape[i] == 0 {
			continue
		}
		grid[i] = (shape[i] + g.ChunkShape[i] - 1) / g.ChunkShape[i]
	}
	return grid
}

func (g RegularChunkGrid) ChunkShapeAt([]int) []int {
	return append([]int(nil), g.ChunkShape...)
}

var regularChunkGridConfiguration = RecordOf("RegularChunkGridConfiguration", func(r *FieldReader) []int {
	shape := Read(r, "chunk_shape", SliceOf(Int()))
	for _, s := range shape {
		if s <= 0 {
			r.Fail(mismatch("RegularChunkGridConfiguration", r.Raw("chunk_shape"), "chunk sizes must be positive"))
			break
		}
	}
	return shape
})

var chunkGrids = Union("ChunkGrid",
	Variant[ChunkGrid]{
		Name:   "regular chunk grid",
		Fields: []Field{TagField("name", "regular"), {Name: "configuration"}},
		Decode: RecordOf("RegularChunkGrid", func(r *FieldReader) ChunkGrid {
			Read(r, "name", Literal("regular"))
			return RegularChunkGrid{ChunkShape: Read(r, "configuration", regularChunkGridConfiguration)}
		}),
	},
)

// DecodeChunkGrid decodes a chunk_grid value tree
func DecodeChunkGrid(v any) (ChunkGrid, error) {
	return chunkGrids.Decode(v)
}

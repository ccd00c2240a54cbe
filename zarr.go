package zarr

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

const (
	// Version is the current version of this library.
	Version = "0.2.0"
)

type PersistenceMode string

const (
	// Persistence mode:
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	//‘r+’ means read/write (must exist)
	ModeReadWrite PersistenceMode = "r+"
	// ‘a’ means read/write (create if doesn’t exist)
	ModeReadWriteCreate PersistenceMode = "a"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ‘w-’ means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

func ParsePersistenceMode(s string) (PersistenceMode, error) {
	switch m := PersistenceMode(s); m {
	case ModeRead, ModeReadWrite, ModeReadWriteCreate, ModeWrite, ModeWriteFail:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown persistence mode %q", ErrInvalidConfiguration, s)
}

// Node is an array or group in a store
type Node struct {
	sp   StorePath
	mode PersistenceMode
	doc  *Document
}

// Open resolves the node at path, whatever its type and format
func Open(ctx context.Context, store Store, path string, mode PersistenceMode) (*Node, error) {
	return OpenWith(ctx, &Resolver{}, store, path, NodeTypeUnknown, ZarrFormatUnknown, mode)
}

// OpenArray resolves the array at path
func OpenArray(ctx context.Context, store Store, path string, mode PersistenceMode) (*Array, error) {
	n, err := OpenWith(ctx, &Resolver{}, store, path, NodeTypeArray, ZarrFormatUnknown, mode)
	if err != nil {
		return nil, err
	}
	return n.AsArray()
}

// OpenWith resolves an existing node with r. Opening only reads; the
// create modes belong to Create.
func OpenWith(ctx context.Context, r *Resolver, store Store, path string, nt NodeType, zf ZarrFormat, mode PersistenceMode) (*Node, error) {
	switch mode {
	case ModeRead, ModeReadWrite, ModeReadWriteCreate:
	default:
		return nil, fmt.Errorf("%w: cannot open in mode %q", ErrInvalidConfiguration, mode)
	}
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	sp := StorePath{Store: store, Path: p}
	doc, err := r.Resolve(ctx, sp, nt, zf)
	if err != nil {
		return nil, err
	}
	return &Node{sp: sp, mode: mode, doc: doc}, nil
}

// Create stores md at path. ModeReadWriteCreate returns an existing node
// untouched, ModeWriteFail refuses to replace one, and ModeWrite replaces
// every metadata document at path, whatever its format. Existing chunks
// are left in place.
func Create(ctx context.Context, store Store, path string, md Metadata, mode PersistenceMode) (*Node, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	sp := StorePath{Store: store, Path: p}

	switch mode {
	case ModeReadWriteCreate, ModeWriteFail:
		existing, err := ResolveDocument(ctx, sp, NodeTypeUnknown, ZarrFormatUnknown)
		if err == nil {
			if mode == ModeWriteFail {
				return nil, fmt.Errorf("%w: %s", ErrExists, sp)
			}
			return &Node{sp: sp, mode: mode, doc: existing}, nil
		}
		if !errors.Is(err, ErrNodeNotFound) {
			return nil, err
		}
	case ModeWrite:
	default:
		return nil, fmt.Errorf("%w: cannot create in mode %q", ErrInvalidConfiguration, mode)
	}

	// documents of another type or format would outrank or contradict md
	if err := clearDocuments(ctx, sp); err != nil {
		return nil, err
	}
	if err := SaveDocument(ctx, sp, md); err != nil {
		return nil, err
	}
	return &Node{
		sp:   sp,
		mode: mode,
		doc:  &Document{Metadata: md, NodeType: md.NodeType(), ZarrFormat: md.ZarrFormat()},
	}, nil
}

func (n *Node) Path() string           { return n.sp.Key() }
func (n *Node) Mode() PersistenceMode  { return n.mode }
func (n *Node) Metadata() Metadata     { return n.doc.Metadata }
func (n *Node) NodeType() NodeType     { return n.doc.NodeType }
func (n *Node) ZarrFormat() ZarrFormat { return n.doc.ZarrFormat }
func (n *Node) Attrs() Attributes      { return n.doc.Metadata.Attrs() }
func (n *Node) StorePath() StorePath   { return n.sp }

// AsArray narrows the node to an array
func (n *Node) AsArray() (*Array, error) {
	a := &Array{Node: n}
	switch md := n.doc.Metadata.(type) {
	case ArrayV3Metadata:
		a.shape, a.grid, a.keys = md.Shape, md.ChunkGrid, md.ChunkKeyEncoding
	case ArrayV2Metadata:
		a.shape, a.grid, a.keys = md.Shape, RegularChunkGrid{ChunkShape: md.Chunks}, md.ChunkKeyEncoding()
	default:
		return nil, fmt.Errorf("%w: expected %s at %s, found %s", ErrNodeTypeMismatch, NodeTypeArray, n.sp, n.NodeType())
	}
	return a, nil
}

// Members lists the names of the nodes directly below a group
func (n *Node) Members(ctx context.Context) ([]string, error) {
	if n.NodeType() != NodeTypeGroup {
		return nil, fmt.Errorf("%w: %s is an %s, only groups have members", ErrNodeTypeMismatch, n.sp, n.NodeType())
	}
	prefix := ""
	if len(n.sp.Path) > 0 {
		prefix = n.sp.Key() + "/"
	}
	keys, err := n.sp.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	for _, key := range keys {
		mt, ok := KeyMetaType(key)
		if !ok || mt == MTAttributes {
			continue
		}
		dir := path.Dir(strings.TrimPrefix(key, prefix))
		if dir == "." || strings.Contains(dir, "/") {
			continue
		}
		seen[dir] = struct{}{}
	}
	members := make([]string, 0, len(seen))
	for name := range seen {
		members = append(members, name)
	}
	sort.Strings(members)
	return members, nil
}

// Info summarizes the node in a human readable table
func (n *Node) Info() string {
	rows := [][2]string{
		{"Type", nodeTypeTitle(n.NodeType())},
		{"Zarr format", fmt.Sprint(int(n.ZarrFormat()))},
	}
	switch md := n.doc.Metadata.(type) {
	case ArrayV3Metadata:
		names := make([]string, len(md.Codecs))
		for i, c := range md.Codecs {
			names[i] = c.CodecName()
		}
		rows = append(rows,
			[2]string{"Data type", string(md.DataType)},
			[2]string{"Shape", formatShape(md.Shape)},
			[2]string{"Chunk grid", md.ChunkGrid.Name()},
			[2]string{"Chunk key encoding", fmt.Sprintf("%s (%s)", md.ChunkKeyEncoding.Name(), md.ChunkKeyEncoding.Separator())},
			[2]string{"Codecs", strings.Join(names, ", ")},
		)
	case ArrayV2Metadata:
		compressor := "None"
		if md.Compressor != nil {
			compressor = md.Compressor.ID
		}
		rows = append(rows,
			[2]string{"Data type", fmt.Sprintf("%v (%s)", md.Dtype.descriptor(), md.Dtype.Human())},
			[2]string{"Shape", formatShape(md.Shape)},
			[2]string{"Chunk shape", formatShape(md.Chunks)},
			[2]string{"Order", string(md.Order)},
			[2]string{"Compressor", compressor},
		)
	}
	rows = append(rows,
		[2]string{"Attributes", fmt.Sprint(len(n.Attrs()))},
		[2]string{"Store type", n.sp.Store.Type()},
	)

	b := &strings.Builder{}
	for _, row := range rows {
		fmt.Fprintf(b, "%-19s: %s\n", row[0], row[1])
	}
	return b.String()
}

func nodeTypeTitle(nt NodeType) string {
	switch nt {
	case NodeTypeArray:
		return "Array"
	case NodeTypeGroup:
		return "Group"
	}
	return "Unknown"
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, s := range shape {
		parts[i] = fmt.Sprint(s)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Array is an opened array node. Chunks are read and written as encoded
// array bytes: only the bytes-to-bytes stage of the codec pipeline (or the
// version 2 compressor) is applied.
type Array struct {
	*Node
	shape []int
	grid  ChunkGrid
	keys  ChunkKeyEncoding
}

func (a *Array) Shape() []int                       { return append([]int(nil), a.shape...) }
func (a *Array) ChunkGrid() ChunkGrid               { return a.grid }
func (a *Array) ChunkKeyEncoding() ChunkKeyEncoding { return a.keys }
func (a *Array) GridShape() []int                   { return a.grid.GridShape(a.shape) }

// ChunkKey returns the store key of the chunk at coords
func (a *Array) ChunkKey(coords []int) (string, error) {
	if err := a.checkCoords(coords); err != nil {
		return "", err
	}
	return a.sp.Join(a.keys.EncodeChunkKey(coords)).Key(), nil
}

func (a *Array) checkCoords(coords []int) error {
	if len(coords) != len(a.shape) {
		return fmt.Errorf("%w: %d coordinates for a %d dimensional array", ErrInvalidChunkKey, len(coords), len(a.shape))
	}
	grid := a.GridShape()
	for i, c := range coords {
		if c < 0 || c >= grid[i] {
			return fmt.Errorf("%w: coordinate %d of %v is outside the chunk grid %v", ErrInvalidChunkKey, i, coords, grid)
		}
	}
	return nil
}

// ChunkCoords turns a store key of this array back into chunk coordinates
func (a *Array) ChunkCoords(key string) ([]int, error) {
	rel := key
	if len(a.sp.Path) > 0 {
		var ok bool
		if rel, ok = strings.CutPrefix(key, a.sp.Key()+"/"); !ok {
			return nil, fmt.Errorf("%w: %q is not below %q", ErrInvalidChunkKey, key, a.sp.Key())
		}
	}
	if len(a.shape) == 0 {
		if rel != a.keys.EncodeChunkKey(nil) {
			return nil, fmt.Errorf("%w: %q is not the chunk of a zero dimensional array", ErrInvalidChunkKey, key)
		}
		return []int{}, nil
	}
	coords, err := a.keys.DecodeChunkKey(rel)
	if err != nil {
		return nil, err
	}
	if err := a.checkCoords(coords); err != nil {
		return nil, err
	}
	return coords, nil
}

// StoredChunks lists the coordinates of every chunk present in the store,
// in key order
func (a *Array) StoredChunks(ctx context.Context) ([][]int, error) {
	prefix := ""
	if len(a.sp.Path) > 0 {
		prefix = a.sp.Key() + "/"
	}
	keys, err := a.sp.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	chunks := [][]int{}
	for _, key := range keys {
		if strings.HasPrefix(strings.TrimPrefix(key, prefix), ".") {
			continue
		}
		if _, ok := KeyMetaType(key); ok {
			continue
		}
		if coords, err := a.ChunkCoords(key); err == nil {
			chunks = append(chunks, coords)
		}
	}
	return chunks, nil
}

// ReadChunk reads and decodes the chunk at coords. A chunk that was never
// written yields an error wrapping ErrNotFound.
func (a *Array) ReadChunk(ctx context.Context, coords []int) ([]byte, error) {
	key, err := a.ChunkKey(coords)
	if err != nil {
		return nil, err
	}
	data, err := a.sp.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return a.decodeChunk(data)
}

// WriteChunk encodes data and stores it as the chunk at coords
func (a *Array) WriteChunk(ctx context.Context, coords []int, data []byte) error {
	if a.mode == ModeRead {
		return fmt.Errorf("%w: %s", ErrReadOnly, a.sp)
	}
	key, err := a.ChunkKey(coords)
	if err != nil {
		return err
	}
	enc, err := a.encodeChunk(data)
	if err != nil {
		return err
	}
	return a.sp.Store.Set(ctx, key, enc)
}

func (a *Array) encodeChunk(data []byte) ([]byte, error) {
	switch md := a.doc.Metadata.(type) {
	case ArrayV3Metadata:
		var err error
		for _, c := range bytesToBytes(md.Codecs) {
			if data, err = c.EncodeBytes(data); err != nil {
				return nil, fmt.Errorf("codec %s: %w", c.CodecName(), err)
			}
		}
		return data, nil
	case ArrayV2Metadata:
		if len(md.Filters) > 0 {
			return nil, fmt.Errorf("%w: filters are not supported", ErrInvalidConfiguration)
		}
		if md.Compressor == nil {
			return data, nil
		}
		return md.Compressor.Compress(data)
	}
	return nil, fmt.Errorf("%w: %s is not an array", ErrNodeTypeMismatch, a.sp)
}

func (a *Array) decodeChunk(data []byte) ([]byte, error) {
	switch md := a.doc.Metadata.(type) {
	case ArrayV3Metadata:
		pipeline := bytesToBytes(md.Codecs)
		var err error
		for i := len(pipeline) - 1; i >= 0; i-- {
			if data, err = pipeline[i].DecodeBytes(data); err != nil {
				return nil, fmt.Errorf("codec %s: %w", pipeline[i].CodecName(), err)
			}
		}
		return data, nil
	case ArrayV2Metadata:
		if len(md.Filters) > 0 {
			return nil, fmt.Errorf("%w: filters are not supported", ErrInvalidConfiguration)
		}
		if md.Compressor == nil {
			return data, nil
		}
		return md.Compressor.Decompress(data)
	}
	return nil, fmt.Errorf("%w: %s is not an array", ErrNodeTypeMismatch, a.sp)
}

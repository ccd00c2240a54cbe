package zarr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataKeys(t *testing.T) {
	cases := []struct {
		nt     NodeType
		zf     ZarrFormat
		expect []string
	}{
		{NodeTypeArray, ZarrFormat3, []string{"zarr.json"}},
		{NodeTypeGroup, ZarrFormat3, []string{"zarr.json"}},
		{NodeTypeUnknown, ZarrFormat3, []string{"zarr.json"}},
		{NodeTypeArray, ZarrFormat2, []string{".zarray", ".zattrs"}},
		{NodeTypeArray, ZarrFormatUnknown, []string{"zarr.json", ".zattrs", ".zarray"}},
		{NodeTypeGroup, ZarrFormat2, []string{".zgroup", ".zattrs"}},
		{NodeTypeGroup, ZarrFormatUnknown, []string{"zarr.json", ".zattrs", ".zgroup"}},
		{NodeTypeUnknown, ZarrFormat2, []string{".zarray", ".zattrs", ".zgroup"}},
		{NodeTypeUnknown, ZarrFormatUnknown, []string{"zarr.json", ".zattrs", ".zgroup", ".zarray"}},
	}

	for _, c := range cases {
		keys, err := MetadataKeys(c.nt, c.zf)
		require.NoError(t, err)
		assert.ElementsMatch(t, c.expect, keys, "node type %q, format %d", c.nt, c.zf)
	}

	_, err := MetadataKeys(NodeType("dataset"), ZarrFormat2)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = MetadataKeys(NodeTypeArray, ZarrFormat(4))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

const (
	zarrayDoc = `{"zarr_format": 2, "shape": [6], "chunks": [3], "dtype": "<i4", "compressor": null, "fill_value": 0, "order": "C", "filters": null}`
	zgroupDoc = `{"zarr_format": 2}`
	zattrsDoc = `{"title": "t", "n": 1}`
	arrayV3   = `{"zarr_format": 3, "node_type": "array", "shape": [6], "data_type": "int32",
		"chunk_grid": {"name": "regular", "configuration": {"chunk_shape": [3]}},
		"chunk_key_encoding": {"name": "default"}, "fill_value": 0, "codecs": ["bytes"]}`
	groupV3 = `{"zarr_format": 3, "node_type": "group", "attributes": {"x": "y"}}`
)

func storeWith(t *testing.T, docs map[string]string) *MemoryStore {
	s := NewMemoryStore()
	for k, v := range docs {
		require.NoError(t, s.Set(context.Background(), k, []byte(v)))
	}
	return s
}

func TestResolveDocument(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		docs   map[string]string
		nt     NodeType
		zf     ZarrFormat
		expect func(t *testing.T, doc *Document)
	}{
		{"v2 array with attributes", map[string]string{"n/.zarray": zarrayDoc, "n/.zattrs": zattrsDoc}, NodeTypeUnknown, ZarrFormatUnknown,
			func(t *testing.T, doc *Document) {
				md := doc.Metadata.(ArrayV2Metadata)
				assert.Equal(t, []int{6}, md.Shape)
				assert.Equal(t, Attributes{"title": "t", "n": jsonNumber("1")}, md.Attributes)
			}},
		{"v2 array without attributes", map[string]string{"n/.zarray": zarrayDoc}, NodeTypeArray, ZarrFormat2,
			func(t *testing.T, doc *Document) {
				assert.Equal(t, Attributes{}, doc.Metadata.Attrs())
			}},
		{"v2 group", map[string]string{"n/.zgroup": zgroupDoc, "n/.zattrs": zattrsDoc}, NodeTypeUnknown, ZarrFormat2,
			func(t *testing.T, doc *Document) {
				assert.Equal(t, "t", doc.Metadata.Attrs()["title"])
				assert.IsType(t, GroupV2Metadata{}, doc.Metadata)
			}},
		{"v3 array", map[string]string{"n/zarr.json": arrayV3}, NodeTypeUnknown, ZarrFormatUnknown,
			func(t *testing.T, doc *Document) {
				md := doc.Metadata.(ArrayV3Metadata)
				assert.Equal(t, DTInt32, md.DataType)
				assert.Equal(t, int64(0), md.FillValue)
			}},
		{"v3 group known format", map[string]string{"n/zarr.json": groupV3}, NodeTypeGroup, ZarrFormat3,
			func(t *testing.T, doc *Document) {
				assert.Equal(t, Attributes{"x": "y"}, doc.Metadata.Attrs())
			}},
		{"legacy documents win over zarr.json", map[string]string{"n/zarr.json": groupV3, "n/.zarray": zarrayDoc}, NodeTypeUnknown, ZarrFormatUnknown,
			func(t *testing.T, doc *Document) {
				assert.Equal(t, ZarrFormat2, doc.ZarrFormat)
			}},
		{"format 3 ignores legacy documents", map[string]string{"n/zarr.json": groupV3, "n/.zarray": zarrayDoc}, NodeTypeUnknown, ZarrFormat3,
			func(t *testing.T, doc *Document) {
				assert.Equal(t, NodeTypeGroup, doc.NodeType)
			}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sp := StorePath{Store: storeWith(t, c.docs), Path: Path{"n"}}
			doc, err := ResolveDocument(ctx, sp, c.nt, c.zf)
			require.NoError(t, err)
			assert.Equal(t, doc.Metadata.NodeType(), doc.NodeType)
			assert.Equal(t, doc.Metadata.ZarrFormat(), doc.ZarrFormat)
			c.expect(t, doc)
		})
	}
}

func TestResolveDocumentErrors(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		docs   map[string]string
		nt     NodeType
		zf     ZarrFormat
		expect error
	}{
		{"array and group", map[string]string{"n/.zarray": zarrayDoc, "n/.zgroup": zgroupDoc}, NodeTypeUnknown, ZarrFormatUnknown, ErrContainsArrayAndGroup},
		{"array and group v2", map[string]string{"n/.zarray": zarrayDoc, "n/.zgroup": zgroupDoc}, NodeTypeUnknown, ZarrFormat2, ErrContainsArrayAndGroup},
		{"empty store", nil, NodeTypeUnknown, ZarrFormatUnknown, ErrNodeNotFound},
		{"attributes alone", map[string]string{"n/.zattrs": zattrsDoc}, NodeTypeUnknown, ZarrFormatUnknown, ErrNodeNotFound},
		{"format 3 without zarr.json", map[string]string{"n/.zarray": zarrayDoc}, NodeTypeArray, ZarrFormat3, ErrNodeNotFound},
		{"wrong path", map[string]string{"m/zarr.json": arrayV3}, NodeTypeUnknown, ZarrFormatUnknown, ErrNodeNotFound},
		{"group requested, array found", map[string]string{"n/zarr.json": arrayV3}, NodeTypeGroup, ZarrFormatUnknown, ErrNodeTypeMismatch},
		{"array requested, v2 group found", map[string]string{"n/.zgroup": zgroupDoc}, NodeTypeArray, ZarrFormat2, ErrNodeNotFound},
		{"bad node type", map[string]string{"n/zarr.json": `{"zarr_format": 3, "node_type": "dataset"}`}, NodeTypeUnknown, ZarrFormat3, ErrSchemaMismatch},
		{"malformed zarr.json", map[string]string{"n/zarr.json": `{"zarr_format": 3,`}, NodeTypeUnknown, ZarrFormatUnknown, ErrParse},
		{"malformed attributes", map[string]string{"n/.zgroup": zgroupDoc, "n/.zattrs": `[`}, NodeTypeUnknown, ZarrFormatUnknown, ErrParse},
		{"attributes not a mapping", map[string]string{"n/.zgroup": zgroupDoc, "n/.zattrs": `[1]`}, NodeTypeUnknown, ZarrFormatUnknown, ErrSchemaMismatch},
		{"invalid v3 array", map[string]string{"n/zarr.json": `{"zarr_format": 3, "node_type": "array"}`}, NodeTypeUnknown, ZarrFormatUnknown, ErrSchemaMismatch},
		{"format mismatch inside document", map[string]string{"n/.zarray": `{"zarr_format": 3}`}, NodeTypeArray, ZarrFormat2, ErrSchemaMismatch},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sp := StorePath{Store: storeWith(t, c.docs), Path: Path{"n"}}
			doc, err := ResolveDocument(ctx, sp, c.nt, c.zf)
			assert.ErrorIs(t, err, c.expect)
			assert.Nil(t, doc)
		})
	}
}

// recordingStore wraps a MemoryStore, records the keys read and can fail
// reads of one key
type recordingStore struct {
	*MemoryStore
	failKey string
	failErr error

	lk    sync.Mutex
	reads []string
}

func (s *recordingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.lk.Lock()
	s.reads = append(s.reads, key)
	s.lk.Unlock()
	if key == s.failKey {
		return nil, s.failErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *recordingStore) readKeys() []string {
	s.lk.Lock()
	defer s.lk.Unlock()
	keys := append([]string(nil), s.reads...)
	sort.Strings(keys)
	return keys
}

func TestResolverReadsEveryCandidateKey(t *testing.T) {
	s := &recordingStore{MemoryStore: storeWith(t, map[string]string{"a/b/zarr.json": groupV3})}
	sp := StorePath{Store: s, Path: Path{"a", "b"}}

	_, err := ResolveDocument(context.Background(), sp, NodeTypeUnknown, ZarrFormatUnknown)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/.zarray", "a/b/.zattrs", "a/b/.zgroup", "a/b/zarr.json"}, s.readKeys())
}

func TestResolverReadFailure(t *testing.T) {
	diskErr := errors.New("disk on fire")
	s := &recordingStore{
		MemoryStore: storeWith(t, map[string]string{"n/.zgroup": zgroupDoc}),
		failKey:     "n/.zattrs",
		failErr:     diskErr,
	}
	sp := StorePath{Store: s, Path: Path{"n"}}

	doc, err := ResolveDocument(context.Background(), sp, NodeTypeGroup, ZarrFormat2)
	assert.ErrorIs(t, err, diskErr)
	assert.Nil(t, doc)
}

func TestResolverCancelled(t *testing.T) {
	sp := StorePath{Store: storeWith(t, map[string]string{"zarr.json": groupV3}), Path: Path{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, err := ResolveDocument(ctx, sp, NodeTypeUnknown, ZarrFormatUnknown)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, doc)
}

func TestResolverLogs(t *testing.T) {
	buf := &bytes.Buffer{}
	r := &Resolver{Logger: slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	sp := StorePath{Store: storeWith(t, map[string]string{"g/zarr.json": groupV3}), Path: Path{"g"}}

	_, err := r.Resolve(context.Background(), sp, NodeTypeUnknown, ZarrFormatUnknown)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "metadata schema chosen")
	assert.Contains(t, buf.String(), "key=zarr.json")
}

func TestSaveDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()

	arrV2, err := Decode([]byte(zarrayDoc), arrayV2MetadataDecoder)
	require.NoError(t, err)
	arrV2.Attributes = Attributes{"title": "saved"}

	arrV3, err := Decode([]byte(arrayV3), arrayV3MetadataDecoder)
	require.NoError(t, err)

	docs := []Metadata{
		arrV2,
		arrV3,
		GroupV2Metadata{Attributes: Attributes{}},
		GroupV3Metadata{Attributes: Attributes{"k": []any{"v"}}},
	}

	for _, md := range docs {
		s := NewMemoryStore()
		sp := StorePath{Store: s, Path: Path{"x", "y"}}
		require.NoError(t, SaveDocument(ctx, sp, md))

		doc, err := ResolveDocument(ctx, sp, NodeTypeUnknown, ZarrFormatUnknown)
		require.NoError(t, err)
		assert.Equal(t, md, doc.Metadata)
	}
}

func TestSaveDocumentV2Layout(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sp := StorePath{Store: s, Path: Path{"g"}}

	require.NoError(t, SaveDocument(ctx, sp, GroupV2Metadata{Attributes: Attributes{"a": "b"}}))
	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"g/.zattrs", "g/.zgroup"}, keys)

	zgroup, err := s.Get(ctx, "g/.zgroup")
	require.NoError(t, err)
	assert.JSONEq(t, `{"zarr_format": 2}`, string(zgroup))

	// dropping the attributes removes the stale .zattrs
	require.NoError(t, SaveDocument(ctx, sp, GroupV2Metadata{}))
	keys, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"g/.zgroup"}, keys)
}

func jsonNumber(s string) any {
	v, err := ParseValue([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

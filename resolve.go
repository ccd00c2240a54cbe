package zarr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// NodeType distinguishes arrays from groups
type NodeType string

const (
	NodeTypeArray NodeType = "array"
	NodeTypeGroup NodeType = "group"
	// NodeTypeUnknown asks the resolver to work the node type out
	NodeTypeUnknown NodeType = ""
)

// ParseNodeType accepts "array", "group", and "" or "unknown"
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case string(NodeTypeArray):
		return NodeTypeArray, nil
	case string(NodeTypeGroup):
		return NodeTypeGroup, nil
	case "", "unknown":
		return NodeTypeUnknown, nil
	}
	return NodeTypeUnknown, fmt.Errorf("%w: unknown node type %q", ErrInvalidConfiguration, s)
}

// ZarrFormat is the major version of the storage format
type ZarrFormat int

const (
	// ZarrFormatUnknown asks the resolver to work the format out
	ZarrFormatUnknown ZarrFormat = 0
	ZarrFormat2       ZarrFormat = 2
	ZarrFormat3       ZarrFormat = 3
)

// ParseZarrFormat accepts 2, 3, and 0 for unknown
func ParseZarrFormat(i int) (ZarrFormat, error) {
	switch zf := ZarrFormat(i); zf {
	case ZarrFormatUnknown, ZarrFormat2, ZarrFormat3:
		return zf, nil
	}
	return ZarrFormatUnknown, fmt.Errorf("%w: unsupported zarr format %d", ErrInvalidConfiguration, i)
}

// MetadataKeys lists the metadata document keys that may describe a node
// of the given type and format. The result is a set: callers must not
// depend on its order.
func MetadataKeys(nt NodeType, zf ZarrFormat) ([]string, error) {
	var keys []MetaType
	switch {
	case zf == ZarrFormat3 && (nt == NodeTypeArray || nt == NodeTypeGroup || nt == NodeTypeUnknown):
		keys = []MetaType{MTZarrJSON}
	case nt == NodeTypeArray && zf == ZarrFormat2:
		keys = []MetaType{MTArray, MTAttributes}
	case nt == NodeTypeArray && zf == ZarrFormatUnknown:
		keys = []MetaType{MTZarrJSON, MTAttributes, MTArray}
	case nt == NodeTypeGroup && zf == ZarrFormat2:
		keys = []MetaType{MTGroup, MTAttributes}
	case nt == NodeTypeGroup && zf == ZarrFormatUnknown:
		keys = []MetaType{MTZarrJSON, MTAttributes, MTGroup}
	case nt == NodeTypeUnknown && zf == ZarrFormat2:
		keys = []MetaType{MTArray, MTAttributes, MTGroup}
	case nt == NodeTypeUnknown && zf == ZarrFormatUnknown:
		keys = []MetaType{MTZarrJSON, MTAttributes, MTGroup, MTArray}
	default:
		return nil, fmt.Errorf("%w: no metadata keys for node type %q and zarr format %d", ErrInvalidConfiguration, nt, zf)
	}

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out, nil
}

// Document is a resolved metadata document
type Document struct {
	Metadata   Metadata
	NodeType   NodeType
	ZarrFormat ZarrFormat
}

// Resolver locates and decodes the metadata document of a node. A
// Resolver holds no per-request state and may serve concurrent requests.
type Resolver struct {
	// Logger receives debug records of each resolution. nil logs to
	// slog.Default().
	Logger *slog.Logger
}

func (r *Resolver) logger() *slog.Logger {
	if r == nil || r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// ResolveDocument resolves with a default Resolver
func ResolveDocument(ctx context.Context, sp StorePath, nt NodeType, zf ZarrFormat) (*Document, error) {
	return (&Resolver{}).Resolve(ctx, sp, nt, zf)
}

// Resolve reads every candidate metadata key below sp concurrently, works
// out which schema applies and decodes the document. Either a complete
// document or an error is returned.
func (r *Resolver) Resolve(ctx context.Context, sp StorePath, nt NodeType, zf ZarrFormat) (*Document, error) {
	keys, err := MetadataKeys(nt, zf)
	if err != nil {
		return nil, err
	}
	log := r.logger().With("path", sp.Key(), "node_type", string(nt), "zarr_format", int(zf))
	log.Debug("resolving metadata", "keys", keys)

	found, err := fetchDocuments(ctx, sp, keys)
	if err != nil {
		return nil, err
	}

	plan, err := interpret(sp, nt, zf, found)
	if err != nil {
		log.Debug("metadata interpretation failed", "err", err)
		return nil, err
	}
	log.Debug("metadata schema chosen", "key", string(plan.key), "resolved_node_type", string(plan.nodeType), "resolved_zarr_format", int(plan.format))

	md, err := plan.decode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sp.Join(string(plan.key)), err)
	}
	return &Document{
		Metadata:   md,
		NodeType:   md.NodeType(),
		ZarrFormat: md.ZarrFormat(),
	}, nil
}

// fetchDocuments reads keys below sp in parallel. Absent keys are left
// out of the result; any other read error cancels the outstanding reads
// and is returned.
func fetchDocuments(ctx context.Context, sp StorePath, keys []string) (map[MetaType][]byte, error) {
	type result struct {
		data  []byte
		found bool
	}
	results := make([]result, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			data, err := sp.Join(key).Get(ctx)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading %s: %w", sp.Join(key), err)
			}
			results[i] = result{data: data, found: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	found := make(map[MetaType][]byte, len(keys))
	for i, res := range results {
		if res.found {
			found[MetaType(keys[i])] = res.data
		}
	}
	return found, nil
}

// documentPlan names the schema a set of fetched documents decodes with
type documentPlan struct {
	key      MetaType
	nodeType NodeType
	format   ZarrFormat
	// doc is the value tree of the metadata document
	doc any
	// attrs is the value tree of .zattrs, nil when absent
	attrs any
}

// interpret picks the schema for the fetched documents. It inspects the
// declared node type of a zarr.json document but decodes nothing else.
func interpret(sp StorePath, nt NodeType, zf ZarrFormat, found map[MetaType][]byte) (*documentPlan, error) {
	zarrJSON, hasZarrJSON := found[MTZarrJSON]
	zarray, hasArray := found[MTArray]
	zgroup, hasGroup := found[MTGroup]

	if zf == ZarrFormat3 || (hasZarrJSON && !hasArray && !hasGroup) {
		if !hasZarrJSON {
			return nil, fmt.Errorf("%w: no %s at %s", ErrNodeNotFound, MTZarrJSON, sp)
		}
		doc, err := ParseValue(zarrJSON)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sp.Join(string(MTZarrJSON)), err)
		}
		declared, err := declaredNodeType(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sp.Join(string(MTZarrJSON)), err)
		}
		if nt != NodeTypeUnknown && nt != declared {
			return nil, fmt.Errorf("%w: expected %s at %s, found %s", ErrNodeTypeMismatch, nt, sp, declared)
		}
		return &documentPlan{key: MTZarrJSON, nodeType: declared, format: ZarrFormat3, doc: doc}, nil
	}

	if hasArray && hasGroup {
		return nil, fmt.Errorf("%w: %s", ErrContainsArrayAndGroup, sp)
	}

	plan := &documentPlan{format: ZarrFormat2}
	var raw []byte
	switch {
	case hasArray:
		plan.key, plan.nodeType, raw = MTArray, NodeTypeArray, zarray
	case hasGroup:
		plan.key, plan.nodeType, raw = MTGroup, NodeTypeGroup, zgroup
	default:
		return nil, fmt.Errorf("%w: no metadata document at %s", ErrNodeNotFound, sp)
	}

	doc, err := ParseValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sp.Join(string(plan.key)), err)
	}
	plan.doc = doc
	if data, ok := found[MTAttributes]; ok {
		if plan.attrs, err = ParseValue(data); err != nil {
			return nil, fmt.Errorf("%s: %w", sp.Join(string(MTAttributes)), err)
		}
	}
	return plan, nil
}

var nodeTypeField = RecordOf("node", func(r *FieldReader) NodeType {
	return NodeType(Read(r, "node_type", Literal(string(NodeTypeArray), string(NodeTypeGroup))))
})

func declaredNodeType(doc any) (NodeType, error) {
	return nodeTypeField(doc)
}

// decode runs the decoder of the planned schema. Legacy attributes are
// merged into the document before decoding, so the record's attributes
// come from .zattrs and default to empty.
func (p *documentPlan) decode() (Metadata, error) {
	doc := p.doc
	if p.format == ZarrFormat2 {
		m, err := asMapping(string(p.key), doc)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]any, len(m)+1)
		for k, v := range m {
			merged[k] = v
		}
		merged["attributes"] = p.attrs
		doc = merged
	}

	switch {
	case p.format == ZarrFormat3 && p.nodeType == NodeTypeArray:
		return widenMetadata[ArrayV3Metadata](arrayV3MetadataDecoder(doc))
	case p.format == ZarrFormat3 && p.nodeType == NodeTypeGroup:
		return widenMetadata[GroupV3Metadata](groupV3MetadataDecoder(doc))
	case p.format == ZarrFormat2 && p.nodeType == NodeTypeArray:
		return widenMetadata[ArrayV2Metadata](arrayV2MetadataDecoder(doc))
	case p.format == ZarrFormat2 && p.nodeType == NodeTypeGroup:
		return widenMetadata[GroupV2Metadata](groupV2MetadataDecoder(doc))
	}
	return nil, fmt.Errorf("no schema for %s metadata in zarr format %d", p.nodeType, p.format)
}

func widenMetadata[M Metadata](m M, err error) (Metadata, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

// clearDocuments deletes every metadata document of either format below sp
func clearDocuments(ctx context.Context, sp StorePath) error {
	keys, err := MetadataKeys(NodeTypeUnknown, ZarrFormatUnknown)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			return sp.Join(key).Delete(ctx)
		})
	}
	return g.Wait()
}

// SaveDocument writes the metadata documents of md below sp: zarr.json for
// version 3 nodes; .zarray or .zgroup, plus .zattrs when there are
// attributes, for version 2 nodes. A stale .zattrs is removed when md has
// no attributes.
func SaveDocument(ctx context.Context, sp StorePath, md Metadata) error {
	if md.ZarrFormat() == ZarrFormat3 {
		data, err := Encode(md)
		if err != nil {
			return err
		}
		return sp.Join(string(MTZarrJSON)).Set(ctx, data)
	}

	key := MTGroup
	if md.NodeType() == NodeTypeArray {
		key = MTArray
	}
	v, err := EncodeValue(md)
	if err != nil {
		return err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("encoding %s: expected a mapping, got %T", key, v)
	}
	delete(doc, "attributes")
	data, err := MarshalValue(doc)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sp.Join(string(key)).Set(ctx, data)
	})
	g.Go(func() error {
		attrs := md.Attrs()
		if len(attrs) == 0 {
			return sp.Join(string(MTAttributes)).Delete(ctx)
		}
		av, err := EncodeValue(attrs)
		if err != nil {
			return err
		}
		ad, err := MarshalValue(av)
		if err != nil {
			return err
		}
		return sp.Join(string(MTAttributes)).Set(ctx, ad)
	})
	return g.Wait()
}

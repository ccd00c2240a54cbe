package zarr

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator is the character placed between chunk coordinates in a key
type Separator string

const (
	SeparatorDot   Separator = "."
	SeparatorSlash Separator = "/"
)

// ParseSeparator validates s as a chunk key separator
func ParseSeparator(s string) (Separator, error) {
	switch sep := Separator(s); sep {
	case SeparatorDot, SeparatorSlash:
		return sep, nil
	}
	return "", fmt.Errorf("%w: expected a '.' or '/' separator, got %q", ErrInvalidConfiguration, s)
}

// Names of the chunk key encodings
const (
	ChunkKeyEncodingDefault = "default"
	ChunkKeyEncodingV2      = "v2"
)

// ChunkKeyEncoding maps chunk coordinates to store key suffixes and back.
// EncodeChunkKey and DecodeChunkKey are inverses for non-negative
// coordinates.
type ChunkKeyEncoding interface {
	Record
	Name() string
	Separator() Separator
	EncodeChunkKey(coords []int) string
	DecodeChunkKey(key string) ([]int, error)
}

// NewChunkKeyEncoding builds the encoding registered under name
func NewChunkKeyEncoding(name, separator string) (ChunkKeyEncoding, error) {
	var (
		enc ChunkKeyEncoding
		err error
	)
	switch name {
	case ChunkKeyEncodingDefault:
		enc, err = NewDefaultChunkKeyEncoding(separator)
	case ChunkKeyEncodingV2:
		enc, err = NewV2ChunkKeyEncoding(separator)
	default:
		err = fmt.Errorf("%w: unknown chunk key encoding %q, expected one of (%s, %s)", ErrInvalidConfiguration, name, ChunkKeyEncodingDefault, ChunkKeyEncodingV2)
	}
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// DefaultChunkKeyEncoding prefixes keys with "c": coordinates (1, 2) with
// separator "/" become "c/1/2", and zero-dimensional chunks are "c"
type DefaultChunkKeyEncoding struct {
	sep Separator
}

var _ ChunkKeyEncoding = DefaultChunkKeyEncoding{}

// NewDefaultChunkKeyEncoding validates separator and builds the encoding
func NewDefaultChunkKeyEncoding(separator string) (DefaultChunkKeyEncoding, error) {
	sep, err := ParseSeparator(separator)
	if err != nil {
		return DefaultChunkKeyEncoding{}, err
	}
	return DefaultChunkKeyEncoding{sep: sep}, nil
}

func (e DefaultChunkKeyEncoding) Name() string         { return ChunkKeyEncodingDefault }
func (e DefaultChunkKeyEncoding) Separator() Separator { return e.sep }

func (e DefaultChunkKeyEncoding) RecordFields() []NamedValue {
	return chunkKeyEncodingFields(e)
}

func (e DefaultChunkKeyEncoding) EncodeChunkKey(coords []int) string {
	if len(coords) == 0 {
		return "c"
	}
	return "c" + string(e.sep) + joinCoords(coords, e.sep)
}

func (e DefaultChunkKeyEncoding) DecodeChunkKey(key string) ([]int, error) {
	if key == "c" {
		return []int{}, nil
	}
	rest, ok := strings.CutPrefix(key, "c"+string(e.sep))
	if !ok {
		return nil, fmt.Errorf("%w: %q does not start with %q", ErrInvalidChunkKey, key, "c"+string(e.sep))
	}
	return splitCoords(key, rest, e.sep)
}

// V2ChunkKeyEncoding joins coordinates with no prefix, the layout of the
// version 2 format. Zero-dimensional chunks are stored under "0".
type V2ChunkKeyEncoding struct {
	sep Separator
}

var _ ChunkKeyEncoding = V2ChunkKeyEncoding{}

// NewV2ChunkKeyEncoding validates separator and builds the encoding
func NewV2ChunkKeyEncoding(separator string) (V2ChunkKeyEncoding, error) {
	sep, err := ParseSeparator(separator)
	if err != nil {
		return V2ChunkKeyEncoding{}, err
	}
	return V2ChunkKeyEncoding{sep: sep}, nil
}

func (e V2ChunkKeyEncoding) Name() string         { return ChunkKeyEncodingV2 }
func (e V2ChunkKeyEncoding) Separator() Separator { return e.sep }

func (e V2ChunkKeyEncoding) RecordFields() []NamedValue {
	return chunkKeyEncodingFields(e)
}

func (e V2ChunkKeyEncoding) EncodeChunkKey(coords []int) string {
	if len(coords) == 0 {
		return "0"
	}
	return joinCoords(coords, e.sep)
}

// DecodeChunkKey splits key into coordinates. "0" decodes as (0,): the
// zero-dimensional key is indistinguishable from the first chunk of a 1-d
// array, so 0-d callers must ignore the result.
func (e V2ChunkKeyEncoding) DecodeChunkKey(key string) ([]int, error) {
	return splitCoords(key, key, e.sep)
}

// chunkKeyEncodingConfiguration is the nested "configuration" record
type chunkKeyEncodingConfiguration struct {
	Separator Separator
}

func (c chunkKeyEncodingConfiguration) RecordFields() []NamedValue {
	return []NamedValue{{"separator", string(c.Separator)}}
}

func chunkKeyEncodingFields(e ChunkKeyEncoding) []NamedValue {
	return []NamedValue{
		{"name", e.Name()},
		{"configuration", chunkKeyEncodingConfiguration{Separator: e.Separator()}},
	}
}

func joinCoords(coords []int, sep Separator) string {
	b := strings.Builder{}
	for i, c := range coords {
		if i > 0 {
			b.WriteString(string(sep))
		}
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}

func splitCoords(key, s string, sep Separator) ([]int, error) {
	parts := strings.Split(s, string(sep))
	coords := make([]int, len(parts))
	for i, p := range parts {
		c, err := strconv.Atoi(p)
		if err != nil || c < 0 {
			return nil, fmt.Errorf("%w: %q has non-integer coordinate %q", ErrInvalidChunkKey, key, p)
		}
		coords[i] = c
	}
	return coords, nil
}

// separatorDecoder decodes an optional "configuration" mapping. A missing
// configuration yields the scheme's default separator; this happens
// before the encoding is constructed, so decoded values compare equal to
// explicitly configured ones.
func separatorDecoder(scheme string, def Separator) Decoder[string] {
	config := RecordOf("ChunkKeyEncodingConfiguration", func(r *FieldReader) string {
		if !r.Has("separator") {
			return string(def)
		}
		return Read(r, "separator", Literal(string(SeparatorDot), string(SeparatorSlash)))
	})
	return func(v any) (string, error) {
		if v == nil {
			return string(def), nil
		}
		sep, err := config(v)
		if err != nil {
			return "", retype(err, scheme)
		}
		return sep, nil
	}
}

func chunkKeyEncodingVariant[E ChunkKeyEncoding](name string, def Separator, construct func(string) (E, error)) Variant[ChunkKeyEncoding] {
	sep := separatorDecoder(name, def)
	return Variant[ChunkKeyEncoding]{
		Name:   name + " chunk key encoding",
		Fields: []Field{TagField("name", name), {Name: "configuration"}},
		Decode: RecordOf(name+" chunk key encoding", func(r *FieldReader) ChunkKeyEncoding {
			Read(r, "name", Literal(name))
			s := Read(r, "configuration", sep)
			if r.Err() != nil {
				return nil
			}
			e, err := construct(s)
			r.Fail(err)
			return e
		}),
	}
}

// chunkKeyEncodings is the tagged union of all chunk key encodings,
// discriminated by "name"
var chunkKeyEncodings = Union("ChunkKeyEncoding",
	chunkKeyEncodingVariant(ChunkKeyEncodingDefault, SeparatorSlash, NewDefaultChunkKeyEncoding),
	chunkKeyEncodingVariant(ChunkKeyEncodingV2, SeparatorDot, NewV2ChunkKeyEncoding),
)

// DecodeChunkKeyEncoding decodes a chunk_key_encoding value tree
func DecodeChunkKeyEncoding(v any) (ChunkKeyEncoding, error) {
	return chunkKeyEncodings.Decode(v)
}

package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec is one step of a version 3 codec pipeline. CodecConfig returns the
// codec's document form, {"name": ..., "configuration": {...}}.
type Codec interface {
	CodecConfigurer
	CodecName() string
}

// BytesToBytesCodec is a codec that transforms encoded chunk bytes, such
// as a compressor or a checksum
type BytesToBytesCodec interface {
	Codec
	EncodeBytes(data []byte) ([]byte, error)
	DecodeBytes(data []byte) ([]byte, error)
}

// CodecParser builds a codec from its configuration mapping. config is nil
// when the document names the codec without a configuration.
type CodecParser func(config map[string]any) (Codec, error)

var (
	codecsLk sync.RWMutex
	codecs   = map[string]CodecParser{}
)

// RegisterCodec makes a codec available to ParseCodecs under name.
// Registering a name twice replaces the earlier parser.
func RegisterCodec(name string, parse CodecParser) {
	codecsLk.Lock()
	defer codecsLk.Unlock()
	codecs[name] = parse
}

func init() {
	RegisterCodec("bytes", codecParser(bytesCodecDecoder))
	RegisterCodec("transpose", codecParser(transposeCodecDecoder))
	RegisterCodec("gzip", codecParser(gzipCodecDecoder))
	RegisterCodec("zstd", codecParser(zstdCodecDecoder))
	RegisterCodec("crc32c", func(map[string]any) (Codec, error) { return Crc32cCodec{}, nil })

	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("zarr: zstd decoder initialization failed: " + err.Error())
	}
}

// ParseCodecs decodes the "codecs" field of array metadata. Elements are
// keyed by codec name through the registry rather than by a union tag, and
// may be written either as a bare name or as a named configuration.
func ParseCodecs(v any) ([]Codec, error) {
	seq, err := asSequence("codecs", v)
	if err != nil {
		return nil, err
	}
	out := make([]Codec, 0, len(seq))
	for i, el := range seq {
		c, err := parseCodec(el)
		if err != nil {
			return nil, inField(err, fmt.Sprint(i))
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCodec(v any) (Codec, error) {
	var (
		name   string
		config map[string]any
	)
	switch x := v.(type) {
	case string:
		name = x
	case map[string]any:
		n, ok := x["name"].(string)
		if !ok {
			return nil, mismatch("codec", v, `missing string "name"`)
		}
		name = n
		if raw, ok := x["configuration"]; ok && raw != nil {
			if config, ok = raw.(map[string]any); !ok {
				return nil, mismatch("codec "+name, raw, "configuration must be a mapping")
			}
		}
	default:
		return nil, mismatch("codec", v, "expected a codec name or named configuration")
	}

	codecsLk.RLock()
	parse, ok := codecs[name]
	codecsLk.RUnlock()
	if !ok {
		return nil, mismatch("codec", v, "unknown codec %q", name)
	}
	return parse(config)
}

func namedConfig(name string, config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{"name": name}
	}
	return map[string]any{"name": name, "configuration": config}
}

// codecParser adapts a configuration record decoder to a CodecParser. A
// missing configuration decodes as an empty mapping.
func codecParser[C Codec](d Decoder[C]) CodecParser {
	return func(config map[string]any) (Codec, error) {
		if config == nil {
			config = map[string]any{}
		}
		c, err := d(config)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Endian is the byte order of the bytes codec
type Endian string

const (
	EndianLittle Endian = "little"
	EndianBig    Endian = "big"
)

// EnumValue implements Enum
func (e Endian) EnumValue() any { return string(e) }

var endianDecoder = EnumOf("Endian", EndianLittle, EndianBig)

// BytesCodec serializes array elements to bytes. Endian is nil for data
// types one byte wide.
type BytesCodec struct {
	Endian *Endian
}

func (c BytesCodec) CodecName() string { return "bytes" }

func (c BytesCodec) CodecConfig() map[string]any {
	if c.Endian == nil {
		return namedConfig(c.CodecName(), nil)
	}
	return namedConfig(c.CodecName(), map[string]any{"endian": *c.Endian})
}

var bytesCodecDecoder = RecordOf("BytesCodec", func(r *FieldReader) BytesCodec {
	return BytesCodec{Endian: Read(r, "endian", Optional(endianDecoder))}
})

// TransposeCodec permutes array dimensions before serialization
type TransposeCodec struct {
	Order []int
}

func (c TransposeCodec) CodecName() string { return "transpose" }

func (c TransposeCodec) CodecConfig() map[string]any {
	return namedConfig(c.CodecName(), map[string]any{"order": c.Order})
}

var transposeCodecDecoder = RecordOf("TransposeCodec", func(r *FieldReader) TransposeCodec {
	order := Read(r, "order", SliceOf(Int()))
	seen := make(map[int]bool, len(order))
	for _, o := range order {
		if o < 0 || o >= len(order) || seen[o] {
			r.Fail(mismatch("TransposeCodec", r.Raw("order"), "order must be a permutation of 0..%d", len(order)-1))
			break
		}
		seen[o] = true
	}
	return TransposeCodec{Order: order}
})

// GzipCodec compresses chunk bytes with gzip
type GzipCodec struct {
	Level int
}

var _ BytesToBytesCodec = GzipCodec{}

func (c GzipCodec) CodecName() string { return "gzip" }

func (c GzipCodec) CodecConfig() map[string]any {
	return namedConfig(c.CodecName(), map[string]any{"level": c.Level})
}

func (c GzipCodec) EncodeBytes(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w, err := gzip.NewWriterLevel(buf, c.Level)
	if err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (c GzipCodec) DecodeBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

var gzipCodecDecoder = RecordOf("GzipCodec", func(r *FieldReader) GzipCodec {
	level := Read(r, "level", Int())
	if r.Err() == nil && (level < 0 || level > 9) {
		r.Fail(mismatch("GzipCodec", r.Raw("level"), "level must be between 0 and 9"))
	}
	return GzipCodec{Level: level}
})

// ZstdCodec compresses chunk bytes with zstandard
type ZstdCodec struct {
	Level    int
	Checksum bool
}

var _ BytesToBytesCodec = ZstdCodec{}

func (c ZstdCodec) CodecName() string { return "zstd" }

func (c ZstdCodec) CodecConfig() map[string]any {
	return namedConfig(c.CodecName(), map[string]any{"level": c.Level, "checksum": c.Checksum})
}

// zstdDecoder is safe for concurrent use and shared by all ZstdCodecs
var zstdDecoder *zstd.Decoder

func (c ZstdCodec) EncodeBytes(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.Level)),
		zstd.WithEncoderCRC(c.Checksum),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd compress: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (c ZstdCodec) DecodeBytes(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

var zstdCodecDecoder = RecordOf("ZstdCodec", func(r *FieldReader) ZstdCodec {
	c := ZstdCodec{}
	if r.Has("level") {
		c.Level = Read(r, "level", Int())
	}
	if r.Has("checksum") {
		c.Checksum = Read(r, "checksum", Bool())
	}
	return c
})

// Crc32cCodec appends a little-endian CRC-32C checksum to chunk bytes
type Crc32cCodec struct{}

var _ BytesToBytesCodec = Crc32cCodec{}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func (Crc32cCodec) CodecName() string { return "crc32c" }

func (c Crc32cCodec) CodecConfig() map[string]any { return namedConfig(c.CodecName(), nil) }

func (Crc32cCodec) EncodeBytes(data []byte) ([]byte, error) {
	out := make([]byte, len(data), len(data)+4)
	copy(out, data)
	return binary.LittleEndian.AppendUint32(out, crc32.Checksum(data, castagnoli)), nil
}

func (Crc32cCodec) DecodeBytes(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("crc32c: %d bytes is too short for a checksum", len(data))
	}
	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := crc32.Checksum(body, castagnoli); got != sum {
		return nil, fmt.Errorf("crc32c: checksum mismatch, stored %08x computed %08x", sum, got)
	}
	return body, nil
}

// bytesToBytes filters the pipeline down to its bytes-to-bytes stage
func bytesToBytes(pipeline []Codec) []BytesToBytesCodec {
	var out []BytesToBytesCodec
	for _, c := range pipeline {
		if b, ok := c.(BytesToBytesCodec); ok {
			out = append(out, b)
		}
	}
	return out
}
